package copilot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cabinworks/go-copilot/pkg/event"
	"github.com/cabinworks/go-copilot/pkg/gateway"
	"github.com/cabinworks/go-copilot/pkg/live"
	"github.com/cabinworks/go-copilot/pkg/places"
)

const (
	toolSearchPlaces   = "searchPlaces"
	toolExpressEmotion = "expressEmotion"
	toolPerformGesture = "performGesture"

	toolTimeout = 15 * time.Second
)

// ToolDecls returns the function declarations announced to the model at
// session setup.
func ToolDecls() []live.ToolDecl {
	return []live.ToolDecl{
		{
			Name:        toolSearchPlaces,
			Description: "Search for places near the vehicle and show them on the passenger map.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "What to search for, e.g. 'nearest gas station'",
					},
				},
				"required": []string{"query"},
			},
		},
		{
			Name:        toolExpressEmotion,
			Description: "Show an emotion on the robot face.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"emotion": map[string]any{
						"type":        "string",
						"description": "One of: neutral, happy, sad, surprised, thinking, listening",
					},
				},
				"required": []string{"emotion"},
			},
		},
		{
			Name:        toolPerformGesture,
			Description: "Perform a short physical gesture.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"gesture": map[string]any{
						"type":        "string",
						"description": "One of: nod, shake, tilt, bounce",
					},
				},
				"required": []string{"gesture"},
			},
		},
	}
}

// dispatchTool executes one model function call and returns the result text
// fed back to the model. Unknown tools report failure rather than erroring
// the session.
func (a *App) dispatchTool(ctx context.Context, call *live.ToolCall) string {
	ctx, cancel := context.WithTimeout(ctx, toolTimeout)
	defer cancel()

	switch call.Name {
	case toolSearchPlaces:
		return a.runSearchPlaces(ctx, call.Args)
	case toolExpressEmotion:
		return a.runExpression(argString(call.Args, "emotion"))
	case toolPerformGesture:
		return a.runExpression(argString(call.Args, "gesture"))
	default:
		a.log.Warn("model called unknown tool", "tool", call.Name)
		return fmt.Sprintf("Tool %q not found.", call.Name)
	}
}

// runSearchPlaces resolves the query and publishes one location event per
// candidate so viewer maps update while the model narrates.
func (a *App) runSearchPlaces(ctx context.Context, args map[string]any) string {
	query := argString(args, "query")
	if query == "" {
		return "Search failed: empty query."
	}

	results, err := a.resolver.Search(ctx, query)
	if err != nil {
		if errors.Is(err, places.ErrNoResults) {
			return fmt.Sprintf("No places found for %q.", query)
		}
		a.log.Warn("place search failed", "query", query, "error", err)
		return "Search failed: the map service is unavailable."
	}

	names := make([]string, 0, len(results))
	for _, p := range results {
		a.hub.Publish(event.NewLocation(p.Name, p.Address, ""))
		names = append(names, p.Name)
	}

	a.log.Info("published place results", "query", query, "count", len(results))
	return fmt.Sprintf("Found %d places: %s. They are shown on the passenger map.",
		len(results), strings.Join(names, ", "))
}

// runExpression maps a named emotion or gesture onto the robot face.
func (a *App) runExpression(name string) string {
	if name == "" {
		return "Action failed: no name given."
	}

	if err := a.gateway.SetExpression(gateway.Expression(name)); err != nil {
		a.log.Warn("expression failed", "name", name, "error", err)
		return "Action failed: the robot body did not respond."
	}
	return "Action started."
}

func argString(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	s, _ := args[key].(string)
	return strings.TrimSpace(s)
}
