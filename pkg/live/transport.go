// Package live maintains the duplex streaming session with the cloud
// conversational model. The Driver owns the session state machine and the
// reconnect policy; a Transport owns one physical connection.
package live

// Kind identifies a server event variant.
type Kind int

const (
	// KindTranscript carries transcript text. Role says who spoke; Final
	// marks the end of that speaker's utterance.
	KindTranscript Kind = iota

	// KindAudio carries a chunk of model speech audio (PCM).
	KindAudio

	// KindToolCall asks the client to execute a function.
	KindToolCall

	// KindTurnComplete marks the end of the model's turn.
	KindTurnComplete

	// KindInterrupted means the model detected the user speaking over it
	// and stopped generating.
	KindInterrupted

	// Driver lifecycle notifications, not produced by transports.

	// KindReconnecting means the transport dropped and the driver is
	// attempting to reconnect.
	KindReconnecting

	// KindResumed means a fresh upstream stream is active after a drop.
	// The model's prior partial turn is abandoned.
	KindResumed

	// KindClosed is the terminal event. Err distinguishes a graceful stop
	// (nil) from an exhausted reconnect budget (ErrSessionLost).
	KindClosed
)

func (k Kind) String() string {
	switch k {
	case KindTranscript:
		return "transcript"
	case KindAudio:
		return "audio"
	case KindToolCall:
		return "tool_call"
	case KindTurnComplete:
		return "turn_complete"
	case KindInterrupted:
		return "interrupted"
	case KindReconnecting:
		return "reconnecting"
	case KindResumed:
		return "resumed"
	case KindClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Role identifies the speaker of a transcript event.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// Event is one occurrence on the session, delivered to the orchestrator in
// upstream emission order.
type Event struct {
	Kind  Kind
	Role  Role
	Text  string
	Final bool
	Audio []byte
	Call  *ToolCall
	Err   error
}

// Transport is one physical duplex connection to the model. A Transport is
// single-use: once its event channel closes it is dead and the Driver dials
// a fresh one. The inbound and outbound paths are independent; a blocked
// sender must never stall event delivery.
type Transport interface {
	// Events returns the inbound event stream. The channel is closed when
	// the connection dies or Close is called; Err reports why.
	Events() <-chan Event

	// SendAudio pushes one outbound PCM frame to the model.
	SendAudio(pcm []byte) error

	// SendToolResult returns a tool call result to the model.
	SendToolResult(callID, name, result string) error

	// Err reports the terminal connection error after Events closes.
	// Returns nil for a locally initiated Close.
	Err() error

	// Close releases the connection. Idempotent.
	Close() error
}

// Dialer opens one Transport. The Driver calls it for the initial connection
// and again for every reconnect attempt; the handshake must be complete
// before it returns.
type Dialer func() (Transport, error)
