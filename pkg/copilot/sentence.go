package copilot

import "strings"

// sentenceDelimiters end an utterance for speech purposes. Japanese and
// western terminators plus newline.
const sentenceDelimiters = "。！？!?\n"

// sentenceBuffer accumulates streamed transcript fragments and yields
// complete sentences as they close. Speech is synthesized per sentence so
// playback can start before the model finishes its turn.
type sentenceBuffer struct {
	pending strings.Builder
}

// feed appends a transcript fragment and returns any sentences it completed.
func (b *sentenceBuffer) feed(text string) []string {
	b.pending.WriteString(text)

	buf := b.pending.String()
	var out []string
	start := 0
	for i, r := range buf {
		if !strings.ContainsRune(sentenceDelimiters, r) {
			continue
		}
		end := i + len(string(r))
		if s := strings.TrimSpace(buf[start:end]); s != "" {
			out = append(out, s)
		}
		start = end
	}

	b.pending.Reset()
	if start < len(buf) {
		b.pending.WriteString(buf[start:])
	}
	return out
}

// flush returns the trailing partial sentence, if any, and resets the buffer.
func (b *sentenceBuffer) flush() string {
	s := strings.TrimSpace(b.pending.String())
	b.pending.Reset()
	return s
}

// reset discards buffered text. Used when a turn is abandoned.
func (b *sentenceBuffer) reset() {
	b.pending.Reset()
}
