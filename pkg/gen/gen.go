// Package gen abstracts generative text model endpoints behind a
// provider-independent contract: a model context goes in, either a full
// response or an incremental token stream comes out.
package gen

import (
	"context"
	"iter"
)

// Stream delivers model output one chunk at a time. Next blocks until
// the next chunk is available and returns a terminal *State error once
// generation ends. CloseWithError releases the producer early when the
// consumer stops pulling.
type Stream interface {
	Next() (*MessageChunk, error)
	Close() error
	CloseWithError(error) error
}

// Generator is a read-only, stateless-per-call handle to one model
// endpoint. Implementations are safe for concurrent use.
type Generator interface {
	// Generate returns the full response text in one call.
	Generate(context.Context, ModelContext) (string, error)
	// GenerateStream returns the response incrementally.
	GenerateStream(context.Context, ModelContext) (Stream, error)
}

// ModelParams pins sampling behavior per call. Temperature is always
// sent, so zero means greedy decoding rather than provider default.
type ModelParams struct {
	MaxTokens   int     `json:"max_tokens,omitzero" yaml:"max_tokens,omitzero"`
	Temperature float32 `json:"temperature" yaml:"temperature"`
	TopP        float32 `json:"top_p,omitzero" yaml:"top_p,omitzero"`
}

// Prompt is a system-level directive sent ahead of the conversation.
type Prompt struct {
	Text string
}

type ModelContext interface {
	Prompts() iter.Seq[*Prompt]
	Messages() iter.Seq[*Message]

	Params() *ModelParams
}

// Usage reports token accounting for a finished generation.
type Usage struct {
	PromptTokenCount    int64
	GeneratedTokenCount int64
}

// CollectText drains a stream and concatenates the text of every chunk.
// A Done terminal state is success; any other terminal state is
// returned as the error alongside the text collected so far.
func CollectText(s Stream) (string, error) {
	var sb []byte
	for {
		chunk, err := s.Next()
		if err != nil {
			if IsDone(err) {
				return string(sb), nil
			}
			return string(sb), err
		}
		sb = append(sb, ChunkText(chunk)...)
	}
}
