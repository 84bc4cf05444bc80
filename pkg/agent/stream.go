package agent

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/xdh1129/medassist/pkg/gen"
)

// Events drives a full run in streaming mode, the primary mode. The
// returned sequence yields a status event, every token of the
// radiologist stage (when routed), every token of the doctor stage,
// and one terminal done event. A stage failure yields a single error
// event instead and ends the sequence; tokens already emitted are not
// retracted.
//
// The sequence is pull-based: a consumer that stops iterating closes
// the live model stream promptly instead of draining it in the
// background.
func (p *Pipeline) Events(ctx context.Context, st *State) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		if !yield(statusEvent()) {
			return
		}

		if Decide(st) == StageRadiologist {
			text, stopped, err := streamStage(ctx, p.VLM, radiologistContext(st), EventVLMToken, yield)
			if err != nil {
				yield(errorEvent(fmt.Errorf("radiologist stage: %w", err)))
				return
			}
			if stopped {
				return
			}
			st.Report = text
			st.appendModelText(text)
		}

		text, stopped, err := streamStage(ctx, p.LLM, doctorContext(st), EventLLMToken, yield)
		if err != nil {
			yield(errorEvent(fmt.Errorf("doctor stage: %w", err)))
			return
		}
		if stopped {
			return
		}
		st.Answer = text
		st.appendModelText(text)

		yield(doneEvent(st))
	}
}

// streamStage runs one stage's streaming executor to completion,
// forwarding each normalized non-empty increment as a token event
// before the next one is requested. It returns the concatenation of
// everything forwarded; stopped reports that the consumer stopped
// pulling mid-stream.
func streamStage(ctx context.Context, g gen.Generator, mctx gen.ModelContext, event string, yield func(Event) bool) (text string, stopped bool, err error) {
	stream, err := g.GenerateStream(ctx, mctx)
	if err != nil {
		return "", false, err
	}
	defer stream.Close()

	var sb strings.Builder
	for {
		chunk, err := stream.Next()
		if err != nil {
			if gen.IsDone(err) {
				return sb.String(), false, nil
			}
			return sb.String(), false, err
		}
		token := gen.ChunkText(chunk)
		if token == "" {
			continue
		}
		sb.WriteString(token)
		if !yield(&TokenEvent{Event: event, Token: token}) {
			return sb.String(), true, nil
		}
	}
}
