package agent

import (
	"context"
	"fmt"

	"github.com/xdh1129/medassist/pkg/gen"
)

// Pipeline holds the two model handles. Both are constructed once at
// process start and shared across concurrent runs; all per-run state
// lives in State.
type Pipeline struct {
	// VLM is the vision-capable endpoint used by the radiologist
	// stage.
	VLM gen.Generator
	// LLM is the text endpoint used by the doctor stage.
	LLM gen.Generator
}

// Run drives a full run in batch mode: the router picks the first
// stage, the doctor always runs last, and the final state is returned.
// Any stage failure aborts the run.
func (p *Pipeline) Run(ctx context.Context, st *State) error {
	if Decide(st) == StageRadiologist {
		if err := p.runRadiologist(ctx, st); err != nil {
			return err
		}
	}
	return p.runDoctor(ctx, st)
}

// runRadiologist invokes the vision model and folds the imaging report
// into state.
func (p *Pipeline) runRadiologist(ctx context.Context, st *State) error {
	text, err := p.VLM.Generate(ctx, radiologistContext(st))
	if err != nil {
		return fmt.Errorf("radiologist stage: %w", err)
	}
	st.Report = text
	st.appendModelText(text)
	return nil
}

// runDoctor invokes the text model and folds the final answer into
// state.
func (p *Pipeline) runDoctor(ctx context.Context, st *State) error {
	text, err := p.LLM.Generate(ctx, doctorContext(st))
	if err != nil {
		return fmt.Errorf("doctor stage: %w", err)
	}
	st.Answer = text
	st.appendModelText(text)
	return nil
}
