// Package agent implements the two-stage medical inference pipeline:
// an optional imaging-analysis stage (VLM) followed by a synthesis
// stage (LLM), driven either to a final state or as a live stream of
// token events.
package agent

import "github.com/xdh1129/medassist/pkg/gen"

// State is the per-run record threaded through the stages. A fresh
// State is built per request and discarded after the terminal event.
type State struct {
	// Messages is the conversation history, seeded with the user's
	// message. Stage outputs are appended as model messages; the
	// history only grows within a run.
	Messages []*gen.Message

	// Image is the optional attachment, immutable once set.
	Image *gen.Blob

	// Report is the imaging analysis produced by the radiologist
	// stage. Empty until that stage runs, never overwritten.
	Report string

	// Answer is the synthesis produced by the doctor stage. It is the
	// run's answer.
	Answer string
}

// NewState builds the initial state for a run: history seeded with one
// user message, attachment set when image data is present.
func NewState(prompt string, image *gen.Blob) *State {
	return &State{
		Messages: []*gen.Message{
			{Role: gen.RoleUser, Payload: gen.Contents{gen.Text(prompt)}},
		},
		Image: image,
	}
}

func (st *State) appendModelText(text string) {
	st.Messages = append(st.Messages, &gen.Message{
		Role:    gen.RoleModel,
		Payload: gen.Contents{gen.Text(text)},
	})
}
