package agent

import (
	"fmt"
	"strings"

	"github.com/xdh1129/medassist/pkg/gen"
)

const (
	radiologistPreamble = "You are a medical imaging analyst. Analyze the provided medical image in detail. " +
		"Focus on clinically relevant findings, note uncertainties, and avoid speculation."

	doctorSystemPrompt = "You are a careful medical doctor. Avoid overconfident claims."

	missingReportNote = "No imaging report was generated."
)

// Sampling is pinned per stage so repeated runs with the same inputs
// stay comparable.
var stageParams = &gen.ModelParams{Temperature: 0}

// userText pulls the latest user-authored text from the history,
// scanning from the end. Text parts are concatenated in order,
// newline-separated; non-text parts are skipped. Returns "" when no
// user text exists, which is not an error.
func userText(messages []*gen.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		msg := messages[i]
		if msg.Role != gen.RoleUser {
			continue
		}
		contents, ok := msg.Payload.(gen.Contents)
		if !ok {
			continue
		}
		var parts []string
		for _, p := range contents {
			if t, ok := p.(gen.Text); ok && t != "" {
				parts = append(parts, string(t))
			}
		}
		return strings.Join(parts, "\n")
	}
	return ""
}

// radiologistContext builds the vision-stage input: the analysis
// preamble, the clinician question when present, and the image inline.
func radiologistContext(st *State) gen.ModelContext {
	mcb := &gen.ModelContextBuilder{Params: stageParams}
	mcb.UserText(radiologistPreamble)
	if prompt := userText(st.Messages); prompt != "" {
		mcb.UserText(fmt.Sprintf("Clinician question: %s", prompt))
	}
	if st.Image != nil {
		mcb.UserBlob(st.Image.MIMEType, st.Image.Data)
	}
	return mcb.Build()
}

// doctorContext builds the synthesis-stage input: a system directive
// plus one composite user instruction carrying the question and the
// imaging report (or a placeholder when the radiologist never ran).
func doctorContext(st *State) gen.ModelContext {
	prompt := userText(st.Messages)
	report := st.Report
	if report == "" {
		report = missingReportNote
	}

	mcb := &gen.ModelContextBuilder{Params: stageParams}
	mcb.PromptText(doctorSystemPrompt)
	mcb.UserText(fmt.Sprintf(
		"You are the attending physician speaking directly to the user. "+
			"Review the clinician's question and the imaging report and give a clear, plain-language answer with bullet points. "+
			"State any uncertainties and next steps the user can consider.\n\n"+
			"Clinician question:\n%s\n\n"+
			"Imaging report:\n%s\n\n"+
			"Respond succinctly and conversationally; avoid AI-style disclaimers.",
		prompt, report,
	))
	return mcb.Build()
}
