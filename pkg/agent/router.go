package agent

// Stage identifies one model-invocation step of the pipeline.
type Stage string

const (
	// StageRadiologist analyzes the attached image with the vision
	// model and produces the imaging report.
	StageRadiologist Stage = "radiologist"
	// StageDoctor synthesizes the user question and the imaging
	// report into the final answer.
	StageDoctor Stage = "doctor"
)

// Decide selects the next stage. The radiologist runs iff an image is
// attached and no report exists yet; otherwise the doctor runs. Pure
// function of those two fields only.
func Decide(st *State) Stage {
	if st.Image != nil && st.Report == "" {
		return StageRadiologist
	}
	return StageDoctor
}
