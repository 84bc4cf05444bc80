package agent

// Event names on the wire.
const (
	EventStatus   = "status"
	EventVLMToken = "vlm_token"
	EventLLMToken = "llm_token"
	EventDone     = "done"
	EventError    = "error"
)

// Event is one element of the pipeline's output protocol. Events are
// JSON-serializable and emitted in strict order: status, then tokens,
// then exactly one done — or one error that terminates the sequence.
type Event interface {
	isEvent()
}

// StatusEvent signals that the run has been accepted and is starting.
type StatusEvent struct {
	Event string `json:"event"`
	State string `json:"state"`
}

func (*StatusEvent) isEvent() {}

// TokenEvent carries one normalized text increment from a stage.
// Event is EventVLMToken for the radiologist stage and EventLLMToken
// for the doctor stage.
type TokenEvent struct {
	Event string `json:"event"`
	Token string `json:"token"`
}

func (*TokenEvent) isEvent() {}

// DoneEvent is the terminal event, always exactly one per successful
// run, always last. VLMOutput is null when the radiologist never ran.
type DoneEvent struct {
	Event     string  `json:"event"`
	VLMOutput *string `json:"vlm_output"`
	LLMReport *string `json:"llm_report"`
}

func (*DoneEvent) isEvent() {}

// ErrorEvent replaces all further events when a stage fails.
type ErrorEvent struct {
	Event   string `json:"event"`
	Message string `json:"message"`
}

func (*ErrorEvent) isEvent() {}

func statusEvent() *StatusEvent {
	return &StatusEvent{Event: EventStatus, State: "processing"}
}

func doneEvent(st *State) *DoneEvent {
	done := &DoneEvent{Event: EventDone}
	if st.Report != "" {
		done.VLMOutput = &st.Report
	}
	if st.Answer != "" {
		done.LLMReport = &st.Answer
	}
	return done
}

func errorEvent(err error) *ErrorEvent {
	return &ErrorEvent{Event: EventError, Message: err.Error()}
}
