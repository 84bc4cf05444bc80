package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/xdh1129/medassist/pkg/gen"
)

// fakeModel scripts a generator: it emits tokens in order and then
// either finishes or aborts with err. The last model context it was
// called with is recorded for inspection.
type fakeModel struct {
	tokens []string
	err    error

	mctx gen.ModelContext
}

func (m *fakeModel) Generate(ctx context.Context, mctx gen.ModelContext) (string, error) {
	m.mctx = mctx
	if m.err != nil {
		return "", m.err
	}
	return strings.Join(m.tokens, ""), nil
}

func (m *fakeModel) GenerateStream(ctx context.Context, mctx gen.ModelContext) (gen.Stream, error) {
	m.mctx = mctx
	sb := gen.NewStreamBuilder(4)
	go func() {
		for _, tok := range m.tokens {
			if err := sb.Add(&gen.MessageChunk{Role: gen.RoleModel, Part: gen.Text(tok)}); err != nil {
				return
			}
		}
		if m.err != nil {
			sb.Abort(m.err)
			return
		}
		sb.Done(gen.Usage{})
	}()
	return sb.Stream(), nil
}

func testImage() *gen.Blob {
	return &gen.Blob{MIMEType: "image/jpeg", Data: []byte{0xff, 0xd8, 0xff}}
}

func collectEvents(p *Pipeline, st *State) []Event {
	var events []Event
	for ev := range p.Events(context.Background(), st) {
		events = append(events, ev)
	}
	return events
}

func eventNames(events []Event) []string {
	var names []string
	for _, ev := range events {
		switch e := ev.(type) {
		case *StatusEvent:
			names = append(names, e.Event)
		case *TokenEvent:
			names = append(names, e.Event)
		case *DoneEvent:
			names = append(names, e.Event)
		case *ErrorEvent:
			names = append(names, e.Event)
		}
	}
	return names
}

func TestRun_WithoutImage(t *testing.T) {
	vlm := &fakeModel{tokens: []string{"should", "not", "run"}}
	llm := &fakeModel{tokens: []string{"A normal chest x-ray shows..."}}
	p := &Pipeline{VLM: vlm, LLM: llm}

	st := NewState("What does a normal chest x-ray look like?", nil)
	if err := p.Run(context.Background(), st); err != nil {
		t.Fatalf("Run error: %v", err)
	}

	if st.Report != "" {
		t.Errorf("Report = %q, want empty (radiologist must not run)", st.Report)
	}
	if vlm.mctx != nil {
		t.Error("vision model must not be called without an image")
	}
	if st.Answer == "" {
		t.Error("Answer must be set")
	}
	// History grew by exactly one model message.
	if len(st.Messages) != 2 {
		t.Errorf("history length = %d, want 2", len(st.Messages))
	}
}

func TestRun_WithImage(t *testing.T) {
	vlm := &fakeModel{tokens: []string{"Opacity ", "in the left lobe."}}
	llm := &fakeModel{tokens: []string{"There is a finding worth following up."}}
	p := &Pipeline{VLM: vlm, LLM: llm}

	st := NewState("Any abnormalities?", testImage())
	if err := p.Run(context.Background(), st); err != nil {
		t.Fatalf("Run error: %v", err)
	}

	if st.Report != "Opacity in the left lobe." {
		t.Errorf("Report = %q", st.Report)
	}
	if st.Answer != "There is a finding worth following up." {
		t.Errorf("Answer = %q", st.Answer)
	}
	if len(st.Messages) != 3 {
		t.Errorf("history length = %d, want 3", len(st.Messages))
	}

	// The doctor stage must see the imaging report.
	if llm.mctx == nil {
		t.Fatal("text model was not called")
	}
	var doctorInput string
	for msg := range llm.mctx.Messages() {
		doctorInput += userTextOf(msg)
	}
	if !strings.Contains(doctorInput, "Opacity in the left lobe.") {
		t.Error("doctor input must contain the imaging report")
	}
}

func userTextOf(msg *gen.Message) string {
	contents, ok := msg.Payload.(gen.Contents)
	if !ok {
		return ""
	}
	var sb strings.Builder
	for _, p := range contents {
		if t, ok := p.(gen.Text); ok {
			sb.WriteString(string(t))
		}
	}
	return sb.String()
}

func TestRun_StageFailureAborts(t *testing.T) {
	boom := errors.New("model unreachable")
	p := &Pipeline{
		VLM: &fakeModel{err: boom},
		LLM: &fakeModel{tokens: []string{"never"}},
	}

	st := NewState("Any abnormalities?", testImage())
	err := p.Run(context.Background(), st)
	if !errors.Is(err, boom) {
		t.Fatalf("Run error = %v, want boom", err)
	}
	if st.Answer != "" {
		t.Error("Answer must stay empty after an aborted run")
	}
}

func TestEvents_ScenarioA_NoImage(t *testing.T) {
	p := &Pipeline{
		VLM: &fakeModel{tokens: []string{"unused"}},
		LLM: &fakeModel{tokens: []string{"A normal ", "chest x-ray ", "is clear."}},
	}

	st := NewState("What does a normal chest x-ray look like?", nil)
	events := collectEvents(p, st)

	names := eventNames(events)
	want := []string{EventStatus, EventLLMToken, EventLLMToken, EventLLMToken, EventDone}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Fatalf("events = %v, want %v", names, want)
	}

	done := events[len(events)-1].(*DoneEvent)
	if done.VLMOutput != nil {
		t.Errorf("vlm_output = %v, want null", *done.VLMOutput)
	}
	if done.LLMReport == nil || *done.LLMReport == "" {
		t.Error("llm_report must be non-empty")
	}
}

func TestEvents_ScenarioB_WithImage(t *testing.T) {
	p := &Pipeline{
		VLM: &fakeModel{tokens: []string{"No acute ", "findings."}},
		LLM: &fakeModel{tokens: []string{"Everything ", "looks fine."}},
	}

	st := NewState("Any abnormalities?", testImage())
	events := collectEvents(p, st)

	names := eventNames(events)
	want := []string{EventStatus, EventVLMToken, EventVLMToken, EventLLMToken, EventLLMToken, EventDone}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Fatalf("events = %v, want %v", names, want)
	}

	done := events[len(events)-1].(*DoneEvent)
	if done.VLMOutput == nil || *done.VLMOutput != "No acute findings." {
		t.Errorf("vlm_output = %v", done.VLMOutput)
	}
	if done.LLMReport == nil || *done.LLMReport != "Everything looks fine." {
		t.Errorf("llm_report = %v", done.LLMReport)
	}
}

func TestEvents_ScenarioC_MidStreamFailure(t *testing.T) {
	boom := errors.New("connection reset")
	p := &Pipeline{
		VLM: &fakeModel{tokens: []string{"tok1", "tok2"}, err: boom},
		LLM: &fakeModel{tokens: []string{"never"}},
	}

	st := NewState("Any abnormalities?", testImage())
	events := collectEvents(p, st)

	names := eventNames(events)
	want := []string{EventStatus, EventVLMToken, EventVLMToken, EventError}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Fatalf("events = %v, want %v", names, want)
	}

	errEv := events[len(events)-1].(*ErrorEvent)
	if !strings.Contains(errEv.Message, "connection reset") {
		t.Errorf("error message = %q", errEv.Message)
	}
}

func TestEvents_TokenConcatenationMatchesBatch(t *testing.T) {
	tokens := []string{"The ", "report ", "is ", "unremarkable."}
	streaming := &Pipeline{
		VLM: &fakeModel{tokens: []string{"clear "}},
		LLM: &fakeModel{tokens: tokens},
	}
	batch := &Pipeline{
		VLM: &fakeModel{tokens: []string{"clear "}},
		LLM: &fakeModel{tokens: tokens},
	}

	st := NewState("Any abnormalities?", testImage())
	var concat strings.Builder
	for _, ev := range collectEvents(streaming, st) {
		if tok, ok := ev.(*TokenEvent); ok && tok.Event == EventLLMToken {
			concat.WriteString(tok.Token)
		}
	}

	bst := NewState("Any abnormalities?", testImage())
	if err := batch.Run(context.Background(), bst); err != nil {
		t.Fatalf("Run error: %v", err)
	}

	if concat.String() != bst.Answer {
		t.Errorf("streamed concat = %q, batch = %q", concat.String(), bst.Answer)
	}
}

func TestEvents_OrderingInvariant(t *testing.T) {
	p := &Pipeline{
		VLM: &fakeModel{tokens: []string{"a", "b", "c"}},
		LLM: &fakeModel{tokens: []string{"x", "y"}},
	}

	st := NewState("question", testImage())
	events := collectEvents(p, st)

	sawLLM := false
	doneCount := 0
	for i, ev := range events {
		switch e := ev.(type) {
		case *TokenEvent:
			if e.Event == EventLLMToken {
				sawLLM = true
			}
			if e.Event == EventVLMToken && sawLLM {
				t.Fatal("vlm_token after llm_token")
			}
		case *DoneEvent:
			doneCount++
			if i != len(events)-1 {
				t.Fatal("done must be the last event")
			}
		}
	}
	if doneCount != 1 {
		t.Fatalf("done count = %d, want exactly 1", doneCount)
	}
}

func TestEvents_ConsumerStopsPulling(t *testing.T) {
	p := &Pipeline{
		VLM: &fakeModel{tokens: []string{"a", "b", "c", "d", "e", "f", "g", "h"}},
		LLM: &fakeModel{tokens: []string{"never"}},
	}

	st := NewState("question", testImage())
	seen := 0
	for ev := range p.Events(context.Background(), st) {
		if _, ok := ev.(*TokenEvent); ok {
			seen++
			if seen == 2 {
				break // consumer disconnects
			}
		}
	}

	if seen != 2 {
		t.Fatalf("seen = %d, want 2", seen)
	}
	if st.Answer != "" {
		t.Error("doctor stage must not run after the consumer stops pulling")
	}
}
