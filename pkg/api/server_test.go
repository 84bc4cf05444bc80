package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/xdh1129/medassist/pkg/agent"
	"github.com/xdh1129/medassist/pkg/gen"
)

type scriptedModel struct {
	tokens []string
}

func (m *scriptedModel) Generate(ctx context.Context, mctx gen.ModelContext) (string, error) {
	return strings.Join(m.tokens, ""), nil
}

func (m *scriptedModel) GenerateStream(ctx context.Context, mctx gen.ModelContext) (gen.Stream, error) {
	sb := gen.NewStreamBuilder(4)
	go func() {
		for _, tok := range m.tokens {
			if err := sb.Add(&gen.MessageChunk{Role: gen.RoleModel, Part: gen.Text(tok)}); err != nil {
				return
			}
		}
		sb.Done(gen.Usage{})
	}()
	return sb.Stream(), nil
}

func newTestServer() *Server {
	return NewServer(&agent.Pipeline{
		VLM: &scriptedModel{tokens: []string{"finding one"}},
		LLM: &scriptedModel{tokens: []string{"all ", "clear"}},
	}, nil)
}

func analyzeRequest(t *testing.T, prompt string, image []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("prompt", prompt); err != nil {
		t.Fatal(err)
	}
	if image != nil {
		fw, err := mw.CreateFormFile("image", "scan.jpg")
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(image)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/analyze/", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func sseEvents(t *testing.T, body string) []map[string]any {
	t.Helper()
	var events []map[string]any
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev map[string]any
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			t.Fatalf("bad event line %q: %v", line, err)
		}
		events = append(events, ev)
	}
	return events
}

func TestHealthz(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestAnalyze_StreamsEventProtocol(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer().Handler().ServeHTTP(rec, analyzeRequest(t, "Any abnormalities?", []byte{0xff, 0xd8}))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("content type = %q", got)
	}

	events := sseEvents(t, rec.Body.String())
	if len(events) == 0 {
		t.Fatal("no events")
	}
	if events[0]["event"] != "status" || events[0]["state"] != "processing" {
		t.Errorf("first event = %v", events[0])
	}
	last := events[len(events)-1]
	if last["event"] != "done" {
		t.Fatalf("last event = %v, want done", last)
	}
	if last["vlm_output"] != "finding one" {
		t.Errorf("vlm_output = %v", last["vlm_output"])
	}
	if last["llm_report"] != "all clear" {
		t.Errorf("llm_report = %v", last["llm_report"])
	}

	var vlm, llm int
	for _, ev := range events {
		switch ev["event"] {
		case "vlm_token":
			vlm++
		case "llm_token":
			llm++
		}
	}
	if vlm < 1 || llm < 1 {
		t.Errorf("token counts vlm=%d llm=%d, want both >= 1", vlm, llm)
	}
}

func TestAnalyze_NoImageSkipsVisionStage(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer().Handler().ServeHTTP(rec, analyzeRequest(t, "What does a normal chest x-ray look like?", nil))

	events := sseEvents(t, rec.Body.String())
	for _, ev := range events {
		if ev["event"] == "vlm_token" {
			t.Fatal("vlm_token emitted without an image")
		}
	}
	last := events[len(events)-1]
	if last["event"] != "done" {
		t.Fatalf("last event = %v, want done", last)
	}
	if last["vlm_output"] != nil {
		t.Errorf("vlm_output = %v, want null", last["vlm_output"])
	}
}

func TestAnalyze_EmptyImageRejected(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer().Handler().ServeHTTP(rec, analyzeRequest(t, "question", []byte{}))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestAnalyze_PromptTooLong(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer().Handler().ServeHTTP(rec, analyzeRequest(t, strings.Repeat("x", maxPromptLength+1), nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestAnalyze_MethodNotAllowed(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/analyze/", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/analyze/", nil))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}
