package gen

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/genai"
)

var _ Generator = (*GeminiGenerator)(nil)

// GeminiGenerator implements Generator using the Google Gemini API.
type GeminiGenerator struct {
	Client *genai.Client

	// Model should not start with "models/".
	Model  string
	Params *ModelParams
}

func (g *GeminiGenerator) Generate(ctx context.Context, mctx ModelContext) (string, error) {
	cfg, contents, err := g.convModelContext(mctx)
	if err != nil {
		return "", err
	}
	resp, err := g.Client.Models.GenerateContent(ctx, g.Model, contents, cfg)
	if err != nil {
		if e, ok := err.(*apierror.APIError); ok {
			err = e.Unwrap()
		}
		return "", fmt.Errorf("gemini: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return "", errors.New("gemini: no candidates")
	}
	cand := resp.Candidates[0]
	if cand.FinishReason != genai.FinishReasonStop {
		return "", fmt.Errorf("gemini: unexpected finish reason: %s", cand.FinishReason)
	}
	var sb strings.Builder
	for _, p := range cand.Content.Parts {
		if p.Text != "" {
			sb.WriteString(p.Text)
		}
	}
	return sb.String(), nil
}

func (g *GeminiGenerator) GenerateStream(ctx context.Context, mctx ModelContext) (Stream, error) {
	cfg, contents, err := g.convModelContext(mctx)
	if err != nil {
		return nil, err
	}
	sb := NewStreamBuilder(32)
	go func() {
		if err := geminiPull(sb, g.Client.Models.GenerateContentStream(ctx, g.Model, contents, cfg)); err != nil {
			sb.Abort(err)
		}
	}()
	return sb.Stream(), nil
}

func geminiPull(sb *StreamBuilder, itr iter.Seq2[*genai.GenerateContentResponse, error]) error {
	var selIdx int32
	for chunk, err := range itr {
		if err != nil {
			return err
		}
		if len(chunk.Candidates) == 0 {
			continue
		}
		var sel *genai.Candidate
		if selIdx == 0 {
			selIdx = chunk.Candidates[0].Index
			sel = chunk.Candidates[0]
		} else {
			for _, c := range chunk.Candidates {
				if c.Index == selIdx {
					sel = c
					break
				}
			}
			if sel == nil {
				continue
			}
		}

		var text strings.Builder
		for _, p := range sel.Content.Parts {
			if p.Text != "" {
				text.WriteString(p.Text)
			}
			// Inline data and other part kinds are dropped; this
			// pipeline consumes text output only.
		}
		if text.Len() > 0 {
			if err := sb.Add(&MessageChunk{Role: RoleModel, Part: Text(text.String())}); err != nil {
				return err
			}
		}

		switch sel.FinishReason {
		case genai.FinishReasonUnspecified, "":
			// continue
		case genai.FinishReasonStop:
			return sb.Done(geminiConvUsage(chunk.UsageMetadata))
		case genai.FinishReasonMaxTokens:
			return sb.Truncated(geminiConvUsage(chunk.UsageMetadata))
		case genai.FinishReasonSafety:
			var cats []string
			for _, sr := range sel.SafetyRatings {
				if sr.Blocked {
					cats = append(cats, string(sr.Category))
				}
			}
			return sb.Blocked(geminiConvUsage(chunk.UsageMetadata), "blocked by "+strings.Join(cats, ", "))
		default:
			return fmt.Errorf("gemini: unexpected finish reason: %s", sel.FinishReason)
		}
	}
	return errors.New("gemini: unexpected end of stream: no finish reason")
}

func (g *GeminiGenerator) convModelContext(mctx ModelContext) (*genai.GenerateContentConfig, []*genai.Content, error) {
	cfg := genai.GenerateContentConfig{}

	prompts := []*genai.Part{}
	for p := range mctx.Prompts() {
		prompts = append(prompts, genai.NewPartFromText(p.Text))
	}
	if len(prompts) > 0 {
		cfg.SystemInstruction = &genai.Content{Parts: prompts}
	}

	mp := g.Params
	if p := mctx.Params(); p != nil {
		mp = p
	}
	if mp != nil {
		cfg.MaxOutputTokens = int32(mp.MaxTokens)
		cfg.Temperature = &mp.Temperature
		if mp.TopP > 0 {
			cfg.TopP = &mp.TopP
		}
	}

	var (
		contents []*genai.Content
		last     *genai.Content
	)
	for msg := range mctx.Messages() {
		c, err := geminiConvMessage(last, msg)
		if err != nil {
			return nil, nil, err
		}
		if c != nil {
			contents = append(contents, c)
			last = c
		}
	}
	if len(contents) == 0 {
		return nil, nil, errors.New("gemini: no contents")
	}
	return &cfg, contents, nil
}

// geminiConvMessage converts one message, merging into last when the
// role matches (Gemini requires alternating roles).
func geminiConvMessage(last *genai.Content, msg *Message) (*genai.Content, error) {
	contents, ok := msg.Payload.(Contents)
	if !ok {
		return nil, fmt.Errorf("unexpected message payload: %T", msg.Payload)
	}
	var role string
	switch msg.Role {
	case RoleUser:
		role = "user"
	case RoleModel:
		role = "model"
	default:
		return nil, fmt.Errorf("unexpected message role: %s", msg.Role)
	}
	var parts []*genai.Part
	for _, c := range contents {
		switch v := c.(type) {
		case Text:
			parts = append(parts, genai.NewPartFromText(string(v)))
		case *Blob:
			parts = append(parts, genai.NewPartFromBytes(v.Data, v.MIMEType))
		}
	}
	if last != nil && last.Role == role {
		last.Parts = append(last.Parts, parts...)
		return nil, nil
	}
	return &genai.Content{Role: role, Parts: parts}, nil
}

func geminiConvUsage(usage *genai.GenerateContentResponseUsageMetadata) Usage {
	if usage == nil {
		return Usage{}
	}
	return Usage{
		PromptTokenCount:    int64(usage.PromptTokenCount),
		GeneratedTokenCount: int64(usage.CandidatesTokenCount),
	}
}
