package gen

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/packages/ssestream"
)

var _ Generator = (*OpenAIGenerator)(nil)

const (
	oaiFinishReasonStop          = "stop"
	oaiFinishReasonLength        = "length"
	oaiFinishReasonContentFilter = "content_filter"
)

// OpenAIGenerator implements Generator on any OpenAI-compatible chat
// completions endpoint, including an Ollama server's /v1 API.
type OpenAIGenerator struct {
	Client *openai.Client

	Model  string
	Params *ModelParams

	// UseSystemRole sends prompts with the system role instead of the
	// developer role. Required by most OpenAI-compatible servers.
	UseSystemRole bool
}

func (g *OpenAIGenerator) Generate(ctx context.Context, mctx ModelContext) (string, error) {
	params, err := g.chatCompletion(mctx)
	if err != nil {
		return "", err
	}
	resp, err := g.Client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai chat: no choices")
	}
	choice := resp.Choices[0]
	if choice.Message.Refusal != "" {
		return "", fmt.Errorf("openai chat: blocked: %s", choice.Message.Refusal)
	}
	return choice.Message.Content, nil
}

func (g *OpenAIGenerator) GenerateStream(ctx context.Context, mctx ModelContext) (Stream, error) {
	params, err := g.chatCompletion(mctx)
	if err != nil {
		return nil, err
	}
	sb := NewStreamBuilder(32)
	go func() {
		if err := oaiPull(sb, g.Client.Chat.Completions.NewStreaming(ctx, params)); err != nil {
			sb.Abort(err)
		}
	}()
	return sb.Stream(), nil
}

func oaiPull(sb *StreamBuilder, stream *ssestream.Stream[openai.ChatCompletionChunk]) error {
	var index int64
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		var sel *openai.ChatCompletionChunkChoice
		if index == 0 {
			index = chunk.Choices[0].Index
			sel = &chunk.Choices[0]
		} else {
			for _, c := range chunk.Choices {
				if c.Index == index {
					sel = &c
					break
				}
			}
			if sel == nil {
				continue
			}
		}
		if s := sel.Delta.Content; s != "" {
			if err := sb.Add(&MessageChunk{Role: RoleModel, Part: Text(s)}); err != nil {
				return err
			}
		}
		switch sel.FinishReason {
		case oaiFinishReasonStop:
			return sb.Done(oaiConvUsage(&chunk.Usage))
		case oaiFinishReasonLength:
			return sb.Truncated(oaiConvUsage(&chunk.Usage))
		case oaiFinishReasonContentFilter:
			return sb.Blocked(oaiConvUsage(&chunk.Usage), sel.Delta.Refusal)
		}
		if s := sel.Delta.Refusal; s != "" {
			return sb.Blocked(oaiConvUsage(&chunk.Usage), s)
		}
	}
	if err := stream.Err(); err != nil {
		return err
	}
	// Some compatible servers end the SSE stream without a finish
	// reason; treat that as a normal stop.
	return sb.Done(Usage{})
}

func (g *OpenAIGenerator) chatCompletion(mctx ModelContext) (openai.ChatCompletionNewParams, error) {
	msgs, err := g.convModelContext(mctx)
	if err != nil {
		return openai.ChatCompletionNewParams{}, err
	}
	params := openai.ChatCompletionNewParams{
		Messages: msgs,
		Model:    g.Model,
	}
	mp := g.Params
	if p := mctx.Params(); p != nil {
		mp = p
	}
	if mp != nil {
		// Temperature is set unconditionally: zero pins sampling for
		// reproducible runs and must not fall back to the default.
		params.Temperature = param.NewOpt(float64(mp.Temperature))
		if mp.MaxTokens > 0 {
			params.MaxCompletionTokens = param.NewOpt(int64(mp.MaxTokens))
		}
		if mp.TopP > 0 {
			params.TopP = param.NewOpt(float64(mp.TopP))
		}
	}
	return params, nil
}

func (g *OpenAIGenerator) convModelContext(mctx ModelContext) ([]openai.ChatCompletionMessageParamUnion, error) {
	out := []openai.ChatCompletionMessageParamUnion{}
	for p := range mctx.Prompts() {
		out = append(out, g.convPrompt(p))
	}
	for msg := range mctx.Messages() {
		mp, err := g.convMessage(msg)
		if err != nil {
			return nil, err
		}
		out = append(out, mp)
	}
	return out, nil
}

func (g *OpenAIGenerator) convPrompt(p *Prompt) openai.ChatCompletionMessageParamUnion {
	if g.UseSystemRole {
		return openai.SystemMessage(p.Text)
	}
	return openai.ChatCompletionMessageParamUnion{
		OfDeveloper: &openai.ChatCompletionDeveloperMessageParam{
			Content: openai.ChatCompletionDeveloperMessageParamContentUnion{
				OfString: param.NewOpt(p.Text),
			},
		},
	}
}

func (g *OpenAIGenerator) convMessage(msg *Message) (openai.ChatCompletionMessageParamUnion, error) {
	contents, ok := msg.Payload.(Contents)
	if !ok {
		return openai.ChatCompletionMessageParamUnion{}, fmt.Errorf("unexpected message payload: %T", msg.Payload)
	}
	switch msg.Role {
	case RoleUser:
		return g.convUserMessage(contents)
	case RoleModel:
		return g.convModelMessage(contents)
	}
	return openai.ChatCompletionMessageParamUnion{}, fmt.Errorf("unexpected message role: %s", msg.Role)
}

func (g *OpenAIGenerator) convModelMessage(contents Contents) (openai.ChatCompletionMessageParamUnion, error) {
	var text bytes.Buffer
	for _, c := range contents {
		switch v := c.(type) {
		case Text:
			text.WriteString(string(v))
		case *Blob:
			return openai.ChatCompletionMessageParamUnion{}, errors.New("model message must contain text only")
		}
	}
	if text.Len() == 0 {
		return openai.ChatCompletionMessageParamUnion{}, errors.New("model message must contain text")
	}
	return openai.AssistantMessage(text.String()), nil
}

func (g *OpenAIGenerator) convUserMessage(contents Contents) (openai.ChatCompletionMessageParamUnion, error) {
	var (
		texts []string
		parts []openai.ChatCompletionContentPartUnionParam
		blobs int
	)
	for _, c := range contents {
		switch v := c.(type) {
		case Text:
			texts = append(texts, string(v))
			parts = append(parts, openai.TextContentPart(string(v)))
		case *Blob:
			if !strings.HasPrefix(v.MIMEType, "image/") {
				return openai.ChatCompletionMessageParamUnion{}, fmt.Errorf("unsupported blob type: %s", v.MIMEType)
			}
			blobs++
			parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
				URL: fmt.Sprintf("data:%s;base64,%s", v.MIMEType, base64.StdEncoding.EncodeToString(v.Data)),
			}))
		}
	}
	if blobs == 0 {
		// Text-only messages collapse to the plain string form.
		if len(texts) == 0 {
			return openai.ChatCompletionMessageParamUnion{}, errors.New("user message must contain text or an image")
		}
		return openai.UserMessage(strings.Join(texts, "\n")), nil
	}
	return openai.ChatCompletionMessageParamUnion{
		OfUser: &openai.ChatCompletionUserMessageParam{
			Content: openai.ChatCompletionUserMessageParamContentUnion{
				OfArrayOfContentParts: parts,
			},
		},
	}, nil
}

func oaiConvUsage(usage *openai.CompletionUsage) Usage {
	return Usage{
		PromptTokenCount:    usage.PromptTokens,
		GeneratedTokenCount: usage.CompletionTokens,
	}
}
