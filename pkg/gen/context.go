package gen

import "iter"

var _ ModelContext = (*modelContext)(nil)

// ModelContextBuilder assembles the input for a single model call.
type ModelContextBuilder struct {
	Prompts  []*Prompt
	Messages []*Message

	Params *ModelParams
}

func (mcb *ModelContextBuilder) Build() ModelContext {
	return &modelContext{
		prompts:  mcb.Prompts,
		messages: mcb.Messages,
		params:   mcb.Params,
	}
}

// PromptText appends a system directive.
func (mcb *ModelContextBuilder) PromptText(text string) {
	mcb.Prompts = append(mcb.Prompts, &Prompt{Text: text})
}

// AddMessage appends a message. Consecutive content messages with the
// same role are merged into one.
func (mcb *ModelContextBuilder) AddMessage(msg *Message) {
	if n := len(mcb.Messages); n > 0 {
		last := mcb.Messages[n-1]
		if prev, ok := last.Payload.(Contents); ok && last.Role == msg.Role {
			if next, ok := msg.Payload.(Contents); ok {
				last.Payload = append(prev, next...)
				return
			}
		}
	}
	mcb.Messages = append(mcb.Messages, msg)
}

func (mcb *ModelContextBuilder) UserText(text string) {
	mcb.AddMessage(&Message{Role: RoleUser, Payload: Contents{Text(text)}})
}

func (mcb *ModelContextBuilder) UserBlob(mimeType string, data []byte) {
	mcb.AddMessage(&Message{Role: RoleUser, Payload: Contents{&Blob{MIMEType: mimeType, Data: data}}})
}

func (mcb *ModelContextBuilder) ModelText(text string) {
	mcb.AddMessage(&Message{Role: RoleModel, Payload: Contents{Text(text)}})
}

type modelContext struct {
	prompts  []*Prompt
	messages []*Message
	params   *ModelParams
}

func (mctx *modelContext) Prompts() iter.Seq[*Prompt] {
	return func(yield func(*Prompt) bool) {
		for _, p := range mctx.prompts {
			if !yield(p) {
				return
			}
		}
	}
}

func (mctx *modelContext) Messages() iter.Seq[*Message] {
	return func(yield func(*Message) bool) {
		for _, m := range mctx.messages {
			if !yield(m) {
				return
			}
		}
	}
}

func (mctx *modelContext) Params() *ModelParams {
	return mctx.params
}
