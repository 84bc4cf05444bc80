package gen

import "slices"

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

var (
	_ Payload = (Contents)(nil)

	_ Part = (*Blob)(nil)
	_ Part = (Text)("")
)

type Role string

func (r Role) String() string {
	return string(r)
}

// Message is one entry in a conversation history.
type Message struct {
	Role    Role
	Payload Payload
}

type Payload interface {
	isPayload()
}

// Contents is an ordered sequence of typed parts. A plain text message
// is a Contents with a single Text part.
type Contents []Part

func (Contents) isPayload() {}

// Part is either inline Text or a binary Blob.
type Part interface {
	isPart()
	clone() Part
}

type Text string

func (Text) isPart() {}

func (t Text) clone() Part { return t }

type Blob struct {
	MIMEType string
	Data     []byte
}

func (*Blob) isPart() {}

func (b *Blob) clone() Part {
	return &Blob{
		MIMEType: b.MIMEType,
		Data:     slices.Clone(b.Data),
	}
}

// MessageChunk is one incremental unit of a streamed model response.
type MessageChunk struct {
	Role Role
	Part Part
}

func (c *MessageChunk) Clone() *MessageChunk {
	chk := &MessageChunk{Role: c.Role}
	if c.Part != nil {
		chk.Part = c.Part.clone()
	}
	return chk
}

// ChunkText extracts plain text from a streamed chunk. Non-text parts
// are dropped silently.
func ChunkText(c *MessageChunk) string {
	if c == nil {
		return ""
	}
	if t, ok := c.Part.(Text); ok {
		return string(t)
	}
	return ""
}
