package types

// Kind names a MessagingEvent variant.
type Kind string

const (
	KindMessage     Kind = "message"
	KindMessageEdit Kind = "message_edit"
	KindPostback    Kind = "postback"
	KindReaction    Kind = "reaction"
	KindUnknown     Kind = "unknown"
)

// MessagingEvent is a closed union: only the variants below implement it.
type MessagingEvent interface {
	Kind() Kind
	isMessagingEvent()
}

type Message struct {
	MID            string
	Text           string
	IsEcho         bool
	IsDeleted      bool
	HasAttachments bool
}

type MessageEdit struct {
	MID     string
	Text    string
	NumEdit int
}

// PossibleFirstMessage is true for edits with num_edit == 0. The platform has
// been seen delivering a first message in this shape; whether it ever does so
// without also sending a regular message event is unresolved, so callers must
// not reply to it.
func (e MessageEdit) PossibleFirstMessage() bool { return e.NumEdit == 0 }

type Postback struct {
	MID     string
	Title   string
	Payload string
}

type Reaction struct {
	MID      string
	Action   string
	Reaction string
	Emoji    string
}

type Unknown struct{}

func (Message) Kind() Kind     { return KindMessage }
func (MessageEdit) Kind() Kind { return KindMessageEdit }
func (Postback) Kind() Kind    { return KindPostback }
func (Reaction) Kind() Kind    { return KindReaction }
func (Unknown) Kind() Kind     { return KindUnknown }

func (Message) isMessagingEvent()     {}
func (MessageEdit) isMessagingEvent() {}
func (Postback) isMessagingEvent()    {}
func (Reaction) isMessagingEvent()    {}
func (Unknown) isMessagingEvent()     {}

// Classified is one messaging record after classification. SenderID is empty
// when neither sender.id nor from.id resolved.
type Classified struct {
	EntryID     string
	SenderID    string
	RecipientID string
	Timestamp   int64
	Event       MessagingEvent
}

func (c Classified) HasSender() bool { return c.SenderID != "" }

// Replyable reports whether the event is an inbound, non-echo text message.
func (c Classified) Replyable() bool {
	m, ok := c.Event.(Message)
	return ok && !m.IsEcho && !m.IsDeleted && m.Text != ""
}
