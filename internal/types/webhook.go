package types

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// PlatformInstagram is the envelope discriminator for Instagram messaging webhooks.
const PlatformInstagram = "instagram"

// Envelope is the outer webhook body. Messaging records stay raw so a single
// malformed record cannot fail the whole delivery.
type Envelope struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID        ID                `json:"id"`   // receiving account, never the sender
	Time      int64             `json:"time"` // ms since epoch
	Messaging []json.RawMessage `json:"messaging"`
}

// Record is one element of entry.messaging. Variant bodies are kept raw and
// decoded by the classifier once the variant is known.
type Record struct {
	Sender      *Party          `json:"sender"`
	From        *Party          `json:"from"`
	Recipient   *Party          `json:"recipient"`
	Timestamp   int64           `json:"timestamp"`
	Message     json.RawMessage `json:"message"`
	MessageEdit json.RawMessage `json:"message_edit"`
	Postback    json.RawMessage `json:"postback"`
	Reaction    json.RawMessage `json:"reaction"`
}

type Party struct {
	ID       ID     `json:"id"`
	Username string `json:"username,omitempty"`
}

// ID accepts both JSON strings and numbers; the platform has sent both.
type ID string

func (i *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*i = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*i = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return err
	}
	*i = ID(n.String())
	return nil
}

// Present reports whether a raw variant body was sent and is not JSON null.
func Present(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) > 0 && !bytes.Equal(t, []byte("null"))
}

// Wire shapes of the variant bodies.

type MessageBody struct {
	MID         string            `json:"mid"`
	Text        string            `json:"text"`
	IsEcho      bool              `json:"is_echo"`
	IsDeleted   bool              `json:"is_deleted"`
	Attachments []json.RawMessage `json:"attachments"`
}

type MessageEditBody struct {
	MID     string `json:"mid"`
	Text    string `json:"text"`
	NumEdit int    `json:"num_edit"`
}

type PostbackBody struct {
	MID     string `json:"mid"`
	Title   string `json:"title"`
	Payload string `json:"payload"`
}

type ReactionBody struct {
	MID      string `json:"mid"`
	Action   string `json:"action"` // react | unreact
	Reaction string `json:"reaction"`
	Emoji    string `json:"emoji"`
}
