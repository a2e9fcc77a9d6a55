// Package classifier turns a webhook envelope into typed messaging events.
// It performs no I/O and holds no state, so classifying the same envelope
// twice yields the same sequence.
package classifier

import (
	"encoding/json"
	"fmt"
	"iter"
	"math"
	"strings"

	"ig-autoreply/internal/types"
)

// ParseEnvelope decodes the outer webhook body. Only the envelope itself is
// strict; individual messaging records are decoded tolerantly by Classify.
func ParseEnvelope(raw []byte) (types.Envelope, error) {
	var env types.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return types.Envelope{}, fmt.Errorf("parse webhook envelope: %w", err)
	}
	return env, nil
}

// Classify yields one Classified per messaging record, entries in order and
// records within an entry in order. Envelopes for other platforms yield nothing.
func Classify(env types.Envelope) iter.Seq[types.Classified] {
	return func(yield func(types.Classified) bool) {
		if env.Object != types.PlatformInstagram {
			return
		}
		for _, entry := range env.Entry {
			for _, raw := range entry.Messaging {
				c := classifyRecord(raw)
				c.EntryID = string(entry.ID)
				if !yield(c) {
					return
				}
			}
		}
	}
}

// Collect drains Classify into a slice.
func Collect(env types.Envelope) []types.Classified {
	var out []types.Classified
	for c := range Classify(env) {
		out = append(out, c)
	}
	return out
}

func classifyRecord(raw json.RawMessage) types.Classified {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return types.Classified{Event: types.Unknown{}}
	}
	// Each field is decoded on its own; a mistyped one reads as absent.
	rec := types.Record{
		Sender:      decodeParty(fields["sender"]),
		From:        decodeParty(fields["from"]),
		Recipient:   decodeParty(fields["recipient"]),
		Timestamp:   decodeTimestamp(fields["timestamp"]),
		Message:     fields["message"],
		MessageEdit: fields["message_edit"],
		Postback:    fields["postback"],
		Reaction:    fields["reaction"],
	}
	return types.Classified{
		SenderID:    senderID(rec),
		RecipientID: partyID(rec.Recipient),
		Timestamp:   rec.Timestamp,
		Event:       variant(rec),
	}
}

func decodeParty(raw json.RawMessage) *types.Party {
	if !types.Present(raw) {
		return nil
	}
	var p struct {
		ID       json.RawMessage `json:"id"`
		Username json.RawMessage `json:"username"`
	}
	if json.Unmarshal(raw, &p) != nil {
		return nil
	}
	var party types.Party
	if types.Present(p.ID) && party.ID.UnmarshalJSON(p.ID) != nil {
		party.ID = ""
	}
	_ = json.Unmarshal(p.Username, &party.Username)
	return &party
}

// decodeTimestamp accepts integer, float and numeric-string milliseconds.
// Anything else reads as 0.
func decodeTimestamp(raw json.RawMessage) int64 {
	if !types.Present(raw) {
		return 0
	}
	var n json.Number
	if json.Unmarshal(raw, &n) != nil {
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return 0
		}
		n = json.Number(strings.TrimSpace(s))
	}
	if v, err := n.Int64(); err == nil {
		return v
	}
	if f, err := n.Float64(); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return int64(f)
	}
	return 0
}

// senderID reads sender.id, then from.id. The entry id is the receiving
// account and is deliberately not a fallback.
func senderID(rec types.Record) string {
	if id := partyID(rec.Sender); id != "" {
		return id
	}
	return partyID(rec.From)
}

func partyID(p *types.Party) string {
	if p == nil {
		return ""
	}
	return string(p.ID)
}

func variant(rec types.Record) types.MessagingEvent {
	switch {
	case types.Present(rec.Message):
		var b types.MessageBody
		if json.Unmarshal(rec.Message, &b) != nil {
			return types.Unknown{}
		}
		return types.Message{
			MID:            b.MID,
			Text:           b.Text,
			IsEcho:         b.IsEcho,
			IsDeleted:      b.IsDeleted,
			HasAttachments: len(b.Attachments) > 0,
		}
	case types.Present(rec.MessageEdit):
		var b types.MessageEditBody
		if json.Unmarshal(rec.MessageEdit, &b) != nil {
			return types.Unknown{}
		}
		return types.MessageEdit{MID: b.MID, Text: b.Text, NumEdit: b.NumEdit}
	case types.Present(rec.Postback):
		var b types.PostbackBody
		if json.Unmarshal(rec.Postback, &b) != nil {
			return types.Unknown{}
		}
		return types.Postback{MID: b.MID, Title: b.Title, Payload: b.Payload}
	case types.Present(rec.Reaction):
		var b types.ReactionBody
		if json.Unmarshal(rec.Reaction, &b) != nil {
			return types.Unknown{}
		}
		return types.Reaction{MID: b.MID, Action: b.Action, Reaction: b.Reaction, Emoji: b.Emoji}
	default:
		return types.Unknown{}
	}
}
