package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ig-autoreply/internal/ig"
	"ig-autoreply/internal/store"
	"ig-autoreply/internal/types"
)

type call struct {
	Token     string
	Recipient string
	Text      string
	Action    string
}

type fakeSender struct {
	mu        sync.Mutex
	calls     []call
	textErr   error
	actionErr error
}

func (f *fakeSender) SendText(_ context.Context, token, recipientID, text string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{Token: token, Recipient: recipientID, Text: text})
	return json.RawMessage(`{}`), f.textErr
}

func (f *fakeSender) SendAction(_ context.Context, token, recipientID, action string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{Token: token, Recipient: recipientID, Action: action})
	return json.RawMessage(`{}`), f.actionErr
}

func (f *fakeSender) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func (f *fakeSender) Texts() []call {
	var out []call
	for _, c := range f.Calls() {
		if c.Action == "" {
			out = append(out, c)
		}
	}
	return out
}

func authed() *store.CredentialStore {
	s := store.NewCredentialStore()
	s.Set(store.Credentials{AccessToken: "tok", AccountID: "acc"})
	return s
}

func message(sender, text string) types.Classified {
	return types.Classified{SenderID: sender, Event: types.Message{Text: text}}
}

func TestDispatchRepliesWithTypingThenText(t *testing.T) {
	s := &fakeSender{}
	d := New(s, authed(), Options{Typing: true})

	out := d.Dispatch(context.Background(), message("U1", "hi"))

	assert.Equal(t, Replied, out)
	assert.Equal(t, []call{
		{Token: "tok", Recipient: "U1", Action: ig.ActionTypingOn},
		{Token: "tok", Recipient: "U1", Text: "hi"},
	}, s.Calls())
}

func TestDispatchWithoutTyping(t *testing.T) {
	s := &fakeSender{}
	d := New(s, authed(), Options{})

	assert.Equal(t, Replied, d.Dispatch(context.Background(), message("U1", "hi")))
	assert.Equal(t, []call{{Token: "tok", Recipient: "U1", Text: "hi"}}, s.Calls())
}

func TestDispatchInertVariants(t *testing.T) {
	events := map[string]types.Classified{
		"echo":          {SenderID: "U1", Event: types.Message{Text: "hi", IsEcho: true}},
		"deleted":       {SenderID: "U1", Event: types.Message{Text: "hi", IsDeleted: true}},
		"attachment":    {SenderID: "U1", Event: types.Message{HasAttachments: true}},
		"edit":          {SenderID: "U1", Event: types.MessageEdit{Text: "hi", NumEdit: 2}},
		"first-message": {SenderID: "U1", Event: types.MessageEdit{Text: "hi", NumEdit: 0}},
		"postback":      {SenderID: "U1", Event: types.Postback{Payload: "START"}},
		"reaction":      {SenderID: "U1", Event: types.Reaction{Action: "react"}},
		"unknown":       {SenderID: "U1", Event: types.Unknown{}},
		"nil-event":     {SenderID: "U1"},
	}
	for name, ev := range events {
		t.Run(name, func(t *testing.T) {
			s := &fakeSender{}
			d := New(s, authed(), Options{Typing: true})
			assert.Equal(t, Ignored, d.Dispatch(context.Background(), ev))
			assert.Empty(t, s.Calls())
		})
	}
}

func TestDispatchSkipsMissingSender(t *testing.T) {
	s := &fakeSender{}
	d := New(s, authed(), Options{Typing: true})

	assert.Equal(t, SkippedNoSender, d.Dispatch(context.Background(), message("", "hi")))
	assert.Empty(t, s.Calls())
}

func TestDispatchWithoutCredentials(t *testing.T) {
	var buf bytes.Buffer
	s := &fakeSender{}
	creds := store.NewCredentialStore()
	d := New(s, creds, Options{Logger: slog.New(slog.NewTextHandler(&buf, nil))})

	assert.Equal(t, NoCredentials, d.Dispatch(context.Background(), message("U1", "hi")))
	assert.Equal(t, NoCredentials, d.Dispatch(context.Background(), message("U1", "again")))
	assert.Empty(t, s.Calls())
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("no credentials yet")), "warning is throttled")

	creds.Set(store.Credentials{AccessToken: "late", AccountID: "acc"})
	assert.Equal(t, Replied, d.Dispatch(context.Background(), message("U1", "now")))
	assert.Equal(t, []call{{Token: "late", Recipient: "U1", Text: "now"}}, s.Texts())
}

func TestDispatchSendFailureIsContained(t *testing.T) {
	s := &fakeSender{textErr: errors.New("upstream 500")}
	d := New(s, authed(), Options{})

	assert.Equal(t, Failed, d.Dispatch(context.Background(), message("U1", "hi")))
}

func TestDispatchTypingFailureStillReplies(t *testing.T) {
	s := &fakeSender{actionErr: errors.New("typing rejected")}
	d := New(s, authed(), Options{Typing: true})

	assert.Equal(t, Replied, d.Dispatch(context.Background(), message("U1", "hi")))
	assert.Len(t, s.Texts(), 1)
}

func TestDispatchWaitsReplyDelay(t *testing.T) {
	s := &fakeSender{}
	d := New(s, authed(), Options{ReplyDelay: 50 * time.Millisecond})

	start := time.Now()
	require.Equal(t, Replied, d.Dispatch(context.Background(), message("U1", "hi")))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestDispatchDelayHonoursContext(t *testing.T) {
	s := &fakeSender{}
	d := New(s, authed(), Options{ReplyDelay: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.Equal(t, Failed, d.Dispatch(ctx, message("U1", "hi")))
	assert.Empty(t, s.Texts())
}
