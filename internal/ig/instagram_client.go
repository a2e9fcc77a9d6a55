package ig

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
)

const (
	ActionTypingOn  = "typing_on"
	ActionTypingOff = "typing_off"
	ActionMarkSeen  = "mark_seen"
)

type Client struct {
	HTTP       *http.Client
	BaseURL    string // e.g. https://graph.facebook.com
	APIVersion string // e.g. v18.0
}

func NewClient(baseURL, version string) *Client {
	return &Client{
		HTTP:       &http.Client{Timeout: 10 * time.Second},
		BaseURL:    baseURL,
		APIVersion: version,
	}
}

// APIError is the Graph API error object.
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
	Type       string `json:"type"`
	Code       int    `json:"code"`
	Subcode    int    `json:"error_subcode"`
	TraceID    string `json:"fbtrace_id"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("graph api status %d: %s (type=%s code=%d)", e.StatusCode, e.Message, e.Type, e.Code)
}

type recipient struct {
	ID string `json:"id"`
}

type sendRequest struct {
	Recipient    recipient    `json:"recipient"`
	Message      *textMessage `json:"message,omitempty"`
	SenderAction string       `json:"sender_action,omitempty"`
}

type textMessage struct {
	Text string `json:"text"`
}

// SendText sends a DM through me/messages and returns the raw upstream response.
func (c *Client) SendText(ctx context.Context, token, recipientID, text string) (json.RawMessage, error) {
	return c.send(ctx, token, sendRequest{
		Recipient: recipient{ID: recipientID},
		Message:   &textMessage{Text: text},
	})
}

// SendAction sends a sender_action such as typing_on.
func (c *Client) SendAction(ctx context.Context, token, recipientID, action string) (json.RawMessage, error) {
	return c.send(ctx, token, sendRequest{
		Recipient:    recipient{ID: recipientID},
		SenderAction: action,
	})
}

func (c *Client) send(ctx context.Context, token string, body sendRequest) (json.RawMessage, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "encode send request")
	}
	q := url.Values{"access_token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("me/messages", q), bytes.NewReader(b))
	if err != nil {
		return nil, errors.Wrap(err, "build send request")
	}
	req.Header.Set("Content-Type", "application/json")

	var out json.RawMessage
	if err := c.do(req, &out); err != nil {
		return nil, errors.Wrap(err, "send message")
	}
	return out, nil
}

type Page struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	AccessToken string `json:"access_token"`
}

// ListPages returns the Facebook pages the user token can manage.
func (c *Client) ListPages(ctx context.Context, userToken string) ([]Page, error) {
	var resp struct {
		Data []Page `json:"data"`
	}
	if err := c.get(ctx, "me/accounts", url.Values{"access_token": {userToken}}, &resp); err != nil {
		return nil, errors.Wrap(err, "list pages")
	}
	return resp.Data, nil
}

// InstagramAccountID returns the business account linked to a page, or "" if none.
func (c *Client) InstagramAccountID(ctx context.Context, pageID, pageToken string) (string, error) {
	var resp struct {
		Account *struct {
			ID string `json:"id"`
		} `json:"instagram_business_account"`
	}
	q := url.Values{"fields": {"instagram_business_account"}, "access_token": {pageToken}}
	if err := c.get(ctx, url.PathEscape(pageID), q, &resp); err != nil {
		return "", errors.Wrap(err, "get instagram business account")
	}
	if resp.Account == nil {
		return "", nil
	}
	return resp.Account.ID, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(path, q), nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) url(path string, q url.Values) string {
	return fmt.Sprintf("%s/%s/%s?%s", c.BaseURL, c.APIVersion, path, q.Encode())
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errors.Wrap(err, "read response")
	}
	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var wrapped struct {
			Error *APIError `json:"error"`
		}
		if json.Unmarshal(body, &wrapped) == nil && wrapped.Error != nil {
			apiErr = wrapped.Error
			apiErr.StatusCode = resp.StatusCode
		} else {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}
