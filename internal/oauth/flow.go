// Package oauth runs the Facebook Login authorization-code flow that yields
// the page access token and Instagram business account used for replies.
package oauth

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"

	"ig-autoreply/internal/ig"
	"ig-autoreply/internal/logging"
	"ig-autoreply/internal/store"
)

var Scopes = []string{
	"instagram_basic",
	"instagram_manage_messages",
	"pages_manage_metadata",
	"pages_messaging",
}

var (
	ErrInvalidState       = errors.New("invalid or expired oauth state")
	ErrMissingCode        = errors.New("no authorization code received")
	ErrNoPages            = errors.New("no Facebook Pages found; connect your Instagram account to a Facebook Page")
	ErrNoInstagramAccount = errors.New("no Instagram Business Account linked to this Facebook Page")
)

const defaultStateTTL = 10 * time.Minute

type PageClient interface {
	ListPages(ctx context.Context, userToken string) ([]ig.Page, error)
	InstagramAccountID(ctx context.Context, pageID, pageToken string) (string, error)
}

type CredentialSink interface {
	Set(c store.Credentials)
}

type Options struct {
	AppID       string
	AppSecret   string
	RedirectURI string
	GraphBase   string // token endpoint host, e.g. https://graph.facebook.com
	DialogBase  string // login dialog host, defaults to https://www.facebook.com
	Version     string
	StateTTL    time.Duration
	HTTPClient  *http.Client // used for the code exchange
	Logger      *slog.Logger
}

type Flow struct {
	cfg        *oauth2.Config
	pages      PageClient
	states     store.StateStore
	creds      CredentialSink
	stateTTL   time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

func NewFlow(opts Options, pages PageClient, states store.StateStore, creds CredentialSink) *Flow {
	dialog := opts.DialogBase
	if dialog == "" {
		dialog = "https://www.facebook.com"
	}
	ttl := opts.StateTTL
	if ttl <= 0 {
		ttl = defaultStateTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Noop()
	}
	return &Flow{
		cfg: &oauth2.Config{
			ClientID:     opts.AppID,
			ClientSecret: opts.AppSecret,
			RedirectURL:  opts.RedirectURI,
			Scopes:       Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   dialog + "/" + opts.Version + "/dialog/oauth",
				TokenURL:  opts.GraphBase + "/" + opts.Version + "/oauth/access_token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		pages:      pages,
		states:     states,
		creds:      creds,
		stateTTL:   ttl,
		httpClient: opts.HTTPClient,
		logger:     logger.With(logging.Component("oauth")),
	}
}

// AuthURL issues a fresh state and returns the login dialog URL.
func (f *Flow) AuthURL(ctx context.Context) (string, error) {
	state := uuid.NewString()
	if err := f.states.Put(ctx, state, f.stateTTL); err != nil {
		return "", errors.Wrap(err, "store oauth state")
	}
	return f.cfg.AuthCodeURL(state), nil
}

// Complete exchanges code, resolves the first page's Instagram business
// account and stores the page token. A later call overwrites the credentials.
func (f *Flow) Complete(ctx context.Context, code, state string) (store.Credentials, error) {
	if code == "" {
		return store.Credentials{}, ErrMissingCode
	}
	ok, err := f.states.Consume(ctx, state)
	if err != nil {
		return store.Credentials{}, errors.Wrap(err, "check oauth state")
	}
	if !ok {
		return store.Credentials{}, ErrInvalidState
	}

	if f.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, f.httpClient)
	}
	tok, err := f.cfg.Exchange(ctx, code)
	if err != nil {
		return store.Credentials{}, errors.Wrap(err, "exchange authorization code")
	}

	pages, err := f.pages.ListPages(ctx, tok.AccessToken)
	if err != nil {
		return store.Credentials{}, err
	}
	if len(pages) == 0 {
		return store.Credentials{}, ErrNoPages
	}
	page := pages[0]

	accountID, err := f.pages.InstagramAccountID(ctx, page.ID, page.AccessToken)
	if err != nil {
		return store.Credentials{}, err
	}
	if accountID == "" {
		return store.Credentials{}, ErrNoInstagramAccount
	}

	creds := store.Credentials{AccessToken: page.AccessToken, AccountID: accountID}
	f.creds.Set(creds)
	f.logger.Info("instagram account authorized",
		slog.String("account_id", accountID),
		slog.String("page_id", page.ID))
	return creds, nil
}
