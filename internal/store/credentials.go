package store

import "sync/atomic"

// Credentials are the page access token and Instagram business account id
// obtained by the OAuth flow. They are always written together.
type Credentials struct {
	AccessToken string
	AccountID   string
}

func (c Credentials) Valid() bool {
	return c.AccessToken != "" && c.AccountID != ""
}

// CredentialStore is a single-writer, multi-reader cell. Readers see either
// the previous or the new pair, never a mix. Nothing is persisted.
type CredentialStore struct {
	v atomic.Pointer[Credentials]
}

func NewCredentialStore() *CredentialStore {
	return &CredentialStore{}
}

func (s *CredentialStore) Set(c Credentials) {
	s.v.Store(&c)
}

// Get returns the current credentials; ok is false until a valid pair is set.
func (s *CredentialStore) Get() (Credentials, bool) {
	p := s.v.Load()
	if p == nil || !p.Valid() {
		return Credentials{}, false
	}
	return *p, true
}

func (s *CredentialStore) Clear() {
	s.v.Store(nil)
}
