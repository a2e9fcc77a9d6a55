// Package signature checks X-Hub-Signature-256 headers against the raw
// request body. The digest is always computed over the bytes exactly as they
// were received; re-encoded JSON produces a different digest.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"

	"ig-autoreply/internal/logging"
)

const (
	Header = "X-Hub-Signature-256"
	prefix = "sha256="
)

type Mode string

const (
	ModeEnforce  Mode = "enforce"
	ModeDisabled Mode = "disabled"
)

// Sign returns the header value for raw under secret.
func Sign(raw []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(strings.TrimSpace(secret)))
	mac.Write(raw)
	return prefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether header is the signature of raw under secret.
// Missing input of any kind yields false.
func Verify(raw []byte, header, secret string) bool {
	if len(raw) == 0 || header == "" || strings.TrimSpace(secret) == "" {
		return false
	}
	return hmac.Equal([]byte(header), []byte(Sign(raw, secret)))
}

type Verifier struct {
	secret string
	mode   Mode
	logger *slog.Logger
}

func NewVerifier(secret string, mode Mode, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = logging.Noop()
	}
	if mode != ModeDisabled {
		mode = ModeEnforce
	}
	v := &Verifier{secret: secret, mode: mode, logger: logger.With(logging.Component("signature"))}
	if mode == ModeDisabled {
		v.logger.Warn("webhook signature verification is DISABLED; use for local development only")
	} else if strings.TrimSpace(secret) == "" {
		v.logger.Warn("app secret is empty; every signed webhook will be rejected")
	}
	return v
}

// Check applies the configured policy to a request.
func (v *Verifier) Check(raw []byte, header string) bool {
	if v.mode == ModeDisabled {
		v.logger.Warn("accepting webhook without signature check",
			slog.Bool("header_present", header != ""),
			slog.Int("body_len", len(raw)))
		return true
	}
	ok := Verify(raw, header, v.secret)
	if !ok {
		v.logger.Warn("invalid webhook signature",
			slog.Bool("header_present", header != ""),
			slog.Int("body_len", len(raw)),
			slog.Int("secret_len", len(strings.TrimSpace(v.secret))))
	}
	return ok
}

func (v *Verifier) Mode() Mode { return v.mode }
