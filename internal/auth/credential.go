// Package auth signs storage requests.
//
// SharedKeySigner implements the keyed-hash scheme of the blob and filesystem
// services. SigV4Signer signs for S3-compatible gateways. Both only read their
// credential, so one signer is shared by every concurrent attempt.
package auth

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/storagelite/storagelite/pkg/errors"
)

// Credential is an account name and its decoded secret key.
type Credential struct {
	account string
	key     []byte
}

// NewCredential decodes a base64 account key.
func NewCredential(account, base64Key string) (*Credential, error) {
	if account == "" {
		return nil, errors.NewConfigError(errors.ErrCodeCredentialsMissing, "account name is empty").
			WithComponent("auth")
	}
	if base64Key == "" {
		return nil, errors.NewConfigError(errors.ErrCodeCredentialsMissing, "account key is empty").
			WithComponent("auth")
	}
	key, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeCredentialsInvalid, "account key is not valid base64").
			WithComponent("auth").WithCause(err)
	}
	return &Credential{account: account, key: key}, nil
}

// Account returns the account name.
func (c *Credential) Account() string {
	return c.account
}

// String never includes the key.
func (c *Credential) String() string {
	return "Credential{account=" + c.account + ", key=REDACTED}"
}

// LogValue implements slog.LogValuer.
func (c *Credential) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("account", c.account),
		slog.String("key", "REDACTED"),
	)
}

// Request is what a signer sees of one attempt. Sign writes the authorization
// and date headers into Header.
type Request struct {
	Method string
	URL    *url.URL
	Header http.Header
}

// Signer authorizes one attempt. Identical inputs, including at, produce identical
// headers.
type Signer interface {
	Sign(ctx context.Context, r *Request, at time.Time) error
	Scheme() string
}
