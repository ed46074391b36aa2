package auth

import (
	"context"

	"github.com/storagelite/storagelite/internal/config"
	"github.com/storagelite/storagelite/pkg/errors"
)

// FromConfig builds the signer selected by cfg.Account.AuthScheme.
func FromConfig(ctx context.Context, cfg *config.Configuration) (Signer, error) {
	switch cfg.Account.AuthScheme {
	case config.AuthSharedKey, "":
		cred, err := NewCredential(cfg.Account.Name, cfg.Account.Key)
		if err != nil {
			return nil, err
		}
		return NewSharedKeySigner(cred), nil
	case config.AuthSigV4:
		if cfg.Account.Key == "" {
			return NewDefaultSigV4Signer(ctx, cfg.Account.Region)
		}
		return NewStaticSigV4Signer(cfg.Account.Name, cfg.Account.Key, cfg.Account.Region)
	default:
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "unknown auth scheme %q", cfg.Account.AuthScheme).
			WithComponent("auth")
	}
}
