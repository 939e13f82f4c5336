package goIssuer

import (
	"context"
	"errors"

	"github.com/MrEthical07/goIssuer/keys"
)

// VerificationKeySet returns the public keys tokens may be verified with,
// newest first. Revoked keys are never included.
func (e *Engine) VerificationKeySet(ctx context.Context) ([]keys.PublicKey, error) {
	if e == nil || e.keys == nil {
		return nil, ErrEngineNotReady
	}
	set, err := e.keys.GetVerificationKeySet(ctx)
	if err != nil {
		return nil, e.keyStoreFailure(ctx, "", err)
	}
	return set, nil
}

// JWKS returns the verification key set as a JSON Web Key Set document.
func (e *Engine) JWKS(ctx context.Context) ([]byte, error) {
	if e == nil || e.keys == nil {
		return nil, ErrEngineNotReady
	}
	doc, err := e.keys.JWKS(ctx)
	if err != nil {
		if errors.Is(err, keys.ErrKeyStoreUnavailable) {
			return nil, e.keyStoreFailure(ctx, "", err)
		}
		return nil, wrapCause(ErrInternal, err)
	}
	return doc, nil
}

// RotateKeys makes a freshly generated key active and returns its kid.
// Tokens signed by the previous key keep verifying until that key leaves
// the retention window.
func (e *Engine) RotateKeys(ctx context.Context) (string, error) {
	if e == nil || e.keys == nil {
		return "", ErrEngineNotReady
	}
	kid, _, err := e.keys.RotateKeys(ctx)
	if err != nil {
		return "", e.keyStoreFailure(ctx, "", err)
	}

	e.metricInc(MetricKeyRotated)
	e.logger.Info("signing key rotated", "kid", kid, "alg", string(e.keys.Algorithm()))
	e.emitAudit(ctx, auditRecord{
		eventType: auditEventKeyRotated,
		success:   true,
		keyID:     kid,
	}, nil)
	return kid, nil
}

// RevokeKey withdraws kid from the verification set and destroys its
// private material. Tokens signed with it stop verifying immediately.
func (e *Engine) RevokeKey(ctx context.Context, kid string) error {
	if e == nil || e.keys == nil {
		return ErrEngineNotReady
	}
	err := e.keys.RevokeKey(ctx, kid)
	switch {
	case err == nil:
	case errors.Is(err, keys.ErrKeyNotFound):
		e.emitAudit(ctx, auditRecord{
			eventType: auditEventKeyRevokeFailure,
			keyID:     kid,
			err:       ErrKeyNotFound,
		}, nil)
		return ErrKeyNotFound
	default:
		return e.keyStoreFailure(ctx, kid, err)
	}

	e.metricInc(MetricKeyRevoked)
	e.logger.Info("signing key revoked", "kid", kid)
	e.emitAudit(ctx, auditRecord{
		eventType: auditEventKeyRevoked,
		success:   true,
		keyID:     kid,
	}, nil)
	return nil
}

// ListKeys returns metadata for every key in the retention index, newest
// first. No private material is returned.
func (e *Engine) ListKeys(ctx context.Context) ([]keys.KeyInfo, error) {
	if e == nil || e.keys == nil {
		return nil, ErrEngineNotReady
	}
	list, err := e.keys.ListKeys(ctx)
	if err != nil {
		return nil, e.keyStoreFailure(ctx, "", err)
	}
	return list, nil
}

func (e *Engine) keyStoreFailure(ctx context.Context, kid string, err error) error {
	e.metricInc(MetricStoreFailure)
	e.logger.Warn("key store operation failed", "kid", kid, "error", err)
	out := wrapCause(ErrStoreUnavailable, err)
	e.emitAudit(ctx, auditRecord{
		eventType: auditEventStoreUnavailable,
		keyID:     kid,
		err:       out,
	}, nil)
	return out
}
