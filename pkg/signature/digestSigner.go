package signature

import (
	"context"
	"crypto"
	"fmt"

	"github.com/Layr-Labs/detsig-go/pkg/config"
)

// IDigestSigner holds the private half of a key pair. Implementations may
// keep the key in process or delegate to a remote key service.
type IDigestSigner interface {
	Public() crypto.PublicKey
	Scheme() config.SignatureScheme
	// SignDigest signs a digest produced by the scheme's NewDigest.
	SignDigest(ctx context.Context, digest []byte) ([]byte, error)
}

// LocalDigestSigner signs with a private key held in memory.
type LocalDigestSigner struct {
	scheme IScheme
	key    crypto.Signer
}

func NewLocalDigestSigner(scheme IScheme, key crypto.Signer) (*LocalDigestSigner, error) {
	if scheme == nil {
		return nil, fmt.Errorf("scheme cannot be nil")
	}
	if key == nil {
		return nil, fmt.Errorf("private key cannot be nil")
	}
	if err := scheme.CheckPublicKey(key.Public()); err != nil {
		return nil, fmt.Errorf("private key does not match scheme %s: %w", scheme.Name(), err)
	}
	return &LocalDigestSigner{
		scheme: scheme,
		key:    key,
	}, nil
}

func (l *LocalDigestSigner) Public() crypto.PublicKey {
	return l.key.Public()
}

func (l *LocalDigestSigner) Scheme() config.SignatureScheme {
	return l.scheme.Name()
}

func (l *LocalDigestSigner) SignDigest(ctx context.Context, digest []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return l.scheme.SignDigest(l.key, digest)
}
