package signature

import (
	"context"
	"crypto"
	"fmt"
	"io"

	"github.com/Layr-Labs/detsig-go/pkg/config"
	"go.uber.org/zap"
)

// Verifier checks detached signatures over streamed messages for one scheme.
type Verifier struct {
	scheme    IScheme
	chunkSize int
	logger    *zap.Logger
}

func NewVerifier(scheme IScheme, chunkSize int, logger *zap.Logger) (*Verifier, error) {
	if scheme == nil {
		return nil, fmt.Errorf("scheme cannot be nil")
	}
	if chunkSize < 1 || chunkSize > config.MaxChunkSize {
		return nil, fmt.Errorf("chunk size must be between 1 and %d, got %d", config.MaxChunkSize, chunkSize)
	}
	return &Verifier{
		scheme:    scheme,
		chunkSize: chunkSize,
		logger:    logger,
	}, nil
}

func (v *Verifier) Scheme() IScheme {
	return v.scheme
}

// Verify decodes encodedPublicKey and checks sig against the message read from r.
// A signature that does not match returns false with a nil error.
func (v *Verifier) Verify(ctx context.Context, encodedPublicKey []byte, sig []byte, r io.Reader) (bool, error) {
	pub, err := ParsePublicKey(encodedPublicKey)
	if err != nil {
		return false, err
	}
	return v.VerifyWithKey(ctx, pub, sig, r)
}

// VerifyWithKey is Verify for callers that already hold a decoded public key.
func (v *Verifier) VerifyWithKey(ctx context.Context, pub crypto.PublicKey, sig []byte, r io.Reader) (bool, error) {
	name := v.scheme.Name().String()

	if err := v.scheme.CheckPublicKey(pub); err != nil {
		return false, newStructuralError(OpCheckPublicKey, name,
			fmt.Errorf("algorithm mismatch: %s key cannot verify %s: %w", PublicKeyAlgorithm(pub), name, err))
	}
	if len(sig) == 0 {
		return false, newStructuralError(OpCheckSignature, name, fmt.Errorf("signature is empty"))
	}
	if err := v.scheme.CheckSignature(pub, sig); err != nil {
		return false, newStructuralError(OpCheckSignature, name, err)
	}
	if r == nil {
		return false, newStructuralError(OpReadMessage, name, fmt.Errorf("message reader cannot be nil"))
	}

	digest := v.scheme.NewDigest()
	n, err := streamDigest(ctx, r, digest, v.chunkSize)
	if err != nil {
		return false, newStructuralError(OpReadMessage, name, err)
	}

	ok, err := v.scheme.VerifyDigest(pub, digest.Sum(nil), sig)
	if err != nil {
		return false, newStructuralError(OpVerifyDigest, name, err)
	}

	v.logger.Debug("Verified message",
		zap.String("scheme", name),
		zap.Int64("bytesRead", n),
		zap.Bool("valid", ok),
	)
	return ok, nil
}
