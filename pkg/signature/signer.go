package signature

import (
	"context"
	"fmt"
	"hash"
	"io"

	"github.com/Layr-Labs/detsig-go/pkg/config"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// SignResult is the outcome of one signing session.
type SignResult struct {
	Scheme    config.SignatureScheme
	Signature []byte
	// BytesRead is the number of message bytes fed into the digest.
	BytesRead int64
	// Digest is the finalized message digest that was signed.
	Digest []byte
}

// Signer produces detached signatures over streamed messages for one scheme.
type Signer struct {
	scheme    IScheme
	chunkSize int
	logger    *zap.Logger
}

func NewSigner(scheme IScheme, chunkSize int, logger *zap.Logger) (*Signer, error) {
	if scheme == nil {
		return nil, fmt.Errorf("scheme cannot be nil")
	}
	if chunkSize < 1 || chunkSize > config.MaxChunkSize {
		return nil, fmt.Errorf("chunk size must be between 1 and %d, got %d", config.MaxChunkSize, chunkSize)
	}
	return &Signer{
		scheme:    scheme,
		chunkSize: chunkSize,
		logger:    logger,
	}, nil
}

func (s *Signer) Scheme() IScheme {
	return s.scheme
}

// Sign consumes r once, chunk by chunk, and signs the resulting digest with key.
// No signature is returned when the stream fails part way.
func (s *Signer) Sign(ctx context.Context, key IDigestSigner, r io.Reader) (*SignResult, error) {
	name := s.scheme.Name().String()

	if key == nil {
		return nil, newSigningError("sign", name, fmt.Errorf("private key cannot be nil"))
	}
	if r == nil {
		return nil, newSigningError("sign", name, fmt.Errorf("message reader cannot be nil"))
	}
	if key.Scheme() != s.scheme.Name() {
		return nil, newSigningError("sign", name, fmt.Errorf("key was created for scheme %s", key.Scheme()))
	}
	if err := s.scheme.CheckPublicKey(key.Public()); err != nil {
		return nil, newSigningError("sign", name, err)
	}

	digest := s.scheme.NewDigest()
	n, err := streamDigest(ctx, r, digest, s.chunkSize)
	if err != nil {
		return nil, newSigningError(OpReadMessage, name, err)
	}
	sum := digest.Sum(nil)

	sig, err := key.SignDigest(ctx, sum)
	if err != nil {
		return nil, newSigningError("sign digest", name, err)
	}

	s.logger.Debug("Signed message",
		zap.String("scheme", name),
		zap.Int64("bytesRead", n),
		zap.Int("signatureLen", len(sig)),
	)

	return &SignResult{
		Scheme:    s.scheme.Name(),
		Signature: sig,
		BytesRead: n,
		Digest:    sum,
	}, nil
}

// streamDigest feeds r into h in chunkSize reads until EOF.
func streamDigest(ctx context.Context, r io.Reader, h hash.Hash, chunkSize int) (int64, error) {
	buf := make([]byte, chunkSize)
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := r.Read(buf)
		if n > 0 {
			// hash.Hash.Write never returns an error
			_, _ = h.Write(buf[:n])
			total += int64(n)
		}
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, errors.Wrapf(err, "failed after %d bytes", total)
		}
	}
}
