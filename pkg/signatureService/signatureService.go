package signatureService

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/Layr-Labs/detsig-go/internal/keyGenerator"
	"github.com/Layr-Labs/detsig-go/pkg/config"
	"github.com/Layr-Labs/detsig-go/pkg/metrics"
	"github.com/Layr-Labs/detsig-go/pkg/persistence"
	"github.com/Layr-Labs/detsig-go/pkg/signature"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ErrNoStore is returned by record operations when no artifact store is configured.
var ErrNoStore = errors.New("no artifact store configured")

// SignOutcome describes the artifacts produced by one signing session.
type SignOutcome struct {
	RecordId  string
	KeyId     string
	Scheme    config.SignatureScheme
	PublicKey []byte
	Signature []byte
	// BytesSigned is the number of message bytes consumed.
	BytesSigned int64
	Digest      string

	PublicKeyPath string
	SignaturePath string
}

// SignatureService runs the sign and verify flows for one configured scheme:
// a fresh key pair per signing session, encoded public key and signature
// artifacts, and an optional record in the artifact store.
type SignatureService struct {
	config       *config.DetSigConfig
	keyGenerator keyGenerator.IKeyGenerator
	store        persistence.IArtifactStore
	metrics      *metrics.Metrics
	signer       *signature.Signer
	verifier     *signature.Verifier
	logger       *zap.Logger
}

// NewSignatureService builds the service. store and m may be nil.
func NewSignatureService(
	cfg *config.DetSigConfig,
	kg keyGenerator.IKeyGenerator,
	store persistence.IArtifactStore,
	m *metrics.Metrics,
	logger *zap.Logger,
) (*SignatureService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if kg == nil {
		return nil, fmt.Errorf("key generator cannot be nil")
	}
	if !kg.SupportsScheme(cfg.Scheme) {
		return nil, fmt.Errorf("key backend %s does not support scheme %s", kg.Backend(), cfg.Scheme)
	}

	scheme, err := signature.GetScheme(cfg.Scheme)
	if err != nil {
		return nil, err
	}
	signer, err := signature.NewSigner(scheme, cfg.ChunkSize, logger)
	if err != nil {
		return nil, err
	}
	verifier, err := signature.NewVerifier(scheme, cfg.ChunkSize, logger)
	if err != nil {
		return nil, err
	}

	return &SignatureService{
		config:       cfg,
		keyGenerator: kg,
		store:        store,
		metrics:      m,
		signer:       signer,
		verifier:     verifier,
		logger:       logger,
	}, nil
}

func (s *SignatureService) Scheme() config.SignatureScheme {
	return s.config.Scheme
}

// SignReader generates a key pair, signs r and records the result. No files are written.
func (s *SignatureService) SignReader(ctx context.Context, name string, r io.Reader) (*SignOutcome, error) {
	outcome, err := s.sign(ctx, name, r)
	if err != nil {
		return nil, err
	}
	if err := s.saveRecord(outcome, name); err != nil {
		return nil, err
	}
	return outcome, nil
}

// sign runs one signing session and records its metrics. Nothing is persisted.
func (s *SignatureService) sign(ctx context.Context, name string, r io.Reader) (*SignOutcome, error) {
	start := time.Now()
	outcome, err := s.signReader(ctx, name, r)

	var bytesSigned int64
	if outcome != nil {
		bytesSigned = outcome.BytesSigned
	}
	s.metrics.ObserveSign(s.config.Scheme.String(), bytesSigned, time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

func (s *SignatureService) signReader(ctx context.Context, name string, r io.Reader) (*SignOutcome, error) {
	pair, err := s.keyGenerator.GenerateKeyPair(ctx, s.config.Scheme, name)
	if err != nil {
		return nil, err
	}

	res, err := s.signer.Sign(ctx, pair.Signer, r)
	if err != nil {
		return nil, err
	}

	pub, err := s.encodePublicKey(pair)
	if err != nil {
		return nil, signature.NewError(signature.ErrSigning, "encode public key", pair.KeyId, err)
	}

	s.logger.Sugar().Infow("Signed message",
		"name", name,
		"scheme", res.Scheme.String(),
		"keyId", pair.KeyId,
		"bytes", res.BytesRead,
	)

	return &SignOutcome{
		KeyId:       pair.KeyId,
		Scheme:      res.Scheme,
		PublicKey:   pub,
		Signature:   res.Signature,
		BytesSigned: res.BytesRead,
		Digest:      hex.EncodeToString(res.Digest),
	}, nil
}

func (s *SignatureService) encodePublicKey(pair *keyGenerator.GeneratedKeyPair) ([]byte, error) {
	if s.config.PEMOutput {
		return pair.GetPublicKeyPEM()
	}
	return pair.GetPublicKeyBytes()
}

func (s *SignatureService) saveRecord(outcome *SignOutcome, name string) error {
	if s.store == nil {
		return nil
	}

	// records always keep DER so they verify regardless of PEMOutput
	pub, err := signature.ParsePublicKey(outcome.PublicKey)
	if err != nil {
		return err
	}
	der, err := signature.MarshalPublicKey(pub)
	if err != nil {
		return fmt.Errorf("failed to encode public key for record: %w", err)
	}

	record := persistence.NewSignatureRecord(outcome.Scheme, outcome.KeyId, s.keyGenerator.Backend())
	record.PublicKey = der
	record.Signature = outcome.Signature
	record.MessageName = name
	record.MessageSize = outcome.BytesSigned
	record.MessageDigest = outcome.Digest

	if err := s.store.SaveRecord(record); err != nil {
		return fmt.Errorf("failed to save signature record: %w", err)
	}
	outcome.RecordId = record.Id
	return nil
}

// SignFile signs the file at dataPath and writes the encoded public key and the
// detached signature into outDir, or next to the file when outDir is empty.
// The record is saved only once both files are on disk.
func (s *SignatureService) SignFile(ctx context.Context, dataPath string, outDir string) (outcome *SignOutcome, err error) {
	f, err := os.Open(dataPath)
	if err != nil {
		return nil, signature.NewError(signature.ErrSigning, "open message", dataPath, err)
	}
	defer func() {
		err = multierr.Append(err, f.Close())
		if err != nil {
			outcome = nil
		}
	}()

	if outDir == "" {
		outDir = filepath.Dir(dataPath)
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", outDir, err)
	}

	name := filepath.Base(dataPath)
	outcome, err = s.sign(ctx, name, f)
	if err != nil {
		return nil, err
	}

	outcome.PublicKeyPath = filepath.Join(outDir, s.config.PublicKeyFileName)
	outcome.SignaturePath = filepath.Join(outDir, name+s.config.SignatureSuffix)

	if err := writeFile(outcome.PublicKeyPath, outcome.PublicKey); err != nil {
		return nil, fmt.Errorf("failed to write public key %s: %w", outcome.PublicKeyPath, err)
	}
	if err := writeFile(outcome.SignaturePath, outcome.Signature); err != nil {
		return nil, multierr.Append(
			fmt.Errorf("failed to write signature %s: %w", outcome.SignaturePath, err),
			removeFile(outcome.PublicKeyPath),
		)
	}

	if err := s.saveRecord(outcome, name); err != nil {
		// no artifacts without their record
		return nil, multierr.Combine(err,
			removeFile(outcome.PublicKeyPath),
			removeFile(outcome.SignaturePath),
		)
	}

	s.logger.Sugar().Infow("Wrote signature artifacts",
		"publicKey", outcome.PublicKeyPath,
		"signature", outcome.SignaturePath,
		"recordId", outcome.RecordId,
	)
	return outcome, nil
}

// VerifyReader checks sig over r against an encoded public key.
func (s *SignatureService) VerifyReader(ctx context.Context, encodedPublicKey []byte, sig []byte, r io.Reader) (bool, error) {
	start := time.Now()

	// keep a nil reader nil so the verifier reports it
	var counter *countingReader
	var reader io.Reader
	if r != nil {
		counter = &countingReader{r: r}
		reader = counter
	}

	ok, err := s.verifier.Verify(ctx, encodedPublicKey, sig, reader)

	var n int64
	if counter != nil {
		n = counter.n
	}
	s.metrics.ObserveVerify(s.config.Scheme.String(), n, time.Since(start), ok, err)
	return ok, err
}

// VerifyFiles reads the encoded public key and signature from disk and checks
// them against the file at dataPath.
func (s *SignatureService) VerifyFiles(ctx context.Context, publicKeyPath, signaturePath, dataPath string) (valid bool, err error) {
	name := s.config.Scheme.String()

	pub, err := os.ReadFile(publicKeyPath)
	if err != nil {
		return false, signature.NewError(signature.ErrKeyDecoding, "read public key", publicKeyPath, err)
	}
	sig, err := os.ReadFile(signaturePath)
	if err != nil {
		return false, signature.NewError(signature.ErrVerificationStructural, "read signature", signaturePath, err)
	}

	f, err := os.Open(dataPath)
	if err != nil {
		return false, signature.NewError(signature.ErrVerificationStructural, "open message", dataPath, err)
	}
	defer func() {
		err = multierr.Append(err, f.Close())
		if err != nil {
			valid = false
		}
	}()

	valid, err = s.VerifyReader(ctx, pub, sig, f)
	if err != nil {
		return false, attributeVerifyError(err, publicKeyPath, signaturePath, dataPath)
	}

	s.logger.Sugar().Infow("Verified signature",
		"scheme", name,
		"data", dataPath,
		"valid", valid,
	)
	return valid, nil
}

// VerifyRecord checks the file at dataPath against a stored signature record.
func (s *SignatureService) VerifyRecord(ctx context.Context, recordId string, dataPath string) (valid bool, err error) {
	record, err := s.GetRecord(recordId)
	if err != nil {
		return false, err
	}
	if record.Scheme != s.config.Scheme {
		return false, signature.NewError(signature.ErrVerificationStructural, "verify record", recordId,
			fmt.Errorf("record was signed with %s, service is configured for %s", record.Scheme, s.config.Scheme))
	}

	f, err := os.Open(dataPath)
	if err != nil {
		return false, signature.NewError(signature.ErrVerificationStructural, "open message", dataPath, err)
	}
	defer func() {
		err = multierr.Append(err, f.Close())
		if err != nil {
			valid = false
		}
	}()

	valid, err = s.VerifyReader(ctx, record.PublicKey, record.Signature, f)
	if err != nil {
		artifact := "record " + recordId
		return false, attributeVerifyError(err, artifact, artifact, dataPath)
	}

	s.logger.Sugar().Infow("Verified signature record",
		"recordId", recordId,
		"messageName", record.MessageName,
		"data", dataPath,
		"valid", valid,
	)
	return valid, nil
}

// ExportPublicKey writes the public key of an existing backend key into outDir.
func (s *SignatureService) ExportPublicKey(ctx context.Context, keyId string, outDir string) (string, error) {
	pair, err := s.keyGenerator.GetKeyPairById(ctx, keyId)
	if err != nil {
		return "", err
	}
	pub, err := s.encodePublicKey(pair)
	if err != nil {
		return "", fmt.Errorf("failed to encode public key of %s: %w", keyId, err)
	}

	if outDir == "" {
		outDir = "."
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory %s: %w", outDir, err)
	}
	path := filepath.Join(outDir, s.config.PublicKeyFileName)
	if err := writeFile(path, pub); err != nil {
		return "", fmt.Errorf("failed to write public key: %w", err)
	}
	return path, nil
}

func (s *SignatureService) ListRecords() ([]*persistence.SignatureRecord, error) {
	if s.store == nil {
		return nil, ErrNoStore
	}
	return s.store.ListRecords()
}

// GetRecord returns an error if the record does not exist.
func (s *SignatureService) GetRecord(recordId string) (*persistence.SignatureRecord, error) {
	if s.store == nil {
		return nil, ErrNoStore
	}
	record, err := s.store.LoadRecord(recordId)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("signature record %s not found", recordId)
	}
	return record, nil
}

func (s *SignatureService) DeleteRecord(recordId string) error {
	if s.store == nil {
		return ErrNoStore
	}
	return s.store.DeleteRecord(recordId)
}

// attributeVerifyError names the artifact a verifier failure belongs to:
// key problems point at the public key, message reads at the data file and
// everything else at the signature.
func attributeVerifyError(err error, publicKey, sig, data string) error {
	var sigErr *signature.Error
	if !errors.As(err, &sigErr) {
		return err
	}
	artifact := sig
	switch sigErr.Op {
	case signature.OpParsePublicKey, signature.OpCheckPublicKey:
		artifact = publicKey
	case signature.OpReadMessage:
		artifact = data
	}
	return signature.WithArtifact(err, artifact)
}

func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func writeFile(path string, data []byte) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, f.Close())
	}()

	_, err = f.Write(data)
	return err
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
