package awsKms

import (
	"context"
	"crypto"
	cryptoEcdsa "crypto/ecdsa"
	"encoding/asn1"
	"fmt"
	"math/big"
	"strings"

	"github.com/Layr-Labs/detsig-go/internal/keyGenerator"
	"github.com/Layr-Labs/detsig-go/pkg/config"
	"github.com/Layr-Labs/detsig-go/pkg/signature"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// kmsAPI is the subset of the KMS client used by the key generator.
type kmsAPI interface {
	CreateKey(ctx context.Context, params *kms.CreateKeyInput, optFns ...func(*kms.Options)) (*kms.CreateKeyOutput, error)
	CreateAlias(ctx context.Context, params *kms.CreateAliasInput, optFns ...func(*kms.Options)) (*kms.CreateAliasOutput, error)
	GetPublicKey(ctx context.Context, params *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error)
	Sign(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error)
}

// kmsScheme maps a signature scheme onto the KMS key spec and signing algorithm.
type kmsScheme struct {
	keySpec          types.KeySpec
	signingAlgorithm types.SigningAlgorithmSpec
}

type AWSKMSKeyGenerator struct {
	logger       *zap.Logger
	kmsClient    kmsAPI
	awsRegion    string
	limiter      *rate.Limiter
	globalConfig *config.DetSigConfig
}

func NewAWSKMSKeyGenerator(awsCfg aws.Config, cfg *config.DetSigConfig, logger *zap.Logger) *AWSKMSKeyGenerator {
	return newAWSKMSKeyGenerator(kms.NewFromConfig(awsCfg), awsCfg.Region, cfg, logger)
}

func newAWSKMSKeyGenerator(client kmsAPI, awsRegion string, cfg *config.DetSigConfig, logger *zap.Logger) *AWSKMSKeyGenerator {
	rps := cfg.KMSRequestsPerSecond
	if rps <= 0 {
		rps = config.DefaultKMSRequestsPerSec
	}
	return &AWSKMSKeyGenerator{
		logger:       logger,
		kmsClient:    client,
		awsRegion:    awsRegion,
		limiter:      rate.NewLimiter(rate.Limit(rps), 1),
		globalConfig: cfg,
	}
}

func (a *AWSKMSKeyGenerator) Backend() config.KeyBackend {
	return config.KeyBackendAWSKMS
}

func (a *AWSKMSKeyGenerator) SupportsScheme(scheme config.SignatureScheme) bool {
	_, err := a.kmsSchemeFor(scheme)
	return err == nil
}

func (a *AWSKMSKeyGenerator) kmsSchemeFor(scheme config.SignatureScheme) (*kmsScheme, error) {
	switch scheme {
	case config.SchemeECDSAP256SHA256:
		return &kmsScheme{types.KeySpecEccNistP256, types.SigningAlgorithmSpecEcdsaSha256}, nil
	case config.SchemeECDSAP384SHA384:
		return &kmsScheme{types.KeySpecEccNistP384, types.SigningAlgorithmSpecEcdsaSha384}, nil
	case config.SchemeSecp256k1Keccak256:
		// KMS signs the 32 byte keccak digest as if it were a SHA-256 digest
		return &kmsScheme{types.KeySpecEccSecgP256k1, types.SigningAlgorithmSpecEcdsaSha256}, nil
	case config.SchemeRSAPSSSHA256, config.SchemeRSAPKCS1v15SHA256:
		keySpec, err := rsaKeySpec(a.globalConfig.RSAKeyBits)
		if err != nil {
			return nil, err
		}
		alg := types.SigningAlgorithmSpecRsassaPssSha256
		if scheme == config.SchemeRSAPKCS1v15SHA256 {
			alg = types.SigningAlgorithmSpecRsassaPkcs1V15Sha256
		}
		return &kmsScheme{keySpec, alg}, nil
	default:
		return nil, fmt.Errorf("scheme %s is not supported by the %s backend", scheme, config.KeyBackendAWSKMS)
	}
}

func rsaKeySpec(bits int) (types.KeySpec, error) {
	switch bits {
	case 2048:
		return types.KeySpecRsa2048, nil
	case 3072:
		return types.KeySpecRsa3072, nil
	case 4096:
		return types.KeySpecRsa4096, nil
	default:
		return "", fmt.Errorf("AWS KMS supports RSA keys of 2048, 3072 or 4096 bits, got %d", bits)
	}
}

func (a *AWSKMSKeyGenerator) GenerateKeyPair(ctx context.Context, scheme config.SignatureScheme, keyName string) (*keyGenerator.GeneratedKeyPair, error) {
	spec, err := a.kmsSchemeFor(scheme)
	if err != nil {
		return nil, keyGenerator.NewKeyGenerationError("generate key pair", scheme.String(), err)
	}

	keyRes, err := a.createSigningKey(ctx, keyName, scheme, spec)
	if err != nil {
		return nil, keyGenerator.NewKeyGenerationError("generate key pair", scheme.String(),
			errors.Wrapf(err, "failed to create %s key %s in region %s", spec.keySpec, keyName, a.awsRegion))
	}
	keyId := aws.ToString(keyRes.KeyMetadata.KeyId)

	aliasName := fmt.Sprintf("%s-%s-%s", a.globalConfig.KMSAliasPrefix, sanitizeAlias(keyName), uuid.New().String()[:8])
	if err := a.createKeyAlias(ctx, keyId, aliasName); err != nil {
		return nil, keyGenerator.NewKeyGenerationError("generate key pair", keyId,
			errors.Wrapf(err, "failed to create alias %s for key %s in region %s", aliasName, keyId, a.awsRegion))
	}

	pair, err := a.getKeyPair(ctx, keyId, scheme)
	if err != nil {
		return nil, keyGenerator.NewKeyGenerationError("generate key pair", keyId, err)
	}

	a.logger.Sugar().Infow("Generated KMS key pair",
		"keyId", keyId,
		"alias", aliasName,
		"scheme", scheme.String(),
		"region", a.awsRegion,
	)
	return pair, nil
}

// GetKeyPairById opens an existing KMS key. RSA keys carry no padding
// information, so the configured scheme picks between PSS and PKCS#1 v1.5.
func (a *AWSKMSKeyGenerator) GetKeyPairById(ctx context.Context, keyId string) (*keyGenerator.GeneratedKeyPair, error) {
	kmsPubKey, err := a.getPublicKey(ctx, keyId)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get public key for key %s in region %s", keyId, a.awsRegion)
	}

	scheme, err := a.schemeForKeySpec(kmsPubKey.KeySpec)
	if err != nil {
		return nil, errors.Wrapf(err, "key %s", keyId)
	}
	return a.keyPairFromPublicKey(keyId, scheme, kmsPubKey)
}

func (a *AWSKMSKeyGenerator) schemeForKeySpec(keySpec types.KeySpec) (config.SignatureScheme, error) {
	switch keySpec {
	case types.KeySpecEccNistP256:
		return config.SchemeECDSAP256SHA256, nil
	case types.KeySpecEccNistP384:
		return config.SchemeECDSAP384SHA384, nil
	case types.KeySpecEccSecgP256k1:
		return config.SchemeSecp256k1Keccak256, nil
	case types.KeySpecRsa2048, types.KeySpecRsa3072, types.KeySpecRsa4096:
		if config.IsRSAScheme(a.globalConfig.Scheme) {
			return a.globalConfig.Scheme, nil
		}
		return config.SchemeRSAPSSSHA256, nil
	default:
		return "", fmt.Errorf("unsupported KMS key spec %s", keySpec)
	}
}

func (a *AWSKMSKeyGenerator) getKeyPair(ctx context.Context, keyId string, scheme config.SignatureScheme) (*keyGenerator.GeneratedKeyPair, error) {
	kmsPubKey, err := a.getPublicKey(ctx, keyId)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get public key for key %s in region %s", keyId, a.awsRegion)
	}
	return a.keyPairFromPublicKey(keyId, scheme, kmsPubKey)
}

func (a *AWSKMSKeyGenerator) keyPairFromPublicKey(keyId string, scheme config.SignatureScheme, kmsPubKey *kms.GetPublicKeyOutput) (*keyGenerator.GeneratedKeyPair, error) {
	sigScheme, err := signature.GetScheme(scheme)
	if err != nil {
		return nil, err
	}
	spec, err := a.kmsSchemeFor(scheme)
	if err != nil {
		return nil, err
	}

	pub, err := signature.ParsePublicKey(kmsPubKey.PublicKey)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse public key for key %s", keyId)
	}
	if err := sigScheme.CheckPublicKey(pub); err != nil {
		return nil, errors.Wrapf(err, "key %s cannot be used with scheme %s", keyId, scheme)
	}

	return &keyGenerator.GeneratedKeyPair{
		KeyId:     keyId,
		Backend:   config.KeyBackendAWSKMS,
		Scheme:    scheme,
		PublicKey: pub,
		Signer: &kmsDigestSigner{
			generator:        a,
			keyId:            keyId,
			scheme:           scheme,
			signingAlgorithm: spec.signingAlgorithm,
			publicKey:        pub,
		},
	}, nil
}

// createSigningKey creates an asymmetric SIGN_VERIFY key matching the scheme
func (a *AWSKMSKeyGenerator) createSigningKey(ctx context.Context, keyName string, scheme config.SignatureScheme, spec *kmsScheme) (*kms.CreateKeyOutput, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	input := &kms.CreateKeyInput{
		KeyUsage:    types.KeyUsageTypeSignVerify,
		KeySpec:     spec.keySpec,
		Description: aws.String(fmt.Sprintf("Detached signature key - %s", keyName)),
		Tags: []types.Tag{
			{
				TagKey:   aws.String("Name"),
				TagValue: aws.String(keyName),
			},
			{
				TagKey:   aws.String("Purpose"),
				TagValue: aws.String("detached-signature"),
			},
			{
				TagKey:   aws.String("Scheme"),
				TagValue: aws.String(scheme.String()),
			},
		},
	}

	result, err := a.kmsClient.CreateKey(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to create KMS key: %w", err)
	}
	if result.KeyMetadata == nil || result.KeyMetadata.KeyId == nil {
		return nil, fmt.Errorf("KMS returned no key metadata")
	}
	return result, nil
}

// createKeyAlias creates an alias for the KMS key for easier reference
func (a *AWSKMSKeyGenerator) createKeyAlias(ctx context.Context, keyId, aliasName string) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}

	input := &kms.CreateAliasInput{
		AliasName:   aws.String(fmt.Sprintf("alias/%s", aliasName)),
		TargetKeyId: aws.String(keyId),
	}

	if _, err := a.kmsClient.CreateAlias(ctx, input); err != nil {
		return fmt.Errorf("failed to create key alias: %w", err)
	}
	a.logger.Debug("Created key alias", zap.String("alias", "alias/"+aliasName), zap.String("keyId", keyId))
	return nil
}

// getPublicKey retrieves the DER public key of a KMS key
func (a *AWSKMSKeyGenerator) getPublicKey(ctx context.Context, keyId string) (*kms.GetPublicKeyOutput, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := a.kmsClient.GetPublicKey(ctx, &kms.GetPublicKeyInput{
		KeyId: aws.String(keyId),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get public key: %w", err)
	}
	if result.KeyUsage != "" && result.KeyUsage != types.KeyUsageTypeSignVerify {
		return nil, fmt.Errorf("key %s has usage %s, expected %s", keyId, result.KeyUsage, types.KeyUsageTypeSignVerify)
	}
	return result, nil
}

func (a *AWSKMSKeyGenerator) signDigest(ctx context.Context, keyId string, alg types.SigningAlgorithmSpec, digest []byte) ([]byte, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	signOutput, err := a.kmsClient.Sign(ctx, &kms.SignInput{
		KeyId:            aws.String(keyId),
		Message:          digest,
		SigningAlgorithm: alg,
		MessageType:      types.MessageTypeDigest,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "KMS sign failed for key %s", keyId)
	}
	return signOutput.Signature, nil
}

// kmsDigestSigner keeps the private key inside KMS and signs finalized digests remotely.
type kmsDigestSigner struct {
	generator        *AWSKMSKeyGenerator
	keyId            string
	scheme           config.SignatureScheme
	signingAlgorithm types.SigningAlgorithmSpec
	publicKey        crypto.PublicKey
}

func (k *kmsDigestSigner) Public() crypto.PublicKey {
	return k.publicKey
}

func (k *kmsDigestSigner) Scheme() config.SignatureScheme {
	return k.scheme
}

func (k *kmsDigestSigner) SignDigest(ctx context.Context, digest []byte) ([]byte, error) {
	sig, err := k.generator.signDigest(ctx, k.keyId, k.signingAlgorithm, digest)
	if err != nil {
		return nil, err
	}
	if k.scheme != config.SchemeSecp256k1Keccak256 {
		return sig, nil
	}

	ecPub, ok := k.publicKey.(*cryptoEcdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("secp256k1 key %s has public key of type %T", k.keyId, k.publicKey)
	}
	return toRecoverableSignature(digest, sig, ecPub, k.generator.logger)
}

type asn1EcSig struct {
	R asn1.RawValue
	S asn1.RawValue
}

var (
	secp256k1N, _  = new(big.Int).SetString("FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFEBAAEDCE6AF48A03BBFD25E8CD0364141", 16)
	secp256k1HalfN = new(big.Int).Rsh(secp256k1N, 1)
)

// toRecoverableSignature converts a DER (r,s) signature into the 65 byte
// R || S || V form, normalising s to the lower half of the curve order.
func toRecoverableSignature(digest []byte, derSig []byte, expected *cryptoEcdsa.PublicKey, logger *zap.Logger) ([]byte, error) {
	if len(digest) != 32 {
		return nil, fmt.Errorf("digest must be exactly 32 bytes, got %d", len(digest))
	}

	var sigAsn1 asn1EcSig
	if _, err := asn1.Unmarshal(derSig, &sigAsn1); err != nil {
		return nil, errors.Wrap(err, "failed to parse KMS signature")
	}

	r := new(big.Int).SetBytes(sigAsn1.R.Bytes)
	s := new(big.Int).SetBytes(sigAsn1.S.Bytes)
	if s.Cmp(secp256k1HalfN) > 0 {
		s = new(big.Int).Sub(secp256k1N, s)
	}

	sig := make([]byte, 65)
	r.FillBytes(sig[0:32])
	s.FillBytes(sig[32:64])

	for recoveryId := 0; recoveryId < 2; recoveryId++ {
		sig[64] = byte(recoveryId)

		recovered, err := ethcrypto.SigToPub(digest, sig)
		if err != nil {
			logger.Debug("Public key recovery failed",
				zap.Int("recoveryId", recoveryId),
				zap.Error(err))
			continue
		}
		if recovered.X.Cmp(expected.X) == 0 && recovered.Y.Cmp(expected.Y) == 0 {
			sig[64] = byte(27 + recoveryId)
			return sig, nil
		}
	}

	return nil, fmt.Errorf("could not determine valid recovery ID - signature recovery failed")
}

// sanitizeAlias keeps alias names within the characters KMS accepts.
func sanitizeAlias(name string) string {
	if name == "" {
		return "key"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '/':
			return r
		default:
			return '-'
		}
	}, name)
}

// IsSchemeSupported reports whether KMS can hold keys for scheme at its default strength.
func IsSchemeSupported(scheme config.SignatureScheme) bool {
	g := &AWSKMSKeyGenerator{globalConfig: &config.DetSigConfig{RSAKeyBits: config.DefaultRSAKeyBits}}
	return g.SupportsScheme(scheme)
}
