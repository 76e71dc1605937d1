package signature

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"fmt"
	"hash"

	"github.com/Layr-Labs/detsig-go/pkg/config"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/sha3"
)

const (
	secp256k1SignatureLength = 65 // R || S || V
	recoveryIdOffset         = 27
)

// secp256k1Scheme produces Ethereum style recoverable signatures over a
// Keccak-256 digest.
type secp256k1Scheme struct{}

func (s *secp256k1Scheme) Name() config.SignatureScheme { return config.SchemeSecp256k1Keccak256 }

func (s *secp256k1Scheme) Description() string {
	return "ECDSA over secp256k1 with Keccak-256, 65 byte recoverable signatures"
}

func (s *secp256k1Scheme) KeyAlgorithm() KeyAlgorithm { return KeyAlgorithmSecp256k1 }

func (s *secp256k1Scheme) DigestName() string { return "Keccak-256" }

func (s *secp256k1Scheme) NewDigest() hash.Hash { return sha3.NewLegacyKeccak256() }

func (s *secp256k1Scheme) GenerateKey(_ int) (crypto.Signer, error) {
	priv, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return priv, nil
}

func (s *secp256k1Scheme) SignDigest(key crypto.Signer, digest []byte) ([]byte, error) {
	priv, ok := key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("scheme %s requires an in-memory secp256k1 private key, got %T", s.Name(), key)
	}
	if err := s.CheckPublicKey(priv.Public()); err != nil {
		return nil, err
	}
	return ethcrypto.Sign(digest, priv)
}

func (s *secp256k1Scheme) VerifyDigest(pub crypto.PublicKey, digest []byte, sig []byte) (bool, error) {
	if err := s.CheckPublicKey(pub); err != nil {
		return false, err
	}
	if err := s.CheckSignature(pub, sig); err != nil {
		return false, err
	}
	pubBytes := ethcrypto.FromECDSAPub(pub.(*ecdsa.PublicKey))
	return ethcrypto.VerifySignature(pubBytes, digest, sig[:64]), nil
}

func (s *secp256k1Scheme) CheckPublicKey(pub crypto.PublicKey) error {
	ecPub, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return fmt.Errorf("scheme %s requires an ECDSA public key, got %T", s.Name(), pub)
	}
	if !isSecp256k1(ecPub.Curve) {
		return fmt.Errorf("scheme %s requires curve secp256k1", s.Name())
	}
	return nil
}

func (s *secp256k1Scheme) CheckSignature(_ crypto.PublicKey, sig []byte) error {
	if len(sig) != secp256k1SignatureLength {
		return fmt.Errorf("secp256k1 signature must be %d bytes, got %d", secp256k1SignatureLength, len(sig))
	}
	v := sig[64]
	if v >= recoveryIdOffset {
		v -= recoveryIdOffset
	}
	if v > 1 {
		return fmt.Errorf("invalid recovery id %d", sig[64])
	}
	return nil
}

func isSecp256k1(curve elliptic.Curve) bool {
	if curve == nil {
		return false
	}
	params := curve.Params()
	s256 := ethcrypto.S256().Params()
	return params.P.Cmp(s256.P) == 0 && params.N.Cmp(s256.N) == 0 && params.B.Cmp(s256.B) == 0
}
