package signature

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha512"
	"fmt"
	"hash"

	"github.com/Layr-Labs/detsig-go/pkg/config"
)

// ed25519phScheme is the pre-hashed Ed25519 variant from RFC 8032, which
// lets the message stream through SHA-512 instead of being held in memory.
type ed25519phScheme struct{}

var ed25519phOptions = &ed25519.Options{Hash: crypto.SHA512}

func (s *ed25519phScheme) Name() config.SignatureScheme { return config.SchemeEd25519phSHA512 }

func (s *ed25519phScheme) Description() string {
	return "Ed25519ph (RFC 8032 pre-hashed) with SHA-512, 64 byte signatures"
}

func (s *ed25519phScheme) KeyAlgorithm() KeyAlgorithm { return KeyAlgorithmEd25519 }

func (s *ed25519phScheme) DigestName() string { return crypto.SHA512.String() }

func (s *ed25519phScheme) NewDigest() hash.Hash { return sha512.New() }

func (s *ed25519phScheme) GenerateKey(_ int) (crypto.Signer, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return priv, nil
}

func (s *ed25519phScheme) SignDigest(key crypto.Signer, digest []byte) ([]byte, error) {
	if err := s.CheckPublicKey(key.Public()); err != nil {
		return nil, err
	}
	return key.Sign(rand.Reader, digest, ed25519phOptions)
}

func (s *ed25519phScheme) VerifyDigest(pub crypto.PublicKey, digest []byte, sig []byte) (bool, error) {
	if err := s.CheckPublicKey(pub); err != nil {
		return false, err
	}
	if err := s.CheckSignature(pub, sig); err != nil {
		return false, err
	}
	if len(digest) != sha512.Size {
		return false, fmt.Errorf("digest must be %d bytes, got %d", sha512.Size, len(digest))
	}
	return ed25519.VerifyWithOptions(pub.(ed25519.PublicKey), digest, sig, ed25519phOptions) == nil, nil
}

func (s *ed25519phScheme) CheckPublicKey(pub crypto.PublicKey) error {
	edPub, ok := pub.(ed25519.PublicKey)
	if !ok {
		return fmt.Errorf("scheme %s requires an Ed25519 public key, got %T", s.Name(), pub)
	}
	if len(edPub) != ed25519.PublicKeySize {
		return fmt.Errorf("ed25519 public key must be %d bytes, got %d", ed25519.PublicKeySize, len(edPub))
	}
	return nil
}

func (s *ed25519phScheme) CheckSignature(_ crypto.PublicKey, sig []byte) error {
	if len(sig) != ed25519.SignatureSize {
		return fmt.Errorf("ed25519 signature must be %d bytes, got %d", ed25519.SignatureSize, len(sig))
	}
	return nil
}
