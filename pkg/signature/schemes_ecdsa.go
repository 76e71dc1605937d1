package signature

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/asn1"
	"fmt"
	"hash"
	"math/big"

	"github.com/Layr-Labs/detsig-go/pkg/config"
)

type ecdsaScheme struct {
	name      config.SignatureScheme
	curve     elliptic.Curve
	hash      crypto.Hash
	newDigest func() hash.Hash
}

func newECDSAScheme(name config.SignatureScheme) *ecdsaScheme {
	switch name {
	case config.SchemeECDSAP384SHA384:
		return &ecdsaScheme{name: name, curve: elliptic.P384(), hash: crypto.SHA384, newDigest: sha512.New384}
	default:
		return &ecdsaScheme{name: config.SchemeECDSAP256SHA256, curve: elliptic.P256(), hash: crypto.SHA256, newDigest: sha256.New}
	}
}

func (s *ecdsaScheme) Name() config.SignatureScheme { return s.name }

func (s *ecdsaScheme) Description() string {
	return fmt.Sprintf("ECDSA over %s with %s, ASN.1 DER signatures", s.curve.Params().Name, s.hash)
}

func (s *ecdsaScheme) KeyAlgorithm() KeyAlgorithm { return KeyAlgorithmECDSA }

func (s *ecdsaScheme) DigestName() string { return s.hash.String() }

func (s *ecdsaScheme) NewDigest() hash.Hash { return s.newDigest() }

func (s *ecdsaScheme) GenerateKey(_ int) (crypto.Signer, error) {
	priv, err := ecdsa.GenerateKey(s.curve, rand.Reader)
	if err != nil {
		return nil, err
	}
	return priv, nil
}

func (s *ecdsaScheme) SignDigest(key crypto.Signer, digest []byte) ([]byte, error) {
	if err := s.CheckPublicKey(key.Public()); err != nil {
		return nil, err
	}
	return key.Sign(rand.Reader, digest, s.hash)
}

func (s *ecdsaScheme) VerifyDigest(pub crypto.PublicKey, digest []byte, sig []byte) (bool, error) {
	if err := s.CheckPublicKey(pub); err != nil {
		return false, err
	}
	if err := s.CheckSignature(pub, sig); err != nil {
		return false, err
	}
	return ecdsa.VerifyASN1(pub.(*ecdsa.PublicKey), digest, sig), nil
}

func (s *ecdsaScheme) CheckPublicKey(pub crypto.PublicKey) error {
	ecPub, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return fmt.Errorf("scheme %s requires an ECDSA public key, got %T", s.name, pub)
	}
	if ecPub.Curve == nil || ecPub.Curve.Params().Name != s.curve.Params().Name {
		return fmt.Errorf("scheme %s requires curve %s", s.name, s.curve.Params().Name)
	}
	return nil
}

type ecdsaSignatureValue struct {
	R, S *big.Int
}

func (s *ecdsaScheme) CheckSignature(_ crypto.PublicKey, sig []byte) error {
	if len(sig) == 0 {
		return fmt.Errorf("signature is empty")
	}
	var v ecdsaSignatureValue
	rest, err := asn1.Unmarshal(sig, &v)
	if err != nil {
		return fmt.Errorf("signature is not an ASN.1 ECDSA value: %w", err)
	}
	if len(rest) != 0 {
		return fmt.Errorf("signature has %d trailing bytes", len(rest))
	}
	if v.R == nil || v.S == nil || v.R.Sign() <= 0 || v.S.Sign() <= 0 {
		return fmt.Errorf("signature has non-positive components")
	}
	return nil
}
