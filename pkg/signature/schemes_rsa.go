package signature

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
	"hash"

	"github.com/Layr-Labs/detsig-go/pkg/config"
)

type rsaScheme struct {
	name config.SignatureScheme
	pss  bool
}

// Salt length equal to the hash length matches what AWS KMS produces for RSASSA_PSS.
var pssOptions = &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash, Hash: crypto.SHA256}

func newRSAScheme(name config.SignatureScheme) *rsaScheme {
	return &rsaScheme{name: name, pss: name == config.SchemeRSAPSSSHA256}
}

func (s *rsaScheme) Name() config.SignatureScheme { return s.name }

func (s *rsaScheme) Description() string {
	if s.pss {
		return "RSASSA-PSS with SHA-256, salt length equals hash length"
	}
	return "RSASSA-PKCS1-v1_5 with SHA-256"
}

func (s *rsaScheme) KeyAlgorithm() KeyAlgorithm { return KeyAlgorithmRSA }

func (s *rsaScheme) DigestName() string { return crypto.SHA256.String() }

func (s *rsaScheme) NewDigest() hash.Hash { return sha256.New() }

func (s *rsaScheme) GenerateKey(rsaBits int) (crypto.Signer, error) {
	if rsaBits < config.MinRSAKeyBits || rsaBits > config.MaxRSAKeyBits {
		return nil, fmt.Errorf("RSA key size %d outside allowed range %d-%d", rsaBits, config.MinRSAKeyBits, config.MaxRSAKeyBits)
	}
	priv, err := rsa.GenerateKey(rand.Reader, rsaBits)
	if err != nil {
		return nil, err
	}
	return priv, nil
}

func (s *rsaScheme) SignDigest(key crypto.Signer, digest []byte) ([]byte, error) {
	if err := s.CheckPublicKey(key.Public()); err != nil {
		return nil, err
	}
	if s.pss {
		return key.Sign(rand.Reader, digest, pssOptions)
	}
	return key.Sign(rand.Reader, digest, crypto.SHA256)
}

func (s *rsaScheme) VerifyDigest(pub crypto.PublicKey, digest []byte, sig []byte) (bool, error) {
	if err := s.CheckPublicKey(pub); err != nil {
		return false, err
	}
	if err := s.CheckSignature(pub, sig); err != nil {
		return false, err
	}
	rsaPub := pub.(*rsa.PublicKey)

	var err error
	if s.pss {
		err = rsa.VerifyPSS(rsaPub, crypto.SHA256, digest, sig, pssOptions)
	} else {
		err = rsa.VerifyPKCS1v15(rsaPub, crypto.SHA256, digest, sig)
	}
	return err == nil, nil
}

func (s *rsaScheme) CheckPublicKey(pub crypto.PublicKey) error {
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("scheme %s requires an RSA public key, got %T", s.name, pub)
	}
	if rsaPub.N == nil || rsaPub.N.BitLen() < config.MinRSAKeyBits {
		return fmt.Errorf("RSA key too weak: minimum is %d bits", config.MinRSAKeyBits)
	}
	return nil
}

func (s *rsaScheme) CheckSignature(pub crypto.PublicKey, sig []byte) error {
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("scheme %s requires an RSA public key, got %T", s.name, pub)
	}
	if len(sig) != rsaPub.Size() {
		return fmt.Errorf("RSA signature must be %d bytes, got %d", rsaPub.Size(), len(sig))
	}
	return nil
}
