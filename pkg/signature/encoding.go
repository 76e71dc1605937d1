package signature

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/x509"
	"encoding/asn1"
	"encoding/pem"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

const pemBlockPublicKey = "PUBLIC KEY"

var (
	oidPublicKeyECDSA = asn1.ObjectIdentifier{1, 2, 840, 10045, 2, 1}
	oidCurveSecp256k1 = asn1.ObjectIdentifier{1, 3, 132, 0, 10}
)

// SubjectPublicKeyInfo with named curve parameters, the shape AWS KMS returns
// for ECC_SECG_P256K1 keys.
type asn1EcPublicKey struct {
	EcPublicKeyInfo asn1EcPublicKeyInfo
	PublicKey       asn1.BitString
}

type asn1EcPublicKeyInfo struct {
	Algorithm  asn1.ObjectIdentifier
	Parameters asn1.ObjectIdentifier
}

// MarshalPublicKey encodes pub as DER SubjectPublicKeyInfo.
func MarshalPublicKey(pub crypto.PublicKey) ([]byte, error) {
	if ecPub, ok := pub.(*ecdsa.PublicKey); ok && isSecp256k1(ecPub.Curve) {
		point := ethcrypto.FromECDSAPub(ecPub)
		der, err := asn1.Marshal(asn1EcPublicKey{
			EcPublicKeyInfo: asn1EcPublicKeyInfo{
				Algorithm:  oidPublicKeyECDSA,
				Parameters: oidCurveSecp256k1,
			},
			PublicKey: asn1.BitString{Bytes: point, BitLength: len(point) * 8},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal secp256k1 public key: %w", err)
		}
		return der, nil
	}

	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}
	return der, nil
}

// EncodePublicKeyPEM encodes pub as a PEM "PUBLIC KEY" block.
func EncodePublicKeyPEM(pub crypto.PublicKey) ([]byte, error) {
	der, err := MarshalPublicKey(pub)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{
		Type:  pemBlockPublicKey,
		Bytes: der,
	}), nil
}

// ParsePublicKey decodes a DER or PEM SubjectPublicKeyInfo. Every failure is
// reported as ErrKeyDecoding.
func ParsePublicKey(data []byte) (crypto.PublicKey, error) {
	if len(data) == 0 {
		return nil, newKeyDecodingError(OpParsePublicKey, "", fmt.Errorf("encoded key is empty"))
	}

	der := data
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("-----BEGIN")) {
		block, _ := pem.Decode(bytes.TrimSpace(data))
		if block == nil {
			return nil, newKeyDecodingError(OpParsePublicKey, "", fmt.Errorf("failed to decode PEM block"))
		}
		if block.Type != pemBlockPublicKey {
			return nil, newKeyDecodingError(OpParsePublicKey, "", fmt.Errorf("unexpected PEM block type %q", block.Type))
		}
		der = block.Bytes
	}

	pub, err := x509.ParsePKIXPublicKey(der)
	if err == nil {
		switch k := pub.(type) {
		case *ecdsa.PublicKey:
			if k.Curve != elliptic.P256() && k.Curve != elliptic.P384() {
				return nil, newKeyDecodingError(OpParsePublicKey, "", fmt.Errorf("unsupported curve %s", k.Curve.Params().Name))
			}
			return pub, nil
		case *rsa.PublicKey, ed25519.PublicKey:
			return pub, nil
		default:
			return nil, newKeyDecodingError(OpParsePublicKey, "", fmt.Errorf("unsupported public key type %T", pub))
		}
	}

	// the x509 package does not know secp256k1
	secpPub, secpErr := parseSecp256k1PublicKey(der)
	if secpErr == nil {
		return secpPub, nil
	}
	return nil, newKeyDecodingError(OpParsePublicKey, "", err)
}

func parseSecp256k1PublicKey(der []byte) (*ecdsa.PublicKey, error) {
	var spki asn1EcPublicKey
	rest, err := asn1.Unmarshal(der, &spki)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ASN.1 public key: %w", err)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("trailing data after public key")
	}
	if !spki.EcPublicKeyInfo.Algorithm.Equal(oidPublicKeyECDSA) || !spki.EcPublicKeyInfo.Parameters.Equal(oidCurveSecp256k1) {
		return nil, fmt.Errorf("not a secp256k1 public key")
	}
	return ethcrypto.UnmarshalPubkey(spki.PublicKey.Bytes)
}

// PublicKeyAlgorithm names the key family of pub for diagnostics.
func PublicKeyAlgorithm(pub crypto.PublicKey) KeyAlgorithm {
	switch k := pub.(type) {
	case *ecdsa.PublicKey:
		if isSecp256k1(k.Curve) {
			return KeyAlgorithmSecp256k1
		}
		return KeyAlgorithmECDSA
	case ed25519.PublicKey:
		return KeyAlgorithmEd25519
	case *rsa.PublicKey:
		return KeyAlgorithmRSA
	default:
		return KeyAlgorithm(fmt.Sprintf("%T", pub))
	}
}
