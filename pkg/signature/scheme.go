package signature

import (
	"crypto"
	"hash"
	"sort"

	"github.com/Layr-Labs/detsig-go/pkg/config"
	"github.com/pkg/errors"
)

// KeyAlgorithm names the public key family a scheme operates on.
type KeyAlgorithm string

const (
	KeyAlgorithmECDSA     KeyAlgorithm = "ecdsa"
	KeyAlgorithmEd25519   KeyAlgorithm = "ed25519"
	KeyAlgorithmRSA       KeyAlgorithm = "rsa"
	KeyAlgorithmSecp256k1 KeyAlgorithm = "secp256k1"
)

// IScheme is one signature algorithm together with the digest it streams
// the message through. Signer and verifier must agree on the scheme by name.
type IScheme interface {
	Name() config.SignatureScheme
	Description() string
	KeyAlgorithm() KeyAlgorithm
	DigestName() string

	// NewDigest returns a fresh accumulator for one signing or verification session.
	NewDigest() hash.Hash

	// GenerateKey creates a private key of this scheme from crypto/rand.
	// rsaBits is only consulted by RSA schemes.
	GenerateKey(rsaBits int) (crypto.Signer, error)

	// SignDigest signs a finalized digest with a local private key.
	SignDigest(key crypto.Signer, digest []byte) ([]byte, error)

	// VerifyDigest returns false for a well formed signature that does not
	// match. Errors are reserved for structural problems.
	VerifyDigest(pub crypto.PublicKey, digest []byte, sig []byte) (bool, error)

	// CheckPublicKey rejects keys of a different algorithm or curve.
	CheckPublicKey(pub crypto.PublicKey) error

	// CheckSignature rejects blobs that cannot be a signature of this scheme for pub.
	CheckSignature(pub crypto.PublicKey, sig []byte) error
}

var registry = map[config.SignatureScheme]IScheme{}

func register(s IScheme) {
	registry[s.Name()] = s
}

func init() {
	register(newECDSAScheme(config.SchemeECDSAP256SHA256))
	register(newECDSAScheme(config.SchemeECDSAP384SHA384))
	register(&ed25519phScheme{})
	register(newRSAScheme(config.SchemeRSAPSSSHA256))
	register(newRSAScheme(config.SchemeRSAPKCS1v15SHA256))
	register(&secp256k1Scheme{})
}

// GetScheme looks up a scheme by its explicit identifier.
func GetScheme(name config.SignatureScheme) (IScheme, error) {
	s, ok := registry[name]
	if !ok {
		return nil, errors.Errorf("unsupported signature scheme %q (supported: %s)", name, config.GetSupportedSchemesString())
	}
	return s, nil
}

// SupportedSchemes returns all registered schemes sorted by name.
func SupportedSchemes() []IScheme {
	schemes := make([]IScheme, 0, len(registry))
	for _, s := range registry {
		schemes = append(schemes, s)
	}
	sort.Slice(schemes, func(i, j int) bool {
		return schemes[i].Name() < schemes[j].Name()
	})
	return schemes
}
