package keyGenerator

import (
	"context"
	"crypto"
	"fmt"

	"github.com/Layr-Labs/detsig-go/pkg/config"
	"github.com/Layr-Labs/detsig-go/pkg/signature"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// GeneratedKeyPair is the KeyPair handed to a signing session. The private
// half stays behind Signer; only the public half is exported.
type GeneratedKeyPair struct {
	KeyId     string
	Backend   config.KeyBackend
	Scheme    config.SignatureScheme
	PublicKey crypto.PublicKey
	Signer    signature.IDigestSigner
}

// GetPublicKeyBytes returns the DER SubjectPublicKeyInfo encoding of the public key
func (gkp *GeneratedKeyPair) GetPublicKeyBytes() ([]byte, error) {
	if gkp.PublicKey == nil {
		return nil, fmt.Errorf("public key is nil")
	}
	return signature.MarshalPublicKey(gkp.PublicKey)
}

// GetPublicKeyPEM returns the PEM "PUBLIC KEY" encoding of the public key
func (gkp *GeneratedKeyPair) GetPublicKeyPEM() ([]byte, error) {
	if gkp.PublicKey == nil {
		return nil, fmt.Errorf("public key is nil")
	}
	return signature.EncodePublicKeyPEM(gkp.PublicKey)
}

func (gkp *GeneratedKeyPair) GetPublicKeyHex() (string, error) {
	pubKeyBytes, err := gkp.GetPublicKeyBytes()
	if err != nil {
		return "", fmt.Errorf("failed to get public key bytes: %w", err)
	}
	return hexutil.Encode(pubKeyBytes), nil
}

type IKeyGenerator interface {
	Backend() config.KeyBackend
	SupportsScheme(scheme config.SignatureScheme) bool
	GenerateKeyPair(ctx context.Context, scheme config.SignatureScheme, keyName string) (*GeneratedKeyPair, error)
	GetKeyPairById(ctx context.Context, keyId string) (*GeneratedKeyPair, error)
}

// NewKeyGenerationError tags err as a key generation failure for keyId or scheme.
func NewKeyGenerationError(op string, artifact string, err error) error {
	return signature.NewError(signature.ErrKeyGeneration, op, artifact, err)
}
