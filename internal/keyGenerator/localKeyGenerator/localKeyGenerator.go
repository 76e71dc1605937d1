package localKeyGenerator

import (
	"context"
	"crypto"
	"fmt"
	"sync"

	"github.com/Layr-Labs/detsig-go/internal/keyGenerator"
	"github.com/Layr-Labs/detsig-go/pkg/config"
	"github.com/Layr-Labs/detsig-go/pkg/signature"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// keyEntry stores both the private key and metadata for a key
type keyEntry struct {
	signer  *signature.LocalDigestSigner
	scheme  config.SignatureScheme
	keyName string
}

// LocalKeyGenerator creates key pairs in process from crypto/rand.
// Keys live only as long as the generator.
type LocalKeyGenerator struct {
	logger     *zap.Logger
	rsaKeyBits int
	keyStore   map[string]*keyEntry // keyId -> keyEntry
	mu         sync.RWMutex         // protect concurrent access to keyStore
}

func NewLocalKeyGenerator(rsaKeyBits int, logger *zap.Logger) *LocalKeyGenerator {
	return &LocalKeyGenerator{
		logger:     logger,
		rsaKeyBits: rsaKeyBits,
		keyStore:   make(map[string]*keyEntry),
	}
}

func (l *LocalKeyGenerator) Backend() config.KeyBackend {
	return config.KeyBackendLocal
}

func (l *LocalKeyGenerator) SupportsScheme(scheme config.SignatureScheme) bool {
	_, err := signature.GetScheme(scheme)
	return err == nil
}

func (l *LocalKeyGenerator) GenerateKeyPair(ctx context.Context, schemeName config.SignatureScheme, keyName string) (*keyGenerator.GeneratedKeyPair, error) {
	if err := ctx.Err(); err != nil {
		return nil, keyGenerator.NewKeyGenerationError("generate key pair", schemeName.String(), err)
	}

	scheme, err := signature.GetScheme(schemeName)
	if err != nil {
		return nil, keyGenerator.NewKeyGenerationError("generate key pair", schemeName.String(), err)
	}

	privateKey, err := scheme.GenerateKey(l.rsaKeyBits)
	if err != nil {
		return nil, keyGenerator.NewKeyGenerationError("generate key pair", schemeName.String(), err)
	}

	keyId := fmt.Sprintf("local-key-%s", uuid.New().String())
	if err := l.LoadPrivateKey(keyId, scheme, privateKey, keyName); err != nil {
		return nil, keyGenerator.NewKeyGenerationError("generate key pair", schemeName.String(), err)
	}

	l.logger.Info("Generated local key pair",
		zap.String("keyName", keyName),
		zap.String("keyId", keyId),
		zap.String("scheme", schemeName.String()),
	)

	return l.GetKeyPairById(ctx, keyId)
}

func (l *LocalKeyGenerator) GetKeyPairById(ctx context.Context, keyId string) (*keyGenerator.GeneratedKeyPair, error) {
	l.mu.RLock()
	entry, exists := l.keyStore[keyId]
	l.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("key with ID %s not found", keyId)
	}

	l.logger.Debug("Retrieved key pair by ID",
		zap.String("keyId", keyId),
		zap.String("scheme", entry.scheme.String()),
	)

	return &keyGenerator.GeneratedKeyPair{
		KeyId:     keyId,
		Backend:   config.KeyBackendLocal,
		Scheme:    entry.scheme,
		PublicKey: entry.signer.Public(),
		Signer:    entry.signer,
	}, nil
}

// LoadPrivateKey loads a pre-existing private key into the key store.
func (l *LocalKeyGenerator) LoadPrivateKey(keyId string, scheme signature.IScheme, privateKey crypto.Signer, keyName string) error {
	if privateKey == nil {
		return fmt.Errorf("private key cannot be nil")
	}

	signer, err := signature.NewLocalDigestSigner(scheme, privateKey)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.keyStore[keyId]; exists {
		return fmt.Errorf("key with ID %s already exists", keyId)
	}

	l.keyStore[keyId] = &keyEntry{
		signer:  signer,
		scheme:  scheme.Name(),
		keyName: keyName,
	}
	return nil
}

// GetKeyCount returns the number of keys in the store.
func (l *LocalKeyGenerator) GetKeyCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.keyStore)
}

// ClearKeys drops every private key held by the generator.
func (l *LocalKeyGenerator) ClearKeys() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keyStore = make(map[string]*keyEntry)
	l.logger.Info("Cleared all keys from store")
}

// KeyExists checks if a key with the given ID exists in the store.
func (l *LocalKeyGenerator) KeyExists(keyId string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, exists := l.keyStore[keyId]
	return exists
}
