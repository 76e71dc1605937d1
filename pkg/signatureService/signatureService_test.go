package signatureService

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/Layr-Labs/detsig-go/internal/keyGenerator"
	"github.com/Layr-Labs/detsig-go/internal/keyGenerator/localKeyGenerator"
	"github.com/Layr-Labs/detsig-go/pkg/config"
	"github.com/Layr-Labs/detsig-go/pkg/logger"
	"github.com/Layr-Labs/detsig-go/pkg/metrics"
	"github.com/Layr-Labs/detsig-go/pkg/persistence"
	"github.com/Layr-Labs/detsig-go/pkg/persistence/memory"
	"github.com/Layr-Labs/detsig-go/pkg/signature"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testEnv struct {
	service  *SignatureService
	store    persistence.IArtifactStore
	kg       *localKeyGenerator.LocalKeyGenerator
	registry *prometheus.Registry
	dir      string
}

func newTestEnv(t *testing.T, scheme config.SignatureScheme, withStore bool, mutate ...func(cfg *config.DetSigConfig)) *testEnv {
	t.Helper()

	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: true})
	require.NoError(t, err)

	cfg := config.NewDefaultConfig()
	cfg.Scheme = scheme
	cfg.RSAKeyBits = config.MinRSAKeyBits
	for _, m := range mutate {
		m(cfg)
	}

	var store persistence.IArtifactStore
	if withStore {
		cfg.Store = config.StoreTypeMemory
		store = memory.NewMemoryPersistence(l)
		t.Cleanup(func() { _ = store.Close() })
	}

	registry := prometheus.NewRegistry()
	m, err := metrics.NewMetrics(registry)
	require.NoError(t, err)

	kg := localKeyGenerator.NewLocalKeyGenerator(cfg.RSAKeyBits, l)
	service, err := NewSignatureService(cfg, kg, store, m, l)
	require.NoError(t, err)

	return &testEnv{
		service:  service,
		store:    store,
		kg:       kg,
		registry: registry,
		dir:      t.TempDir(),
	}
}

func (e *testEnv) writeData(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func Test_SignAndVerifyFiles(t *testing.T) {
	for _, scheme := range config.GetSupportedSchemes() {
		t.Run(scheme.String(), func(t *testing.T) {
			env := newTestEnv(t, scheme, false)
			ctx := context.Background()

			dataPath := env.writeData(t, "data.txt", "hello world")
			outDir := filepath.Join(env.dir, "out")

			outcome, err := env.service.SignFile(ctx, dataPath, outDir)
			require.NoError(t, err)
			assert.Equal(t, scheme, outcome.Scheme)
			assert.Equal(t, int64(11), outcome.BytesSigned)
			assert.Equal(t, filepath.Join(outDir, config.DefaultPublicKeyFileName), outcome.PublicKeyPath)
			assert.Equal(t, filepath.Join(outDir, "data.txt.sig"), outcome.SignaturePath)
			assert.Empty(t, outcome.RecordId)

			onDisk, err := os.ReadFile(outcome.SignaturePath)
			require.NoError(t, err)
			assert.Equal(t, outcome.Signature, onDisk)

			ok, err := env.service.VerifyFiles(ctx, outcome.PublicKeyPath, outcome.SignaturePath, dataPath)
			require.NoError(t, err)
			assert.True(t, ok)

			require.NoError(t, os.WriteFile(dataPath, []byte("hallo world"), 0644))
			ok, err = env.service.VerifyFiles(ctx, outcome.PublicKeyPath, outcome.SignaturePath, dataPath)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func Test_SignFileEmptyMessage(t *testing.T) {
	env := newTestEnv(t, config.SchemeECDSAP256SHA256, false)
	ctx := context.Background()

	dataPath := env.writeData(t, "empty.bin", "")
	outcome, err := env.service.SignFile(ctx, dataPath, env.dir)
	require.NoError(t, err)
	assert.Equal(t, int64(0), outcome.BytesSigned)
	assert.NotEmpty(t, outcome.Signature)

	ok, err := env.service.VerifyFiles(ctx, outcome.PublicKeyPath, outcome.SignaturePath, dataPath)
	require.NoError(t, err)
	assert.True(t, ok)
}

func Test_PEMOutput(t *testing.T) {
	env := newTestEnv(t, config.SchemeEd25519phSHA512, true, func(cfg *config.DetSigConfig) {
		cfg.PEMOutput = true
	})
	ctx := context.Background()

	dataPath := env.writeData(t, "data.txt", "hello world")
	outcome, err := env.service.SignFile(ctx, dataPath, env.dir)
	require.NoError(t, err)

	pub, err := os.ReadFile(outcome.PublicKeyPath)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pub, []byte("-----BEGIN PUBLIC KEY-----")))

	ok, err := env.service.VerifyFiles(ctx, outcome.PublicKeyPath, outcome.SignaturePath, dataPath)
	require.NoError(t, err)
	assert.True(t, ok)

	record, err := env.service.GetRecord(outcome.RecordId)
	require.NoError(t, err)
	assert.False(t, bytes.HasPrefix(record.PublicKey, []byte("-----BEGIN")))
}

func Test_SignatureRecords(t *testing.T) {
	env := newTestEnv(t, config.SchemeSecp256k1Keccak256, true)
	ctx := context.Background()

	dataPath := env.writeData(t, "release.tar", "hello world")
	outcome, err := env.service.SignFile(ctx, dataPath, env.dir)
	require.NoError(t, err)
	require.NotEmpty(t, outcome.RecordId)

	t.Run("Should store the record", func(t *testing.T) {
		records, err := env.service.ListRecords()
		require.NoError(t, err)
		require.Len(t, records, 1)

		record := records[0]
		assert.Equal(t, outcome.RecordId, record.Id)
		assert.Equal(t, config.SchemeSecp256k1Keccak256, record.Scheme)
		assert.Equal(t, outcome.KeyId, record.KeyId)
		assert.Equal(t, config.KeyBackendLocal, record.KeyBackend)
		assert.Equal(t, "release.tar", record.MessageName)
		assert.Equal(t, int64(11), record.MessageSize)
		assert.Equal(t, outcome.Digest, record.MessageDigest)
		assert.Equal(t, outcome.Signature, record.Signature)
	})

	t.Run("Should verify against the record", func(t *testing.T) {
		ok, err := env.service.VerifyRecord(ctx, outcome.RecordId, dataPath)
		require.NoError(t, err)
		assert.True(t, ok)

		tampered := env.writeData(t, "tampered.tar", "hallo world")
		ok, err = env.service.VerifyRecord(ctx, outcome.RecordId, tampered)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Should fail for an unknown record", func(t *testing.T) {
		_, err := env.service.VerifyRecord(ctx, "missing", dataPath)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("Should delete the record", func(t *testing.T) {
		require.NoError(t, env.service.DeleteRecord(outcome.RecordId))
		_, err := env.service.GetRecord(outcome.RecordId)
		require.Error(t, err)

		records, err := env.service.ListRecords()
		require.NoError(t, err)
		assert.Empty(t, records)
	})
}

func Test_VerifyRecordSchemeMismatch(t *testing.T) {
	signing := newTestEnv(t, config.SchemeEd25519phSHA512, true)
	ctx := context.Background()

	dataPath := signing.writeData(t, "data.txt", "hello world")
	outcome, err := signing.service.SignFile(ctx, dataPath, signing.dir)
	require.NoError(t, err)

	l := zap.NewNop()
	cfg := config.NewDefaultConfig()
	cfg.Scheme = config.SchemeECDSAP256SHA256
	other, err := NewSignatureService(cfg, localKeyGenerator.NewLocalKeyGenerator(cfg.RSAKeyBits, l), signing.store, nil, l)
	require.NoError(t, err)

	_, err = other.VerifyRecord(ctx, outcome.RecordId, dataPath)
	require.Error(t, err)
	assert.ErrorIs(t, err, signature.ErrVerificationStructural)
}

func Test_NoStore(t *testing.T) {
	env := newTestEnv(t, config.SchemeECDSAP256SHA256, false)

	_, err := env.service.ListRecords()
	assert.ErrorIs(t, err, ErrNoStore)
	_, err = env.service.GetRecord("id")
	assert.ErrorIs(t, err, ErrNoStore)
	assert.ErrorIs(t, env.service.DeleteRecord("id"), ErrNoStore)
	_, err = env.service.VerifyRecord(context.Background(), "id", "data")
	assert.ErrorIs(t, err, ErrNoStore)
}

func Test_SignErrors(t *testing.T) {
	env := newTestEnv(t, config.SchemeECDSAP384SHA384, true)
	ctx := context.Background()

	t.Run("Should report a missing message file", func(t *testing.T) {
		_, err := env.service.SignFile(ctx, filepath.Join(env.dir, "missing.bin"), env.dir)
		require.Error(t, err)
		assert.ErrorIs(t, err, signature.ErrSigning)
		assert.Contains(t, err.Error(), "missing.bin")
	})

	t.Run("Should not record a failed stream", func(t *testing.T) {
		_, err := env.service.SignReader(ctx, "broken", iotest.TimeoutReader(iotest.OneByteReader(strings.NewReader("hello world"))))
		require.Error(t, err)
		assert.ErrorIs(t, err, signature.ErrSigning)

		records, err := env.service.ListRecords()
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("Should count stream failures", func(t *testing.T) {
		assert.Equal(t, 1.0, counterValue(t, env.registry, "detsig_sign_total", metrics.ResultError))
	})
}

func Test_VerifyErrors(t *testing.T) {
	env := newTestEnv(t, config.SchemeECDSAP256SHA256, false)
	ctx := context.Background()

	dataPath := env.writeData(t, "data.txt", "hello world")
	outcome, err := env.service.SignFile(ctx, dataPath, env.dir)
	require.NoError(t, err)

	garbageKey := env.writeData(t, "garbage.pub", "not a key")
	emptySig := env.writeData(t, "empty.sig", "")
	shortSig := env.writeData(t, "short.sig", "\x30\x00")
	missing := filepath.Join(env.dir, "missing")

	ed, err := signature.GetScheme(config.SchemeEd25519phSHA512)
	require.NoError(t, err)
	edKey, err := ed.GenerateKey(0)
	require.NoError(t, err)
	edPEM, err := signature.EncodePublicKeyPEM(edKey.Public())
	require.NoError(t, err)
	wrongKey := env.writeData(t, "ed25519.pub", string(edPEM))

	tests := []struct {
		name     string
		pub      string
		sig      string
		data     string
		wantErr  error
		artifact string
	}{
		{"missing public key", missing, outcome.SignaturePath, dataPath, signature.ErrKeyDecoding, missing},
		{"garbage public key", garbageKey, outcome.SignaturePath, dataPath, signature.ErrKeyDecoding, garbageKey},
		{"key of another algorithm", wrongKey, outcome.SignaturePath, dataPath, signature.ErrVerificationStructural, wrongKey},
		{"missing signature", outcome.PublicKeyPath, missing, dataPath, signature.ErrVerificationStructural, missing},
		{"empty signature", outcome.PublicKeyPath, emptySig, dataPath, signature.ErrVerificationStructural, emptySig},
		{"truncated signature", outcome.PublicKeyPath, shortSig, dataPath, signature.ErrVerificationStructural, shortSig},
		{"missing message", outcome.PublicKeyPath, outcome.SignaturePath, missing, signature.ErrVerificationStructural, missing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := env.service.VerifyFiles(ctx, tt.pub, tt.sig, tt.data)
			require.Error(t, err)
			assert.False(t, ok)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Contains(t, err.Error(), "["+tt.artifact+"]")
		})
	}

	t.Run("Should reject a nil reader", func(t *testing.T) {
		pub, err := os.ReadFile(outcome.PublicKeyPath)
		require.NoError(t, err)
		_, err = env.service.VerifyReader(ctx, pub, outcome.Signature, nil)
		assert.ErrorIs(t, err, signature.ErrVerificationStructural)
	})
}

func Test_VerifyMetrics(t *testing.T) {
	env := newTestEnv(t, config.SchemeEd25519phSHA512, false)
	ctx := context.Background()

	outcome, err := env.service.SignReader(ctx, "inline", strings.NewReader("hello world"))
	require.NoError(t, err)

	ok, err := env.service.VerifyReader(ctx, outcome.PublicKey, outcome.Signature, strings.NewReader("hello world"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = env.service.VerifyReader(ctx, outcome.PublicKey, outcome.Signature, strings.NewReader("hallo world"))
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, 1.0, counterValue(t, env.registry, "detsig_verify_total", metrics.ResultValid))
	assert.Equal(t, 1.0, counterValue(t, env.registry, "detsig_verify_total", metrics.ResultInvalid))
	assert.Equal(t, 1.0, counterValue(t, env.registry, "detsig_sign_total", metrics.ResultOK))
}

func Test_ExportPublicKey(t *testing.T) {
	env := newTestEnv(t, config.SchemeRSAPSSSHA256, false)
	ctx := context.Background()

	pair, err := env.kg.GenerateKeyPair(ctx, config.SchemeRSAPSSSHA256, "export")
	require.NoError(t, err)

	path, err := env.service.ExportPublicKey(ctx, pair.KeyId, filepath.Join(env.dir, "keys"))
	require.NoError(t, err)

	der, err := os.ReadFile(path)
	require.NoError(t, err)
	expected, err := pair.GetPublicKeyBytes()
	require.NoError(t, err)
	assert.Equal(t, expected, der)

	_, err = env.service.ExportPublicKey(ctx, "local-key-missing", env.dir)
	require.Error(t, err)
}

type unsupportedGenerator struct {
	keyGenerator.IKeyGenerator
}

func (u *unsupportedGenerator) Backend() config.KeyBackend { return config.KeyBackendAWSKMS }

func (u *unsupportedGenerator) SupportsScheme(config.SignatureScheme) bool { return false }

func Test_NewSignatureService(t *testing.T) {
	l := zap.NewNop()
	kg := localKeyGenerator.NewLocalKeyGenerator(config.DefaultRSAKeyBits, l)

	_, err := NewSignatureService(nil, kg, nil, nil, l)
	require.Error(t, err)

	cfg := config.NewDefaultConfig()
	_, err = NewSignatureService(cfg, nil, nil, nil, l)
	require.Error(t, err)

	bad := config.NewDefaultConfig()
	bad.ChunkSize = 0
	_, err = NewSignatureService(bad, kg, nil, nil, l)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunkSize")

	_, err = NewSignatureService(cfg, &unsupportedGenerator{}, nil, nil, l)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not support")

	service, err := NewSignatureService(cfg, kg, nil, nil, l)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultScheme, service.Scheme())
}

// counterValue sums the samples of a counter family carrying the given result label.
func counterValue(t *testing.T, registry *prometheus.Registry, name string, result string) float64 {
	t.Helper()
	families, err := registry.Gather()
	require.NoError(t, err)

	var total float64
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, m := range family.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() == "result" && label.GetValue() == result {
					total += m.GetCounter().GetValue()
				}
			}
		}
	}
	return total
}

func Test_VerifyRecordNamesRecord(t *testing.T) {
	env := newTestEnv(t, config.SchemeECDSAP256SHA256, true)
	ctx := context.Background()

	dataPath := env.writeData(t, "data.txt", "hello world")
	outcome, err := env.service.SignFile(ctx, dataPath, env.dir)
	require.NoError(t, err)

	stored, err := env.service.GetRecord(outcome.RecordId)
	require.NoError(t, err)
	stored.Id = persistence.NewRecordId()
	stored.Signature = []byte{0x30, 0x00}
	require.NoError(t, env.store.SaveRecord(stored))

	_, err = env.service.VerifyRecord(ctx, stored.Id, dataPath)
	require.Error(t, err)
	assert.ErrorIs(t, err, signature.ErrVerificationStructural)
	assert.Contains(t, err.Error(), "[record "+stored.Id+"]")
}

func Test_SignFileWriteFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("Should not record a run whose public key cannot be written", func(t *testing.T) {
		env := newTestEnv(t, config.SchemeECDSAP256SHA256, true)
		dataPath := env.writeData(t, "data.txt", "hello world")
		outDir := filepath.Join(env.dir, "out")
		require.NoError(t, os.MkdirAll(filepath.Join(outDir, config.DefaultPublicKeyFileName), 0755))

		_, err := env.service.SignFile(ctx, dataPath, outDir)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "write public key")
		assert.NotErrorIs(t, err, signature.ErrSigning)

		records, err := env.service.ListRecords()
		require.NoError(t, err)
		assert.Empty(t, records)
		assert.NoFileExists(t, filepath.Join(outDir, "data.txt.sig"))
	})

	t.Run("Should not leave a public key behind when the signature cannot be written", func(t *testing.T) {
		env := newTestEnv(t, config.SchemeECDSAP256SHA256, true)
		dataPath := env.writeData(t, "data.txt", "hello world")
		outDir := filepath.Join(env.dir, "out")
		require.NoError(t, os.MkdirAll(filepath.Join(outDir, "data.txt.sig"), 0755))

		_, err := env.service.SignFile(ctx, dataPath, outDir)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "write signature")

		records, err := env.service.ListRecords()
		require.NoError(t, err)
		assert.Empty(t, records)
		assert.NoFileExists(t, filepath.Join(outDir, config.DefaultPublicKeyFileName))
	})

	t.Run("Should remove the artifacts when the record cannot be saved", func(t *testing.T) {
		env := newTestEnv(t, config.SchemeECDSAP256SHA256, true)
		dataPath := env.writeData(t, "data.txt", "hello world")
		outDir := filepath.Join(env.dir, "out")
		require.NoError(t, env.store.Close())

		_, err := env.service.SignFile(ctx, dataPath, outDir)
		require.Error(t, err)
		assert.ErrorIs(t, err, persistence.ErrClosed)
		assert.NoFileExists(t, filepath.Join(outDir, config.DefaultPublicKeyFileName))
		assert.NoFileExists(t, filepath.Join(outDir, "data.txt.sig"))
	})
}

func Test_SignFileDefaultsToMessageDirectory(t *testing.T) {
	env := newTestEnv(t, config.SchemeECDSAP256SHA256, false)
	ctx := context.Background()

	dir := filepath.Join(env.dir, "release")
	require.NoError(t, os.MkdirAll(dir, 0755))
	dataPath := filepath.Join(dir, "artifact.tar")
	require.NoError(t, os.WriteFile(dataPath, []byte("hello world"), 0644))

	outcome, err := env.service.SignFile(ctx, dataPath, "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, config.DefaultPublicKeyFileName), outcome.PublicKeyPath)
	assert.Equal(t, filepath.Join(dir, "artifact.tar.sig"), outcome.SignaturePath)

	ok, err := env.service.VerifyFiles(ctx, outcome.PublicKeyPath, outcome.SignaturePath, dataPath)
	require.NoError(t, err)
	assert.True(t, ok)
}
