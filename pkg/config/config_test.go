package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_DetSigConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *DetSigConfig)
		wantErr   bool
		errSubstr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *DetSigConfig) {},
		},
		{
			name:      "unknown scheme",
			mutate:    func(c *DetSigConfig) { c.Scheme = "sha1withdsa" },
			wantErr:   true,
			errSubstr: "scheme",
		},
		{
			name: "rsa key too small",
			mutate: func(c *DetSigConfig) {
				c.Scheme = SchemeRSAPSSSHA256
				c.RSAKeyBits = 1024
			},
			wantErr:   true,
			errSubstr: "rsaKeyBits",
		},
		{
			name: "rsa bits ignored for ecdsa",
			mutate: func(c *DetSigConfig) {
				c.RSAKeyBits = 1024
			},
		},
		{
			name:      "zero chunk size",
			mutate:    func(c *DetSigConfig) { c.ChunkSize = 0 },
			wantErr:   true,
			errSubstr: "chunkSize",
		},
		{
			name:      "unknown backend",
			mutate:    func(c *DetSigConfig) { c.KeyBackend = "hsm" },
			wantErr:   true,
			errSubstr: "keyBackend",
		},
		{
			name: "kms requires positive rate",
			mutate: func(c *DetSigConfig) {
				c.KeyBackend = KeyBackendAWSKMS
				c.KMSRequestsPerSecond = 0
			},
			wantErr:   true,
			errSubstr: "kmsRequestsPerSecond",
		},
		{
			name: "redis requires address",
			mutate: func(c *DetSigConfig) {
				c.Store = StoreTypeRedis
			},
			wantErr:   true,
			errSubstr: "redisAddress",
		},
		{
			name: "badger requires path",
			mutate: func(c *DetSigConfig) {
				c.Store = StoreTypeBadger
				c.BadgerPath = ""
			},
			wantErr:   true,
			errSubstr: "badgerPath",
		},
		{
			name:      "empty signature suffix",
			mutate:    func(c *DetSigConfig) { c.SignatureSuffix = "" },
			wantErr:   true,
			errSubstr: "signatureSuffix",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewDefaultConfig()
			tt.mutate(c)
			err := c.Validate()
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSubstr)
		})
	}
}

func Test_DetSigConfig_ValidateAggregatesErrors(t *testing.T) {
	c := NewDefaultConfig()
	c.ChunkSize = -1
	c.PublicKeyFileName = ""

	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunkSize")
	assert.Contains(t, err.Error(), "publicKeyFileName")
}

func Test_SupportedSchemes(t *testing.T) {
	for _, s := range GetSupportedSchemes() {
		assert.True(t, IsSupportedScheme(s))
		assert.Contains(t, GetSupportedSchemesString(), s.String())
	}
	assert.False(t, IsSupportedScheme("SHA1withDSA"))
	assert.True(t, IsRSAScheme(SchemeRSAPKCS1v15SHA256))
	assert.False(t, IsRSAScheme(SchemeEd25519phSHA512))
}
