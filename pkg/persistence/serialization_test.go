package persistence

import (
	"testing"

	"github.com/Layr-Labs/detsig-go/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord() *SignatureRecord {
	r := NewSignatureRecord(config.SchemeECDSAP256SHA256, "local-key-1", config.KeyBackendLocal)
	r.PublicKey = []byte{0x30, 0x59, 0x30, 0x13}
	r.Signature = []byte{0x30, 0x45, 0x02, 0x20}
	r.MessageName = "data.bin"
	r.MessageSize = 11
	r.MessageDigest = "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	return r
}

func TestMarshalUnmarshalSignatureRecord_RoundTrip(t *testing.T) {
	original := testRecord()

	data, err := MarshalSignatureRecord(original)
	require.NoError(t, err)
	require.NotEmpty(t, data)
	assert.Contains(t, string(data), `"scheme":"ecdsa-p256-sha256"`)

	restored, err := UnmarshalSignatureRecord(data)
	require.NoError(t, err)
	assert.Equal(t, original, restored)
}

func TestMarshalSignatureRecord_NilInput(t *testing.T) {
	_, err := MarshalSignatureRecord(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil SignatureRecord")
}

func TestUnmarshalSignatureRecord_InvalidInput(t *testing.T) {
	_, err := UnmarshalSignatureRecord(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty data")

	_, err = UnmarshalSignatureRecord([]byte(`{"messageSize": "eleven"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal")
}

func TestSignatureRecord_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *SignatureRecord)
		wantErr string
	}{
		{name: "valid", mutate: func(r *SignatureRecord) {}},
		{name: "missing id", mutate: func(r *SignatureRecord) { r.Id = "" }, wantErr: "id is required"},
		{name: "unknown scheme", mutate: func(r *SignatureRecord) { r.Scheme = "dsa-sha1" }, wantErr: "unsupported scheme"},
		{name: "missing public key", mutate: func(r *SignatureRecord) { r.PublicKey = nil }, wantErr: "no public key"},
		{name: "missing signature", mutate: func(r *SignatureRecord) { r.Signature = nil }, wantErr: "no signature"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := testRecord()
			tt.mutate(r)
			err := r.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	var nilRecord *SignatureRecord
	assert.Error(t, nilRecord.Validate())
}

func TestSignatureRecord_Clone(t *testing.T) {
	original := testRecord()
	clone := original.Clone()
	require.Equal(t, original, clone)

	clone.Signature[0] = 0xff
	clone.PublicKey[0] = 0xff
	assert.Equal(t, byte(0x30), original.Signature[0])
	assert.Equal(t, byte(0x30), original.PublicKey[0])

	var nilRecord *SignatureRecord
	assert.Nil(t, nilRecord.Clone())
}

func TestSortRecords(t *testing.T) {
	records := []*SignatureRecord{
		{Id: "c", CreatedAt: 20},
		{Id: "b", CreatedAt: 10},
		{Id: "a", CreatedAt: 10},
	}
	SortRecords(records)

	assert.Equal(t, "a", records[0].Id)
	assert.Equal(t, "b", records[1].Id)
	assert.Equal(t, "c", records[2].Id)
}
