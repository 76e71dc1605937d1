package persistence

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/Layr-Labs/detsig-go/pkg/config"
	"github.com/google/uuid"
)

// SignatureRecord is the metadata of one detached signature: enough to verify
// the message again without the original public key and signature files.
type SignatureRecord struct {
	Id         string                 `json:"id"`
	Scheme     config.SignatureScheme `json:"scheme"`
	KeyId      string                 `json:"keyId"`
	KeyBackend config.KeyBackend      `json:"keyBackend"`

	// PublicKey is the DER SubjectPublicKeyInfo of the signing key.
	PublicKey []byte `json:"publicKey"`
	Signature []byte `json:"signature"`

	// MessageName is the base name of the signed file, or the caller supplied name.
	MessageName string `json:"messageName"`
	MessageSize int64  `json:"messageSize"`
	// MessageDigest is the hex encoded digest that was signed.
	MessageDigest string `json:"messageDigest"`

	// CreatedAt is a Unix timestamp.
	CreatedAt int64 `json:"createdAt"`
}

// NewRecordId returns a fresh random record identifier.
func NewRecordId() string {
	return uuid.New().String()
}

// NewSignatureRecord returns a record stamped with a new Id and the current time.
func NewSignatureRecord(scheme config.SignatureScheme, keyId string, backend config.KeyBackend) *SignatureRecord {
	return &SignatureRecord{
		Id:         NewRecordId(),
		Scheme:     scheme,
		KeyId:      keyId,
		KeyBackend: backend,
		CreatedAt:  time.Now().Unix(),
	}
}

// Validate checks the fields every backend relies on.
func (r *SignatureRecord) Validate() error {
	if r == nil {
		return fmt.Errorf("record is nil")
	}
	if r.Id == "" {
		return fmt.Errorf("record id is required")
	}
	if !config.IsSupportedScheme(r.Scheme) {
		return fmt.Errorf("record %s has unsupported scheme %q", r.Id, r.Scheme)
	}
	if len(r.PublicKey) == 0 {
		return fmt.Errorf("record %s has no public key", r.Id)
	}
	if len(r.Signature) == 0 {
		return fmt.Errorf("record %s has no signature", r.Id)
	}
	return nil
}

// Clone returns a deep copy of the record.
func (r *SignatureRecord) Clone() *SignatureRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.PublicKey = bytes.Clone(r.PublicKey)
	c.Signature = bytes.Clone(r.Signature)
	return &c
}

// SortRecords orders records by CreatedAt, then Id.
func SortRecords(records []*SignatureRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt != records[j].CreatedAt {
			return records[i].CreatedAt < records[j].CreatedAt
		}
		return records[i].Id < records[j].Id
	})
}
