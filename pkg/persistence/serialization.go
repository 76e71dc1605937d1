package persistence

import (
	"encoding/json"
	"fmt"
)

// MarshalSignatureRecord serializes a SignatureRecord to JSON bytes.
// Byte slices are base64 encoded by encoding/json.
func MarshalSignatureRecord(record *SignatureRecord) ([]byte, error) {
	if record == nil {
		return nil, fmt.Errorf("cannot marshal nil SignatureRecord")
	}

	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal SignatureRecord to JSON: %w", err)
	}
	return data, nil
}

// UnmarshalSignatureRecord deserializes a SignatureRecord from JSON bytes.
func UnmarshalSignatureRecord(data []byte) (*SignatureRecord, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var record SignatureRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to SignatureRecord: %w", err)
	}
	return &record, nil
}
