package storage

import (
	"encoding/json"
	"fmt"
)

// MarshalBatchMeta serializes a BatchMeta to JSON bytes.
func MarshalBatchMeta(meta *BatchMeta) ([]byte, error) {
	if meta == nil {
		return nil, fmt.Errorf("cannot marshal nil BatchMeta")
	}

	data, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal BatchMeta to JSON: %w", err)
	}

	return data, nil
}

// UnmarshalBatchMeta deserializes a BatchMeta from JSON bytes.
func UnmarshalBatchMeta(data []byte) (*BatchMeta, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var meta BatchMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to BatchMeta: %w", err)
	}

	return &meta, nil
}
