package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadFile reads a JSON dataset from path and validates it.
func LoadFile(path string) (*Memory, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset %s: %w", path, err)
	}
	var ds Dataset
	if err := json.Unmarshal(raw, &ds); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", ErrInvalidDataset, path, err)
	}
	return NewMemory(ds)
}

// WriteFile stores ds as indented JSON.
func WriteFile(path string, ds Dataset) error {
	raw, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return fmt.Errorf("encode dataset: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("write dataset %s: %w", path, err)
	}
	return nil
}
