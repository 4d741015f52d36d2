package db

import (
	"encoding/json"
	"errors"

	"torrens/internal/domain"
)

var errDBUnavailable = errors.New("db unavailable")

func marshalChanges(c *domain.ChangeSet) ([]byte, error) {
	if c == nil {
		return nil, nil
	}
	return json.Marshal(c)
}

func unmarshalChanges(raw []byte) (*domain.ChangeSet, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var out domain.ChangeSet
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func marshalMetadata(m map[string]any) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return json.Marshal(m)
}

func unmarshalMetadata(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
