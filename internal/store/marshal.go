package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/roach88/amflow/internal/playlog"
)

// marshalStorageData encodes a tick's storage data attachment as MessagePack.
// Returns nil for an empty attachment so the column stays NULL.
func marshalStorageData(data []playlog.StorageData) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	raw, err := msgpack.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal storage data: %w", err)
	}
	return raw, nil
}

// unmarshalStorageData parses a storage data attachment. Values come back
// normalized so numbers are float64 regardless of their wire width.
func unmarshalStorageData(raw []byte) ([]playlog.StorageData, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var data []playlog.StorageData
	if err := msgpack.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("unmarshal storage data: %w", err)
	}
	for i := range data {
		for j, v := range data[i].Values {
			nv, err := v.Normalize()
			if err != nil {
				return nil, fmt.Errorf("unmarshal storage data: %w", err)
			}
			data[i].Values[j] = nv
		}
	}
	return data, nil
}

// marshalValue converts a normalized storage datum to JSON TEXT.
// HTML escaping is disabled so stored strings read back byte-identical.
func marshalValue(data any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(data); err != nil {
		return "", fmt.Errorf("marshal value: %w", err)
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

// unmarshalValue parses JSON TEXT into a storage datum (float64 or string).
func unmarshalValue(text string) (any, error) {
	var data any
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return nil, fmt.Errorf("unmarshal value: %w", err)
	}
	switch data.(type) {
	case float64, string:
		return data, nil
	}
	return nil, fmt.Errorf("unmarshal value: unexpected %T", data)
}

// marshalStartPointData returns the TEXT stored for start point data.
// Absent data is stored as JSON null.
func marshalStartPointData(data json.RawMessage) (string, error) {
	if len(data) == 0 {
		return "null", nil
	}
	if !json.Valid(data) {
		return "", fmt.Errorf("marshal start point data: invalid JSON")
	}
	return string(data), nil
}

// unmarshalStartPointData reverses marshalStartPointData.
func unmarshalStartPointData(text string) json.RawMessage {
	if text == "" || text == "null" {
		return nil
	}
	return json.RawMessage(text)
}
