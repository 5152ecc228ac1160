package playlog

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// StorageRegion partitions the key/value space by usage.
type StorageRegion int

const (
	StorageRegionSlots  StorageRegion = 1
	StorageRegionScores StorageRegion = 2
	StorageRegionCounts StorageRegion = 3
	StorageRegionValues StorageRegion = 4
)

// StorageKey addresses one persisted value. Region and RegionKey are the
// two-part address; GameID and UserID scope it further.
type StorageKey struct {
	Region    StorageRegion `json:"region" msgpack:"region"`
	RegionKey string        `json:"region_key" msgpack:"region_key"`
	GameID    string        `json:"game_id,omitempty" msgpack:"game_id,omitempty"`
	UserID    string        `json:"user_id,omitempty" msgpack:"user_id,omitempty"`
}

// Normalize returns the key with RegionKey in Unicode NFC, so that keys that
// render identically address the same slot.
func (k StorageKey) Normalize() StorageKey {
	k.RegionKey = norm.NFC.String(k.RegionKey)
	return k
}

// String renders the key for logs and map indexes.
func (k StorageKey) String() string {
	return fmt.Sprintf("%d/%s/%s/%s", k.Region, k.RegionKey, k.GameID, k.UserID)
}

// StorageReadKey is a StorageKey used for reads. An empty UserID matches the
// values of every user under the same region, region key and game.
type StorageReadKey struct {
	StorageKey `msgpack:",inline"`
	Option     string `json:"option,omitempty" msgpack:"option,omitempty"`
}

// Matches reports whether a stored key is selected by the read key.
// Both keys are expected to be normalized.
func (rk StorageReadKey) Matches(k StorageKey) bool {
	if rk.Region != k.Region || rk.RegionKey != k.RegionKey || rk.GameID != k.GameID {
		return false
	}
	return rk.UserID == "" || rk.UserID == k.UserID
}

// StorageValue is one stored datum. Data is either a number (float64) or a
// string; Normalize converts other numeric Go types.
type StorageValue struct {
	Data any    `json:"data" msgpack:"data"`
	Tag  string `json:"tag,omitempty" msgpack:"tag,omitempty"`
}

// Normalize converts integer and float32 data to float64 and rejects data of
// any type other than number or string.
func (v StorageValue) Normalize() (StorageValue, error) {
	switch d := v.Data.(type) {
	case string, float64:
		return v, nil
	case float32:
		v.Data = float64(d)
	case int:
		v.Data = float64(d)
	case int8:
		v.Data = float64(d)
	case int16:
		v.Data = float64(d)
	case int32:
		v.Data = float64(d)
	case int64:
		v.Data = float64(d)
	case uint:
		v.Data = float64(d)
	case uint8:
		v.Data = float64(d)
	case uint16:
		v.Data = float64(d)
	case uint32:
		v.Data = float64(d)
	case uint64:
		v.Data = float64(d)
	default:
		return StorageValue{}, fmt.Errorf("storage value: unsupported data type %T", v.Data)
	}
	return v, nil
}

// Compare orders two normalized values: numbers numerically, strings
// lexically. Comparing a number with a string is an error.
func (v StorageValue) Compare(other StorageValue) (int, error) {
	switch a := v.Data.(type) {
	case float64:
		b, ok := other.Data.(float64)
		if !ok {
			return 0, fmt.Errorf("storage value: cannot compare number with %T", other.Data)
		}
		switch {
		case a < b:
			return -1, nil
		case a > b:
			return 1, nil
		}
		return 0, nil
	case string:
		b, ok := other.Data.(string)
		if !ok {
			return 0, fmt.Errorf("storage value: cannot compare string with %T", other.Data)
		}
		return strings.Compare(a, b), nil
	}
	return 0, fmt.Errorf("storage value: unsupported data type %T", v.Data)
}

// StorageData is the read result for one StorageReadKey.
type StorageData struct {
	ReadKey StorageReadKey `json:"read_key" msgpack:"read_key"`
	Values  []StorageValue `json:"values" msgpack:"values"`
}
