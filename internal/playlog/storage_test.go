package playlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorageKey_NormalizeNFC(t *testing.T) {
	// "é" as e + combining acute accent vs precomposed U+00E9.
	decomposed := StorageKey{Region: StorageRegionValues, RegionKey: "cafe\u0301"}
	precomposed := StorageKey{Region: StorageRegionValues, RegionKey: "caf\u00e9"}

	assert.NotEqual(t, decomposed, precomposed)
	assert.Equal(t, precomposed.Normalize(), decomposed.Normalize())
}

func TestStorageReadKey_Matches(t *testing.T) {
	stored := StorageKey{Region: StorageRegionScores, RegionKey: "hi", GameID: "g", UserID: "u1"}

	tests := []struct {
		name string
		read StorageReadKey
		want bool
	}{
		{"exact", StorageReadKey{StorageKey: stored}, true},
		{"any user", StorageReadKey{StorageKey: StorageKey{Region: StorageRegionScores, RegionKey: "hi", GameID: "g"}}, true},
		{"other user", StorageReadKey{StorageKey: StorageKey{Region: StorageRegionScores, RegionKey: "hi", GameID: "g", UserID: "u2"}}, false},
		{"other region", StorageReadKey{StorageKey: StorageKey{Region: StorageRegionSlots, RegionKey: "hi", GameID: "g"}}, false},
		{"other game", StorageReadKey{StorageKey: StorageKey{Region: StorageRegionScores, RegionKey: "hi"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.read.Matches(stored))
		})
	}
}

func TestStorageValue_Normalize(t *testing.T) {
	v, err := StorageValue{Data: 3}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, float64(3), v.Data)

	v, err = StorageValue{Data: int64(-2), Tag: "t"}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, float64(-2), v.Data)
	assert.Equal(t, "t", v.Tag)

	v, err = StorageValue{Data: "text"}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, "text", v.Data)

	_, err = StorageValue{Data: []int{1}}.Normalize()
	assert.Error(t, err)
}

func TestStorageValue_Compare(t *testing.T) {
	cmp, err := StorageValue{Data: 1.0}.Compare(StorageValue{Data: 2.0})
	require.NoError(t, err)
	assert.Equal(t, -1, cmp)

	cmp, err = StorageValue{Data: "b"}.Compare(StorageValue{Data: "a"})
	require.NoError(t, err)
	assert.Equal(t, 1, cmp)

	cmp, err = StorageValue{Data: 5.0}.Compare(StorageValue{Data: 5.0})
	require.NoError(t, err)
	assert.Equal(t, 0, cmp)

	_, err = StorageValue{Data: 1.0}.Compare(StorageValue{Data: "1"})
	assert.Error(t, err)
}
