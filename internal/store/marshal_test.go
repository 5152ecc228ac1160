package store

import (
	"encoding/json"
	"testing"

	"github.com/roach88/amflow/internal/playlog"
)

func TestMarshalValue_NoHTMLEscaping(t *testing.T) {
	text, err := marshalValue("<a&b>")
	if err != nil {
		t.Fatalf("marshalValue() failed: %v", err)
	}
	if text != `"<a&b>"` {
		t.Errorf("text = %s, want unescaped", text)
	}

	got, err := unmarshalValue(text)
	if err != nil {
		t.Fatalf("unmarshalValue() failed: %v", err)
	}
	if got != "<a&b>" {
		t.Errorf("got %v", got)
	}
}

func TestMarshalValue_Number(t *testing.T) {
	text, err := marshalValue(12.5)
	if err != nil {
		t.Fatalf("marshalValue() failed: %v", err)
	}
	got, err := unmarshalValue(text)
	if err != nil {
		t.Fatalf("unmarshalValue() failed: %v", err)
	}
	if got != 12.5 {
		t.Errorf("got %v, want 12.5", got)
	}
}

func TestUnmarshalValue_RejectsNonScalar(t *testing.T) {
	for _, text := range []string{`{"a":1}`, `[1]`, `null`, `true`} {
		if _, err := unmarshalValue(text); err == nil {
			t.Errorf("unmarshalValue(%s) should fail", text)
		}
	}
}

func TestMarshalStorageData_EmptyIsNull(t *testing.T) {
	raw, err := marshalStorageData(nil)
	if err != nil {
		t.Fatalf("marshalStorageData() failed: %v", err)
	}
	if raw != nil {
		t.Errorf("raw = %v, want nil", raw)
	}

	data, err := unmarshalStorageData(nil)
	if err != nil || data != nil {
		t.Errorf("unmarshalStorageData(nil) = %v, %v", data, err)
	}
}

func TestMarshalStorageData_NormalizesNumbers(t *testing.T) {
	in := []playlog.StorageData{{
		ReadKey: playlog.StorageReadKey{StorageKey: playlog.StorageKey{Region: playlog.StorageRegionSlots, RegionKey: "s"}},
		Values:  []playlog.StorageValue{{Data: int64(7)}, {Data: "seven"}},
	}}
	raw, err := marshalStorageData(in)
	if err != nil {
		t.Fatalf("marshalStorageData() failed: %v", err)
	}
	out, err := unmarshalStorageData(raw)
	if err != nil {
		t.Fatalf("unmarshalStorageData() failed: %v", err)
	}
	if out[0].Values[0].Data != 7.0 || out[0].Values[1].Data != "seven" {
		t.Errorf("values = %+v", out[0].Values)
	}
	if out[0].ReadKey.RegionKey != "s" {
		t.Errorf("read key = %+v", out[0].ReadKey)
	}
}

func TestStartPointData(t *testing.T) {
	text, err := marshalStartPointData(nil)
	if err != nil || text != "null" {
		t.Errorf("marshalStartPointData(nil) = %q, %v", text, err)
	}
	if unmarshalStartPointData("null") != nil {
		t.Error("null should read back as nil")
	}

	text, err = marshalStartPointData(json.RawMessage(`{"a":[1,2]}`))
	if err != nil {
		t.Fatalf("marshalStartPointData() failed: %v", err)
	}
	if string(unmarshalStartPointData(text)) != `{"a":[1,2]}` {
		t.Errorf("round trip = %s", text)
	}
}
