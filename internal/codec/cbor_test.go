package codec

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

type record struct {
	Name  string            `json:"name"`
	At    time.Time         `json:"at"`
	Tags  map[string]int    `json:"tags"`
	Extra map[string]string `json:"extra,omitempty"`
}

func TestMarshalIsDeterministic(t *testing.T) {
	t.Parallel()
	at := time.Date(2026, time.March, 2, 10, 0, 0, 123, time.UTC)
	tags := map[string]int{}
	for _, k := range []string{"zeta", "alpha", "mid", "beta", "omega"} {
		tags[k] = len(k)
	}
	first, err := Marshal(record{Name: "a", At: at, Tags: tags})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for i := 0; i < 20; i++ {
		again, err := Marshal(record{Name: "a", At: at, Tags: tags})
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("encoding differs on attempt %d", i)
		}
	}

	var got record
	if err := Unmarshal(first, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !got.At.Equal(at) || got.Tags["omega"] != 5 {
		t.Fatalf("decoded = %+v", got)
	}
}

func TestUntypedMapsDecodeWithStringKeys(t *testing.T) {
	t.Parallel()
	data, err := Marshal(map[string]any{"kind": "offer", "n": 1})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var v any
	if err := Unmarshal(data, &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	m, ok := v.(map[string]any)
	if !ok {
		t.Fatalf("decoded %T, want map[string]any", v)
	}
	if m["kind"] != "offer" {
		t.Fatalf("kind = %v", m["kind"])
	}
	diag, err := Diagnose(data)
	if err != nil {
		t.Fatalf("diagnose: %v", err)
	}
	if !strings.Contains(diag, `"kind"`) {
		t.Fatalf("diagnostic %q misses the key", diag)
	}
}
