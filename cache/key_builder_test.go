package cache

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// KeyScenario is a group of key cases sharing a prefix, loaded from testdata.
type KeyScenario struct {
	Name   string    `json:"name"`
	Prefix string    `json:"prefix"`
	Cases  []KeyCase `json:"cases"`
}

// KeyCase is one expected key. Kind selects the builder method.
type KeyCase struct {
	Kind        string         `json:"kind"`
	PK          any            `json:"pk"`
	Fields      map[string]any `json:"fields"`
	ExpectedKey string         `json:"expectedKey"`
}

type keyFixtures struct {
	Scenarios []KeyScenario `json:"scenarios"`
}

func joinWithSeparator(parts ...string) string {
	return strings.Join(parts, KeySeparator)
}

func TestDefaultKeyBuilder_FormatValue(t *testing.T) {
	kb := NewDefaultKeyBuilder()

	str := "hello"
	var nilStr *string
	var nilNull *sql.NullString
	ts := time.Date(2024, 3, 1, 12, 30, 0, 500, time.FixedZone("X", 3600))

	tests := []struct {
		name string
		in   any
		want string
	}{
		{name: "nil", in: nil, want: "nil"},
		{name: "string", in: "abc", want: "abc"},
		{name: "int", in: 42, want: "42"},
		{name: "negative int64", in: int64(-7), want: "-7"},
		{name: "uint8", in: uint8(9), want: "9"},
		{name: "bool", in: true, want: "true"},
		{name: "float", in: 3.14, want: "3.14"},
		{name: "bytes", in: []byte{0xde, 0xad}, want: "dead"},
		{name: "pointer", in: &str, want: "hello"},
		{name: "nil pointer", in: nilStr, want: "nil"},
		{name: "time in utc", in: ts, want: "2024-03-01T11:30:00.0000005Z"},
		{name: "valid null string", in: sql.NullString{String: "a@x", Valid: true}, want: "a@x"},
		{name: "null string", in: sql.NullString{}, want: "nil"},
		{name: "nil valuer pointer", in: nilNull, want: "nil"},
		{name: "null int64", in: sql.NullInt64{Int64: 5, Valid: true}, want: "5"},
		{name: "int slice", in: []int{1, 2, 3}, want: "[1,2,3]"},
		{name: "array", in: [2]string{"a", "b"}, want: "[a,b]"},
		{name: "nil slice", in: []int(nil), want: "nil"},
		{name: "map falls back to json", in: map[string]int{"b": 2, "a": 1}, want: `{"a":1,"b":2}`},
		{name: "struct falls back to json", in: struct{ A int }{A: 1}, want: `{"A":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := kb.FormatValue(tt.in); got != tt.want {
				t.Errorf("FormatValue(%#v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDefaultKeyBuilder_BuildQueryKey(t *testing.T) {
	kb := NewDefaultKeyBuilder()

	tests := []struct {
		name   string
		fields map[string]any
		want   string
	}{
		{name: "empty", fields: map[string]any{}, want: ""},
		{name: "nil", fields: nil, want: ""},
		{name: "single", fields: map[string]any{"email": "a@x"}, want: joinWithSeparator("email", "a@x")},
		{
			name:   "sorted by field name",
			fields: map[string]any{"zeta": 1, "alpha": "x", "mid": true},
			want:   joinWithSeparator("alpha", "x", "mid", "true", "zeta", "1"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := kb.BuildQueryKey(tt.fields); got != tt.want {
				t.Errorf("BuildQueryKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDefaultKeyBuilder_Deterministic(t *testing.T) {
	kb := NewDefaultKeyBuilder()
	fields := map[string]any{"a": 1, "b": 2, "c": 3, "d": 4, "e": 5}

	first := kb.IndexKey("p", fields)
	for i := 0; i < 50; i++ {
		if got := kb.IndexKey("p", fields); got != first {
			t.Fatalf("iteration %d: got %q, want %q", i, got, first)
		}
	}
}

func TestDefaultKeyBuilder_EmptyIndexKey(t *testing.T) {
	kb := NewDefaultKeyBuilder()
	got := kb.IndexKey("testapp.person", nil)
	if got != "testapp.person:" {
		t.Errorf("IndexKey(nil) = %q", got)
	}
	if got == kb.AllIDsKey("testapp.person") || got == kb.RecordKey("testapp.person", "") {
		t.Errorf("empty index key collides with another key shape: %q", got)
	}
}

func TestDefaultKeyBuilder_Scenarios(t *testing.T) {
	kb := NewDefaultKeyBuilder()
	fixtures := loadKeyFixtures(t)

	for _, scenario := range fixtures.Scenarios {
		t.Run(scenario.Name, func(t *testing.T) {
			for i, tc := range scenario.Cases {
				var got string
				switch tc.Kind {
				case "record":
					got = kb.RecordKey(scenario.Prefix, tc.PK)
				case "registry":
					got = kb.RegistryKey(scenario.Prefix, tc.PK)
				case "all":
					got = kb.AllIDsKey(scenario.Prefix)
				case "index":
					got = kb.IndexKey(scenario.Prefix, tc.Fields)
				default:
					t.Fatalf("case %d: unknown kind %q", i, tc.Kind)
				}
				if got != tc.ExpectedKey {
					t.Errorf("case %d (%s): got %q, want %q", i, tc.Kind, got, tc.ExpectedKey)
				}
			}
		})
	}
}

func loadKeyFixtures(t *testing.T) keyFixtures {
	t.Helper()

	filename := filepath.Join("testdata", "key_scenarios.json")
	data, err := os.ReadFile(filename)
	if err != nil {
		t.Fatalf("Failed to read fixture file: %v", err)
	}

	var fixtures keyFixtures
	if err := json.Unmarshal(data, &fixtures); err != nil {
		t.Fatalf("Failed to unmarshal fixture data: %v", err)
	}
	return fixtures
}

func BenchmarkDefaultKeyBuilder_IndexKey(b *testing.B) {
	kb := NewDefaultKeyBuilder()
	fields := map[string]any{"person_id": 12, "phone_number": "555-0100"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		kb.IndexKey("testapp.phonenumber", fields)
	}
}
