package roomcache

import (
	"encoding/json"
	"testing"
)

func TestApplyPatch(t *testing.T) {
	payload := json.RawMessage(`{"title":"retro","columns":[{"name":"good","cards":["a"]},{"name":"bad","cards":[]}]}`)

	tests := []struct {
		name    string
		path    []any
		value   string
		want    string
		wantErr bool
	}{
		{
			name:  "set object key",
			path:  []any{"title"},
			value: `"sprint review"`,
			want:  `{"columns":[{"cards":["a"],"name":"good"},{"cards":[],"name":"bad"}],"title":"sprint review"}`,
		},
		{
			name:  "create new object key",
			path:  []any{"theme"},
			value: `"dark"`,
			want:  `{"columns":[{"cards":["a"],"name":"good"},{"cards":[],"name":"bad"}],"theme":"dark","title":"retro"}`,
		},
		{
			name:  "set nested array element",
			path:  []any{"columns", float64(0), "cards", float64(0)},
			value: `"b"`,
			want:  `{"columns":[{"cards":["b"],"name":"good"},{"cards":[],"name":"bad"}],"title":"retro"}`,
		},
		{
			name:  "replace whole document",
			path:  nil,
			value: `{"fresh":true}`,
			want:  `{"fresh":true}`,
		},
		{
			name:    "missing intermediate",
			path:    []any{"layout", "grid"},
			value:   `4`,
			wantErr: true,
		},
		{
			name:    "array index out of range",
			path:    []any{"columns", float64(5), "name"},
			value:   `"x"`,
			wantErr: true,
		},
		{
			name:    "descend into scalar",
			path:    []any{"title", "sub"},
			value:   `1`,
			wantErr: true,
		},
		{
			name:    "string key on array",
			path:    []any{"columns", "first"},
			value:   `1`,
			wantErr: true,
		},
		{
			name:    "fractional array index",
			path:    []any{"columns", 0.5},
			value:   `1`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := applyPatch(payload, Patch{Path: tt.path, Value: json.RawMessage(tt.value)})
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Expected error, got %s", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("applyPatch failed: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestApplyPatch_DoesNotMutateInput(t *testing.T) {
	payload := json.RawMessage(`{"a":1}`)
	if _, err := applyPatch(payload, Patch{Path: []any{"a"}, Value: json.RawMessage(`2`)}); err != nil {
		t.Fatalf("applyPatch failed: %v", err)
	}
	if string(payload) != `{"a":1}` {
		t.Errorf("Input payload mutated: %s", payload)
	}
}
