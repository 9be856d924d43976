package collection

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_CanonicalListIsFixedPoint(t *testing.T) {
	in := []KVEntry{{Key: "A", Value: "1", Enabled: true}}
	out := Normalize(in)
	assert.Equal(t, in, out)
	assert.Equal(t, out, Normalize(out))
}

func TestNormalize_MapFormExpandsSorted(t *testing.T) {
	out := Normalize(map[string]interface{}{"B": "2", "A": "1"})
	require.Len(t, out, 2)
	assert.Equal(t, KVEntry{Key: "A", Value: "1", Enabled: true}, out[0])
	assert.Equal(t, KVEntry{Key: "B", Value: "2", Enabled: true}, out[1])
}

func TestNormalize_SingleEntryObject(t *testing.T) {
	out := Normalize(map[string]interface{}{"key": "Content-Type", "value": "application/json"})
	require.Len(t, out, 1)
	assert.Equal(t, "Content-Type", out[0].Key)
	assert.Equal(t, "application/json", out[0].Value)
	assert.True(t, out[0].Enabled)
}

func TestNormalize_DropsEmptyKeys(t *testing.T) {
	tests := []struct {
		name  string
		input interface{}
		want  int
	}{
		{
			name: "blank key in list",
			input: []interface{}{
				map[string]interface{}{"key": "  ", "value": "x"},
				map[string]interface{}{"key": "ok", "value": "y"},
			},
			want: 1,
		},
		{
			name:  "typed list with empty key",
			input: []KVEntry{{Key: "", Value: "x", Enabled: true}},
			want:  0,
		},
		{
			name:  "map form with blank key",
			input: map[string]interface{}{" ": "x"},
			want:  0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, Normalize(tt.input), tt.want)
		})
	}
}

func TestNormalize_TrimsKeys(t *testing.T) {
	out := Normalize([]interface{}{map[string]interface{}{"key": "  X-Trace  ", "value": "1"}})
	require.Len(t, out, 1)
	assert.Equal(t, "X-Trace", out[0].Key)
}

func TestNormalize_EnabledDefaultsTrue(t *testing.T) {
	out := Normalize([]interface{}{
		map[string]interface{}{"key": "a", "value": "1"},
		map[string]interface{}{"key": "b", "value": "2", "enabled": false},
	})
	require.Len(t, out, 2)
	assert.True(t, out[0].Enabled)
	assert.False(t, out[1].Enabled)
}

func TestNormalize_NilAndUnknownShapes(t *testing.T) {
	assert.Empty(t, Normalize(nil))
	assert.Empty(t, Normalize(42))
	assert.Empty(t, Normalize("headers"))
}

func TestKVEntry_UnmarshalEnabledDefault(t *testing.T) {
	var list []KVEntry
	require.NoError(t, json.Unmarshal([]byte(`[{"key":"a","value":"1"},{"key":"b","value":"2","enabled":false}]`), &list))
	require.Len(t, list, 2)
	assert.True(t, list[0].Enabled)
	assert.False(t, list[1].Enabled)
}

func TestStringify(t *testing.T) {
	tests := []struct {
		in   interface{}
		want string
	}{
		{nil, ""},
		{"s", "s"},
		{true, "true"},
		{float64(1), "1"},
		{float64(1.5), "1.5"},
		{42, "42"},
		{[]interface{}{float64(1), "a"}, `[1,"a"]`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Stringify(tt.in))
	}
}

func TestEntry_Stringifies(t *testing.T) {
	e, ok := Entry("n", float64(3), true)
	require.True(t, ok)
	assert.Equal(t, "3", e.Value)

	_, ok = Entry("   ", "x", true)
	assert.False(t, ok)
}
