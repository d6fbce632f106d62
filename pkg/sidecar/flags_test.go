package sidecar

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"
)

func TestFlagMapOrder(t *testing.T) {
	m := &FlagMap{}
	m.Set("b", "1")
	m.Set("a", "2")
	m.Set("c", "3")
	m.Set("b", "4")

	assert.Equal(t, []string{"b", "a", "c"}, m.Names())
	value, ok := m.Get("b")
	assert.True(t, ok)
	assert.Equal(t, "4", value)

	m.Delete("a")
	assert.Equal(t, []string{"b", "c"}, m.Names())
	value, ok = m.Get("c")
	assert.True(t, ok)
	assert.Equal(t, "3", value)

	m.Delete("missing")
	assert.Equal(t, 2, m.Len())
}

func TestFlagMapZeroValue(t *testing.T) {
	var m FlagMap
	assert.False(t, m.Has("x"))
	m.Delete("x")
	assert.Empty(t, m.Args())
}

func TestFlagMapArgs(t *testing.T) {
	tests := []struct {
		name     string
		value    any
		expected []string
	}{
		{name: "string", value: "0.0.0.0:10902", expected: []string{"--flag=0.0.0.0:10902"}},
		{name: "true", value: true, expected: []string{"--flag"}},
		{name: "false", value: false, expected: []string{"--no-flag"}},
		{name: "int", value: 3, expected: []string{"--flag=3"}},
		{name: "float", value: 1.5, expected: []string{"--flag=1.5"}},
		{name: "string list", value: []string{"/a", "/b"}, expected: []string{"--flag=/a", "--flag=/b"}},
		{name: "any list", value: []any{"x", 2}, expected: []string{"--flag=x", "--flag=2"}},
		{name: "empty list", value: []string{}, expected: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &FlagMap{}
			m.Set("flag", tt.value)
			assert.Equal(t, tt.expected, m.Args())
		})
	}
}

func TestFlagMapEncoding(t *testing.T) {
	m := &FlagMap{}
	m.Set("log.level", "info")
	m.Set("reloader.rule-dir", []string{"/a"})
	m.Set("shipper.upload-compacted", false)

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"name": "log.level", "value": "info"},
		{"name": "reloader.rule-dir", "value": ["/a"]},
		{"name": "shipper.upload-compacted", "value": false}
	]`, string(data))

	out, err := yaml.Marshal(m)
	require.NoError(t, err)
	assert.Equal(t, "log.level: info\nreloader.rule-dir:\n    - /a\nshipper.upload-compacted: false\n", string(out))
}
