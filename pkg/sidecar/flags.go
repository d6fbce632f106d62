package sidecar

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"

	"go.yaml.in/yaml/v3"
)

// Flag is a single command-line flag of the sidecar binary.
type Flag struct {
	Name  string `json:"name" yaml:"name"`
	Value any    `json:"value" yaml:"value"`
}

// FlagMap is an insertion-ordered mapping from flag name to value.
// The zero value is ready to use.
type FlagMap struct {
	entries []Flag
	index   map[string]int
}

// Set stores value under name. Replacing an existing flag keeps its position.
func (m *FlagMap) Set(name string, value any) {
	if m.index == nil {
		m.index = make(map[string]int)
	}
	if i, ok := m.index[name]; ok {
		m.entries[i].Value = value
		return
	}
	m.index[name] = len(m.entries)
	m.entries = append(m.entries, Flag{Name: name, Value: value})
}

// Delete removes name, preserving the order of the remaining flags.
func (m *FlagMap) Delete(name string) {
	i, ok := m.index[name]
	if !ok {
		return
	}
	m.entries = slices.Delete(m.entries, i, i+1)
	delete(m.index, name)
	for j := i; j < len(m.entries); j++ {
		m.index[m.entries[j].Name] = j
	}
}

func (m *FlagMap) Get(name string) (any, bool) {
	i, ok := m.index[name]
	if !ok {
		return nil, false
	}
	return m.entries[i].Value, true
}

func (m *FlagMap) Has(name string) bool {
	_, ok := m.index[name]
	return ok
}

func (m *FlagMap) Len() int {
	return len(m.entries)
}

// Names returns the flag names in order.
func (m *FlagMap) Names() []string {
	names := make([]string, len(m.entries))
	for i, e := range m.entries {
		names[i] = e.Name
	}
	return names
}

// Entries returns a copy of the ordered flags.
func (m *FlagMap) Entries() []Flag {
	return slices.Clone(m.entries)
}

// Args renders the flags in the command-line form understood by the sidecar:
// booleans as --name / --no-name, lists as one --name=value per element.
func (m *FlagMap) Args() []string {
	args := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		args = append(args, renderFlag(e.Name, e.Value)...)
	}
	return args
}

func renderFlag(name string, value any) []string {
	switch v := value.(type) {
	case bool:
		if v {
			return []string{"--" + name}
		}
		return []string{"--no-" + name}
	case []string:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, "--"+name+"="+item)
		}
		return out
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, "--"+name+"="+stringify(item))
		}
		return out
	default:
		return []string{"--" + name + "=" + stringify(v)}
	}
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

func (m *FlagMap) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.entries)
}

func (m *FlagMap) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, e := range m.entries {
		value := &yaml.Node{}
		if err := value.Encode(e.Value); err != nil {
			return nil, err
		}
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: e.Name}, value)
	}
	return node, nil
}
