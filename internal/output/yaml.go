package output

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/fatih/color"
	"go.yaml.in/yaml/v3"
)

func init() {
	RegisterFormatter("yaml", &YAMLFormatter{})
}

// YAMLFormatter formats reports as YAML.
type YAMLFormatter struct{}

func (f *YAMLFormatter) Format(r *Report, cfg Config) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}

	out := bytes.TrimRight(buf.Bytes(), "\n")
	if cfg.Colorize {
		return []byte(newYAMLColorizer().colorize(string(out))), nil
	}
	return out, nil
}

var yamlKeyLine = regexp.MustCompile(`^(\s*(?:- )?)([A-Za-z0-9_.\-]+):( (.*))?$`)

// yamlColorizer decorates rendered YAML line by line: keys in cyan, pass
// and readiness states in green or red.
type yamlColorizer struct {
	key, ok, bad, skipped func(a ...any) string
}

func newYAMLColorizer() *yamlColorizer {
	enabled := func(attrs ...color.Attribute) func(a ...any) string {
		c := color.New(attrs...)
		c.EnableColor()
		return c.SprintFunc()
	}
	return &yamlColorizer{
		key:     enabled(color.FgCyan),
		ok:      enabled(color.FgGreen),
		bad:     enabled(color.FgRed),
		skipped: enabled(color.FgYellow),
	}
}

func (c *yamlColorizer) colorize(doc string) string {
	lines := strings.Split(doc, "\n")
	for i, line := range lines {
		m := yamlKeyLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		indent, key, value := m[1], m[2], m[4]
		if m[3] == "" {
			lines[i] = indent + c.key(key) + ":"
			continue
		}
		lines[i] = indent + c.key(key) + ": " + c.value(key, value)
	}
	return strings.Join(lines, "\n")
}

func (c *yamlColorizer) value(key, value string) string {
	switch key {
	case "passed", "ready":
		if value == "true" {
			return c.ok(value)
		}
		return c.bad(value)
	case "skipped":
		return c.skipped(value)
	}
	return value
}
