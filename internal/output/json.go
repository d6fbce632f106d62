package output

import "encoding/json"

func init() {
	RegisterFormatter("json", &JSONFormatter{})
}

// JSONFormatter formats reports as JSON.
type JSONFormatter struct{}

func (f *JSONFormatter) Format(r *Report, cfg Config) ([]byte, error) {
	if cfg.Compact {
		return json.Marshal(r)
	}
	return json.MarshalIndent(r, "", "  ")
}
