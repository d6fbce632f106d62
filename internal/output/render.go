package output

import (
	"fmt"
	"io"
	"strings"
)

// Print formats r with the configured formatter and writes it to w.
func Print(w io.Writer, r *Report, cfg Config) error {
	formatter, ok := GetFormatter(cfg.Format)
	if !ok {
		return fmt.Errorf("unknown output format %q (available: %s)", cfg.Format, strings.Join(FormatNames(), ", "))
	}

	out, err := formatter.Format(r, cfg)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(w, string(out))
	return err
}
