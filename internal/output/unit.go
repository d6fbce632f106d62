package output

import (
	"errors"
	"strings"

	"github.com/isometry/thanos-sidecar/pkg/service/systemd"
)

func init() {
	RegisterFormatter("unit", &UnitFormatter{})
}

// UnitFormatter renders the descriptor as a systemd unit file.
type UnitFormatter struct{}

func (f *UnitFormatter) Format(r *Report, _ Config) ([]byte, error) {
	if r.Descriptor == nil {
		return nil, errors.New("unit output requires a service descriptor")
	}
	unit, err := systemd.Render(r.Descriptor)
	if err != nil {
		return nil, err
	}
	return []byte(strings.TrimRight(unit, "\n")), nil
}
