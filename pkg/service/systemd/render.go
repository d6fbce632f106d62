// Package systemd installs a sidecar service descriptor as a systemd unit.
package systemd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/isometry/thanos-sidecar/pkg/sidecar"
)

const (
	// DefaultUnitDir is where units are installed unless configured otherwise.
	DefaultUnitDir = "/etc/systemd/system"
	// ServiceSuffix is the unit type suffix.
	ServiceSuffix = ".service"
)

// UnitName returns the unit file name for a service name.
func UnitName(service string) string {
	return service + ServiceSuffix
}

// Render produces the unit file for d. Sections are emitted in a fixed
// order and the file ends with a newline. Values containing line breaks
// are rejected since they would corrupt the unit.
func Render(d *sidecar.ServiceDescriptor) (string, error) {
	if strings.TrimSpace(d.BinPath) == "" {
		return "", errors.New("descriptor has no binary path")
	}

	args := append([]string{d.BinPath, d.Command}, d.Flags.Args()...)
	if err := checkNoNewlines("User", d.User); err != nil {
		return "", err
	}
	if err := checkNoNewlines("Group", d.Group); err != nil {
		return "", err
	}
	for i, arg := range args {
		if err := checkNoNewlines("ExecStart["+strconv.Itoa(i)+"]", arg); err != nil {
			return "", err
		}
	}
	for i, env := range d.EnvVars {
		if err := checkNoNewlines("Environment["+strconv.Itoa(i)+"]", env); err != nil {
			return "", err
		}
	}

	var sb strings.Builder

	sb.WriteString("[Unit]\n")
	fmt.Fprintf(&sb, "Description=Thanos %s (%s)\n", d.Command, d.Name)
	sb.WriteString("Documentation=https://thanos.io/tip/components/sidecar.md/\n")
	sb.WriteString("After=network-online.target\n")
	sb.WriteString("Wants=network-online.target\n")

	sb.WriteString("\n[Service]\n")
	sb.WriteString("Type=simple\n")
	if d.User != "" {
		fmt.Fprintf(&sb, "User=%s\n", d.User)
	}
	if d.Group != "" {
		fmt.Fprintf(&sb, "Group=%s\n", d.Group)
	}
	for _, env := range d.EnvVars {
		fmt.Fprintf(&sb, "Environment=%s\n", quoteEnv(env))
	}

	sb.WriteString("ExecStart=")
	for i, arg := range args {
		switch {
		case i == 0:
			sb.WriteString(quoteArg(arg))
		case i == 1:
			sb.WriteString(" " + quoteArg(arg))
		default:
			sb.WriteString(" \\\n  " + quoteArg(arg))
		}
	}
	sb.WriteString("\n")
	sb.WriteString("ExecReload=/bin/kill -HUP $MAINPID\n")

	if d.MaxOpenFiles != nil {
		fmt.Fprintf(&sb, "LimitNOFILE=%d\n", *d.MaxOpenFiles)
	}
	sb.WriteString("Restart=always\n")
	sb.WriteString("RestartSec=5\n")

	sb.WriteString("\n[Install]\n")
	sb.WriteString("WantedBy=multi-user.target\n")

	return sb.String(), nil
}

func checkNoNewlines(field, value string) error {
	if strings.ContainsAny(value, "\r\n") {
		return errors.Errorf("%s contains a line break", field)
	}
	return nil
}

// quoteArg escapes systemd specifiers and variable expansion, and
// double-quotes the argument when it holds whitespace, quotes or
// backslashes.
func quoteArg(arg string) string {
	return quote(strings.ReplaceAll(arg, "$", "$$"))
}

// quoteEnv is quoteArg for Environment= assignments, where "$" is literal.
func quoteEnv(assignment string) string {
	return quote(assignment)
}

func quote(s string) string {
	s = strings.ReplaceAll(s, "%", "%%")
	if s != "" && !strings.ContainsAny(s, " \t\"'\\;") {
		return s
	}
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
