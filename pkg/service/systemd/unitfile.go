package systemd

import (
	"bytes"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

const (
	// UnitMode is the mode of an installed unit.
	UnitMode fs.FileMode = 0o644
	// PrivateUnitMode is the mode of a unit that carries environment values,
	// which may hold resolved secrets.
	PrivateUnitMode fs.FileMode = 0o600
)

var validUnitName = regexp.MustCompile(`^[a-zA-Z0-9_\-@.]+\.service$`)

// ValidateName checks that name is a bare service unit file name.
func ValidateName(name string) error {
	switch {
	case name == "":
		return errors.New("unit name is empty")
	case !strings.HasSuffix(name, ServiceSuffix):
		return errors.Errorf("unit name %q must end with %s", name, ServiceSuffix)
	case strings.ContainsAny(name, `/\`), strings.Contains(name, ".."), filepath.Base(name) != name:
		return errors.Errorf("unit name %q must be a plain file name", name)
	case strings.TrimSuffix(name, ServiceSuffix) == "":
		return errors.Errorf("unit name %q has no service name", name)
	case !validUnitName.MatchString(name):
		return errors.Errorf("unit name %q may only contain letters, digits and -_@.", name)
	}
	return nil
}

// UnitFiles manages unit files in a single directory.
type UnitFiles struct {
	dir string
}

func NewUnitFiles(dir string) *UnitFiles {
	if dir == "" {
		dir = DefaultUnitDir
	}
	return &UnitFiles{dir: dir}
}

// Dir returns the unit directory.
func (u *UnitFiles) Dir() string {
	return u.dir
}

// Path returns the full path of the named unit.
func (u *UnitFiles) Path(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return filepath.Join(u.dir, name), nil
}

// Read returns the unit content and whether it exists.
func (u *UnitFiles) Read(name string) (string, bool, error) {
	path, err := u.Path(name)
	if err != nil {
		return "", false, err
	}
	content, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "failed to read %s", path)
	}
	return string(content), true, nil
}

// Write atomically replaces the unit with content and mode, and reports
// whether the content changed. Identical content is left in place with only
// its mode corrected.
func (u *UnitFiles) Write(name, content string, mode fs.FileMode) (bool, error) {
	path, err := u.Path(name)
	if err != nil {
		return false, err
	}
	if current, err := os.ReadFile(path); err == nil && bytes.Equal(current, []byte(content)) {
		return false, ensureMode(path, mode)
	}
	if err := os.MkdirAll(u.dir, 0o755); err != nil {
		return false, errors.Wrapf(err, "failed to create %s", u.dir)
	}
	if err := atomicWrite(path, content, mode); err != nil {
		return false, err
	}
	return true, nil
}

// Remove deletes the unit and reports whether it existed.
func (u *UnitFiles) Remove(name string) (bool, error) {
	path, err := u.Path(name)
	if err != nil {
		return false, err
	}
	err = os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "failed to remove %s", path)
	}
	return true, nil
}

func ensureMode(path string, mode fs.FileMode) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.Wrapf(err, "failed to stat %s", path)
	}
	if info.Mode().Perm() == mode.Perm() {
		return nil
	}
	return errors.Wrapf(os.Chmod(path, mode.Perm()), "failed to set mode of %s", path)
}

// atomicWrite sets mode on the temporary file before the rename, so the unit
// is never visible with a wider mode.
func atomicWrite(path, content string, mode fs.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".unit-*.tmp")
	if err != nil {
		return errors.Wrap(err, "failed to create temporary unit file")
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to write temporary unit file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to sync temporary unit file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to close temporary unit file")
	}
	if err := os.Chmod(tmpPath, mode.Perm()); err != nil {
		return errors.Wrap(err, "failed to set unit file mode")
	}
	return errors.Wrapf(os.Rename(tmpPath, path), "failed to install %s", path)
}
