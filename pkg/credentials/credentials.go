// Package credentials resolves secret-backed sidecar parameters from external
// stores and exposes them to the service as environment variables or files.
package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	"github.com/isometry/thanos-sidecar/pkg/utils"
)

// Exposure targets.
const (
	ExposeEnv  = "env"
	ExposeFile = "file"
)

// Params is the raw configuration of one source.
type Params = map[string]any

// Entry maps a source type (e.g. "vault") to its params. One configuration
// list item may name several sources.
type Entry = map[string]Params

// KeyEntry selects one value from a source and says where it goes.
type KeyEntry struct {
	Path    string        `mapstructure:"path"`
	Key     string        `mapstructure:"key"`
	Target  string        `mapstructure:"target"`
	Expose  string        `mapstructure:"expose" default:"env"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Destination is the env var name or file path the value is exposed as.
func (k KeyEntry) Destination() string {
	return strings.TrimSpace(utils.CoalesceZero(k.Target, k.Key, k.Path))
}

func (k *KeyEntry) validate() error {
	defaults.SetDefaults(k)
	if k.Path == "" {
		return errors.New("key entry requires a path")
	}
	switch k.Expose {
	case ExposeEnv:
	case ExposeFile:
		if k.Target == "" {
			return errors.Errorf("%s: file exposure requires a target path", k.Path)
		}
	default:
		return errors.Errorf("%s: unsupported expose %q (allowed: %s, %s)", k.Path, k.Expose, ExposeEnv, ExposeFile)
	}
	return nil
}

// collectKeys returns the primary entry (when it names a path) followed by
// the explicit list, validated and defaulted.
func collectKeys(primary KeyEntry, keys []KeyEntry) ([]KeyEntry, error) {
	all := make([]KeyEntry, 0, len(keys)+1)
	if primary.Path != "" {
		all = append(all, primary)
	}
	all = append(all, keys...)
	if len(all) == 0 {
		return nil, errors.New("no keys configured")
	}
	for i := range all {
		if err := all[i].validate(); err != nil {
			return nil, err
		}
	}
	return all, nil
}

// Secret is one fetched value together with the entry that selected it.
type Secret struct {
	Entry KeyEntry
	Value string
}

// Source fetches every configured key from one backend.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]Secret, error)
}

// SourceError reports the failing source and its position in the
// credentials list.
type SourceError struct {
	Index  int
	Source string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("credentials[%d] %s: %v", e.Index, e.Source, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

func decodeParams(params Params, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(params); err != nil {
		return errors.Wrap(err, "invalid source parameters")
	}
	defaults.SetDefaults(out)
	return nil
}

// secretString flattens a fetched value. Structured values become JSON.
func secretString(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", errors.New("secret has no value")
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case map[string]any, []any:
		data, err := json.Marshal(v)
		if err != nil {
			return "", errors.Wrap(err, "failed to encode secret")
		}
		return string(data), nil
	default:
		return fmt.Sprint(v), nil
	}
}
