package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/isometry/thanos-sidecar/pkg/runctx"
)

const includesKey = "includes"

// includeEntry records one file on the include chain. The content hash is
// what detects loops, so the same file reached through different relative
// paths is still caught.
type includeEntry struct {
	Path string
	Hash string
}

type includeChain []includeEntry

func contentHash(content []byte) string {
	h := sha256.Sum256(content)
	return hex.EncodeToString(h[:8])
}

func (c includeChain) seen(hash string) bool {
	return slices.ContainsFunc(c, func(e includeEntry) bool {
		return e.Hash == hash
	})
}

func (c includeChain) push(path, hash string) includeChain {
	return append(slices.Clip(c), includeEntry{Path: path, Hash: hash})
}

func (c includeChain) describe(loopPath string) string {
	parts := make([]string, 0, len(c)+1)
	for _, entry := range c {
		parts = append(parts, entry.Path)
	}
	parts = append(parts, loopPath+" (duplicate content)")
	return strings.Join(parts, " -> ")
}

// ResolveIncludes expands the "includes" list of settings (and of any nested
// section) relative to baseDir. Included files are merged in order and the
// including file's own keys are merged last, so they win.
func ResolveIncludes(settings map[string]any, baseDir string) (map[string]any, error) {
	return resolveIncludes(settings, baseDir, nil)
}

func resolveIncludes(settings map[string]any, baseDir string, chain includeChain) (map[string]any, error) {
	raw, ok := settings[includesKey]
	if !ok {
		return resolveSections(settings, baseDir, chain)
	}

	includes, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%s must be a list", includesKey)
	}

	merged := make(map[string]any)
	for _, item := range includes {
		includePath, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("include path must be a string, got %T", item)
		}

		included, dir, hash, err := readInclude(filepath.Join(baseDir, includePath))
		if err != nil {
			return nil, fmt.Errorf("failed to load include %s: %w", includePath, err)
		}
		if chain.seen(hash) {
			return nil, fmt.Errorf("include loop detected: %s", chain.describe(includePath))
		}

		resolved, err := resolveIncludes(included, dir, chain.push(includePath, hash))
		if err != nil {
			return nil, err
		}
		merged = deepMerge(merged, resolved)
	}

	local := maps.Clone(settings)
	delete(local, includesKey)

	local, err := resolveSections(local, baseDir, chain)
	if err != nil {
		return nil, err
	}

	return deepMerge(merged, local), nil
}

// readInclude loads a config file by path without extension, letting viper
// pick the format. It returns the settings, the file's directory and a
// content hash.
func readInclude(pathWithoutExt string) (map[string]any, string, string, error) {
	v := runctx.NewViper()
	dir := filepath.Dir(pathWithoutExt)

	v.AddConfigPath(dir)
	v.SetConfigName(filepath.Base(pathWithoutExt))
	if err := v.ReadInConfig(); err != nil {
		return nil, "", "", err
	}

	content, err := os.ReadFile(v.ConfigFileUsed())
	if err != nil {
		return nil, "", "", err
	}

	return v.AllSettings(), dir, contentHash(content), nil
}

// deepMerge returns dst overlaid with src: maps merge recursively, lists
// concatenate and scalars are replaced.
func deepMerge(dst, src map[string]any) map[string]any {
	result := maps.Clone(dst)
	if result == nil {
		result = make(map[string]any, len(src))
	}

	for k, v := range src {
		switch srcVal := v.(type) {
		case map[string]any:
			if dstMap, ok := result[k].(map[string]any); ok {
				result[k] = deepMerge(dstMap, srcVal)
				continue
			}
		case []any:
			if dstList, ok := result[k].([]any); ok {
				result[k] = append(slices.Clip(dstList), srcVal...)
				continue
			}
		}
		result[k] = v
	}

	return result
}

func resolveSections(settings map[string]any, baseDir string, chain includeChain) (map[string]any, error) {
	result := make(map[string]any, len(settings))
	for k, v := range settings {
		section, ok := v.(map[string]any)
		if !ok {
			result[k] = v
			continue
		}
		resolved, err := resolveIncludes(section, baseDir, chain)
		if err != nil {
			return nil, fmt.Errorf("in %s: %w", k, err)
		}
		result[k] = resolved
	}
	return result, nil
}
