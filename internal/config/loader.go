package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

const fileName = "relayclaw.yaml"

// varRef matches ${NAME} and ${NAME:-fallback}. A "}" inside the fallback
// is escaped as "\}".
var varRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-((?:[^}\\]|\\.)*))?\}`)

// Load reads the file at path, substitutes environment references, decodes
// it and applies defaults.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	text, err := interpolate(string(raw), os.LookupEnv)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(text), &cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	ApplyDefaults(&cfg)
	return &cfg, nil
}

// interpolate substitutes every variable reference in text. References
// that are unset and have no fallback are all reported in one error.
func interpolate(text string, lookup func(string) (string, bool)) (string, error) {
	var missing []string
	out := varRef.ReplaceAllStringFunc(text, func(ref string) string {
		m := varRef.FindStringSubmatch(ref)
		if v, ok := lookup(m[1]); ok {
			return v
		}
		if m[2] != "" {
			return strings.ReplaceAll(m[3], `\}`, "}")
		}
		if !slices.Contains(missing, m[1]) {
			missing = append(missing, m[1])
		}
		return ref
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("unset environment variables without default: %s", strings.Join(missing, ", "))
	}
	return out, nil
}

// ResolvePath returns explicit when it is set, and otherwise the first
// of SearchPaths that exists.
func ResolvePath(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	paths := SearchPaths()
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("config: no %s in %s; run `relayclaw init` or pass --config", fileName, strings.Join(paths, ", "))
}

// SearchPaths lists, in order: $XDG_CONFIG_HOME/relayclaw,
// ~/.config/relayclaw and the working directory.
func SearchPaths() []string {
	var dirs []string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		dirs = append(dirs, filepath.Join(xdg, "relayclaw"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".config", "relayclaw"))
	}
	paths := make([]string, 0, len(dirs)+1)
	for _, d := range dirs {
		paths = append(paths, filepath.Join(d, fileName))
	}
	return append(paths, fileName)
}
