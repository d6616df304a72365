package config

import (
	"os"
	"regexp"
)

// envRef matches ${NAME} and ${NAME:-default}.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExpandEnv replaces ${NAME} references with environment values.
// An unset or empty variable expands to its default, or to "" without one.
// A bare $ is left alone so values such as passwords survive untouched.
func ExpandEnv(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		m := envRef.FindStringSubmatch(ref)
		if v := os.Getenv(m[1]); v != "" {
			return v
		}
		return m[2]
	})
}

// MissingEnv returns the referenced variables that are unset and have no default.
func MissingEnv(s string) []string {
	var missing []string
	seen := map[string]bool{}
	for _, m := range envRef.FindAllStringSubmatch(s, -1) {
		name, hasDefault := m[1], m[0] != "${"+m[1]+"}"
		if hasDefault || seen[name] || os.Getenv(name) != "" {
			continue
		}
		seen[name] = true
		missing = append(missing, name)
	}
	return missing
}
