package config

import (
	"fmt"
	"os"
	"strings"
)

// ResolveSecret returns the value for name. When name+"_FILE" is set the
// secret is read from that path (trailing whitespace trimmed) and wins over
// the plain variable. Unset secrets resolve to "".
func ResolveSecret(name string) (string, error) {
	if path := os.Getenv(name + "_FILE"); path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			// The path is safe to report; the content never is.
			return "", fmt.Errorf("read secret %s_FILE=%s: %w", name, path, err)
		}
		return strings.TrimSpace(string(content)), nil
	}
	return os.Getenv(name), nil
}

// ResolveSecrets resolves several secrets at once, stopping at the first
// unreadable file.
func ResolveSecrets(names ...string) (map[string]string, error) {
	out := make(map[string]string, len(names))
	for _, name := range names {
		v, err := ResolveSecret(name)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}
