package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// secretsExtensions are tried, in order, for a secrets file in the working
// directory.
var secretsExtensions = []string{".yaml", ".yml", ".json", ".toml"}

// discoverSecretsFile returns the secrets file to merge, or "" when there is
// none. <PREFIX>_SECRETS_FILE wins and must name a readable file. Otherwise a
// secrets file next to the config file, with the same extension, is used,
// then secrets.<ext> in the working directory.
func (l *ViperLoader) discoverSecretsFile() (string, error) {
	env := l.prefixedEnv("SECRETS_FILE")
	if raw, ok := os.LookupEnv(env); ok {
		path := strings.TrimSpace(raw)
		if path == "" {
			return "", fmt.Errorf("%s is set but empty", env)
		}
		info, err := os.Stat(path)
		if err != nil {
			return "", fmt.Errorf("%s: %w", env, err)
		}
		if info.IsDir() {
			return "", fmt.Errorf("%s must name a file, %s is a directory", env, path)
		}
		return path, nil
	}

	var candidates []string
	if l.configFile != "" {
		candidates = append(candidates, filepath.Join(filepath.Dir(l.configFile), "secrets"+filepath.Ext(l.configFile)))
	}
	for _, ext := range secretsExtensions {
		candidates = append(candidates, "secrets"+ext)
	}
	for _, path := range candidates {
		if isFile(path) {
			return path, nil
		}
	}
	return "", nil
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
