//go:build !darwin

package config

import (
	"fmt"
	"path/filepath"
)

// Outside macOS secrets live in a 0600 JSON file next to the data
// directory: {"<service>": {"<account>": "<value>"}}.

func secretsFilePath() string {
	return filepath.Join(xdgDir("XDG_DATA_HOME", ".local", "share"), "secrets.json")
}

func keychainGet(service, account string) ([]byte, error) {
	var secrets map[string]map[string]string
	if err := readJSONFile(secretsFilePath(), &secrets); err != nil {
		return nil, fmt.Errorf("secret store not available: %w", err)
	}
	val, ok := secrets[service][account]
	if !ok {
		return nil, fmt.Errorf("no secret %s/%s", service, account)
	}
	return []byte(val), nil
}

func keychainSet(service, account, value string) error {
	p := secretsFilePath()

	var secrets map[string]map[string]string
	_ = readJSONFile(p, &secrets)
	if secrets == nil {
		secrets = make(map[string]map[string]string)
	}
	if secrets[service] == nil {
		secrets[service] = make(map[string]string)
	}
	secrets[service][account] = value

	if err := writeJSONFile(p, secrets); err != nil {
		return fmt.Errorf("saving secret: %w", err)
	}
	return nil
}
