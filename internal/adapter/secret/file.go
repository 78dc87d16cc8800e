// Package secret provides the archive passphrase from a pre-provisioned
// location: a file under the operator's home directory or a Vault KV entry.
package secret

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// defaultRelPath is resolved against the operator's home directory when no
// explicit path is configured.
const defaultRelPath = ".backstop/archive.pwd"

type FileSource struct {
	path string
}

func NewFile(path string) (*FileSource, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		path = filepath.Join(home, defaultRelPath)
	}
	return &FileSource{path: path}, nil
}

func (f *FileSource) Passphrase() (string, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase file: %w", err)
	}

	passphrase := strings.TrimSpace(string(data))
	if passphrase == "" {
		return "", fmt.Errorf("passphrase file %s is empty", f.path)
	}

	return passphrase, nil
}
