//go:build !windows && !android

package trove

import (
	"os"
	"path/filepath"
)

func dataDir(app string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", app), nil
}
