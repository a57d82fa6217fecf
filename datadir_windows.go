//go:build windows

package trove

import (
	"errors"
	"os"
	"path/filepath"
)

func dataDir(app string) (string, error) {
	appData := os.Getenv("AppData")
	if appData == "" {
		return "", errors.New("AppData env var is undefined")
	}
	return filepath.Join(appData, app), nil
}
