//go:build android

package trove

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// dataDir resolves the app's private directory from the package name the
// process was started as. The directory already exists on a real device,
// so a missing one means detection went wrong.
func dataDir(string) (string, error) {
	cmdline, err := os.ReadFile("/proc/self/cmdline")
	if err != nil {
		return "", err
	}
	pkg := strings.Map(func(r rune) rune {
		if r == 0 || r == '\n' {
			return -1
		}
		return r
	}, string(cmdline))
	if pkg == "" {
		return "", errors.New("empty /proc/self/cmdline")
	}
	dir := filepath.Join("/data/data", pkg)
	if _, err := os.Stat(dir); err != nil {
		return "", errors.New("can't find the app data directory")
	}
	return dir, nil
}
