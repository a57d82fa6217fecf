// Per-platform default data directory.
package trove

import "os"

// DefaultDataDir returns, creating it if needed, the conventional
// directory for an application's data on this platform:
//
//	unix:    ~/.local/share/<app>
//	windows: %AppData%\<app>
//	android: /data/data/<package> (app is ignored; the package is detected)
func DefaultDataDir(app string) (string, error) {
	if app == "" {
		return "", ErrInvalidName
	}
	dir, err := dataDir(app)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}
