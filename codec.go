// Flat key derivation.
//
// These formats are what ends up persisted in the flat store. Changing any
// constant here makes previously written data unreachable.
//
//	property: {app}_{object}__${prop}$
//	metadata: {app}_{object}_proplist_
package trove

import "strings"

const (
	marker         = "$"
	listSeparator  = ",,"
	pathSeparator  = "_"
	metadataSuffix = "_proplist_"

	// DefaultProperty replaces an empty property name.
	DefaultProperty = "_objdat"
)

// escape wraps a property name with the marker on both ends.
func escape(prop string) string {
	return marker + prop + marker
}

// unescape strips the first and last byte. The caller checks that both
// are markers; see decodeToken.
func unescape(escaped string) string {
	return escaped[1 : len(escaped)-1]
}

func propertyPath(app, object, escaped string) string {
	return app + pathSeparator + object + pathSeparator + pathSeparator + escaped
}

func metadataPath(app, object string) string {
	return app + pathSeparator + object + metadataSuffix
}

// propertyName applies the default for an empty name and rejects names
// that would make the metadata list ambiguous.
func propertyName(prop string) (string, error) {
	if prop == "" {
		return DefaultProperty, nil
	}
	if strings.Contains(prop, marker) || strings.Contains(prop, listSeparator) {
		return "", ErrInvalidName
	}
	return prop, nil
}

// decodeToken reverses escape for a single metadata token.
func decodeToken(token string) (string, error) {
	if len(token) < 2 || !strings.HasPrefix(token, marker) || !strings.HasSuffix(token, marker) {
		return "", ErrCorruptIndex
	}
	return unescape(token), nil
}
