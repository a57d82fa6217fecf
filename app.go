// Application-bound handle.
package trove

// App is a Store bound to one application name, for callers that only
// ever use a single namespace.
type App struct {
	store *Store
	name  string
}

// App returns a handle for the named application. The name must not be
// empty: it is the prefix of every key the application writes, and data
// saved under one name is only visible under the same name.
func (s *Store) App(name string) (*App, error) {
	if name == "" {
		return nil, ErrInvalidName
	}
	return &App{store: s, name: name}, nil
}

// Name returns the application name.
func (a *App) Name() string { return a.name }

func (a *App) SaveProperty(object, prop, value string) error {
	return a.store.SaveProperty(a.name, object, prop, value)
}

func (a *App) LoadProperty(object, prop string) (string, bool, error) {
	return a.store.LoadProperty(a.name, object, prop)
}

func (a *App) ReadProperty(object, prop string, buf []byte) (int, error) {
	return a.store.ReadProperty(a.name, object, prop, buf)
}

func (a *App) PropertyExists(object, prop string) (bool, error) {
	return a.store.PropertyExists(a.name, object, prop)
}

func (a *App) ObjectExists(object string) (bool, error) {
	return a.store.ObjectExists(a.name, object)
}

func (a *App) ListProperties(object string) ([]string, bool, error) {
	return a.store.ListProperties(a.name, object)
}

func (a *App) DeleteProperty(object, prop string) error {
	return a.store.DeleteProperty(a.name, object, prop)
}

func (a *App) DeleteObject(object string) error {
	return a.store.DeleteObject(a.name, object)
}

func (a *App) PropertyPath(object, prop string) (string, error) {
	return a.store.PropertyPath(a.name, object, prop)
}
