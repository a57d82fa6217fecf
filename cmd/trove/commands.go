package main

import (
	"errors"
	"fmt"
	"io"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"

	"github.com/jpl-au/trove"
)

// address resolves positional arguments that start with an optional
// application name. want is the number of arguments after the app.
func (c *cli) address(args []string, want int) (string, []string, error) {
	switch {
	case len(args) == want+1:
		return args[0], args[1:], nil
	case len(args) == want && c.cfg.App != "":
		return c.cfg.App, args, nil
	case len(args) == want:
		return "", nil, errors.New("no application given and none configured")
	}
	return "", nil, fmt.Errorf("expected %d or %d arguments, got %d", want, want+1, len(args))
}

func (c *cli) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get [app] object property",
		Short: "Print a property value",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, rest, err := c.address(args, 2)
			if err != nil {
				return err
			}
			v, ok, err := c.store.LoadProperty(app, rest[0], rest[1])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%s/%s/%s: not found", app, rest[0], rest[1])
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}
}

func (c *cli) setCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set [app] object property value",
		Short: `Save a property value ("-" reads it from stdin)`,
		Args:  cobra.RangeArgs(3, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, rest, err := c.address(args, 3)
			if err != nil {
				return err
			}
			value := rest[2]
			if value == "-" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				value = string(data)
			}
			return c.store.SaveProperty(app, rest[0], rest[1], value)
		},
	}
}

func (c *cli) rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm [app] object [property]",
		Short: "Delete a property, or a whole object",
		Long: `With a property, deletes only that property; the object remains even if it
has no properties left. Without one, deletes the object and all its
properties. Give the application explicitly to delete a property while
an application is configured.`,
		Args: cobra.RangeArgs(1, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 3 {
				return c.store.DeleteProperty(args[0], args[1], args[2])
			}
			app, rest, err := c.address(args, 1)
			if err != nil {
				return err
			}
			return c.store.DeleteObject(app, rest[0])
		},
	}
}

func (c *cli) lsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls [app] object",
		Short: "List an object's properties in save order",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, rest, err := c.address(args, 1)
			if err != nil {
				return err
			}
			props, ok, err := c.store.ListProperties(app, rest[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%s/%s: not found", app, rest[0])
			}
			for _, p := range props {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
}

func (c *cli) existsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exists [app] object [property]",
		Short: "Print whether an object or property exists",
		Long: `Prints true or false. As with rm, checking a property needs the
application given explicitly.`,
		Args: cobra.RangeArgs(1, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var ok bool
			var err error
			if len(args) == 3 {
				ok, err = c.store.PropertyExists(args[0], args[1], args[2])
			} else {
				app, rest, aerr := c.address(args, 1)
				if aerr != nil {
					return aerr
				}
				ok, err = c.store.ObjectExists(app, rest[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ok)
			return nil
		},
	}
}

func (c *cli) keysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "Print every raw key in the underlying store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lister, ok := c.open.flat.(trove.Lister)
			if !ok {
				return fmt.Errorf("%s backend cannot list keys", c.cfg.Backend)
			}
			for k, err := range lister.Keys() {
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			return nil
		},
	}
}

// property is one entry of dump output.
type property struct {
	Name  string `json:"name"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

type dump struct {
	App        string     `json:"app"`
	Object     string     `json:"object"`
	Properties []property `json:"properties"`
}

func (c *cli) dumpCmd() *cobra.Command {
	var color bool
	cmd := &cobra.Command{
		Use:   "dump [app] object",
		Short: "Print an object and all its properties as JSON",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, rest, err := c.address(args, 1)
			if err != nil {
				return err
			}
			d, err := c.dump(app, rest[0])
			if err != nil {
				return err
			}
			data, err := json.Marshal(d)
			if err != nil {
				return err
			}
			data = pretty.Pretty(data)
			if color {
				data = pretty.Color(data, nil)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().BoolVar(&color, "color", false, "colorize output")
	return cmd
}

func (c *cli) dump(app, object string) (*dump, error) {
	props, ok, err := c.store.ListProperties(app, object)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s/%s: not found", app, object)
	}

	d := &dump{App: app, Object: object, Properties: make([]property, 0, len(props))}
	for _, name := range props {
		key, err := c.store.PropertyPath(app, object, name)
		if err != nil {
			return nil, err
		}
		// A listed name without a value is left over from an interrupted
		// save; it is dumped with an empty value.
		v, _, err := c.store.LoadProperty(app, object, name)
		if err != nil {
			return nil, err
		}
		d.Properties = append(d.Properties, property{Name: name, Key: key, Value: v})
	}
	return d, nil
}

func (c *cli) compactCmd() *cobra.Command {
	var hash string
	cmd := &cobra.Command{
		Use:   "compact",
		Short: "Rewrite a file backend without overwritten and deleted records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, ok := c.open.flat.(*trove.FileStore)
			if !ok {
				return fmt.Errorf("%s backend does not need compaction", c.cfg.Backend)
			}
			before := fs.Stale()
			if hash == "" {
				if err := fs.Compact(); err != nil {
					return err
				}
			} else {
				alg, ok := hashNames[hash]
				if !ok {
					return fmt.Errorf("unknown hash %q", hash)
				}
				if err := fs.Rehash(alg); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "dropped %d records, %d keys remain\n", before, fs.Len())
			return nil
		},
	}
	cmd.Flags().StringVar(&hash, "hash", "", "reseal records with xxh3, fnv or blake2b")
	return cmd
}

var hashNames = map[string]int{
	"xxh3":    trove.AlgXXHash3,
	"fnv":     trove.AlgFNV1a,
	"blake2b": trove.AlgBlake2b,
}
