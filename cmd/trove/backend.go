package main

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/jpl-au/trove"
	"github.com/jpl-au/trove/boltstore"
	"github.com/jpl-au/trove/dynamostore"
	"github.com/jpl-au/trove/s3store"
	"github.com/jpl-au/trove/sqlitestore"
)

// backend is an open substrate and how to release it.
type backend struct {
	flat  trove.FlatStore
	close func() error
}

var defaultFiles = map[string]string{
	"file":   "store.trove",
	"sqlite": "store.db",
	"bolt":   "store.bolt",
}

// defaultPath places the database under the per-user data directory.
func defaultPath(kind string) (string, error) {
	dir, err := trove.DefaultDataDir("trove")
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, defaultFiles[kind]), nil
}

func openBackend(ctx context.Context, cfg Config, log *zap.Logger) (*backend, error) {
	path := cfg.Path
	if path == "" && defaultFiles[cfg.Backend] != "" {
		p, err := defaultPath(cfg.Backend)
		if err != nil {
			return nil, fmt.Errorf("default path: %w", err)
		}
		path = p
	}
	noClose := func() error { return nil }

	switch cfg.Backend {
	case "file", "":
		fs, err := trove.OpenFile(path, trove.FileConfig{Logger: log})
		if err != nil {
			return nil, err
		}
		return &backend{flat: fs, close: fs.Close}, nil

	case "sqlite":
		s, err := sqlitestore.Open(path, sqlitestore.Config{Logger: log})
		if err != nil {
			return nil, err
		}
		return &backend{flat: s, close: s.Close}, nil

	case "bolt":
		s, err := boltstore.Open(path, boltstore.Config{Logger: log})
		if err != nil {
			return nil, err
		}
		return &backend{flat: s, close: s.Close}, nil

	case "mem":
		return &backend{flat: trove.NewMemStore(), close: noClose}, nil

	case "dynamo":
		s, err := dynamostore.NewFromEnv(ctx, dynamostore.Config{
			Table:   cfg.Dynamo.Table,
			Timeout: cfg.Dynamo.Timeout,
			Logger:  log,
		})
		if err != nil {
			return nil, err
		}
		return &backend{flat: s, close: noClose}, nil

	case "s3":
		s, err := s3store.New(s3store.Config{
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Prefix:    cfg.S3.Prefix,
			Insecure:  cfg.S3.Insecure,
			Timeout:   cfg.S3.Timeout,
			Logger:    log,
		})
		if err != nil {
			return nil, err
		}
		return &backend{flat: s, close: noClose}, nil
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}
