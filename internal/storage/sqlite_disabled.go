//go:build !sqlite
// +build !sqlite

package storage

import (
	"errors"

	logx "microsched/pkg/logx"
)

// ErrSQLiteNotBuilt is returned by Open for the sqlite driver in builds
// without the sqlite tag.
var ErrSQLiteNotBuilt = errors.New("sqlite storage not built: build with -tags sqlite")

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	_ = cfg
	log.Warn("sqlite journal requested but not compiled in")
	return nil, ErrSQLiteNotBuilt
}
