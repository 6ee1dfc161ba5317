//go:build cgo_sqlite

package storage

// CGO SQLite for production images:
//   CGO_ENABLED=1 go build -tags cgo_sqlite ./...
//
// Driver used: github.com/mattn/go-sqlite3

import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite3"

	// BuildMode describes the current build configuration
	BuildMode = "cgo"
)
