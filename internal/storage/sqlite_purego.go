//go:build !cgo
// +build !cgo

package storage

import _ "modernc.org/sqlite"

// Pure-Go driver so CGO_ENABLED=0 builds keep a durable index.
const sqliteDriver = "sqlite"
