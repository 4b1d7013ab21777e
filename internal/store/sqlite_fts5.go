//go:build fts5 || sqlite_fts5

// This file documents the required build tags for FTS5 support; compile
// with -tags="fts5" or -tags="sqlite_fts5" so mattn/go-sqlite3 links its
// FTS5 extension (see github.com/mattn/go-sqlite3/sqlite3_opt_fts5.go).
package store

import (
	_ "github.com/mattn/go-sqlite3"
)
