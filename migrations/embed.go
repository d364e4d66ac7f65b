package migrations

import "embed"

// Files exposes embedded SQL migration files, partitioned per backend and
// ordered lexicographically.
//
//go:embed sqlite/*.sql postgres/*.sql
var Files embed.FS
