// Package store holds the activity log backends. Each backend implements
// model.ActivityStore: one atomic append per record and a readable dump of
// the whole log for reports.
package store

import "errors"

// Backend names accepted by configuration.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store: closed")
