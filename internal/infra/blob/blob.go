// Package blob selects and re-exports the artifact storage backends.
package blob

import (
	"context"
	"fmt"
	"os"

	"kpicore/internal/infra/blob/core"
	"kpicore/internal/infra/blob/fs"
	"kpicore/internal/infra/blob/memory"
	"kpicore/internal/infra/blob/s3"
)

// Re-exported so callers outside the blob tree need a single import.
type (
	Store            = core.Store
	Info             = core.Info
	PutOptions       = core.PutOptions
	SignedURLOptions = core.SignedURLOptions
	Driver           = core.Driver
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

// ErrUnsupported mirrors core.ErrUnsupported.
var ErrUnsupported = core.ErrUnsupported

// NewMemory returns an in-memory store for tests and ephemeral runs.
func NewMemory() Store { return memory.New() }

// NewFilesystem returns a filesystem store rooted at the given directory.
func NewFilesystem(root string) (Store, error) { return fs.New(root) }

// Open selects a Store implementation using environment variables.
//
//	KPICORE_BLOB_DRIVER: fs|s3|memory (default fs)
//	KPICORE_BLOB_FS_ROOT: directory root when driver=fs (default ./blobdata)
//	KPICORE_BLOB_S3_*: documented in the s3 package
func Open(ctx context.Context) (Store, error) {
	driver := os.Getenv("KPICORE_BLOB_DRIVER")
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		return fs.New(os.Getenv("KPICORE_BLOB_FS_ROOT"))
	case DriverS3:
		return s3.OpenFromEnv(ctx)
	case DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}
