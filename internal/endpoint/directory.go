package endpoint

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"dcmrelay/internal/config"
	"dcmrelay/internal/fileutil"
	"dcmrelay/internal/services"
)

// Directory copies files into a local directory with checksum verification.
type Directory struct {
	name string
	dir  string
}

// NewDirectory builds a directory endpoint from its configuration.
func NewDirectory(spec config.DirectoryEndpoint) (*Directory, error) {
	if spec.Name == "" {
		return nil, errors.New("directory endpoint name required")
	}
	if spec.Path == "" {
		return nil, errors.New("directory endpoint path required")
	}
	return &Directory{name: spec.Name, dir: spec.Path}, nil
}

// Name returns the endpoint name.
func (d *Directory) Name() string { return d.name }

// Path returns the destination directory.
func (d *Directory) Path() string { return d.dir }

// Deliver copies the file into the directory under its base name. Repeated
// deliveries overwrite the previous copy, so a retried fan-out converges on
// the same result.
func (d *Directory) Deliver(_ context.Context, path string) error {
	if _, err := fileutil.CopyIntoDirVerified(path, d.dir); err != nil {
		return services.Wrap(services.ErrTransient, d.name, "copy", filepath.Base(path), err)
	}
	return nil
}

// Ping verifies the directory exists and is writable.
func (d *Directory) Ping(_ context.Context) error {
	info, err := os.Stat(d.dir)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, d.name, "ping", "", err)
	}
	if !info.IsDir() {
		return services.Wrap(services.ErrConfiguration, d.name, "ping", fmt.Sprintf("%s is not a directory", d.dir), nil)
	}
	if err := unix.Access(d.dir, unix.W_OK|unix.X_OK); err != nil {
		return services.Wrap(services.ErrConfiguration, d.name, "ping", "directory not writable", err)
	}
	return nil
}
