// Package endpoint defines the delivery targets files fan out to: remote
// DICOM nodes reached through storescu and local directories that receive a
// verified copy. Endpoints are built from validated configuration, so
// construction failures indicate a config regression rather than bad input.
package endpoint

import (
	"context"
	"fmt"

	"dcmrelay/internal/config"
	"dcmrelay/internal/services/dcmtk"
)

// Endpoint is one delivery destination for relayed files. Deliver must be
// safe to retry: a failed or repeated delivery of the same file must not
// corrupt the destination.
type Endpoint interface {
	Name() string
	Deliver(ctx context.Context, path string) error
}

// Pinger is implemented by endpoints that support a reachability probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// FromConfig builds every configured endpoint keyed by name. The DCMTK
// client is shared across all DICOM endpoints.
func FromConfig(cfg *config.Config, client *dcmtk.Client) (map[string]Endpoint, error) {
	endpoints := make(map[string]Endpoint, len(cfg.Endpoints.Dicom)+len(cfg.Endpoints.Directory))
	for _, spec := range cfg.Endpoints.Dicom {
		built, err := NewDicom(spec, client)
		if err != nil {
			return nil, fmt.Errorf("endpoint %s: %w", spec.Name, err)
		}
		endpoints[built.Name()] = built
	}
	for _, spec := range cfg.Endpoints.Directory {
		built, err := NewDirectory(spec)
		if err != nil {
			return nil, fmt.Errorf("endpoint %s: %w", spec.Name, err)
		}
		endpoints[built.Name()] = built
	}
	return endpoints, nil
}
