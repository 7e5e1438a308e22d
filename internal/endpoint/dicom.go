package endpoint

import (
	"context"
	"errors"
	"path/filepath"

	"dcmrelay/internal/config"
	"dcmrelay/internal/services"
	"dcmrelay/internal/services/dcmtk"
)

// Dicom sends files to a remote DICOM node with storescu.
type Dicom struct {
	name   string
	target dcmtk.SendTarget
	client *dcmtk.Client
}

// NewDicom builds a DICOM endpoint from its configuration.
func NewDicom(spec config.DicomEndpoint, client *dcmtk.Client) (*Dicom, error) {
	if spec.Name == "" {
		return nil, errors.New("dicom endpoint name required")
	}
	if client == nil {
		return nil, errors.New("dcmtk client required")
	}
	return &Dicom{
		name: spec.Name,
		target: dcmtk.SendTarget{
			Addr:      spec.Addr,
			Port:      spec.Port,
			CallingAE: spec.AET,
			CalledAE:  spec.AEC,
		},
		client: client,
	}, nil
}

// Name returns the endpoint name.
func (d *Dicom) Name() string { return d.name }

// Deliver sends the file with a C-STORE request.
func (d *Dicom) Deliver(ctx context.Context, path string) error {
	if err := d.client.Send(ctx, d.target, path); err != nil {
		return services.Wrap(services.ErrExternalTool, d.name, "send", filepath.Base(path), err)
	}
	return nil
}

// Ping verifies the node answers a C-ECHO request.
func (d *Dicom) Ping(ctx context.Context) error {
	if err := d.client.Ping(ctx, d.target.Addr, d.target.Port); err != nil {
		return services.Wrap(services.ErrExternalTool, d.name, "ping", "", err)
	}
	return nil
}
