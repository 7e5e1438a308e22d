// Package deps reports the availability of the external DCMTK tools the
// relay shells out to.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"dcmrelay/internal/config"
)

// Requirement defines an external dependency dcmrelay relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Relay returns the requirement set for a running relay daemon. echoscu is
// optional because it only backs the endpoints ping command.
func Relay(cfg *config.Config) []Requirement {
	return []Requirement{
		{
			Name:        "storescp",
			Command:     cfg.StoreSCPBinary(),
			Description: "DCMTK receiver that accepts incoming DICOM associations",
		},
		{
			Name:        "storescu",
			Command:     cfg.StoreSCUBinary(),
			Description: "DCMTK sender used to deliver files to DICOM endpoints",
		},
		{
			Name:        "echoscu",
			Command:     cfg.EchoSCUBinary(),
			Description: "DCMTK C-ECHO client used to ping DICOM endpoints",
			Optional:    true,
		},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Available = false
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Available = false
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}

// MissingRequired returns the names of required dependencies that are not
// available.
func MissingRequired(statuses []Status) []string {
	var missing []string
	for _, status := range statuses {
		if !status.Optional && !status.Available {
			missing = append(missing, status.Name)
		}
	}
	return missing
}
