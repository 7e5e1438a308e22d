package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"dcmrelay/internal/config"
	"dcmrelay/internal/ipc"
	"dcmrelay/internal/journal"
	"dcmrelay/internal/preflight"
)

// StatusLine is a labeled check outcome ready for rendering.
type StatusLine struct {
	Label    string
	Severity string
	Detail   string
}

// DependencySummary aggregates dependency readiness.
type DependencySummary struct {
	Total           int
	Available       int
	MissingRequired int
	MissingOptional int
	Severity        string
	Detail          string
}

// Snapshot combines the daemon status response with checks derived on
// the CLI side. When the daemon is not running, journal stats and
// dependency availability are resolved locally instead.
type Snapshot struct {
	Status            *ipc.StatusResponse
	SystemChecks      []StatusLine
	InboxChecks       []StatusLine
	DependencySummary DependencySummary
}

// BuildStatusSnapshot collects daemon status and applies offline fallbacks.
func BuildStatusSnapshot(ctx context.Context, socketPath string, cfg *config.Config) (*Snapshot, error) {
	if cfg == nil {
		return nil, errors.New("configuration not available")
	}
	statusResp := &ipc.StatusResponse{}

	client, err := ipc.Dial(socketPath)
	if err == nil {
		defer client.Close()
		if resp, statusErr := client.Status(); statusErr == nil && resp != nil {
			statusResp = resp
		}
	}

	if !statusResp.Running && cfg.Journal.Enabled && len(statusResp.JournalStats) == 0 {
		queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		store, openErr := journal.Open(cfg)
		if openErr == nil {
			if stats, statsErr := store.Stats(queryCtx); statsErr == nil {
				statusResp.JournalStats = stats
				statusResp.JournalPath = store.Path()
			}
			_ = store.Close()
		}
		cancel()
	}
	if len(statusResp.Dependencies) == 0 {
		statusResp.Dependencies = ResolveDependencies(cfg)
	}

	return &Snapshot{
		Status:            statusResp,
		SystemChecks:      BuildSystemChecks(cfg, statusResp),
		InboxChecks:       BuildInboxChecks(cfg),
		DependencySummary: BuildDependencySummary(statusResp.Dependencies),
	}, nil
}

// ResolveDependencies returns current dependency availability for status output.
func ResolveDependencies(cfg *config.Config) []ipc.DependencyStatus {
	if cfg == nil {
		return nil
	}

	checks := preflight.CheckSystemDeps(cfg)
	statuses := make([]ipc.DependencyStatus, 0, len(checks))
	for _, check := range checks {
		statuses = append(statuses, ipc.DependencyStatus{
			Name:        check.Name,
			Command:     check.Command,
			Description: check.Description,
			Optional:    check.Optional,
			Available:   check.Available,
			Detail:      check.Detail,
		})
	}
	return statuses
}

// BuildSystemChecks resolves status lines that combine runtime state and config.
func BuildSystemChecks(cfg *config.Config, status *ipc.StatusResponse) []StatusLine {
	lines := make([]StatusLine, 0, 5)
	if status != nil && status.Running {
		lines = append(lines, StatusLine{Label: "Relay", Severity: "ok", Detail: fmt.Sprintf("Running (pid %d)", status.PID)})
		running := 0
		for _, listener := range status.Listeners {
			if listener.Running {
				running++
			}
		}
		switch {
		case len(status.Listeners) == 0:
			lines = append(lines, StatusLine{Label: "Listeners", Severity: "info", Detail: "None managed (external receivers)"})
		case running == len(status.Listeners):
			lines = append(lines, StatusLine{Label: "Listeners", Severity: "ok", Detail: fmt.Sprintf("%d/%d running", running, len(status.Listeners))})
		default:
			lines = append(lines, StatusLine{Label: "Listeners", Severity: "warn", Detail: fmt.Sprintf("%d/%d running", running, len(status.Listeners))})
		}
	} else {
		lines = append(lines, StatusLine{Label: "Relay", Severity: "warn", Detail: "Not running (run `dcmrelay start`)"})
	}

	if cfg.Journal.Enabled {
		lines = append(lines, StatusLine{Label: "Journal", Severity: "ok", Detail: "Enabled"})
	} else {
		lines = append(lines, StatusLine{Label: "Journal", Severity: "info", Detail: "Disabled"})
	}

	if strings.TrimSpace(cfg.Notifications.NtfyTopic) != "" {
		lines = append(lines, StatusLine{Label: "Notifications", Severity: "ok", Detail: "Configured"})
	} else {
		lines = append(lines, StatusLine{Label: "Notifications", Severity: "warn", Detail: "Not configured"})
	}

	if bind := strings.TrimSpace(cfg.Paths.APIBind); bind != "" {
		lines = append(lines, StatusLine{Label: "HTTP API", Severity: "ok", Detail: bind})
	} else {
		lines = append(lines, StatusLine{Label: "HTTP API", Severity: "info", Detail: "Disabled"})
	}
	return lines
}

// BuildInboxChecks resolves listener inbox and directory endpoint readiness.
func BuildInboxChecks(cfg *config.Config) []StatusLine {
	lines := make([]StatusLine, 0, len(cfg.Listeners)+len(cfg.Endpoints.Directory))
	for _, listener := range cfg.Listeners {
		result := preflight.CheckDirectoryAccess(listener.Name, listener.Output)
		lines = append(lines, statusLineFromResult(result))
	}
	for _, target := range cfg.Endpoints.Directory {
		result := preflight.CheckDirectoryAccess(target.Name, target.Path)
		lines = append(lines, statusLineFromResult(result))
	}
	return lines
}

// BuildDependencySummary computes aggregate dependency readiness.
func BuildDependencySummary(deps []ipc.DependencyStatus) DependencySummary {
	if len(deps) == 0 {
		return DependencySummary{
			Severity: "info",
			Detail:   "No dependency checks configured",
		}
	}

	missingRequired := 0
	missingOptional := 0
	for _, dep := range deps {
		if dep.Available {
			continue
		}
		if dep.Optional {
			missingOptional++
		} else {
			missingRequired++
		}
	}

	missingCount := missingRequired + missingOptional
	available := len(deps) - missingCount
	severity := "ok"
	if missingRequired > 0 {
		severity = "error"
	} else if missingOptional > 0 {
		severity = "warn"
	}
	detail := fmt.Sprintf("%d/%d available (missing: %d required, %d optional)", available, len(deps), missingRequired, missingOptional)
	if missingCount == 0 {
		detail = fmt.Sprintf("%d/%d available", available, len(deps))
	}

	return DependencySummary{
		Total:           len(deps),
		Available:       available,
		MissingRequired: missingRequired,
		MissingOptional: missingOptional,
		Severity:        severity,
		Detail:          detail,
	}
}

func statusLineFromResult(result preflight.Result) StatusLine {
	severity := "error"
	if result.Passed {
		severity = "ok"
	}
	return StatusLine{Label: result.Name, Severity: severity, Detail: result.Detail}
}
