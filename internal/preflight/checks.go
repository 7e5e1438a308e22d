package preflight

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"golang.org/x/sys/unix"

	"dcmrelay/internal/config"
	"dcmrelay/internal/deps"
	"dcmrelay/internal/endpoint"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckSystemDeps evaluates the DCMTK tool requirements. Both the daemon
// and the CLI status command use this to avoid duplicating the list.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	return deps.CheckBinaries(deps.Relay(cfg))
}

// CheckEndpoints pings every endpoint that supports it: a C-ECHO for
// DICOM endpoints, an access probe for directory endpoints. Results come
// back sorted by endpoint name.
func CheckEndpoints(ctx context.Context, targets map[string]endpoint.Endpoint) []Result {
	names := make([]string, 0, len(targets))
	for name := range targets {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make([]Result, 0, len(names))
	for _, name := range names {
		pinger, ok := targets[name].(endpoint.Pinger)
		if !ok {
			results = append(results, Result{Name: name, Passed: true, Detail: "no ping support"})
			continue
		}
		checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := pinger.Ping(checkCtx)
		cancel()
		if err != nil {
			results = append(results, Result{Name: name, Detail: err.Error()})
			continue
		}
		results = append(results, Result{Name: name, Passed: true, Detail: "reachable"})
	}
	return results
}
