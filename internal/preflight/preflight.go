package preflight

import (
	"fmt"

	"dcmrelay/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the filesystem checks for the given config: the data
// and log directories, every listener inbox, and every directory
// endpoint target.
func RunAll(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
	for _, listener := range cfg.Listeners {
		results = append(results, CheckDirectoryAccess(
			fmt.Sprintf("Listener %s inbox", listener.Name), listener.Output))
	}
	for _, target := range cfg.Endpoints.Directory {
		results = append(results, CheckDirectoryAccess(
			fmt.Sprintf("Endpoint %s directory", target.Name), target.Path))
	}
	return results
}

// Failed filters results down to the ones that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, result := range results {
		if !result.Passed {
			failed = append(failed, result)
		}
	}
	return failed
}
