package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"dcmrelay/internal/endpoint"
	"dcmrelay/internal/ipc"
	"dcmrelay/internal/preflight"
	"dcmrelay/internal/services/dcmtk"
)

func newEndpointsCommand(ctx *commandContext) *cobra.Command {
	endpointsCmd := &cobra.Command{
		Use:   "endpoints",
		Short: "Inspect configured delivery endpoints",
	}
	endpointsCmd.AddCommand(newEndpointsPingCommand(ctx))
	return endpointsCmd
}

func newEndpointsPingCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Probe every endpoint (C-ECHO for DICOM nodes, access check for directories)",
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := pingEndpoints(ctx, cmd)
			if err != nil {
				return err
			}
			stdout := cmd.OutOrStdout()
			if len(results) == 0 {
				fmt.Fprintln(stdout, "No endpoints configured")
				return nil
			}

			colorize := shouldColorize(stdout)
			failures := 0
			for _, result := range results {
				kind := statusOK
				if !result.Reachable {
					kind = statusError
					failures++
				}
				fmt.Fprintln(stdout, renderStatusLine(result.Endpoint, kind, result.Detail, colorize))
			}
			if failures > 0 {
				return fmt.Errorf("%d of %d endpoints unreachable", failures, len(results))
			}
			return nil
		},
	}
}

// pingEndpoints asks the daemon to probe when it is running and probes
// directly from this process otherwise.
func pingEndpoints(ctx *commandContext, cmd *cobra.Command) ([]ipc.EndpointResult, error) {
	client, dialErr := ipc.Dial(ctx.socketPath())
	if dialErr == nil {
		defer client.Close()
		resp, err := client.Ping()
		if err != nil {
			return nil, err
		}
		return resp.Results, nil
	}

	cfg := ctx.configValue()
	if cfg == nil {
		return nil, errors.New("configuration not available")
	}
	dcmtkClient, err := dcmtk.New(cfg.StoreSCUBinary(), cfg.EchoSCUBinary())
	if err != nil {
		return nil, err
	}
	endpoints, err := endpoint.FromConfig(cfg, dcmtkClient)
	if err != nil {
		return nil, err
	}

	checks := preflight.CheckEndpoints(cmd.Context(), endpoints)
	results := make([]ipc.EndpointResult, 0, len(checks))
	for _, check := range checks {
		results = append(results, ipc.EndpointResult{
			Endpoint:  check.Name,
			Reachable: check.Passed,
			Detail:    check.Detail,
		})
	}
	return results, nil
}
