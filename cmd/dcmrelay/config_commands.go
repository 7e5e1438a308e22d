package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"dcmrelay/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigValidateCommand(ctx))
	configCmd.AddCommand(newConfigShowCommand(ctx))

	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(targetPath)
			if target == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("determine default config path: %w", err)
				}
				target = defaultPath
			} else {
				expanded, err := config.ExpandPath(target)
				if err != nil {
					return fmt.Errorf("resolve config path: %w", err)
				}
				target = expanded
			}

			dir := filepath.Dir(target)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create config directory %q: %w", dir, err)
			}

			if !overwrite {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
				} else if err != nil && !os.IsNotExist(err) {
					return fmt.Errorf("check config path: %w", err)
				}
			}

			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Edit the file to declare listeners, endpoints, and routes before starting the relay.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "validate",
		Short:       "Validate configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if ctx.configFlag != nil {
				path = strings.TrimSpace(*ctx.configFlag)
			}
			cfg, resolved, _, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config path: %s\n", resolved)
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			printSection := func(title string) {
				for _, line := range renderSectionHeader(title, colorize) {
					fmt.Fprintln(stdout, line)
				}
			}
			printPair := func(label, value string) {
				fmt.Fprintf(stdout, "%s%-*s %s\n", statusIndent, statusLabelWidth, label+":", value)
			}

			printSection("Paths")
			apiBind := strings.TrimSpace(cfg.Paths.APIBind)
			if apiBind == "" {
				apiBind = "disabled"
			}
			journalValue := "disabled"
			if cfg.Journal.Enabled {
				journalValue = fmt.Sprintf("%s (retention %d days)", cfg.JournalPath(), cfg.Journal.RetentionDays)
			}
			printPair("Data directory", cfg.Paths.DataDir)
			printPair("Log directory", cfg.Paths.LogDir)
			printPair("Control socket", cfg.SocketPath())
			printPair("HTTP API", apiBind)
			printPair("Journal", journalValue)
			fmt.Fprintln(stdout)

			printSection("Listeners")
			if len(cfg.Listeners) == 0 {
				fmt.Fprintln(stdout, "No listeners configured")
			} else {
				table := renderTable(
					[]string{"Name", "Port", "AE Title", "Inbox"},
					buildListenerRows(cfg),
					[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft},
				)
				fmt.Fprintln(stdout, table)
			}
			fmt.Fprintln(stdout)

			printSection("Endpoints")
			if len(cfg.Endpoints.Dicom)+len(cfg.Endpoints.Directory) == 0 {
				fmt.Fprintln(stdout, "No endpoints configured")
			} else {
				table := renderTable(
					[]string{"Name", "Type", "Target"},
					buildEndpointRows(cfg),
					[]columnAlignment{alignLeft, alignLeft, alignLeft},
				)
				fmt.Fprintln(stdout, table)
			}
			fmt.Fprintln(stdout)

			printSection("Routes")
			if len(cfg.Routes) == 0 {
				fmt.Fprintln(stdout, "No routes configured")
			} else {
				table := renderTable(
					[]string{"Listener", "Endpoints"},
					buildConfigRouteRows(cfg),
					[]columnAlignment{alignLeft, alignLeft},
				)
				fmt.Fprintln(stdout, table)
			}
			fmt.Fprintln(stdout)

			printSection("Behavior")
			bufferSize := "unbounded"
			if cfg.Workers.BufferSize > 0 {
				bufferSize = strconv.Itoa(cfg.Workers.BufferSize)
			}
			printPair("Scan buffer size", bufferSize)
			printPair("Min file age", cfg.Workers.MinFileAge().String())
			printPair("Idle poll", cfg.Workers.IdlePollInterval().String())
			printPair("Max stop attempts", strconv.Itoa(cfg.Manager.MaxStopAttempts))
			printPair("Log format", cfg.Logging.Format)
			printPair("Log level", cfg.Logging.Level)
			printPair("Log retention", fmt.Sprintf("%d days", cfg.Logging.RetentionDays))
			printPair("Ntfy configured", yesNo(strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""))
			printPair("Notify on startup", yesNo(cfg.Notifications.Startup))
			printPair("Notify on shutdown", yesNo(cfg.Notifications.Shutdown))
			printPair("Notify on failures", yesNo(cfg.Notifications.DeliveryFailures))
			return nil
		},
	}
}

func buildListenerRows(cfg *config.Config) [][]string {
	rows := make([][]string, 0, len(cfg.Listeners))
	for _, listener := range cfg.Listeners {
		rows = append(rows, []string{
			listener.Name,
			strconv.Itoa(listener.Port),
			listener.AE,
			listener.Output,
		})
	}
	return rows
}

func buildEndpointRows(cfg *config.Config) [][]string {
	rows := make([][]string, 0, len(cfg.Endpoints.Dicom)+len(cfg.Endpoints.Directory))
	for _, target := range cfg.Endpoints.Dicom {
		rows = append(rows, []string{
			target.Name,
			"dicom",
			fmt.Sprintf("%s:%d (calling %s, called %s)", target.Addr, target.Port, target.AET, target.AEC),
		})
	}
	for _, target := range cfg.Endpoints.Directory {
		rows = append(rows, []string{target.Name, "directory", target.Path})
	}
	return rows
}

func buildConfigRouteRows(cfg *config.Config) [][]string {
	rows := make([][]string, 0, len(cfg.Routes))
	for _, route := range cfg.Routes {
		rows = append(rows, []string{route.Name, strings.Join(route.Endpoints, ", ")})
	}
	return rows
}
