package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime"

	"slitmask/internal/config"

	"github.com/spf13/cobra"
)

const version = "v1.0.0"

func newConfigCmd(root *Root) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration settings",
	}

	var asJSON bool
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(root.cfg)
			}
			return configShow(out, root.cfg)
		},
	}
	showCmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")

	cmd.AddCommand(showCmd)
	return cmd
}

func configShow(w io.Writer, cfg *config.Config) error {
	fmt.Fprintf(w, "Config file: %s\n", config.Path())
	fmt.Fprintf(w, "\nPaths:\n")
	fmt.Fprintf(w, "  Output directory: %s\n", cfg.Paths.OutputDir)
	profile := cfg.Paths.InstrumentProfile
	if profile == "" {
		profile = "(built-in MOSFIRE)"
	}
	fmt.Fprintf(w, "  Instrument profile: %s\n", profile)
	fmt.Fprintf(w, "\nDatabase:\n")
	fmt.Fprintf(w, "  Driver: %s\n", cfg.Database.Driver)
	fmt.Fprintf(w, "  Path: %s\n", cfg.Database.Path)
	fmt.Fprintf(w, "\nServices:\n")
	fmt.Fprintf(w, "  HTTP: %s\n", cfg.Server.Addr)
	fmt.Fprintf(w, "  gRPC: %s\n", cfg.GRPC.Addr)
	fmt.Fprintf(w, "  Watch: %s (debounce %dms, export %t)\n", cfg.Watch.Dir, cfg.Watch.DebounceMS, cfg.Watch.Export)
	fmt.Fprintf(w, "\nLogging:\n")
	fmt.Fprintf(w, "  Level: %s\n", cfg.Logging.Level)
	fmt.Fprintf(w, "  Format: %s\n", cfg.Logging.Format)
	if cfg.Logging.FileOutput {
		fmt.Fprintf(w, "  Directory: %s\n", cfg.Logging.LogDir)
	}
	return nil
}

func printVersion(w io.Writer, root *Root) {
	inst := root.svc.Instrument()
	fmt.Fprintf(w, "slitmask %s\n", version)
	fmt.Fprintf(w, "Built with Go %s\n", runtime.Version())
	fmt.Fprintf(w, "Instrument: %s (%d bar pairs)\n", inst.Name, inst.NumberOfBarPairs)
}
