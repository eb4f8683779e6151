package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"slitmask/internal/config"
	"slitmask/internal/fsutil"
	"slitmask/internal/mask"
	"slitmask/internal/maskio"
	"slitmask/internal/pipeline"
	"slitmask/internal/service"
	"slitmask/internal/targets"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root Cobra command
func NewRootCmd(cfg *config.Config, log *slog.Logger, svc *service.Service) *cobra.Command {
	return newRootCmd(NewRoot(cfg, log, svc))
}

func newRootCmd(root *Root) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "slitmask",
		Short: "Slitmask designs CSU multi-slit masks",
		Long: `Slitmask turns a target list into a configurable slit unit mask: bar
positions, science slits and alignment boxes, and writes the MSC XML, FITS
tables, scripts and star lists the telescope needs.`,
		SilenceUsage: true,
	}

	// Mask design
	rootCmd.AddCommand(newGenerateCmd(root))
	rootCmd.AddCommand(newLongSlitCmd(root))
	rootCmd.AddCommand(newOpenCmd(root))
	rootCmd.AddCommand(newImportCmd(root))
	rootCmd.AddCommand(newBatchCmd(root))
	rootCmd.AddCommand(newShowCmd(root))
	rootCmd.AddCommand(newListCmd(root))
	rootCmd.AddCommand(newHistoryCmd(root))
	rootCmd.AddCommand(newEditCmd(root))
	rootCmd.AddCommand(newExportCmd(root))

	// Long-running surfaces
	rootCmd.AddCommand(newServeCmd(root))
	rootCmd.AddCommand(newGRPCCmd(root))
	rootCmd.AddCommand(newWatchCmd(root))

	rootCmd.AddCommand(newConfigCmd(root))
	rootCmd.AddCommand(newVersionCmd(root))

	return rootCmd
}

func newGenerateCmd(root *Root) *cobra.Command {
	var (
		ra, dec     string
		targetsPath string
		pointing    string
		pa          float64
		params      mask.EditParams
		noReassign  bool
		export      bool
		output      string
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a mask from a target list",
		Long: `Search the field for the best pointing, assign targets to bar rows and
build the science and alignment slits.

Examples:
  # Center, PA and targets on the command line
  slitmask generate --ra 10:30:00 --dec +20:00:00 --targets field.coords --name field1

  # Everything from a pointing file, then write all products
  slitmask generate --pointing field1.yaml --export --output ./masks`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			inst := root.svc.Instrument()
			var (
				job targets.Job
				err error
			)
			if pointing != "" {
				job, err = targets.LoadPointing(pointing, inst)
			} else {
				if ra == "" || dec == "" || targetsPath == "" {
					return fmt.Errorf("--ra, --dec and --targets are required without --pointing")
				}
				var data []byte
				data, err = os.ReadFile(targetsPath)
				if err != nil {
					return fmt.Errorf("reading target list: %w", err)
				}
				reassign := !noReassign
				job, err = service.GenerateRequest{
					RA:            ra,
					Dec:           dec,
					PositionAngle: pa,
					Targets:       string(data),
					Params:        params,
					Reassign:      &reassign,
				}.Job(inst)
			}
			if err != nil {
				return err
			}

			id, _, err := root.svc.Generate(job)
			if err != nil {
				return err
			}
			view, err := root.svc.View(id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printSummary(out, view)
			if export {
				return exportAll(cmd, root, id, output)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&ra, "ra", "", "field center right ascension (hh:mm:ss.ss)")
	cmd.Flags().StringVar(&dec, "dec", "", "field center declination (+dd:mm:ss.ss)")
	cmd.Flags().Float64Var(&pa, "pa", 0, "position angle in degrees")
	cmd.Flags().StringVar(&targetsPath, "targets", "", "coords target list (negative priority marks alignment stars)")
	cmd.Flags().StringVar(&pointing, "pointing", "", "YAML pointing file; overrides the flags above")
	cmd.Flags().StringVar(&params.MaskName, "name", "", "mask name")
	cmd.Flags().Float64Var(&params.SlitWidth, "slit-width", 0, "science slit width in arcsec (default: instrument default)")
	cmd.Flags().Float64Var(&params.DitherSpace, "dither", 2.5, "dither space in arcsec")
	cmd.Flags().IntVar(&params.MinimumAlignmentStars, "min-stars", 3, "minimum alignment stars")
	cmd.Flags().Float64Var(&params.AlignmentStarEdgeBuffer, "edge-buffer", 0.5, "alignment star edge buffer in arcsec")
	cmd.Flags().Float64Var(&params.XCenter, "x-center", 0, "search center offset in arcmin")
	cmd.Flags().Float64Var(&params.XRange, "x-range", 3, "search range in arcmin")
	cmd.Flags().BoolVar(&noReassign, "no-reassign", false, "skip the unused-row reassignment pass")
	cmd.Flags().BoolVar(&export, "export", false, "write every output product")
	cmd.Flags().StringVar(&output, "output", "", "product directory (default: paths.output_dir)")

	return cmd
}

func newLongSlitCmd(root *Root) *cobra.Command {
	var (
		length int
		width  float64
		output string
	)

	cmd := &cobra.Command{
		Use:   "longslit",
		Short: "Write a long-slit preset mask",
		Long: `Build a centered long slit spanning the given number of rows, plus one
alignment slit. Presets are never stored, so their products are written
immediately.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _, err := root.svc.LongSlit(length, width)
			if err != nil {
				return err
			}
			return exportAll(cmd, root, id, output)
		},
	}

	cmd.Flags().IntVar(&length, "length", 46, "slit length in bar rows")
	cmd.Flags().Float64Var(&width, "width", 0.7, "slit width in arcsec")
	cmd.Flags().StringVar(&output, "output", "", "product directory (default: paths.output_dir)")

	return cmd
}

func newOpenCmd(root *Root) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "open",
		Short: "Write the open-mask preset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _, err := root.svc.OpenMask()
			if err != nil {
				return err
			}
			return exportAll(cmd, root, id, output)
		},
	}

	cmd.Flags().StringVar(&output, "output", "", "product directory (default: paths.output_dir)")

	return cmd
}

func newImportCmd(root *Root) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.xml|pointing.yaml>",
		Short: "Import an MSC document or pointing file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, warnings, err := root.svc.Import(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, w := range warnings {
				fmt.Fprintf(out, "warning: %s\n", w)
			}
			view, err := root.svc.View(id)
			if err != nil {
				return err
			}
			printSummary(out, view)
			return nil
		},
	}
}

func newBatchCmd(root *Root) *cobra.Command {
	var (
		workers int
		output  string
		export  bool
	)

	cmd := &cobra.Command{
		Use:   "batch <dir>",
		Short: "Import every document and pointing file under a directory",
		Long: `Walk a directory and import every MSC XML document and YAML pointing file
in parallel. Pointing files are generated, so large batches benefit from
more workers.

Examples:
  slitmask batch ./night1 --workers 4 --export --output ./night1/products`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := fsutil.ListDocuments(args[0])
			if err != nil {
				return fmt.Errorf("scanning %s: %w", args[0], err)
			}
			if len(files) == 0 {
				return fmt.Errorf("no mask documents or pointing files under %s", args[0])
			}
			if export && output == "" {
				output = root.cfg.Paths.OutputDir
			}
			if !export {
				output = ""
			}

			ctx, cancel := root.ctxFn()
			defer cancel()

			p := pipeline.New(ctx, workers, root.log, root.svc)
			defer p.Stop()
			results, unsub := p.Subscribe(len(files))
			defer unsub()

			queueErr := make(chan error, 1)
			go func() {
				for _, path := range files {
					job, err := pipeline.NewJob(path, output)
					if err == nil {
						err = p.Submit(ctx, job)
					}
					if err != nil {
						queueErr <- fmt.Errorf("queueing %s: %w", path, err)
						return
					}
				}
			}()

			out := cmd.OutOrStdout()
			failed := 0
			for range files {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case err := <-queueErr:
					return err
				case res := <-results:
					name, _ := filepath.Rel(args[0], res.Job.InputPath)
					if res.Error != nil {
						failed++
						fmt.Fprintf(out, "FAIL  %s: %v\n", name, res.Error)
						continue
					}
					fmt.Fprintf(out, "OK    %s -> %s (%d products, %s)\n",
						name, res.MaskID, len(res.Products), res.Duration.Round(time.Millisecond))
				}
			}
			fmt.Fprintf(out, "%d imported, %d failed\n", len(files)-failed, failed)
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(files))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&workers, "workers", 4, "concurrent imports")
	cmd.Flags().BoolVar(&export, "export", false, "write every output product for each mask")
	cmd.Flags().StringVar(&output, "output", "", "product directory (default: paths.output_dir)")

	return cmd
}

func newShowCmd(root *Root) *cobra.Command {
	var slits bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a stored mask",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := root.svc.View(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printSummary(out, view)
			if slits {
				fmt.Fprintln(out)
				printSlits(out, view)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&slits, "slits", true, "list science and alignment slits")

	return cmd
}

func newListCmd(root *Root) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored masks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			masks, err := root.svc.List(limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tSCIENCE\tALIGN\tPRIORITY\tUPDATED")
			for _, m := range masks {
				updated := "-"
				if !m.UpdatedAt.IsZero() {
					updated = m.UpdatedAt.Local().Format("2006-01-02 15:04")
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%g\t%s\n",
					m.ID, m.Name, m.Status, m.ScienceSlits, m.AlignmentSlits, m.TotalPriority, updated)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum masks to list")

	return cmd
}

func newHistoryCmd(root *Root) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history <id>",
		Short: "Show the edit history of a stored mask",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := root.svc.History(args[0], limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, ev := range events {
				fmt.Fprintf(out, "%s  %-10s %s\n", ev.CreatedAt.Local().Format("2006-01-02 15:04:05"), ev.EventType, ev.Detail)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 100, "maximum events to show")

	return cmd
}

func newEditCmd(root *Root) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit",
		Short: "Edit slits of a stored mask",
		Long: `Edit a stored mask in place. Edits that would drive a bar past its travel
limit are rejected and leave the mask unchanged. Rows are numbered from 1.`,
	}

	var offset float64
	widthCmd := &cobra.Command{
		Use:   "width <id>",
		Short: "Widen or narrow every slit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := root.svc.IncrementWidth(args[0], offset)
			if err != nil {
				return err
			}
			printEdit(cmd.OutOrStdout(), res)
			return nil
		},
	}
	widthCmd.Flags().Float64Var(&offset, "offset", 0, "width change in arcsec")
	widthCmd.MarkFlagRequired("offset")

	slitWidthCmd := &cobra.Command{
		Use:   "slit-width <id> <row> <width>",
		Short: "Set the width of one science slit",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			row, err := parseRow(args[1])
			if err != nil {
				return err
			}
			width, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return fmt.Errorf("invalid width %q", args[2])
			}
			res, err := root.svc.SetWidth(args[0], row, width)
			if err != nil {
				return err
			}
			printEdit(cmd.OutOrStdout(), res)
			return nil
		},
	}

	var above bool
	alignCmd := &cobra.Command{
		Use:   "align <id> <row>",
		Short: "Give a row to the neighbouring slit",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			row, err := parseRow(args[1])
			if err != nil {
				return err
			}
			res, err := root.svc.Align(args[0], row, above)
			if err != nil {
				return err
			}
			printEdit(cmd.OutOrStdout(), res)
			return nil
		},
	}
	alignCmd.Flags().BoolVar(&above, "above", false, "merge into the slit above instead of below")

	moveCmd := &cobra.Command{
		Use:   "move <id> <row> <target>",
		Short: "Re-center a slit on another target",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			row, err := parseRow(args[1])
			if err != nil {
				return err
			}
			res, err := root.svc.Move(args[0], row, args[2])
			if err != nil {
				return err
			}
			printEdit(cmd.OutOrStdout(), res)
			return nil
		},
	}

	cmd.AddCommand(widthCmd, slitWidthCmd, alignCmd, moveCmd)
	return cmd
}

func newExportCmd(root *Root) *cobra.Command {
	var (
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Write output products for a mask",
		Long: `Write one output product, or all of them with --format all.

Formats: xml, fits, align-fits, regions, starlist, slitlist, script,
align-script, coords, all-coords, excess-coords.

Use --output - to write a single product to stdout.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			if format == "all" {
				return exportAll(cmd, root, id, output)
			}
			f, err := maskio.ParseFormat(format)
			if err != nil {
				return err
			}
			if output == "-" {
				return root.svc.Export(id, f, cmd.OutOrStdout())
			}

			c, err := root.svc.Get(id)
			if err != nil {
				return err
			}
			dir := output
			if dir == "" {
				dir = root.cfg.Paths.OutputDir
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("creating output directory: %w", err)
			}
			path := filepath.Join(dir, f.FileName(c.MaskName))
			file, err := os.Create(path)
			if err != nil {
				return err
			}
			if err := root.svc.Export(id, f, file); err != nil {
				file.Close()
				return err
			}
			if err := file.Close(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "all", "product format, or all")
	cmd.Flags().StringVar(&output, "output", "", "product directory (default: paths.output_dir)")

	return cmd
}

func exportAll(cmd *cobra.Command, root *Root, id, dir string) error {
	if dir == "" {
		dir = root.cfg.Paths.OutputDir
	}
	written, err := root.svc.ExportAll(id, dir)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, p := range written {
		fmt.Fprintln(out, p)
	}
	return nil
}

func newServeCmd(root *Root) *cobra.Command {
	var (
		addr     string
		grpcAddr string
		watchDir string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API with live edit events",
		Long: `Start an HTTP server exposing the mask API, Prometheus metrics and a
websocket event stream. Optionally also serves gRPC and imports documents
dropped into a watch directory.

Examples:
  # HTTP only
  slitmask serve --addr :8080

  # HTTP, gRPC and a drop directory
  slitmask serve --addr :8080 --grpc :9090 --watch ./incoming`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := root.ctxFn()
			defer cancel()

			w, err := root.newWatcher(watchDir)
			if err != nil {
				return fmt.Errorf("failed to create watcher: %w", err)
			}

			root.log.Info("starting server",
				"addr", addr,
				"grpc_addr", grpcAddr,
				"watch_dir", watchDir,
			)

			errc := make(chan error, 1)
			if grpcAddr != "" {
				go func() {
					if err := root.grpcFn(ctx, grpcAddr, root.svc, root.log); err != nil {
						errc <- err
						cancel()
					}
				}()
			}
			if err := root.serveFn(ctx, addr, root.svc, w, root.log); err != nil {
				return err
			}
			select {
			case err := <-errc:
				return err
			default:
				return nil
			}
		},
	}

	cmd.Flags().StringVar(&addr, "addr", root.cfg.Server.Addr, "server address (host:port)")
	cmd.Flags().StringVar(&grpcAddr, "grpc", "", "also serve gRPC on this address")
	cmd.Flags().StringVar(&watchDir, "watch", "", "directory to import dropped documents from (default: watch.dir)")

	return cmd
}

func newGRPCCmd(root *Root) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "grpc",
		Short: "Start the gRPC mask service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := root.ctxFn()
			defer cancel()
			root.log.Info("starting gRPC server", "addr", addr)
			return root.grpcFn(ctx, addr, root.svc, root.log)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", root.cfg.GRPC.Addr, "gRPC listen address")

	return cmd
}

func newWatchCmd(root *Root) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Import documents dropped into a directory",
		Long: `Watch a directory and import every MSC XML document or YAML pointing file
written to it. With watch.export enabled all products are written to
paths.output_dir.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			w, err := root.newWatcher(dir)
			if err != nil {
				return err
			}
			if w == nil {
				return fmt.Errorf("no watch directory: pass one or set watch.dir")
			}

			ctx, cancel := root.ctxFn()
			defer cancel()
			if err := w.Start(ctx); err != nil {
				return err
			}
			go func() {
				<-ctx.Done()
				w.Stop()
			}()

			out := cmd.OutOrStdout()
			for res := range w.Results {
				if res.Err != nil {
					fmt.Fprintf(out, "%s: %v\n", filepath.Base(res.Path), res.Err)
					continue
				}
				fmt.Fprintf(out, "%s: imported as %s (%d warnings, %d products)\n",
					filepath.Base(res.Path), res.MaskID, len(res.Warnings), len(res.Products))
			}
			return nil
		},
	}
	return cmd
}

func newVersionCmd(root *Root) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			printVersion(cmd.OutOrStdout(), root)
		},
	}
}
