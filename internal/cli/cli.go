package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"slitmask/internal/config"
	"slitmask/internal/grpcserver"
	"slitmask/internal/server"
	"slitmask/internal/service"
	"slitmask/internal/watcher"
)

type serverFunc func(ctx context.Context, addr string, svc *service.Service, w *watcher.Watcher, log *slog.Logger) error

func defaultServe(ctx context.Context, addr string, svc *service.Service, w *watcher.Watcher, log *slog.Logger) error {
	return server.NewServer(addr, svc, w, log).Start(ctx)
}

type grpcFunc func(ctx context.Context, addr string, svc *service.Service, log *slog.Logger) error

func defaultGRPC(ctx context.Context, addr string, svc *service.Service, log *slog.Logger) error {
	return grpcserver.New(svc, log).Serve(ctx, addr)
}

// Root wires CLI commands to the mask service.
type Root struct {
	cfg     *config.Config
	log     *slog.Logger
	svc     *service.Service
	serveFn serverFunc
	grpcFn  grpcFunc
	ctxFn   func() (context.Context, context.CancelFunc)
}

// NewRoot constructs the shared state behind every subcommand.
func NewRoot(cfg *config.Config, logger *slog.Logger, svc *service.Service) *Root {
	return &Root{
		cfg:     cfg,
		log:     logger,
		svc:     svc,
		serveFn: defaultServe,
		grpcFn:  defaultGRPC,
		ctxFn:   signalContext,
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// newWatcher builds the drop-directory watcher from config. dir overrides
// the configured directory; nil means watching is disabled.
func (r *Root) newWatcher(dir string) (*watcher.Watcher, error) {
	if dir == "" {
		dir = r.cfg.Watch.Dir
	}
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating watch directory: %w", err)
	}
	outDir := ""
	if r.cfg.Watch.Export {
		outDir = r.cfg.Paths.OutputDir
	}
	debounce := time.Duration(r.cfg.Watch.DebounceMS) * time.Millisecond
	return watcher.New(dir, outDir, debounce, r.svc, r.log)
}

func parseRow(s string) (int, error) {
	row, err := strconv.Atoi(s)
	if err != nil || row < 1 {
		return 0, fmt.Errorf("invalid row %q: rows are numbered from 1", s)
	}
	return row, nil
}

func printSummary(w io.Writer, v service.MaskView) {
	fmt.Fprintf(w, "Mask:       %s (%s)\n", v.Name, v.ID)
	fmt.Fprintf(w, "Status:     %s\n", v.Status)
	fmt.Fprintf(w, "Center:     %s  PA %.2f\n", v.Center, v.PositionAngle)
	fmt.Fprintf(w, "Science:    %d slits, total priority %g\n", v.ScienceSlits, v.TotalPriority)
	fmt.Fprintf(w, "Alignment:  %d slits\n", v.AlignmentSlits)
	if v.InvalidSlits {
		fmt.Fprintf(w, "Warning:    one or more slits exceed the slit-width tolerance\n")
	}
	if len(v.ExcessTargets) > 0 {
		fmt.Fprintf(w, "Unplaced:   %d targets\n", len(v.ExcessTargets))
	}
}

func printSlits(w io.Writer, v service.MaskView) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROW\tTARGET\tPRIORITY\tCENTER\tWIDTH\tLENGTH\tVALID")
	for _, s := range v.Science {
		fmt.Fprintf(tw, "%d\t%s\t%g\t%s\t%.3f\t%.2f\t%t\n",
			s.Number, s.Target, s.Priority, s.Center, s.Width, s.Length, s.Valid)
	}
	tw.Flush()

	if len(v.Alignment) == 0 {
		return
	}
	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ALIGN\tSTAR\tCENTER_MM\tWIDTH\tBARS")
	for _, a := range v.Alignment {
		fmt.Fprintf(tw, "%d\t%s\t%.3f\t%.3f\t%d/%d\n",
			a.Number, a.Target, a.CenterPosition, a.Width, a.LeftBar, a.RightBar)
	}
	tw.Flush()
}

func printEdit(w io.Writer, res service.EditResult) {
	if !res.Applied {
		fmt.Fprintf(w, "edit rejected, %s unchanged\n", res.Summary.Name)
		return
	}
	if res.AppliedWidth != 0 {
		fmt.Fprintf(w, "applied width %.3f arcsec\n", res.AppliedWidth)
	}
	fmt.Fprintf(w, "%s is now %s\n", res.Summary.Name, res.Summary.Status)
}
