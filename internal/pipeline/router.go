package pipeline

import (
	"context"
	"fmt"
	"log/slog"
)

// Importer is the slice of the mask service a batch needs.
type Importer interface {
	Import(path string) (id string, warnings []string, err error)
	ExportAll(id, dir string) ([]string, error)
}

// router implements Processor and routes jobs to their concrete handlers.
type router struct {
	log *slog.Logger
	imp Importer
}

func newRouter(logger *slog.Logger, imp Importer) Processor {
	return &router{log: logger, imp: imp}
}

func (r *router) Process(ctx context.Context, job Job) Result {
	if err := ctx.Err(); err != nil {
		return Result{Job: job, Error: err}
	}
	switch job.Type {
	case JobDocument:
		return r.handleDocument(job)
	case JobPointing:
		return r.handlePointing(job)
	default:
		return Result{Job: job, Error: fmt.Errorf("unknown job type: %s", job.Type)}
	}
}

func (r *router) handleDocument(job Job) Result {
	res := r.importFile(job)
	if res.Error == nil && len(res.Warnings) > 0 {
		r.log.Warn("document parsed with warnings", "input", job.InputPath, "warnings", len(res.Warnings))
	}
	return r.export(res)
}

// handlePointing generates a new layout, so a failure here is usually a bad
// target list rather than a bad document.
func (r *router) handlePointing(job Job) Result {
	res := r.importFile(job)
	if res.Error != nil {
		res.Error = fmt.Errorf("generating from %s: %w", job.InputPath, res.Error)
	}
	return r.export(res)
}

func (r *router) importFile(job Job) Result {
	res := Result{Job: job}
	res.MaskID, res.Warnings, res.Error = r.imp.Import(job.InputPath)
	return res
}

func (r *router) export(res Result) Result {
	if res.Error != nil || res.Job.Output == "" {
		return res
	}
	res.Products, res.Error = r.imp.ExportAll(res.MaskID, res.Job.Output)
	if res.Error != nil {
		res.Error = fmt.Errorf("exporting %s: %w", res.MaskID, res.Error)
	}
	return res
}
