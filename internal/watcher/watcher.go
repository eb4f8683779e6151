// Package watcher imports mask documents and pointing files dropped into a
// directory.
package watcher

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"slitmask/internal/fsutil"

	"github.com/fsnotify/fsnotify"
)

// Importer turns a file into a stored mask and optionally writes its products.
type Importer interface {
	Import(path string) (id string, warnings []string, err error)
	ExportAll(id, dir string) ([]string, error)
}

// Result reports one import attempt.
type Result struct {
	Path     string    `json:"path"`
	MaskID   string    `json:"mask_id,omitempty"`
	Warnings []string  `json:"warnings,omitempty"`
	Products []string  `json:"products,omitempty"`
	Err      error     `json:"-"`
	Time     time.Time `json:"time"`
}

// Watcher monitors one directory. A file is imported once it has been quiet
// for the debounce interval, so half-written files are not read.
type Watcher struct {
	fsw      *fsnotify.Watcher
	dir      string
	outDir   string
	debounce time.Duration
	imp      Importer
	log      *slog.Logger

	Results chan Result

	pending  map[string]time.Time
	written  map[string]bool
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a watcher on dir. When outDir is set every imported mask has its
// products written there.
func New(dir, outDir string, debounce time.Duration, imp Importer, log *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	if log == nil {
		log = slog.Default()
	}
	return &Watcher{
		fsw:      fsw,
		dir:      dir,
		outDir:   outDir,
		debounce: debounce,
		imp:      imp,
		log:      log,
		Results:  make(chan Result, 16),
		pending:  make(map[string]time.Time),
		written:  make(map[string]bool),
		done:     make(chan struct{}),
	}, nil
}

// Start begins monitoring until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.fsw.Add(w.dir); err != nil {
		return err
	}
	w.log.Info("Watching directory", "dir", w.dir, "debounce", w.debounce)
	w.wg.Add(1)
	go w.processEvents(ctx)
	return nil
}

// Stop stops the watcher and closes Results.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.fsw.Close()
		w.wg.Wait()
		close(w.Results)
	})
	return err
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !fsutil.IsImportable(event.Name) || w.written[event.Name] {
				continue
			}
			w.pending[event.Name] = time.Now()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("Filesystem watcher error", "error", err)

		case now := <-ticker.C:
			for path, last := range w.pending {
				if now.Sub(last) < w.debounce {
					continue
				}
				delete(w.pending, path)
				w.emit(w.importFile(path))
			}

		case <-ctx.Done():
			return
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) importFile(path string) Result {
	res := Result{Path: path, Time: time.Now()}
	res.MaskID, res.Warnings, res.Err = w.imp.Import(path)
	if res.Err != nil {
		w.log.Error("import failed", "path", path, "error", res.Err)
		return res
	}
	w.log.Info("mask imported", "path", path, "id", res.MaskID, "warnings", len(res.Warnings))
	if w.outDir == "" {
		return res
	}
	res.Products, res.Err = w.imp.ExportAll(res.MaskID, w.outDir)
	for _, p := range res.Products {
		if abs, err := filepath.Abs(p); err == nil {
			w.written[abs] = true
		}
		w.written[p] = true
	}
	if res.Err != nil {
		w.log.Error("export failed", "id", res.MaskID, "dir", w.outDir, "error", res.Err)
	}
	return res
}

func (w *Watcher) emit(res Result) {
	select {
	case w.Results <- res:
	default:
		w.log.Warn("Result buffer full, dropping result", "path", res.Path)
	}
}
