package service

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"slitmask/internal/instrument"
	"slitmask/internal/logging"
	"slitmask/internal/mask"
	"slitmask/internal/maskio"
	"slitmask/internal/storage"
	"slitmask/internal/targets"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	masksCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slitmask_masks_created_total",
		Help: "Mask configurations created by origin",
	}, []string{"origin"})

	generateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "slitmask_generate_duration_seconds",
		Help:    "Time spent laying out a mask",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	})

	editsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slitmask_edits_total",
		Help: "Interactive edits by kind and result",
	}, []string{"edit", "result"})

	exportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slitmask_exports_total",
		Help: "Exports by format; all counts full product sets",
	}, []string{"format"})
)

// ErrNotFound is returned for ids that name no mask.
var ErrNotFound = storage.ErrNotFound

// Event is published to subscribers after every change.
type Event struct {
	MaskID string      `json:"mask_id"`
	Kind   string      `json:"kind"`
	Status mask.Status `json:"status"`
	Detail string      `json:"detail,omitempty"`
	Time   time.Time   `json:"time"`
}

// Summary describes one mask without its slit lists.
type Summary struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Status         mask.Status `json:"status"`
	ScienceSlits   int         `json:"science_slits"`
	AlignmentSlits int         `json:"alignment_slits"`
	TotalPriority  float64     `json:"total_priority"`
	InvalidSlits   bool        `json:"invalid_slits"`
	Stored         bool        `json:"stored"`
	UpdatedAt      time.Time   `json:"updated_at,omitzero"`
}

func summarize(id string, c *mask.Configuration, stored bool) Summary {
	return Summary{
		ID:             id,
		Name:           c.MaskName,
		Status:         c.Status,
		ScienceSlits:   len(c.Science),
		AlignmentSlits: len(c.Alignment),
		TotalPriority:  c.Pointing.TotalPriority,
		InvalidSlits:   c.HasInvalidSlits(),
		Stored:         stored,
	}
}

// Service owns mask configurations for every front end. Saveable masks live in
// the store; presets, and everything when no store is configured, are kept in
// memory for the life of the process. Mutations are serialized.
type Service struct {
	inst  instrument.Params
	store *storage.Store
	log   *slog.Logger

	mu      sync.Mutex
	scratch map[string]*mask.Configuration

	subMu     sync.Mutex
	subs      map[int]chan Event
	nextSubID int
}

// New returns a Service for inst. store may be nil.
func New(inst instrument.Params, store *storage.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		inst:    inst,
		store:   store,
		log:     logger,
		scratch: make(map[string]*mask.Configuration),
		subs:    make(map[int]chan Event),
	}
}

// Instrument returns the geometry masks are built for.
func (s *Service) Instrument() instrument.Params { return s.inst }

// GenerateRequest is the wire form of a generation job.
type GenerateRequest struct {
	RA            string          `json:"ra"`
	Dec           string          `json:"dec"`
	PositionAngle float64         `json:"position_angle"`
	Targets       string          `json:"targets"` // coords lines, negative priority for alignment stars
	Params        mask.EditParams `json:"params"`
	Reassign      *bool           `json:"reassign,omitempty"`
}

// Job parses the request into a generation job.
func (r GenerateRequest) Job(inst instrument.Params) (targets.Job, error) {
	list, err := targets.ReadList(strings.NewReader(r.Targets))
	if err != nil {
		return targets.Job{}, err
	}
	var pf targets.PointingFile
	pf.Center.RA = r.RA
	pf.Center.Dec = r.Dec
	pf.PositionAngle = r.PositionAngle
	pf.Params = r.Params
	pf.Reassign = r.Reassign
	return pf.Job(list, inst)
}

// Generate lays out a new mask and stores it.
func (s *Service) Generate(job targets.Job) (string, *mask.Configuration, error) {
	start := time.Now()
	c := mask.Generate(s.inst, job.Pointing, job.Params, job.Reassign)
	elapsed := time.Since(start)
	generateDuration.Observe(elapsed.Seconds())

	s.mu.Lock()
	id, err := s.persist("", c)
	s.mu.Unlock()
	if err != nil {
		return "", nil, err
	}
	masksCreated.WithLabelValues("generated").Inc()
	logging.LogMaskGenerated(s.log, id, c.MaskName, len(c.Science), len(c.Alignment), c.Pointing.TotalPriority, elapsed)
	s.record(id, c, "generated", fmt.Sprintf("%d science slits, %d alignment slits", len(c.Science), len(c.Alignment)))
	return id, c, nil
}

// LongSlit creates an unsaveable long-slit preset.
func (s *Service) LongSlit(length int, width float64) (string, *mask.Configuration, error) {
	if length < 1 || length > s.inst.NumberOfBarPairs {
		return "", nil, fmt.Errorf("long slit length %d outside 1..%d", length, s.inst.NumberOfBarPairs)
	}
	if width < s.inst.MinimumSlitWidth {
		return "", nil, fmt.Errorf("long slit width %.2f below minimum %.2f", width, s.inst.MinimumSlitWidth)
	}
	return s.preset("longslit", mask.LongSlit(s.inst, length, width))
}

// OpenMask creates an unsaveable open-mask preset.
func (s *Service) OpenMask() (string, *mask.Configuration, error) {
	return s.preset("open", mask.OpenMask(s.inst))
}

func (s *Service) preset(origin string, c *mask.Configuration) (string, *mask.Configuration, error) {
	s.mu.Lock()
	id, err := s.persist("", c)
	s.mu.Unlock()
	if err != nil {
		return "", nil, err
	}
	masksCreated.WithLabelValues(origin).Inc()
	s.log.Info("preset created", "id", id, "name", c.MaskName)
	s.record(id, c, origin, c.MaskName)
	return id, c, nil
}

// Import reads a mask document (.xml) or a pointing file (.yaml, .yml) and
// stores the result. Warnings from lenient parsing are returned.
func (s *Service) Import(path string) (string, []string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xml":
		c, warnings, err := maskio.ReadXMLFile(path, s.inst)
		if err != nil {
			return "", nil, err
		}
		for _, w := range warnings {
			s.log.Warn("import warning", "path", path, "warning", w)
		}
		s.mu.Lock()
		id, err := s.persist("", c)
		s.mu.Unlock()
		if err != nil {
			return "", warnings, err
		}
		masksCreated.WithLabelValues("imported").Inc()
		s.record(id, c, "imported", path)
		return id, warnings, nil
	case ".yaml", ".yml":
		job, err := targets.LoadPointing(path, s.inst)
		if err != nil {
			return "", nil, err
		}
		id, _, err := s.Generate(job)
		return id, nil, err
	}
	return "", nil, fmt.Errorf("cannot import %s: unsupported file type", path)
}

// Get returns a copy of the mask stored under id.
func (s *Service) Get(id string) (*mask.Configuration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.load(id)
	if err != nil {
		return nil, err
	}
	return c.Clone(), nil
}

// List summarizes in-memory masks followed by stored ones, newest first.
func (s *Service) List(limit int) ([]Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Summary, 0, len(s.scratch))
	for id, c := range s.scratch {
		out = append(out, summarize(id, c, false))
	}
	slices.SortFunc(out, func(a, b Summary) int { return strings.Compare(a.ID, b.ID) })
	if s.store == nil {
		return out, nil
	}
	recs, err := s.store.ListMasks(limit)
	if err != nil {
		return nil, fmt.Errorf("listing masks: %w", err)
	}
	for _, r := range recs {
		out = append(out, Summary{
			ID:             r.ID,
			Name:           r.MaskName,
			Status:         mask.StatusSaved,
			ScienceSlits:   r.ScienceSlits,
			AlignmentSlits: r.AlignmentSlits,
			TotalPriority:  r.TotalPriority,
			InvalidSlits:   r.InvalidSlits,
			Stored:         true,
			UpdatedAt:      r.UpdatedAt,
		})
	}
	return out, nil
}

// History returns the stored event log of id.
func (s *Service) History(id string, limit int) ([]storage.EventRecord, error) {
	if s.store == nil {
		return nil, nil
	}
	return s.store.Events(id, limit)
}

// Export writes one product of mask id to w.
func (s *Service) Export(id string, f maskio.Format, w io.Writer) error {
	c, err := s.Get(id)
	if err != nil {
		return err
	}
	if err := maskio.Export(w, c, f); err != nil {
		return fmt.Errorf("exporting %s as %s: %w", id, f, err)
	}
	exportsTotal.WithLabelValues(string(f)).Inc()
	return nil
}

// ExportAll writes every product of mask id into dir.
func (s *Service) ExportAll(id, dir string) ([]string, error) {
	c, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	paths, err := maskio.WriteProducts(dir, c)
	exportsTotal.WithLabelValues("all").Inc()
	if err != nil {
		return paths, err
	}
	s.publish(Event{MaskID: id, Kind: "exported", Status: c.Status, Detail: dir})
	return paths, nil
}

// Subscribe returns a channel of change events and an unsubscribe function.
func (s *Service) Subscribe() (<-chan Event, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	ch := make(chan Event, 16)
	s.subs[id] = ch
	unsub := func() {
		s.subMu.Lock()
		if c, ok := s.subs[id]; ok {
			close(c)
			delete(s.subs, id)
		}
		s.subMu.Unlock()
	}
	return ch, unsub
}

// Close drops every subscriber.
func (s *Service) Close() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
}

func (s *Service) publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for id, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			s.log.Warn("event channel full", "subscriber", id, "mask", ev.MaskID)
		}
	}
}

// record publishes an event and appends it to the stored history.
func (s *Service) record(id string, c *mask.Configuration, kind, detail string) {
	ev := Event{MaskID: id, Kind: kind, Status: c.Status, Detail: detail}
	if c.Saveable() && s.store != nil {
		if err := s.store.RecordEvent(storage.EventRecord{MaskID: id, EventType: kind, Detail: detail}); err != nil {
			s.log.Warn("recording event failed", "id", id, "error", err)
		}
	}
	s.publish(ev)
}

// persist stores c under id (new when empty). A mask that started in memory
// stays there even once an edit makes it saveable. Callers hold s.mu.
func (s *Service) persist(id string, c *mask.Configuration) (string, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if _, inMemory := s.scratch[id]; inMemory || s.store == nil || !c.Saveable() {
		s.scratch[id] = c
		return id, nil
	}
	if _, err := s.store.SaveMask(id, c); err != nil {
		return "", err
	}
	return id, nil
}

// load finds id in memory or the store. Callers hold s.mu.
func (s *Service) load(id string) (*mask.Configuration, error) {
	if c, ok := s.scratch[id]; ok {
		return c, nil
	}
	if s.store == nil {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	c, err := s.store.LoadMask(id, s.inst)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// IsNotFound reports whether err means an unknown mask id.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
