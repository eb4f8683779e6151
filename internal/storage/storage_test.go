package storage

import (
	"errors"
	"path/filepath"
	"testing"

	"slitmask/internal/coords"
	"slitmask/internal/instrument"
	"slitmask/internal/mask"

	"gonum.org/v1/gonum/spatial/r2"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "masks.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func generated(t *testing.T) *mask.Configuration {
	t.Helper()
	inst := instrument.Default()
	p := mask.Pointing{Center: coords.NewRaDec(3, 15, 0, -10, 30, 0), PositionAngle: 45}
	proj := p.Projector()
	at := func(name string, prio, x float64, row int) *mask.Target {
		return &mask.Target{
			Name: name, Priority: prio, Magnitude: 21, Epoch: 2000, Equinox: 2000,
			Coord: proj.ToSky(r2.Vec{X: x, Y: inst.SlitCenterY(row, 1)}),
		}
	}
	p.Targets = []*mask.Target{at("g1", 10, 0, 8), at("g2", 3, 20, 30)}
	p.OriginalTargets = append(append([]*mask.Target{}, p.Targets...), at("spare", 1, 900, 12))
	return mask.Generate(inst, p, mask.EditParams{MaskName: "deep", SlitWidth: 0.7, DitherSpace: 2.5}, true)
}

func TestSaveAndLoadMask(t *testing.T) {
	s := newTestStore(t)
	c := generated(t)

	id, err := s.SaveMask("", c)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if id == "" {
		t.Fatal("expected generated id")
	}
	if c.Status != mask.StatusSaved {
		t.Fatalf("status = %s, want saved", c.Status)
	}

	got, err := s.LoadMask(id, instrument.Default())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.MaskName != "deep" || len(got.Science) != len(c.Science) {
		t.Fatalf("loaded %s with %d slits", got.MaskName, len(got.Science))
	}
	if len(got.Pointing.OriginalTargets) != 3 {
		t.Fatalf("original targets = %d, want 3", len(got.Pointing.OriginalTargets))
	}
	excess := got.ExcessTargets()
	if len(excess) != 1 || excess[0].Name != "spare" {
		t.Fatalf("excess = %v", excess)
	}
}

func TestSaveMaskUpdatesInPlace(t *testing.T) {
	s := newTestStore(t)
	c := generated(t)
	id, err := s.SaveMask("", c)
	if err != nil {
		t.Fatal(err)
	}
	c.SetMaskName("renamed")
	if _, err := s.SaveMask(id, c); err != nil {
		t.Fatal(err)
	}
	recs, err := s.ListMasks(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].MaskName != "renamed" {
		t.Fatalf("records = %+v", recs)
	}
	if recs[0].Instrument != "MOSFIRE" || recs[0].ScienceSlits != len(c.Science) {
		t.Fatalf("summary = %+v", recs[0])
	}
}

func TestSaveMaskRefusesPresets(t *testing.T) {
	s := newTestStore(t)
	_, err := s.SaveMask("", mask.LongSlit(instrument.Default(), 11, 1))
	if !errors.Is(err, mask.ErrUnsaveable) {
		t.Fatalf("err = %v, want ErrUnsaveable", err)
	}
}

func TestLoadMaskNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.LoadMask("missing", instrument.Default()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if err := s.DeleteMask("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("delete err = %v, want ErrNotFound", err)
	}
}

func TestEventsAndDelete(t *testing.T) {
	s := newTestStore(t)
	id, err := s.SaveMask("", generated(t))
	if err != nil {
		t.Fatal(err)
	}
	for _, kind := range []string{"generated", "width"} {
		if err := s.RecordEvent(EventRecord{MaskID: id, EventType: kind, Detail: "d"}); err != nil {
			t.Fatal(err)
		}
	}
	evs, err := s.Events(id, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(evs) != 2 || evs[0].EventType != "generated" || evs[1].EventType != "width" {
		t.Fatalf("events = %+v", evs)
	}

	if err := s.DeleteMask(id); err != nil {
		t.Fatal(err)
	}
	evs, _ = s.Events(id, 10)
	if len(evs) != 0 {
		t.Fatalf("events survived delete: %+v", evs)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open("postgres", "x"); err == nil {
		t.Fatal("expected error")
	}
}

func TestNilStore(t *testing.T) {
	var s *Store
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordEvent(EventRecord{}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ListMasks(1); err == nil {
		t.Fatal("expected error from nil store")
	}
}
