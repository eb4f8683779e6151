package service

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"slitmask/internal/instrument"
	"slitmask/internal/mask"
	"slitmask/internal/maskio"
	"slitmask/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fieldTargets = `t1 10 20 10 30 00.0 +20 00 00 2000 2000
t2  5 20 10 30 02.0 +20 01 00 2000 2000
t3  8 20 10 29 58.0 +19 58 30 2000 2000
spare 1 22 10 30 00.0 +20 10 00 2000 2000
s1 -1 15 10 30 05.0 +20 02 00 2000 2000
s2 -1 15 10 29 55.0 +19 58 00 2000 2000
`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newService(t *testing.T, withStore bool) *Service {
	t.Helper()
	var store *storage.Store
	if withStore {
		var err error
		store, err = storage.New(filepath.Join(t.TempDir(), "masks.db"))
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })
	}
	s := New(instrument.Default(), store, quietLogger())
	t.Cleanup(s.Close)
	return s
}

func generate(t *testing.T, s *Service) (string, *mask.Configuration) {
	t.Helper()
	req := GenerateRequest{
		RA:      "10:30:00.0",
		Dec:     "+20:00:00.0",
		Targets: fieldTargets,
		Params:  mask.EditParams{MaskName: "field", DitherSpace: 2.5, MinimumAlignmentStars: 2, AlignmentStarEdgeBuffer: 0.5},
	}
	job, err := req.Job(s.Instrument())
	require.NoError(t, err)
	assert.True(t, job.Reassign)
	assert.Equal(t, 0.7, job.Params.SlitWidth)

	id, c, err := s.Generate(job)
	require.NoError(t, err)
	require.Len(t, c.Science, 3)
	return id, c
}

func nextEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event")
		return Event{}
	}
}

func TestGenerateStoresMask(t *testing.T) {
	s := newService(t, true)
	events, unsub := s.Subscribe()
	defer unsub()

	id, _ := generate(t, s)
	ev := nextEvent(t, events)
	assert.Equal(t, id, ev.MaskID)
	assert.Equal(t, "generated", ev.Kind)
	assert.Equal(t, mask.StatusSaved, ev.Status)

	got, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "field", got.MaskName)
	var excess []string
	for _, tg := range got.ExcessTargets() {
		excess = append(excess, tg.Name)
	}
	assert.Contains(t, excess, "spare")

	list, err := s.List(10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Stored)
	assert.Equal(t, 3, list[0].ScienceSlits)

	hist, err := s.History(id, 10)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, "generated", hist[0].EventType)
}

func TestIncrementWidthPersists(t *testing.T) {
	s := newService(t, true)
	id, c := generate(t, s)

	res, err := s.IncrementWidth(id, 0.3)
	require.NoError(t, err)
	assert.True(t, res.Applied)

	got, err := s.Get(id)
	require.NoError(t, err)
	assert.InDelta(t, c.Mechanical[0].Width+0.3, got.Mechanical[0].Width, 5e-3)
	assert.Equal(t, mask.StatusSaved, got.Status)
}

func TestRejectedEditLeavesMaskUnchanged(t *testing.T) {
	s := newService(t, false)
	id, c := generate(t, s)
	events, unsub := s.Subscribe()
	defer unsub()

	res, err := s.IncrementWidth(id, -5)
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, "rejected", nextEvent(t, events).Kind)

	got, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, c.Mechanical[0].Width, got.Mechanical[0].Width)
	assert.Equal(t, mask.StatusNew, got.Status)
}

func TestAlignHandsRowToNeighbor(t *testing.T) {
	s := newService(t, true)
	id, c := generate(t, s)

	k := -1
	for i := 0; i+1 < len(c.Mechanical); i++ {
		if c.Mechanical[i].Target != c.Mechanical[i+1].Target && c.Mechanical[i+1].Rows > 1 {
			k = i
			break
		}
	}
	require.GreaterOrEqual(t, k, 0)

	res, err := s.Align(id, c.Mechanical[k+1].Number, true)
	require.NoError(t, err)
	assert.True(t, res.Applied)

	got, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, got.Mechanical[k].Name(), got.Mechanical[k+1].Name())
}

func TestEditLookupErrors(t *testing.T) {
	s := newService(t, true)
	id, c := generate(t, s)

	var lookup *mask.LookupError
	_, err := s.SetWidth(id, 99, 1.0)
	require.ErrorAs(t, err, &lookup)
	assert.Equal(t, 99, lookup.Row)

	_, err = s.Move(id, c.Mechanical[0].Number, "nobody")
	require.ErrorAs(t, err, &lookup)
	assert.Equal(t, "nobody", lookup.Target)

	_, err = s.Move(id, c.Mechanical[0].Number, "s1")
	require.ErrorAs(t, err, &lookup, "alignment stars are not science targets")

	_, err = s.Apply(id, Edit{Kind: "rotate"})
	require.Error(t, err)

	_, err = s.IncrementWidth("missing", 0.1)
	assert.True(t, IsNotFound(err))
}

func TestSetWidthReportsAppliedWidth(t *testing.T) {
	s := newService(t, true)
	id, c := generate(t, s)

	res, err := s.SetWidth(id, c.Mechanical[20].Number, 0.1)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, s.Instrument().MinimumSlitWidth, res.AppliedWidth)
}

func TestSetWidthRejectedNearArrayEdge(t *testing.T) {
	s := newService(t, true)
	req := GenerateRequest{
		RA:      "10:30:00.0",
		Dec:     "+20:00:00.0",
		Targets: "edge 10 20 10 30 12.7 +20 00 00 2000 2000\n",
		Params:  mask.EditParams{MaskName: "edge", DitherSpace: 2.5},
	}
	job, err := req.Job(s.Instrument())
	require.NoError(t, err)
	id, c, err := s.Generate(job)
	require.NoError(t, err)
	require.Len(t, c.Science, 1)
	before := c.Status

	row := 0
	for _, m := range c.Mechanical {
		if m.Target != nil {
			row = m.Number
			break
		}
	}
	require.NotZero(t, row)

	res, err := s.SetWidth(id, row, 1.0)
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Zero(t, res.AppliedWidth)

	got, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, before, got.Status)
	for _, m := range got.Mechanical {
		assert.Equal(t, 0.7, m.Width, "row %d", m.Number)
		assert.True(t, s.Instrument().BarsWithinTravel(m.CenterPosition, m.Width), "row %d", m.Number)
	}
}

func TestPresetsStayInMemory(t *testing.T) {
	s := newService(t, true)
	id, c, err := s.LongSlit(11, 1)
	require.NoError(t, err)
	assert.Equal(t, mask.StatusUnsaveable, c.Status)

	list, err := s.List(10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)
	assert.False(t, list[0].Stored)

	res, err := s.IncrementWidth(id, 0.5)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	got, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, 1.5, got.Mechanical[0].Width)
	assert.Equal(t, mask.StatusModified, got.Status)

	_, _, err = s.LongSlit(0, 1)
	assert.Error(t, err)
	_, _, err = s.LongSlit(5, 0.1)
	assert.Error(t, err)

	openID, _, err := s.OpenMask()
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, s.Export(openID, maskio.FormatScript, &buf))
	assert.Contains(t, buf.String(), "setupname=\"OPEN\"")
}

func TestImportXMLAndPointing(t *testing.T) {
	s := newService(t, true)
	_, c := generate(t, s)

	dir := t.TempDir()
	xmlPath := filepath.Join(dir, "field.xml")
	require.NoError(t, maskio.SaveXML(xmlPath, c))

	id, warnings, err := s.Import(xmlPath)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	got, err := s.Get(id)
	require.NoError(t, err)
	assert.Len(t, got.Science, 3)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "field.coords"), []byte(fieldTargets), 0o644))
	pointing := "center:\n  ra: \"10:30:00.0\"\n  dec: \"+20:00:00.0\"\ntarget_list: field.coords\nparams:\n  mask_name: fromyaml\n  dither_space: 2.5\n"
	yamlPath := filepath.Join(dir, "field.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(pointing), 0o644))
	id, _, err = s.Import(yamlPath)
	require.NoError(t, err)
	got, err = s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "fromyaml", got.MaskName)
	assert.Len(t, got.Science, 3)

	_, _, err = s.Import(filepath.Join(dir, "notes.txt"))
	assert.Error(t, err)
}

func TestExportAll(t *testing.T) {
	s := newService(t, true)
	id, _ := generate(t, s)

	paths, err := s.ExportAll(id, t.TempDir())
	require.NoError(t, err)
	assert.Len(t, paths, len(maskio.Formats()))

	var buf bytes.Buffer
	err = s.Export("missing", maskio.FormatXML, &buf)
	assert.True(t, errors.Is(err, ErrNotFound))
}
