package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"slitmask/internal/instrument"
	"slitmask/internal/mask"
	"slitmask/internal/service"

	"github.com/gorilla/websocket"
)

const fieldTargets = "t1 10 20 10 30 00.0 +20 00 00 2000 2000\n" +
	"t2 5 20 10 30 02.0 +20 01 00 2000 2000\n" +
	"t3 8 20 10 29 58.0 +19 58 30 2000 2000\n"

func newTestServer(t *testing.T) *Server {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.New(instrument.Default(), nil, log)
	t.Cleanup(svc.Close)
	return NewServer(":0", svc, nil, log)
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func generateMask(t *testing.T, h http.Handler) createdResponse {
	t.Helper()
	rec := do(t, h, "POST", "/masks", service.GenerateRequest{
		RA: "10:30:00", Dec: "+20:00:00", Targets: fieldTargets,
		Params: mask.EditParams{MaskName: "api", DitherSpace: 2.5},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("generate status = %d body=%s", rec.Code, rec.Body)
	}
	var out createdResponse
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	return out
}

func TestHealth(t *testing.T) {
	h := newTestServer(t).Handler()
	rec := do(t, h, "GET", "/healthz", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthz = %d %q", rec.Code, rec.Body)
	}
}

func TestGenerateAndGet(t *testing.T) {
	h := newTestServer(t).Handler()
	created := generateMask(t, h)
	if created.ID == "" || len(created.Mask.Science) != 3 || len(created.Mask.Mechanical) != 46 {
		t.Fatalf("created = %+v", created.Mask.Summary)
	}

	rec := do(t, h, "GET", "/masks/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var view service.MaskView
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatal(err)
	}
	if view.Name != "api" || view.Center != "10:30:00.00 +20:00:00.00" {
		t.Fatalf("view = %+v", view.Summary)
	}

	rec = do(t, h, "GET", "/masks", nil)
	var list []service.Summary
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != created.ID {
		t.Fatalf("list = %+v", list)
	}
}

func TestErrorStatuses(t *testing.T) {
	h := newTestServer(t).Handler()
	id := generateMask(t, h).ID

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown mask", "GET", "/masks/nope", nil, http.StatusNotFound},
		{"unknown row", "POST", "/masks/" + id + "/slits/99/width", map[string]float64{"width": 1}, http.StatusConflict},
		{"unknown target", "POST", "/masks/" + id + "/slits/3/move", map[string]string{"target": "ghost"}, http.StatusConflict},
		{"missing target", "POST", "/masks/" + id + "/slits/3/move", map[string]string{}, http.StatusBadRequest},
		{"rejected width", "POST", "/masks/" + id + "/width", map[string]float64{"offset": -5}, http.StatusUnprocessableEntity},
		{"bad format", "GET", "/masks/" + id + "/export/png", nil, http.StatusBadRequest},
		{"bad limit", "GET", "/masks?limit=zero", nil, http.StatusBadRequest},
		{"unknown field", "POST", "/masks/" + id + "/width", map[string]float64{"offsett": 1}, http.StatusBadRequest},
		{"bad targets", "POST", "/masks", service.GenerateRequest{RA: "10:30:00", Dec: "+20:00:00", Targets: "short line"}, http.StatusBadRequest},
		{"bad params", "POST", "/masks", service.GenerateRequest{RA: "10:30:00", Dec: "+20:00:00", Targets: fieldTargets, Params: mask.EditParams{DitherSpace: -1}}, http.StatusBadRequest},
		{"bad long slit", "POST", "/masks/longslit", map[string]any{"length": 0, "width": 1}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.path, tt.body)
			if rec.Code != tt.want {
				t.Fatalf("%s %s = %d, want %d (%s)", tt.method, tt.path, rec.Code, tt.want, rec.Body)
			}
		})
	}
}

func TestEditsAndExport(t *testing.T) {
	h := newTestServer(t).Handler()
	created := generateMask(t, h)
	id := created.ID

	rec := do(t, h, "POST", "/masks/"+id+"/width", map[string]float64{"offset": 0.2})
	if rec.Code != http.StatusOK {
		t.Fatalf("width status = %d %s", rec.Code, rec.Body)
	}
	var res service.EditResult
	json.NewDecoder(rec.Body).Decode(&res)
	if !res.Applied || res.Summary.Status != mask.StatusModified {
		t.Fatalf("edit result = %+v", res)
	}

	row := created.Mask.Mechanical[10].Number
	rec = do(t, h, "POST", "/masks/"+id+"/slits/"+strconv.Itoa(row)+"/width", map[string]float64{"width": 1.2})
	if rec.Code != http.StatusOK {
		t.Fatalf("slit width status = %d %s", rec.Code, rec.Body)
	}

	rec = do(t, h, "GET", "/masks/"+id+"/export/starlist", nil)
	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Body.String(), "api ") {
		t.Fatalf("starlist = %d %q", rec.Code, rec.Body)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "api.str") {
		t.Fatalf("content disposition = %q", cd)
	}
}

func TestPresets(t *testing.T) {
	h := newTestServer(t).Handler()
	rec := do(t, h, "POST", "/masks/longslit", map[string]any{"length": 11, "width": 1})
	if rec.Code != http.StatusCreated {
		t.Fatalf("longslit = %d %s", rec.Code, rec.Body)
	}
	var out createdResponse
	json.NewDecoder(rec.Body).Decode(&out)
	if out.Mask.Name != "LONGSLIT-11x1" || out.Mask.Status != mask.StatusUnsaveable || len(out.Mask.Alignment) != 1 {
		t.Fatalf("longslit = %+v", out.Mask.Summary)
	}

	rec = do(t, h, "POST", "/masks/open", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("open = %d", rec.Code)
	}
}

func TestMetrics(t *testing.T) {
	h := newTestServer(t).Handler()
	generateMask(t, h)
	rec := do(t, h, "GET", "/metrics", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "slitmask_masks_created_total") {
		t.Fatalf("metrics = %d", rec.Code)
	}
}

func TestWebSocketReceivesEvents(t *testing.T) {
	srv := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv.StartHub(ctx)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Registration races the first event, so keep publishing until one arrives.
	got := make(chan []byte, 1)
	go func() {
		conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err == nil {
			got <- msg
		}
		close(got)
	}()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-got:
			if !ok {
				t.Fatal("no websocket event received")
			}
			var ev service.Event
			if err := json.Unmarshal(msg, &ev); err != nil {
				t.Fatal(err)
			}
			if ev.Kind != "open" || ev.Status != mask.StatusUnsaveable {
				t.Fatalf("event = %+v", ev)
			}
			return
		case <-ticker.C:
			resp, err := http.Post(ts.URL+"/masks/open", "application/json", nil)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
		}
	}
}
