package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"slitmask/internal/mask"
	"slitmask/internal/maskio"
	"slitmask/internal/service"
	"slitmask/internal/targets"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
)

type errorResponse struct {
	Error string `json:"error"`
}

type createdResponse struct {
	ID   string           `json:"id"`
	Mask service.MaskView `json:"mask"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// badRequest marks errors caused by the request body.
type badRequest struct{ err error }

func (b badRequest) Error() string { return b.err.Error() }
func (b badRequest) Unwrap() error { return b.err }

func statusFor(err error) int {
	var (
		lookup     *mask.LookupError
		format     *maskio.FormatError
		line       *targets.LineError
		validation validator.ValidationErrors
		bad        badRequest
	)
	switch {
	case service.IsNotFound(err):
		return http.StatusNotFound
	case errors.As(err, &lookup), errors.Is(err, mask.ErrUnsaveable):
		return http.StatusConflict
	case errors.As(err, &format), errors.As(err, &line), errors.As(err, &validation), errors.As(err, &bad):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decode(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest{fmt.Errorf("decoding request: %w", err)}
	}
	return nil
}

func rowParam(r *http.Request) int {
	row, _ := strconv.Atoi(mux.Vars(r)["row"])
	return row
}

func (s *Server) created(w http.ResponseWriter, r *http.Request, id string) {
	view, err := s.svc.View(id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createdResponse{ID: id, Mask: view})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.fail(w, r, badRequest{fmt.Errorf("invalid limit %q", v)})
			return
		}
		limit = n
	}
	list, err := s.svc.List(limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req service.GenerateRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	job, err := req.Job(s.svc.Instrument())
	if err != nil {
		s.fail(w, r, badRequest{err})
		return
	}
	id, _, err := s.svc.Generate(job)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.created(w, r, id)
}

func (s *Server) handleLongSlit(w http.ResponseWriter, r *http.Request) {
	req := struct {
		Length int     `json:"length"`
		Width  float64 `json:"width"`
	}{Length: s.svc.Instrument().NumberOfBarPairs, Width: s.svc.Instrument().DefaultSlitWidth}
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	id, _, err := s.svc.LongSlit(req.Length, req.Width)
	if err != nil {
		s.fail(w, r, badRequest{err})
		return
	}
	s.created(w, r, id)
}

func (s *Server) handleOpenMask(w http.ResponseWriter, r *http.Request) {
	id, _, err := s.svc.OpenMask()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.created(w, r, id)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.View(mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.svc.View(id); err != nil {
		s.fail(w, r, err)
		return
	}
	events, err := s.svc.History(id, 500)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	f, err := maskio.ParseFormat(vars["format"])
	if err != nil {
		s.fail(w, r, badRequest{err})
		return
	}
	c, err := s.svc.Get(vars["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", f.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", f.FileName(c.MaskName)))
	if err := s.svc.Export(vars["id"], f, w); err != nil {
		s.log.Error("export failed", "id", vars["id"], "format", f, "error", err)
	}
}

func (s *Server) edit(w http.ResponseWriter, r *http.Request, e service.Edit) {
	res, err := s.svc.Apply(mux.Vars(r)["id"], e)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if !res.Applied {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, res)
}

func (s *Server) handleIncrementWidth(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Offset float64 `json:"offset"`
	}
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	s.edit(w, r, service.Edit{Kind: service.EditWidth, Offset: req.Offset})
}

func (s *Server) handleSetWidth(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Width float64 `json:"width"`
	}
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	s.edit(w, r, service.Edit{Kind: service.EditSlitWidth, Row: rowParam(r), Width: req.Width})
}

func (s *Server) handleAlign(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Above bool `json:"above"`
	}
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	s.edit(w, r, service.Edit{Kind: service.EditAlign, Row: rowParam(r), Above: req.Above})
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Target string `json:"target"`
	}
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.Target == "" {
		s.fail(w, r, badRequest{errors.New("target is required")})
		return
	}
	s.edit(w, r, service.Edit{Kind: service.EditMove, Row: rowParam(r), Target: req.Target})
}
