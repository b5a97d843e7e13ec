package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/A-SunsetMkt-Forks/pg/internal/registry"
	"github.com/A-SunsetMkt-Forks/pg/internal/schema"
	"github.com/A-SunsetMkt-Forks/pg/internal/workbench"
	"github.com/A-SunsetMkt-Forks/pg/pkg/core"
)

func (s *Server) routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/profiles", s.listProfiles)
		r.Post("/profiles", s.createProfile)
		r.Get("/profiles/{name}", s.getProfile)
		r.Patch("/profiles/{name}", s.editProfile)
		r.Delete("/profiles/{name}", s.removeProfile)

		r.Get("/session", s.getSession)
		r.Post("/session/connect", s.connect)
		r.Post("/session/disconnect", s.disconnect)
		r.Post("/session/reset", s.reset)

		r.Get("/queries", s.listQueries)
		r.Post("/queries", s.submitQuery)
		r.Get("/queries/{id}", s.getQuery)
		r.Post("/queries/{id}/cancel", s.cancelQuery)

		r.Get("/schema", s.getSchema)
		r.Post("/schema/refresh", s.refreshSchema)

		r.Get("/events", s.events)
	})
}

type profileRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Credentials json.RawMessage `json:"credentials"`
}

type profilePatchRequest struct {
	Description *string         `json:"description"`
	Credentials json.RawMessage `json:"credentials"`
}

func (s *Server) listProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := s.wb.ListProfiles(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profiles)
}

func (s *Server) getProfile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	profiles, err := s.wb.ListProfiles(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	for _, p := range profiles {
		if p.Name == name {
			writeJSON(w, http.StatusOK, p)
			return
		}
	}
	s.writeError(w, r, core.NewError(core.KindNotFound, name, "profile not found"))
}

func (s *Server) createProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := decode(r, &req); err != nil {
		s.badRequest(w, "%v", err)
		return
	}
	p, err := s.wb.CreateProfile(r.Context(), registry.ProfileInput{
		Name:        req.Name,
		Description: req.Description,
		Credentials: compact(req.Credentials),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) editProfile(w http.ResponseWriter, r *http.Request) {
	var req profilePatchRequest
	if err := decode(r, &req); err != nil {
		s.badRequest(w, "%v", err)
		return
	}
	p, err := s.wb.EditProfile(r.Context(), chi.URLParam(r, "name"), core.ProfilePatch{
		Description: req.Description,
		Credentials: compact(req.Credentials),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) removeProfile(w http.ResponseWriter, r *http.Request) {
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	if err := s.wb.RemoveProfile(r.Context(), chi.URLParam(r, "name"), workbench.RemoveOptions{Force: force}); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// compact returns nil for an absent or null credentials field.
func compact(raw json.RawMessage) []byte {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	return buf.Bytes()
}

func (s *Server) getSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.wb.CurrentSession())
}

type connectRequest struct {
	Profile string `json:"profile"`
	// Wait blocks the response until the attempt settles.
	Wait bool `json:"wait"`
}

func (s *Server) connect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := decode(r, &req); err != nil {
		s.badRequest(w, "%v", err)
		return
	}
	if req.Profile == "" {
		s.badRequest(w, "profile is required")
		return
	}
	pending, err := s.wb.ConnectAsync(r.Context(), req.Profile)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !req.Wait {
		writeJSON(w, http.StatusAccepted, s.wb.CurrentSession())
		return
	}
	if err := pending.Wait(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.wb.CurrentSession())
}

func (s *Server) disconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.wb.Disconnect(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.wb.CurrentSession())
}

func (s *Server) reset(w http.ResponseWriter, r *http.Request) {
	if err := s.wb.Reset(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.wb.CurrentSession())
}

func (s *Server) listQueries(w http.ResponseWriter, r *http.Request) {
	log := s.wb.QueryLog()
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.badRequest(w, "invalid limit %q", v)
			return
		}
		if n > 0 && n < len(log) {
			log = log[len(log)-n:]
		}
	}
	writeJSON(w, http.StatusOK, log)
}

func (s *Server) getQuery(w http.ResponseWriter, r *http.Request) {
	id, ok := s.queryID(w, r)
	if !ok {
		return
	}
	e, err := s.wb.QueryEntry(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

type submitRequest struct {
	SQL  string `json:"sql"`
	Wait bool   `json:"wait"`
}

type resultBody struct {
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	RowCount  int64    `json:"row_count"`
	Truncated bool     `json:"truncated,omitempty"`
}

type submitResponse struct {
	Entry  *core.QueryLogEntry `json:"entry"`
	Result *resultBody         `json:"result,omitempty"`
}

func (s *Server) submitQuery(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decode(r, &req); err != nil {
		s.badRequest(w, "%v", err)
		return
	}
	tk, err := s.wb.SubmitQuery(req.SQL)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !req.Wait {
		writeJSON(w, http.StatusAccepted, submitResponse{Entry: tk.Entry()})
		return
	}

	res, err := tk.Wait(r.Context())
	if err != nil && r.Context().Err() != nil {
		// The client went away; the statement keeps running.
		return
	}
	resp := submitResponse{Entry: tk.Entry()}
	if err != nil {
		writeJSON(w, statusFor(core.KindOf(err)), resp)
		return
	}
	resp.Result = toResultBody(res)
	writeJSON(w, http.StatusOK, resp)
}

func toResultBody(res *core.Result) *resultBody {
	if res == nil {
		return nil
	}
	rows := make([][]any, len(res.Rows))
	for i, row := range res.Rows {
		out := make([]any, len(row))
		for j, v := range row {
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			out[j] = v
		}
		rows[i] = out
	}
	return &resultBody{
		Columns:   res.Columns,
		Rows:      rows,
		RowCount:  res.RowCount,
		Truncated: res.Truncated,
	}
}

func (s *Server) cancelQuery(w http.ResponseWriter, r *http.Request) {
	id, ok := s.queryID(w, r)
	if !ok {
		return
	}
	if err := s.wb.CancelQuery(id); err != nil {
		s.writeError(w, r, err)
		return
	}
	e, err := s.wb.QueryEntry(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) queryID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		s.badRequest(w, "invalid query id %q", raw)
		return 0, false
	}
	return id, true
}

// getSchema returns the schema graph, building it if needed. format=mermaid
// returns the erDiagram as text.
func (s *Server) getSchema(w http.ResponseWriter, r *http.Request) {
	f, err := schema.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.badRequest(w, "%v", err)
		return
	}
	g, err := s.wb.SchemaGraph(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	switch f {
	case schema.FormatMermaid:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(schema.Mermaid(g)))
	case schema.FormatYAML:
		w.Header().Set("Content-Type", "application/yaml")
		_ = schema.Render(w, g, schema.FormatYAML)
	default:
		writeJSON(w, http.StatusOK, g)
	}
}

func (s *Server) refreshSchema(w http.ResponseWriter, _ *http.Request) {
	s.wb.RefreshSchema()
	w.WriteHeader(http.StatusNoContent)
}
