package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/A-SunsetMkt-Forks/pg/pkg/core"
)

const maxBodyBytes = 1 << 20

// errorBody is the JSON shape of every failed response.
type errorBody struct {
	Error   string         `json:"error"`
	Kind    core.ErrorKind `json:"kind"`
	Subject string         `json:"subject,omitempty"`
}

// statusFor maps an error kind to the HTTP status a client should see.
func statusFor(kind core.ErrorKind) int {
	switch kind {
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindDuplicateProfile, core.KindProfileInUse, core.KindNoActiveSession:
		return http.StatusConflict
	case core.KindInvalidProfile, core.KindQueryExecution:
		return http.StatusBadRequest
	case core.KindConnection, core.KindSchemaIntrospection:
		return http.StatusBadGateway
	case core.KindQueryCancelled:
		return http.StatusGone
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := core.KindOf(err)
	status := statusFor(kind)
	body := errorBody{Error: err.Error(), Kind: kind}
	var e *core.Error
	if errors.As(err, &e) {
		body.Subject = e.Subject
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
		body.Error = "an unexpected internal error occurred"
	}
	writeJSON(w, status, body)
}

func (s *Server) badRequest(w http.ResponseWriter, format string, args ...any) {
	writeJSON(w, http.StatusBadRequest, errorBody{
		Error: fmt.Sprintf(format, args...),
		Kind:  "bad_request",
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// decode reads a JSON body into v, rejecting unknown fields.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
