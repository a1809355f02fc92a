package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// unwrap accepts both a bare object and one nested under "data", the shape
// callable-function clients send.
func unwrap(body []byte) []byte {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope) != 1 {
		return body
	}

	inner, ok := envelope["data"]
	if !ok {
		return body
	}

	if trimmed := bytes.TrimSpace(inner); len(trimmed) > 0 && trimmed[0] == '{' {
		return trimmed
	}

	return body
}

// decodeBody reads a JSON request into dst. An empty body leaves dst untouched.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.conf.MaxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err.Error())
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}

	if err := json.Unmarshal(unwrap(body), dst); err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err.Error())
	}

	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.l.LogErrorf("Could not encode response: %v", err.Error())
	}
}

type errorBody struct {
	Error  string              `json:"error"`
	Fields map[string][]string `json:"fields,omitempty"`
}

// envelope is the staff trigger response. Failures are reported inside it
// rather than as bare HTTP errors.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Count   int    `json:"count"`
	Data    any    `json:"data,omitempty"`
}
