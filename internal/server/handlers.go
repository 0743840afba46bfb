package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/lacquerai/mathutils/internal/dispatch"
	"github.com/lacquerai/mathutils/internal/execcontext"
	"github.com/rs/zerolog/log"
)

// RunRequest is the body of POST /api/v1/run and of each stream message.
type RunRequest struct {
	// Args are passed to the dispatcher as-is, e.g. ["add", "2", "3"].
	Args []string `json:"args"`
}

// RunResponse reports the outcome of a dispatcher run.
type RunResponse struct {
	RunID  string             `json:"run_id"`
	Status execcontext.Status `json:"status"`
	// Lines are the stdout lines the CLI would print.
	Lines []string `json:"lines,omitempty"`
	Error string   `json:"error,omitempty"`
}

// OperationResponse is returned by GET /api/v1/operations/{op}.
type OperationResponse struct {
	RunID  string `json:"run_id"`
	Op     string `json:"op"`
	A      int32  `json:"a"`
	B      int32  `json:"b"`
	Result int32  `json:"result"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Runs   int    `json:"runs"`
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HTTP Handlers

// run executes the dispatcher with the supplied argument list
func (s *Server) run(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %v", err))
		return
	}

	inv, _, err := s.manager.Execute(r.Context(), execcontext.SourceHTTP, req.Args)
	resp := toRunResponse(inv.Snapshot())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, resp)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// operation computes a single known operation from query parameters
func (s *Server) operation(w http.ResponseWriter, r *http.Request) {
	op := mux.Vars(r)["op"]
	query := r.URL.Query()

	for _, name := range []string{"a", "b"} {
		if !query.Has(name) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("missing query parameter %q", name))
			return
		}
	}

	inv, out, err := s.manager.Execute(r.Context(), execcontext.SourceHTTP, []string{op, query.Get("a"), query.Get("b")})
	if err != nil {
		var opErr *dispatch.OperandError
		if errors.As(err, &opErr) {
			writeError(w, http.StatusBadRequest, opErr.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if !out.Known {
		writeError(w, http.StatusNotFound, out.Lines[0])
		return
	}

	writeJSON(w, http.StatusOK, OperationResponse{
		RunID:  inv.RunID,
		Op:     out.Op,
		A:      out.A,
		B:      out.B,
		Result: out.Result,
	})
}

// getRun returns a recorded run
func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["runId"]

	rec, exists := s.manager.Get(runID)
	if !exists {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Run '%s' not found", runID))
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// stream upgrades to a WebSocket and answers each argument list with a RunResponse
func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade to WebSocket")
		return
	}
	defer conn.Close()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Msg("WebSocket closed unexpectedly")
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		args, err := decodeStreamMessage(data)
		if err != nil {
			if err := conn.WriteJSON(ErrorResponse{Error: err.Error()}); err != nil {
				return
			}
			continue
		}

		inv, _, _ := s.manager.Execute(r.Context(), execcontext.SourceStream, args)
		if err := conn.WriteJSON(toRunResponse(inv.Snapshot())); err != nil {
			log.Debug().Err(err).Msg("WebSocket write failed")
			return
		}
	}
}

// decodeStreamMessage accepts either a bare JSON array of arguments or a RunRequest
func decodeStreamMessage(data []byte) ([]string, error) {
	var args []string
	if err := json.Unmarshal(data, &args); err == nil {
		return args, nil
	}

	var req RunRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return req.Args, nil
}

// serveWasm serves the configured module for browser hosts
func (s *Server) serveWasm(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/wasm")
	http.ServeFile(w, r, s.config.WasmFile)
}

// healthCheck returns server health status
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "healthy",
		Runs:   s.manager.Count(),
	})
}

func toRunResponse(rec execcontext.Record) RunResponse {
	return RunResponse{
		RunID:  rec.RunID,
		Status: rec.Status,
		Lines:  rec.Lines,
		Error:  rec.Error,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
