// Package httpserver serves the outputs of a party over HTTP, read-only.
//
//	curl http://127.0.0.1:8080/runs
//	curl http://127.0.0.1:8080/runs/<runID>
package httpserver

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	"go.dedis.ch/mupol/peer"
	"go.dedis.ch/mupol/storage"
	"golang.org/x/xerrors"
)

// RunsResponse is the body of GET /runs.
type RunsResponse struct {
	Runs    []peer.RunStatus
	Outputs []string
}

// Handler exposes the runs and outputs of a party.
type Handler struct {
	party peer.Party
}

// NewHandler returns a handler for the party.
func NewHandler(party peer.Party) *Handler {
	return &Handler{party: party}
}

// RegisterRoutes registers the routes of the handler.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.healthz)
	r.Get("/runs", h.runs)
	r.Get("/runs/{runID}", h.output)
}

// Router returns a router serving the handler's routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (h *Handler) runs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, RunsResponse{
		Runs:    h.party.Runs(),
		Outputs: h.party.Outputs().Keys(),
	})
}

func (h *Handler) output(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	out, found := h.party.Outputs().Get(runID)
	if !found {
		http.Error(w, "no output for run "+runID, http.StatusNotFound)
		return
	}

	// outputs never change once stored
	etag := `"` + storage.Hash(out) + `"`
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("ETag", etag)
	writeJSON(w, out)
}

func writeJSON(w http.ResponseWriter, value interface{}) {
	buf, err := json.Marshal(value)
	if err != nil {
		http.Error(w, "failed to marshal: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(buf)
}

// Server is a running HTTP server.
type Server struct {
	srv      *http.Server
	listener net.Listener
	done     chan error
}

// Start serves the party's outputs on addr. An address ending with ":0" gets
// a free port.
func Start(addr string, party peer.Party) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, xerrors.Errorf("failed to listen on %s: %v", addr, err)
	}

	s := &Server{
		srv: &http.Server{
			Handler:           NewHandler(party).Router(),
			ReadHeaderTimeout: 5 * time.Second,
		},
		listener: listener,
		done:     make(chan error, 1),
	}

	go func() {
		err := s.srv.Serve(listener)
		if err == http.ErrServerClosed {
			err = nil
		}
		s.done <- err
	}()

	log.Info().Msgf("serving outputs on http://%s", s.Addr())

	return s, nil
}

// Addr returns the address the server listens on.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Stop shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)
	if err != nil {
		return xerrors.Errorf("failed to shut down: %v", err)
	}
	return <-s.done
}
