package main

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/karasz/televerifier/coring"
	"github.com/karasz/televerifier/vdr"
)

// server exposes the verifier core over HTTPS, the JSON counterpart of
// the teacher's dual gob/protobuf HandleRegister/HandleOpen/HandleClose/
// HandleVerify surface in server.go — one route per Tevery operation
// instead of one per log lifecycle step.
type server struct {
	tevery    *vdr.Tevery
	tlsConfig *tls.Config
	log       *zap.Logger
}

func newServer(tevery *vdr.Tevery, log *zap.Logger) *server {
	return &server{tevery: tevery, log: log}
}

type eventRequest struct {
	Raw    json.RawMessage `json:"raw"`
	Kind   string          `json:"kind"`
	Seqner string          `json:"seqner,omitempty"`
	Diger  string          `json:"diger,omitempty"`
	Wigers []sigerWire     `json:"wigers,omitempty"`
}

type sigerWire struct {
	Index int    `json:"index"`
	Sig   string `json:"sig"`
}

type queryRequest struct {
	Raw    json.RawMessage `json:"raw"`
	Kind   string          `json:"kind"`
	Source string          `json:"source,omitempty"`
}

// handleEvent handles POST /tel/events: validate one TEL event against
// the current registry state, escrowing it if a precondition isn't met.
func (s *server) handleEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}

	kind := coring.Kind(req.Kind)
	if kind == "" {
		kind = coring.KindJSON
	}
	serder, err := coring.NewSerder(req.Raw, kind)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid event: %v", err), http.StatusBadRequest)
		return
	}

	var anchor *vdr.Anchor
	if req.Seqner != "" && req.Diger != "" {
		seqner, err := coring.ParseSeqner(req.Seqner)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid seqner: %v", err), http.StatusBadRequest)
			return
		}
		diger, err := coring.ParseDiger(req.Diger)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid diger: %v", err), http.StatusBadRequest)
			return
		}
		anchor = &vdr.Anchor{Seqner: seqner, Diger: diger}
	}

	wigers := make([]coring.Siger, 0, len(req.Wigers))
	for _, sw := range req.Wigers {
		wigers = append(wigers, coring.Siger{Index: sw.Index, Sig: []byte(sw.Sig)})
	}

	if err := s.tevery.ProcessEvent(serder, anchor, wigers); err != nil {
		s.log.Error("process event failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": "accepted",
		"pre":    serder.Pre(),
	})
}

// handleQuery handles POST /tel/query: answer a tels query by replaying
// the relevant management and credential TELs.
func (s *server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}

	kind := coring.Kind(req.Kind)
	if kind == "" {
		kind = coring.KindJSON
	}
	serder, err := coring.NewSerder(req.Raw, kind)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid query: %v", err), http.StatusBadRequest)
		return
	}

	if err := s.tevery.ProcessQuery(serder, req.Source); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{"cues": s.tevery.Cues()})
}

// handleDrainEscrows handles POST /tel/escrows/drain: force an
// out-of-band drain of the escrow queues, in addition to the
// background ticker started in main.
func (s *server) handleDrainEscrows(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.tevery.ProcessEscrows()
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "drained"})
}

func (s *server) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/tel/events", s.handleEvent)
	mux.HandleFunc("/tel/query", s.handleQuery)
	mux.HandleFunc("/tel/escrows/drain", s.handleDrainEscrows)
}

func (s *server) tlsConfigWithDefaults() *tls.Config {
	if s.tlsConfig == nil {
		return &tls.Config{MinVersion: tls.VersionTLS12}
	}
	cfg := s.tlsConfig.Clone()
	if cfg.MinVersion == 0 {
		cfg.MinVersion = tls.VersionTLS12
	}
	return cfg
}

func (s *server) listenAndServeTLS(addr, certFile, keyFile string) error {
	mux := http.NewServeMux()
	s.setupRoutes(mux)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		TLSConfig:         s.tlsConfigWithDefaults(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return httpServer.ListenAndServeTLS(certFile, keyFile)
}
