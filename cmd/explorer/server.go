package main

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	core "meridian-network/core"
)

// Server exposes committed state over a small HTTP API.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	svc        *StateService
}

// NewServer constructs the router and HTTP server.
func NewServer(addr string, svc *StateService) *Server {
	s := &Server{router: mux.NewRouter(), svc: svc}
	s.routes()
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  30 * time.Second,
	}
	return s
}

func (s *Server) Start() error { return s.httpServer.ListenAndServe() }

func (s *Server) routes() {
	s.router.Use(requestIDMiddleware)
	s.router.Use(loggingMiddleware)
	s.router.Use(rateLimitMiddleware)
	s.router.HandleFunc("/api/version", s.handleVersion).Methods("GET")
	s.router.HandleFunc("/api/state-root", s.handleStateRoot).Methods("GET")
	s.router.HandleFunc("/api/epoch", s.handleEpoch).Methods("GET")
	s.router.HandleFunc("/api/balance/{account}/{resource}", s.handleBalance).Methods("GET")
	s.router.HandleFunc("/api/substate/{node}/{partition:[0-9]+}/{key}", s.handleSubstate).Methods("GET")
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{"state_version": s.svc.Engine.StateVersion()})
}

func (s *Server) handleStateRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"state_version": s.svc.Engine.StateVersion(),
		"state_root":    s.svc.Engine.StateRoot().Hex(),
	})
}

func (s *Server) handleEpoch(w http.ResponseWriter, r *http.Request) {
	epoch, ok := s.svc.Epoch()
	if !ok {
		http.Error(w, "state not bootstrapped", http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]interface{}{"epoch": epoch})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	account, err := core.DecodeAddress(vars["account"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	resource, err := core.DecodeAddress(vars["resource"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	balance, err := s.svc.Balance(account, resource)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]interface{}{"balance": balance.String()})
}

func (s *Server) handleSubstate(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	node, err := core.ParseNodeIDHex(vars["node"])
	if err != nil {
		if node, err = core.DecodeAddress(vars["node"]); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	var partition uint8
	for _, c := range vars["partition"] {
		partition = partition*10 + uint8(c-'0')
	}
	keyRaw, err := hex.DecodeString(vars["key"])
	if err != nil {
		http.Error(w, "key must be hex", http.StatusBadRequest)
		return
	}
	key, err := core.DecodeSubstateKey(keyRaw)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	value, ok := s.svc.Store.ReadSubstate(node, core.PartitionNumber(partition), key)
	if !ok {
		http.Error(w, "substate not found", http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]interface{}{
		"node":      node.String(),
		"partition": partition,
		"key":       hex.EncodeToString(keyRaw),
		"value":     hex.EncodeToString(value),
	})
}
