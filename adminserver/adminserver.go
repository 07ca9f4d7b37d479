// Copyright 2025 The packetd Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package adminserver is the control plane HTTP server: metrics, pprof,
// build info, and a live log-level switch, kept entirely separate from
// the dual-protocol listener it sits beside.
package adminserver

import (
	"context"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/packetd/dualproto/common"
	"github.com/packetd/dualproto/confengine"
	"github.com/packetd/dualproto/logger"
)

// Config mirrors the teacher's server.Config shape, re-scoped: Pprof gates
// /debug/pprof/* the same way, Timeout now bounds the admin server's own
// read/write deadlines rather than a sniffer-specific knob.
type Config struct {
	Enabled bool          `config:"enabled"`
	Address string        `config:"address"`
	Pprof   bool          `config:"pprof"`
	Timeout time.Duration `config:"timeout"`
}

// Server is the admin/control HTTP server (component 14): gorilla/mux
// router plus the stdlib http.Server lifecycle, grounded on the teacher's
// server.Server.
type Server struct {
	config Config
	router *mux.Router
	server *http.Server
}

// New builds a Server from conf's "admin" sub-config, or returns nil when
// the admin server is disabled - the same "absent unless enabled" contract
// as the teacher's server.New.
func New(conf *confengine.Config) (*Server, error) {
	var cfg Config
	if conf != nil && conf.Has("admin") {
		if err := conf.UnpackChild("admin", &cfg); err != nil {
			return nil, err
		}
	}
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.Address == "" {
		cfg.Address = "127.0.0.1:9090"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	s := &Server{
		config: cfg,
		router: mux.NewRouter(),
	}
	s.registerRoutes()
	s.server = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	}
	return s, nil
}

func (s *Server) registerRoutes() {
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	s.router.HandleFunc("/-/logger", s.handleLoggerLevel).Methods(http.MethodGet, http.MethodPut)
	s.router.HandleFunc("/-/build", s.handleBuildInfo).Methods(http.MethodGet)
	if s.config.Pprof {
		s.registerPprofRoutes()
	}
}

// registerPprofRoutes wires net/http/pprof exactly as the teacher's
// server.Server does, gated by Config.Pprof.
func (s *Server) registerPprofRoutes() {
	s.router.HandleFunc("/debug/pprof/", pprof.Index)
	s.router.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	s.router.HandleFunc("/debug/pprof/profile", pprof.Profile)
	s.router.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	s.router.HandleFunc("/debug/pprof/trace", pprof.Trace)
}

// handleLoggerLevel changes the log level live, without a restart, on PUT
// with a `level` query parameter. On every method it replies with that
// query parameter echoed back as JSON; it does not read the running level,
// so a GET without the parameter reports an empty level.
func (s *Server) handleLoggerLevel(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPut {
		level := r.URL.Query().Get("level")
		if level == "" {
			http.Error(w, "missing level query parameter", http.StatusBadRequest)
			return
		}
		logger.SetLoggerLevel(level)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"level": r.URL.Query().Get("level")})
}

// handleBuildInfo serves common.GetBuildInfo as JSON, goccy/go-json in
// place of encoding/json for the same throughput reason the teacher's own
// HTTP surfaces reach for it.
func (s *Server) handleBuildInfo(w http.ResponseWriter, r *http.Request) {
	info := common.GetBuildInfo()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		App           string `json:"app"`
		Version       string `json:"version"`
		GitHash       string `json:"gitHash"`
		Time          string `json:"buildTime"`
		UptimeSeconds int64  `json:"uptimeSeconds"`
	}{
		App:           common.App,
		Version:       info.Version,
		GitHash:       info.GitHash,
		Time:          info.Time,
		UptimeSeconds: time.Now().Unix() - common.Started(),
	})
}

// ListenAndServe blocks serving the admin routes until Shutdown is called
// or a fatal accept error occurs.
func (s *Server) ListenAndServe() error {
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the admin server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
