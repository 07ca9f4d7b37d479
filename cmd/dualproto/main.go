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

// Command dualproto is the CLI entrypoint: loads configuration, starts the
// admin server, and runs the dual-protocol (HTTP/1.1 + HTTP/2) listener,
// exactly the shape of the teacher's own cmd/agent.go wiring.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	_ "go.uber.org/automaxprocs"

	"github.com/packetd/dualproto/adminserver"
	"github.com/packetd/dualproto/common"
	"github.com/packetd/dualproto/confengine"
	"github.com/packetd/dualproto/internal/sigs"
	"github.com/packetd/dualproto/logger"
	"github.com/packetd/dualproto/metrics"
	"github.com/packetd/dualproto/protocol/dispatch"
	"github.com/packetd/dualproto/protocol/errs"
	"github.com/packetd/dualproto/protocol/h1"
	"github.com/packetd/dualproto/protocol/h2"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   common.App,
	Short: "dualproto is a dual-protocol HTTP/1.1+HTTP/2 connection runtime",
}

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Run the dual-protocol listener and admin server",
	Example: "# dualproto serve --config dualproto.yaml",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := confengine.LoadConfigPath(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}

		srv, err := newServer(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to build server: %v\n", err)
			os.Exit(1)
		}
		if err := srv.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
			os.Exit(1)
		}

		<-sigs.Terminate()
		logger.Infof("received termination signal, shutting down")
		if err := srv.Stop(); err != nil {
			logger.Errorf("shutdown error: %v", err)
		}
	},
}

func init() {
	serveCmd.Flags().StringVar(&configPath, "config", "dualproto.yaml", "Configuration file path")
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// listenerConfig is the "server" sub-config: the socket address the
// dual-protocol listener binds, re-scoped from the teacher's server.Config.
type listenerConfig struct {
	Address string `config:"address"`
}

// defaultShutdownTimeout bounds Stop() when "server.options" carries no
// shutdownTimeoutSeconds override.
const defaultShutdownTimeout = 5 * time.Second

// server owns the admin server and the dual-protocol listener, aggregating
// shutdown errors from both with go-multierror exactly as a teacher
// repository's multi-component Stop() would.
type server struct {
	admin           *adminserver.Server
	listener        net.Listener
	op              dispatch.Operator
	done            chan struct{}
	shutdownTimeout time.Duration

	// conns bounds the number of simultaneously accepted sockets to
	// common.Concurrency(), the same "2x core count" sizing the teacher
	// applies to its own worker pools.
	conns chan struct{}
}

func newServer(cfg *confengine.Config) (*server, error) {
	admin, err := adminserver.New(cfg)
	if err != nil {
		return nil, err
	}

	var lc listenerConfig
	if cfg != nil && cfg.Has("server") {
		if err := cfg.UnpackChild("server", &lc); err != nil {
			return nil, err
		}
	}
	if lc.Address == "" {
		lc.Address = "0.0.0.0:8080"
	}

	ln, err := net.Listen("tcp", lc.Address)
	if err != nil {
		return nil, err
	}

	return &server{
		admin:           admin,
		listener:        ln,
		op:              dispatch.HandlerOperator{Handler: http.NotFoundHandler()},
		done:            make(chan struct{}),
		shutdownTimeout: loadShutdownTimeout(cfg),
		conns:           make(chan struct{}, common.Concurrency()),
	}, nil
}

// loadShutdownTimeout reads the free-form "server.options" map - the
// common.Options escape hatch for settings that don't warrant their own
// struct field - and casts shutdownTimeoutSeconds to a duration, falling
// back to defaultShutdownTimeout when absent or unparsable.
func loadShutdownTimeout(cfg *confengine.Config) time.Duration {
	if cfg == nil || !cfg.Has("server.options") {
		return defaultShutdownTimeout
	}
	var raw map[string]any
	if err := cfg.UnpackChild("server.options", &raw); err != nil {
		return defaultShutdownTimeout
	}
	opts := common.Options(raw)
	secs, err := opts.GetInt("shutdownTimeoutSeconds")
	if err != nil || secs <= 0 {
		return defaultShutdownTimeout
	}
	return time.Duration(secs) * time.Second
}

func (s *server) Start() error {
	if s.admin != nil {
		go func() {
			if err := s.admin.ListenAndServe(); err != nil {
				logger.Errorf("admin server: %v", err)
			}
		}()
	}
	go s.acceptLoop()
	return nil
}

func (s *server) Stop() error {
	close(s.done)
	var result *multierror.Error
	if err := s.listener.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if s.admin != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.admin.Shutdown(ctx); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func (s *server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				logger.Errorf("accept: %v", err)
				return
			}
		}
		metrics.AcceptedConnections.WithLabelValues("h1").Inc()
		s.conns <- struct{}{}
		go s.serveH1(conn)
	}
}

// serveH1 drives one accepted socket as HTTP/1.1 until either the peer
// closes it or the HTTP/2 client preface is observed, in which case the
// connection is hand off to serveH2 via h1.Conn.IntoH2.
func (s *server) serveH1(conn net.Conn) {
	defer func() { <-s.conns }()
	c := h1.NewServerConn(conn)
	ctx := context.Background()
	for {
		req, err := c.Incoming(ctx)
		if err != nil {
			if upgraded, ok := asUpgrade(c, err); ok {
				// Socket ownership has already passed to upgraded.Conn;
				// serveH2 (not c.Close) now owns its lifetime.
				metrics.HTTP2Upgrades.Inc()
				s.serveH2(upgraded)
				return
			}
			_ = c.Close()
			return
		}

		clientAddr := conn.RemoteAddr().String()
		httpReq := req.Request
		httpReq.Body = toReadCloser(ctx, req.Body)

		res := dispatch.HandleRequest(ctx, httpReq, clientAddr, s.op)
		if err := c.SendResponse(&h1.Response{Response: res, Body: fromReadCloser(res.Body)}); err != nil {
			_ = c.Close()
			return
		}
		metrics.HandledRoundtrips.Inc()
	}
}

func (s *server) serveH2(up h1.Upgraded) {
	conn, err := h2.NewServerConn(h2.Upgraded{
		Conn:         up.Conn,
		Leftover:     up.Leftover,
		PendingWrite: up.PendingWrite,
	})
	if err != nil {
		logger.Errorf("h2 handoff: %v", err)
		return
	}
	defer conn.Close()

	ctx := context.Background()
	for {
		req, err := conn.Incoming(ctx)
		if err != nil {
			return
		}
		metrics.ActiveStreams.Inc()

		httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.Path, nil)
		if err != nil {
			metrics.ActiveStreams.Dec()
			continue
		}
		httpReq.Header = req.Header
		httpReq.Host = req.Authority
		httpReq.Body = toReadCloser(ctx, req.Body)

		clientAddr := up.Conn.RemoteAddr().String()
		res := dispatch.HandleRequest(ctx, httpReq, clientAddr, s.op)

		h2Res := &h2.Response{StatusCode: res.StatusCode, Header: res.Header, Body: fromReadCloser(res.Body)}
		if err := conn.SendResponse(ctx, req.StreamID, req.Method, h2Res); err != nil {
			metrics.ActiveStreams.Dec()
			return
		}
		metrics.ActiveStreams.Dec()
		metrics.HandledRoundtrips.Inc()
	}
}

// asUpgrade checks whether err is the HTTP/2 upgrade signal and, if so,
// tears c down and returns the handoff state.
func asUpgrade(c *h1.Conn, err error) (h1.Upgraded, bool) {
	if !errs.IsServerUpgradeHTTP2(err) {
		return h1.Upgraded{}, false
	}
	return c.IntoH2(), true
}
