// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package server hosts the vault VM's HTTP handlers in standalone
// deployments, where no node wraps the VM.
package server

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/luxfi/constants"
	"github.com/luxfi/log"
	"github.com/luxfi/metric"
)

const (
	maxConcurrentStreams = 64

	// Requests carry hex-encoded payloads capped well below this, so
	// anything larger is garbage or abuse.
	maxRequestBodySize = 256 * constants.KiB
)

// Config carries the HTTP server's tunables.
type Config struct {
	// AllowedOrigins for CORS. "*" allows every origin.
	AllowedOrigins []string

	// AllowedHosts limits the Host header values served. Empty allows
	// every host.
	AllowedHosts []string

	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
}

// Server routes HTTP traffic to the VM's handlers. Requests are served
// over h2c so gRPC-style clients can multiplex without TLS.
type Server struct {
	log             log.Logger
	shutdownTimeout time.Duration

	srv      *http.Server
	listener net.Listener
}

// New mounts the given handlers under base and returns a server reading
// from listener. Endpoint keys follow the VM's CreateHandlers contract:
// the empty key is mounted at base itself. When gatherer is non-nil the
// registry is exposed at /metrics.
func New(
	logger log.Logger,
	listener net.Listener,
	base string,
	handlers map[string]http.Handler,
	gatherer metric.Gatherer,
	config Config,
) *Server {
	router := mux.NewRouter()
	for endpoint, handler := range handlers {
		router.Handle(base+endpoint, handler)
	}
	if gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	var handler http.Handler = http.MaxBytesHandler(router, int64(maxRequestBodySize))
	handler = filterInvalidHosts(handler, config.AllowedHosts)
	handler = cors.New(cors.Options{
		AllowedOrigins:   config.AllowedOrigins,
		AllowCredentials: true,
	}).Handler(handler)

	logger.Info("HTTP API created",
		"address", listener.Addr(),
		"base", base,
		"allowedOrigins", strings.Join(config.AllowedOrigins, ","),
	)

	return &Server{
		log:             logger,
		shutdownTimeout: config.ShutdownTimeout,
		srv: &http.Server{
			Handler: h2c.NewHandler(handler, &http2.Server{
				MaxConcurrentStreams: maxConcurrentStreams,
			}),
			ReadTimeout:       config.ReadTimeout,
			ReadHeaderTimeout: config.ReadHeaderTimeout,
			WriteTimeout:      config.WriteTimeout,
			IdleTimeout:       config.IdleTimeout,
		},
		listener: listener,
	}
}

// Dispatch serves traffic until Shutdown is called or the listener fails.
func (s *Server) Dispatch() error {
	return s.srv.Serve(s.listener)
}

// Shutdown drains in-flight requests, then closes the server regardless.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	err := s.srv.Shutdown(ctx)
	cancel()

	// If the drain times out, make sure the server still closes.
	_ = s.srv.Close()
	return err
}

// filterInvalidHosts rejects requests whose Host header is not in hosts.
// An empty allowlist admits everything.
func filterInvalidHosts(handler http.Handler, hosts []string) http.Handler {
	if len(hosts) == 0 {
		return handler
	}
	allowed := make(map[string]struct{}, len(hosts))
	for _, host := range hosts {
		allowed[strings.ToLower(host)] = struct{}{}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host := r.Host
		if h, _, err := net.SplitHostPort(r.Host); err == nil {
			host = h
		}
		if _, ok := allowed[strings.ToLower(host)]; !ok {
			http.Error(w, "invalid host", http.StatusForbidden)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
