// OpenRDAP
// Copyright 2017 Tom Harwood
// MIT License, see the LICENSE file.

package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
)

// A Service is a running RDAP server: a store, its data loader, and the HTTP
// listener.
type Service struct {
	Store  StoreOps
	Loader *Loader

	config *Config
	log    *logrus.Logger
	http   *http.Server
}

// NewService assembles a Service from its configuration: the storage
// backend, the data loader, and the HTTP routes.
func NewService(config *Config) (*Service, error) {
	log := config.Logger()

	var store StoreOps
	switch config.Storage {
	case "", "memory":
		store = NewMemory(searchConfigOf(config))
	case "sqlite":
		sql, err := NewSQLite(config.SQLitePath, searchConfigOf(config))
		if err != nil {
			return nil, err
		}
		store = sql
	default:
		return nil, fmt.Errorf("unknown storage type %q", config.Storage)
	}

	if err := store.Init(); err != nil {
		return nil, err
	}

	return &Service{
		Store:  store,
		Loader: NewLoader(store, config),
		config: config,
		log:    log,
	}, nil
}

func searchConfigOf(config *Config) SearchConfig {
	return SearchConfig{
		DomainSearchByName:     config.DomainSearchByName,
		NameserverSearchByName: config.NameserverSearchByName,
		NameserverSearchByIP:   config.NameserverSearchByIP,
		DomainSearchByNSIP:     config.DomainSearchByNSIP,
	}
}

// Router builds the HTTP route table under /rdap, with CORS for any origin.
func (s *Service) Router() http.Handler {
	h := newHandlers(s.Store, s.config)

	router := mux.NewRouter()
	rdapRouter := router.PathPrefix("/rdap").Subrouter()

	rdapRouter.HandleFunc("/domain/{name}", h.domainByName).Methods(http.MethodGet)
	rdapRouter.HandleFunc("/nameserver/{name}", h.nameserverByName).Methods(http.MethodGet)
	rdapRouter.HandleFunc("/entity/{handle}", h.entityByHandle).Methods(http.MethodGet)
	rdapRouter.HandleFunc("/autnum/{autnum}", h.autnumByNumber).Methods(http.MethodGet)
	rdapRouter.HandleFunc("/ip/{prefix}/{len:[0-9]+}", h.networkByCIDR).Methods(http.MethodGet)
	rdapRouter.HandleFunc("/ip/{addr}", h.networkByIP).Methods(http.MethodGet)
	rdapRouter.HandleFunc("/domains", h.searchDomains).Methods(http.MethodGet)
	rdapRouter.HandleFunc("/nameservers", h.searchNameservers).Methods(http.MethodGet)
	rdapRouter.HandleFunc("/entities", h.searchEntities).Methods(http.MethodGet)
	rdapRouter.HandleFunc("/help", h.help).Methods(http.MethodGet)

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
		AllowedHeaders: []string{"*"},
	})

	return corsMiddleware.Handler(s.logRequests(router))
}

// logRequests logs one line per request at debug level.
func (s *Service) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)

		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"uri":      r.RequestURI,
			"remote":   r.RemoteAddr,
			"duration": time.Since(start),
		}).Debug("request")
	})
}

// ListenAndServe loads the store, starts the sentinel watcher when
// configured, and serves HTTP until |ctx| is cancelled.
func (s *Service) ListenAndServe(ctx context.Context) error {
	if err := s.Loader.Load(); err != nil {
		// A failed load keeps the previous (possibly empty) store serving.
		s.log.WithError(err).Error("loading data directory")
	}

	if s.config.AutoReload {
		go s.Loader.Watch(ctx)
	}

	addr := net.JoinHostPort(s.config.ListenAddr,
		fmt.Sprintf("%d", s.config.ListenPort))

	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.log.WithField("addr", addr).Info("rdap server listening")

	errs := make(chan error, 1)
	go func() {
		errs <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		return s.http.Shutdown(shutdownCtx)
	}
}
