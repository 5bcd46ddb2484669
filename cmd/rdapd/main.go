// OpenRDAP
// Copyright 2017 Tom Harwood
// MIT License, see the LICENSE file.

// Command rdapd is a reference RDAP server.
//
// It serves RDAP objects loaded from a data directory, configured entirely
// through RDAP_SRV_* environment variables (see the server package).
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/openrdap/rdapkit/server"
)

func main() {
	config, err := server.NewConfigFromEnv()
	if err != nil {
		os.Stderr.WriteString("rdapd: " + err.Error() + "\n")
		os.Exit(1)
	}

	service, err := server.NewService(config)
	if err != nil {
		config.Logger().WithError(err).Fatal("assembling server")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := service.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		config.Logger().WithError(err).Fatal("server failed")
	}
}
