package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	dig_container "github.com/trezcool/escola/apps/api/di/dig"
	echoapi "github.com/trezcool/escola/apps/api/echo"
	"github.com/trezcool/escola/core"
	jobsvc "github.com/trezcool/escola/services/jobs"
	metricsvc "github.com/trezcool/escola/services/metrics"
)

func startWithDig() {
	c := dig_container.New()

	must(c.Invoke(func(
		conf *core.Config,
		apiLogger core.Logger,
		zl *zap.Logger,
		storage *dig_container.Storage,
		metrics *metricsvc.Metrics,
		scheduler *jobsvc.Scheduler,
		server echoapi.Server,
		shutdown dig_container.ShutdownSignal,
	) {
		// =========================================================================
		// Initialize App

		apiLogger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))

		defer func() {
			if err := storage.Close(); err != nil {
				apiLogger.Error("failed to close database", err)
			}
		}()
		defer func() { _ = zl.Sync() }()
		defer apiLogger.Info("Application stopped")

		// =========================================================================
		// Start Debug Service
		//
		// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
		// /debug/vars - Added to the default mux by importing the expvar package.
		// /metrics - Prometheus metrics of the api.

		// Expose important info under /debug/vars.
		expvar.NewString("build").Set(conf.Build)
		expvar.NewString("env").Set(conf.Env)
		http.Handle("/metrics", metrics.Handler())

		go func() {
			if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
				apiLogger.Error(fmt.Sprintf("debug server closed: %v", err), err)
			}
		}()

		// =========================================================================
		// Start Jobs & API Service

		scheduler.Start()
		apiLogger.Info(fmt.Sprintf("%d background job(s) scheduled", scheduler.Jobs()))

		signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
		go server.Start()

		// =========================================================================
		// Shutdown

		sig := <-shutdown
		apiLogger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests & jobs a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		if err := scheduler.Stop(ctx); err != nil {
			apiLogger.Error(fmt.Sprintf("could not stop jobs gracefully: %v", err), err)
		}
		if err := server.Stop(ctx); err != nil {
			apiLogger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)
		}
	}))
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
