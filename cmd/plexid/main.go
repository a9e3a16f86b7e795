// Command plexid runs the 6TiSCH/RPL mesh scheduler-management and
// link-statistics CoAP service: one process, one UDP listener, and a
// Prometheus exposition endpoint alongside it.
/*
 * Copyright (c) 2024, RICH project contributors.
 */
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/rich-project/plexid/internal/coap"
	"github.com/rich-project/plexid/internal/config"
	"github.com/rich-project/plexid/internal/hk"
	"github.com/rich-project/plexid/internal/nlog"
	"github.com/rich-project/plexid/internal/promx"
	"github.com/rich-project/plexid/internal/service"
)

var (
	configPath  string
	metricsAddr string
	verbose     int
)

func init() {
	flag.StringVar(&configPath, "config", "", "plexid configuration file")
	flag.StringVar(&metricsAddr, "metrics-listen", ":9683", "Prometheus exposition address")
	flag.IntVar(&verbose, "v", 0, "log verbosity")
}

func main() {
	flag.Parse()
	nlog.SetLevel(verbose)

	cfg, err := config.Load(configPath)
	if err != nil {
		nlog.Errorf("failed to load configuration from %q: %v", configPath, err)
		os.Exit(1)
	}

	pc, err := net.ListenPacket("udp", cfg.Listen)
	if err != nil {
		nlog.Errorf("failed to listen on %s: %v", cfg.Listen, err)
		os.Exit(1)
	}

	daemon := service.New(cfg)
	srv := coap.NewServer(pc, daemon.Handler())
	daemon.Bind(srv)

	registerPeriodicTasks(daemon)
	go hk.DefaultHK.Run()

	reg := prometheus.NewRegistry()
	reg.MustRegister(promx.NewCollector(daemon.Stats, daemon.Vicinity))
	metricsSrv := &http.Server{Addr: metricsAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		nlog.Infof("serving CoAP on %s", cfg.Listen)
		return srv.Serve(gctx)
	})
	g.Go(func() error {
		nlog.Infof("serving metrics on %s", metricsAddr)
		return metricsSrv.ListenAndServe()
	})
	g.Go(func() error {
		<-gctx.Done()
		hk.DefaultHK.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsSrv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	nlog.Flush()
	if err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "plexid: %v\n", err)
		os.Exit(1)
	}
}

// registerPeriodicTasks wires every component's periodic callback onto
// the process-wide Housekeeper (§5's single cooperative scheduler).
func registerPeriodicTasks(d *service.Daemon) {
	hk.RegisterHK("vicinity_decay", time.Second, d.VicinityDecayTask())
	hk.RegisterHK("celllist_push", time.Second, d.CellListPeriodicTask())
	hk.RegisterHK("queue_push", time.Second, d.QueuePeriodicTask())
	hk.RegisterHK("vicinity_push", time.Second, d.VicinityPeriodicTask())
}
