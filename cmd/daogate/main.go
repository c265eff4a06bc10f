// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package main provides the entry point for daogate, the adaptive
// Layer-7 reverse proxy.
//
// It wires together the five components the rest of this module
// implements: the Upstream Registry, the Liminal Controller, the
// Policy/Aligner, the Request Pipeline, and Memory/Config. This file's
// job is orchestration only — construct each collaborator, start its
// background loop if it has one, serve HTTP traffic, and tear everything
// down in the right order on signal.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"daogate/internal/gateway/adaptive"
	"daogate/internal/gateway/config"
	"daogate/internal/gateway/journal"
	"daogate/internal/gateway/liminal"
	"daogate/internal/gateway/pipeline"
	"daogate/internal/gateway/pool"
	"daogate/internal/gateway/registry"
	"daogate/internal/gateway/telemetry"
	"daogate/internal/gateway/transport"
)

func main() {
	configPath := flag.String("config", "daogate.yaml", "path to the gateway's YAML configuration")
	httpAddr := flag.String("http_addr", ":8080", "HTTP listen address")
	watchConfig := flag.Bool("watch_config", true, "hot-reload the configuration file on change")
	intentHeader := flag.String("intent_header", "", "request header read for intent classification (default X-Dao-Intent)")
	poolShards := flag.Int("pool_shards", 0, "connection pool shard count (0 selects the pool's own default)")
	dispatchWorkers := flag.Int("dispatch_workers", 0, "background dispatch pool worker count (0 selects the default)")
	flag.Parse()

	reg := registry.NewRegistry()

	mgr, err := config.NewManager(reg, *configPath)
	if err != nil {
		log.Fatalf("daogate: loading %s: %v", *configPath, err)
	}
	if *watchConfig {
		if err := mgr.StartWatching(); err != nil {
			log.Fatalf("daogate: watching %s: %v", *configPath, err)
		}
	}
	cfg := mgr.Current()

	ctrl := liminal.NewController()
	ctrl.RegisterTicker(mgr)

	persister, err := journal.BuildPersister(cfg.Journal.ToJournalOptions())
	if err != nil {
		log.Fatalf("daogate: building journal persister: %v", err)
	}
	worker := journal.NewWorker(
		persister,
		0.8, // high watermark: anomaly severity ratio that arms a commit
		0.3, // low watermark: ratio that must be crossed back before re-arming
		cfg.Journal.FlushInterval(),
		0, // commitMaxAge: no spec.md key surfaces this separately, disabled
		cfg.Journal.Retention(),
		10*time.Minute, // evictionInterval: fixed, no config knob for it
	)
	worker.Start()

	connPool := pool.New(*poolShards, cfg.Pool.IdleTimeout(), cfg.Pool.MaxIdlePerURL)
	connPool.Start()

	fwd := transport.NewHTTPForwarder(connPool)
	dispatch := pipeline.NewDispatchPool(pipeline.DispatchPoolOptions{Workers: *dispatchWorkers})
	dispatch.Start()

	pl := pipeline.New(
		reg,
		ctrl,
		fwd,
		transport.NewHeaderIntentClassifier(*intentHeader),
		transport.FakeFilterChain{},
		dispatch,
		cfg.ToPipelineOptions(),
	)
	pl.AnomalySink = worker

	metrics := telemetry.NewMetrics()
	reporter := telemetry.NewReporter(metrics, reg, ctrl, cfg.Liminal.UpdateInterval())
	reporter.Start()

	scheduler := adaptive.NewScheduler(reg, ctrl, cfg.Liminal.UpdateInterval())
	scheduler.Start()

	srv := &transport.Server{
		Pipeline: pl,
		Metrics:  metrics,
		Liminal:  ctrl,
	}

	go func() {
		fmt.Printf("daogate listening on %s\n", *httpAddr)
		if err := srv.ListenAndServe(*httpAddr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("daogate: listen on %s: %v", *httpAddr, err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	fmt.Println("\ndaogate: shutting down...")

	scheduler.Stop()
	reporter.Stop()
	worker.Stop()
	connPool.Stop()
	if *watchConfig {
		if err := mgr.StopWatching(); err != nil {
			log.Printf("daogate: stopping config watch: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("daogate: server shutdown failed: %v", err)
	}

	fmt.Println("daogate: stopped.")
}
