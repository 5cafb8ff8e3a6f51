/*
 * Copyright 2018 The CovenantSQL Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ledgerkit/ledgerd/app"
	"github.com/ledgerkit/ledgerd/conf"
	"github.com/ledgerkit/ledgerd/utils/log"
)

const name = `ledgerd`
const desc = `ledgerd runs one node of a permissioned ledger: ordering, simulation, consensus and storage over a relational world-state-view.`

var configFile string

func init() {
	flag.StringVar(&configFile, "config", "./config.yaml", "Config file path")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "\n%s\n\n", desc)
		fmt.Fprintf(os.Stderr, "Usage: %s [arguments]\n", name)
		flag.PrintDefaults()
	}
}

func main() {
	flag.Parse()

	cfg, err := conf.LoadConfig(configFile)
	if err != nil {
		log.Errorf("load config failed: %v", err)
		os.Exit(1)
	}

	node, err := app.New(cfg)
	if err != nil {
		log.Errorf("init node failed: %v", err)
		os.Exit(1)
	}

	if err := node.Init(nil, nil, nil); err != nil {
		log.Errorf("wire node transports failed: %v", err)
		os.Exit(1)
	}

	if cfg.MetricListenAddress != "" {
		go serveMetrics(node, cfg.MetricListenAddress)
	}

	ctx, cancel := context.WithCancel(context.Background())

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	signal.Ignore(syscall.SIGHUP, syscall.SIGTTIN, syscall.SIGTTOU)
	go func() {
		<-signalCh
		log.Infof("received shutdown signal")
		cancel()
	}()

	log.Infof("%s started", name)
	node.Run(ctx)

	if err := node.Shutdown(); err != nil {
		log.Errorf("shutdown failed: %v", err)
		os.Exit(1)
	}
	log.Infof("%s stopped cleanly", name)
}

func serveMetrics(node *app.Application, addr string) {
	log.WithField("address", addr).Infof("serving metrics")
	if err := http.ListenAndServe(addr, node.MetricsHandler()); err != nil {
		log.WithError(err).Errorf("metrics server exited")
	}
}
