// Copyright 2026 Sovereign-Mohawk Core Team
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

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sovereign-mohawk/fedlearn-core/internal/config"
	"github.com/sovereign-mohawk/fedlearn-core/internal/fabric"
	"github.com/sovereign-mohawk/fedlearn-core/internal/fabric/transport"
	"github.com/sovereign-mohawk/fedlearn-core/internal/federation"
	"github.com/sovereign-mohawk/fedlearn-core/internal/store"
)

func main() {
	log.Println("Sovereign-Mohawk Node Agent starting...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Critical Failure: invalid configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	networkID := getEnv("FEDLEARN_NETWORK_ID", "default")
	listenAddrs := splitList(getEnv("FEDLEARN_LISTEN_ADDRS", "/ip4/0.0.0.0/tcp/0"))
	discoveryNodes := splitList(getEnv("FEDLEARN_DISCOVERY_NODES", ""))

	tr, err := transport.New(ctx, networkID, listenAddrs)
	if err != nil {
		log.Fatalf("Critical Failure: could not start transport: %v", err)
	}
	defer tr.Close()

	stateDir := getEnv("FEDLEARN_STATE_DIR", "./state")
	st, err := store.NewFileStore(stateDir)
	if err != nil {
		log.Fatalf("Critical Failure: could not open state store: %v", err)
	}

	reg := prometheus.NewRegistry()
	fabricMetrics := fabric.NewMetrics(reg)

	svc, err := federation.New(cfg, tr, st, fabricMetrics)
	if err != nil {
		log.Fatalf("Critical Failure: could not construct Federation Service: %v", err)
	}

	if err := svc.Restore(); err != nil {
		log.Printf("No prior snapshot restored: %v", err)
	}

	svc.Initialize(ctx)

	if len(discoveryNodes) > 0 {
		if err := svc.Join(networkID, discoveryNodes); err != nil {
			log.Printf("Join failed: %v", err)
		}
	}

	log.Printf("Node %s operational on network %q", cfg.InstanceID, networkID)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	snapshotTicker := time.NewTicker(5 * time.Minute)
	defer snapshotTicker.Stop()

	for {
		select {
		case <-sigCh:
			log.Println("shutdown signal received, draining...")
			if _, err := svc.Snapshot(); err != nil {
				log.Printf("final snapshot failed: %v", err)
			}
			svc.Shutdown()
			cancel()
			log.Println("Node Agent stopped.")
			return
		case <-snapshotTicker.C:
			if _, err := svc.Snapshot(); err != nil {
				log.Printf("periodic snapshot failed: %v", err)
			}
		}
	}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
