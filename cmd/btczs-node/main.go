// btczs-node runs the BitcoinZ-anchored L2 core: it syncs the burnchain,
// drives the sortition/stacking/fee pipeline one block at a time, and
// serves the read-only explorer API and real-time event stream.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/btczs/btczs-l2/internal/api"
	"github.com/btczs/btczs-l2/internal/config"
	"github.com/btczs/btczs-l2/internal/engine"
	"github.com/btczs/btczs-l2/internal/l1addr"
	"github.com/btczs/btczs-l2/internal/l1rpc"
	"github.com/btczs/btczs-l2/internal/notify"
	"github.com/btczs/btczs-l2/internal/policy"
	"github.com/btczs/btczs-l2/internal/profiling"
	"github.com/btczs/btczs-l2/internal/store"
	"github.com/btczs/btczs-l2/internal/stream"
	"github.com/btczs/btczs-l2/internal/telemetry"
	"github.com/btczs/btczs-l2/internal/util"
)

var (
	version   = "0.1.0"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("btczs-node v%s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := util.InitLogger(cfg.Log.Level, cfg.Log.Format, cfg.Log.File); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	util.Infof("btczs-node v%s starting (network=%s)", version, cfg.Network.Name)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink, err := store.NewRedisStore(ctx, cfg.Store.URL, cfg.Store.Password, cfg.Store.DB)
	if err != nil {
		util.Fatalf("Failed to connect to store: %v", err)
	}
	defer sink.Close()

	network := networkFromName(cfg.Network.Name)

	pool := l1rpc.NewPool(ctx, cfg.RPC)
	pool.Start()
	defer pool.Stop()

	notifier := notify.NewNotifier(&notify.WebhookConfig{
		Enabled:      cfg.Notify.Enabled,
		DiscordURL:   cfg.Notify.DiscordURL,
		TelegramBot:  cfg.Notify.TelegramBot,
		TelegramChat: cfg.Notify.TelegramChat,
		NodeName:     cfg.Notify.NodeName,
		NodeURL:      cfg.Notify.NodeURL,
	})

	policyCfg := policy.DefaultConfig()
	policyServer := policy.NewPolicyServer(policyCfg, nil)
	policyServer.Start()
	defer policyServer.Stop()

	var nrAgent *telemetry.Agent
	if cfg.Telemetry.Enabled {
		nrAgent = telemetry.NewAgent(&cfg.Telemetry)
		if err := nrAgent.Start(); err != nil {
			util.Errorf("Failed to start telemetry agent: %v", err)
		}
		defer nrAgent.Stop()
	}

	var pprofServer *profiling.Server
	if cfg.Profiling.Enabled {
		pprofServer = profiling.NewServer(&cfg.Profiling)
		if err := pprofServer.Start(); err != nil {
			util.Errorf("Failed to start pprof server: %v", err)
		}
		defer pprofServer.Stop()
	}

	streamServer := stream.NewServer(cfg, policyServer)
	if err := streamServer.Start(); err != nil {
		util.Errorf("Failed to start stream server: %v", err)
	}
	defer streamServer.Stop()

	eng := engine.New(cfg, pool, sink, notifier)
	eng.SetEventSink(streamServer)
	eng.Start()
	defer eng.Stop()

	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer = api.NewServer(cfg, network, sink)
		apiServer.SetUpstreamStateFunc(pool.Statuses)
		if err := apiServer.Start(); err != nil {
			util.Fatalf("Failed to start API server: %v", err)
		}
		defer apiServer.Stop()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	util.Info("btczs-node started successfully. Press Ctrl+C to stop.")

	<-sigChan
	util.Info("Shutting down...")
}

// networkFromName maps a config network name to its l1addr.Network.
func networkFromName(name string) l1addr.Network {
	switch name {
	case "testnet":
		return l1addr.Testnet
	case "regtest":
		return l1addr.Regtest
	default:
		return l1addr.Mainnet
	}
}
