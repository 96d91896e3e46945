package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"bountyvault/config"
	"bountyvault/core"
	"bountyvault/core/events"
	"bountyvault/observability/logging"
	"bountyvault/rpc"
	"bountyvault/state"
	"bountyvault/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "./config.toml", "path to the escrowd config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup("escrowd", cfg.Environment)

	var db storage.Database
	if strings.TrimSpace(cfg.DataDir) == "memory" {
		db = storage.NewMemDB()
	} else {
		ldb, err := storage.NewLevelDB(cfg.DataDir)
		if err != nil {
			logger.Error("open leveldb", "path", cfg.DataDir, "err", err)
			os.Exit(1)
		}
		db = ldb
	}
	defer db.Close()

	node := core.NewNode(state.NewManager(db))
	node.SetEmitter(events.NewLogEmitter(logger))

	addrs, balances, err := cfg.GenesisBalances()
	if err != nil {
		logger.Error("decode genesis accounts", "err", err)
		os.Exit(1)
	}
	seed := make([]core.GenesisAccount, 0, len(addrs))
	for i := range addrs {
		seed = append(seed, core.GenesisAccount{Address: addrs[i], Balance: balances[i]})
	}
	if err := node.SeedGenesis(seed); err != nil {
		logger.Error("seed genesis balances", "err", err)
		os.Exit(1)
	}

	server := rpc.NewServer(node, cfg.RPCToken)
	srv := &http.Server{
		Addr:    cfg.RPCAddress,
		Handler: server.Router(),
	}

	go func() {
		logger.Info("escrowd listening", "addr", cfg.RPCAddress)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("listen", "err", err)
			os.Exit(1)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down escrowd")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "graceful shutdown failed: %v\n", err)
	}
}
