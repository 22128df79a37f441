package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cometbft/cometbft/abci/server"
	"go.uber.org/zap"

	"mentalfish/internal/app"
)

func main() {
	var (
		home      = flag.String("home", ".mfish", "app home directory (state will be stored under <home>/app)")
		addr      = flag.String("addr", "tcp://127.0.0.1:26658", "ABCI listen address")
		transport = flag.String("transport", "socket", "ABCI transport (socket|grpc)")
	)
	flag.Parse()

	log, err := zap.NewProduction()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	a, err := app.New(*home)
	if err != nil {
		log.Fatal("init app", zap.Error(err))
	}

	srv, err := server.NewServer(*addr, *transport, a)
	if err != nil {
		log.Fatal("start abci server", zap.Error(err))
	}

	if err := srv.Start(); err != nil {
		log.Fatal("abci server start", zap.Error(err))
	}
	defer func() { _ = srv.Stop() }()

	log.Info("mfishd listening", zap.String("addr", *addr), zap.String("transport", *transport))

	// Wait for signal.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
}
