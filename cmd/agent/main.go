package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"time"

	"auctionnet/internal/agent"
	"auctionnet/internal/config"
)

func main() {
	var (
		bankURL    = flag.String("bank", "ws://localhost:7700/ws", "bank websocket url")
		balance    = flag.Int("balance", 1000, "initial account balance")
		auto       = flag.Bool("auto", false, "bid automatically")
		step       = flag.Int("step", 10, "auto-bid increment")
		maxBid     = flag.Int("max", 200, "auto-bid ceiling per item")
		configPath = flag.String("config", "", "path to market.yaml (defaults used if empty)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[agent] ", log.LstdFlags|log.Lmicroseconds)

	settings, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load settings: %v", err)
	}

	var strategy agent.Strategy
	if *auto {
		strategy = agent.IncrementStrategy{Step: *step, Max: *maxBid}
	}

	mgr := agent.NewManager(strategy, logger)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	err = mgr.Connect(ctx, *bankURL, *balance, settings.BankRetryDelay)
	cancel()
	if err != nil {
		logger.Fatalf("connect: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	select {
	case <-stop:
		logger.Printf("interrupted, deregistering")
		mgr.Close()
	case <-mgr.Done():
	}
}
