package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"strings"

	"auctionnet/internal/auction"
	"auctionnet/internal/config"
)

func main() {
	var (
		bankURL    = flag.String("bank", "ws://localhost:7700/ws", "bank websocket url")
		addr       = flag.String("addr", ":7800", "listen address")
		advertise  = flag.String("advertise", "", "address agents should dial (default: <hostname>:<listen port>)")
		itemsPath  = flag.String("items", "configs/items.txt", "item file, one item per line")
		configPath = flag.String("config", "", "path to market.yaml (defaults used if empty)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[auctionhouse] ", log.LstdFlags|log.Lmicroseconds)

	settings, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load settings: %v", err)
	}
	queue, err := auction.LoadItemFile(*itemsPath)
	if err != nil {
		logger.Fatalf("load items: %v", err)
	}

	adv := *advertise
	if adv == "" {
		adv = defaultAdvertise(*addr, logger)
	}

	house := auction.New(queue, settings, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := house.Run(ctx, *bankURL, *addr, adv); err != nil {
			logger.Printf("run: %v", err)
		}
	}()

	shell(house, done)
}

func defaultAdvertise(listen string, logger *log.Logger) string {
	_, port, err := net.SplitHostPort(listen)
	if err != nil {
		logger.Fatalf("listen address %q: %v", listen, err)
	}
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	return net.JoinHostPort(host, port)
}

func shell(house *auction.House, done <-chan struct{}) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		switch strings.ToUpper(strings.TrimSpace(sc.Text())) {
		case "":
		case "STATUS":
			items := house.Items()
			fmt.Printf("auction house %d, %d items listed\n", house.ID(), len(items))
			for _, it := range items {
				fmt.Printf("  %s  bid %d  time left %d\n", it.ItemID, it.CurrentBid, it.TimeLeft)
			}
		case "SHUTDOWN":
			if house.EndAuction() {
				fmt.Println("auction shutdown")
				return
			}
			fmt.Fprintln(os.Stderr, "current bids exist, can't shutdown")
		case "HELP":
			fmt.Println("STATUS    show the items currently for sale")
			fmt.Println("SHUTDOWN  end the auction (refused while bids are live)")
		default:
			fmt.Println("unrecognized command; HELP lists the commands")
		}

		select {
		case <-done:
			return
		default:
		}
	}
}
