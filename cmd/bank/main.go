package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"auctionnet/internal/bank"
	"auctionnet/internal/config"
	"auctionnet/internal/persistence/indexdb"
)

func main() {
	var (
		addr       = flag.String("addr", ":7700", "listen address")
		configPath = flag.String("config", "", "path to market.yaml (defaults used if empty)")
		dataDir    = flag.String("data", "./data/bank", "runtime data directory (journal + index)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite transaction index")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bank] ", log.LstdFlags|log.Lmicroseconds)

	settings, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load settings: %v", err)
	}
	_ = settings // the bank itself has no tunables yet; loading validates the shared file

	journal := bank.NewJournal(filepath.Join(*dataDir, "journal"))
	defer journal.Close()

	var index *indexdb.SQLiteIndex
	if !*disableDB {
		index, err = indexdb.OpenSQLite(filepath.Join(*dataDir, "index.db"))
		if err != nil {
			logger.Fatalf("open transaction index: %v", err)
		}
		defer index.Close()
	}

	ledger := bank.NewLedger(time.Now().UnixNano())
	b := bank.New(ledger, journal, index, logger)
	srv := bank.NewServer(b, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", srv.Handler())

	logger.Printf("welcome to generic bank, listening on %s", *addr)
	go func() {
		if err := http.ListenAndServe(*addr, mux); err != nil {
			logger.Fatalf("listen: %v", err)
		}
	}()

	shell(b, logger)
}

// shell is the operator console: case-insensitive commands on stdin.
func shell(b *bank.Bank, logger *log.Logger) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		switch strings.ToUpper(strings.TrimSpace(sc.Text())) {
		case "":
		case "MEMBERS":
			lines := b.MemberLines("")
			fmt.Printf("total members: %d\n", len(lines))
			for _, l := range lines {
				fmt.Println(l)
			}
		case "AGENTS":
			for _, l := range b.MemberLines("agents") {
				fmt.Println(l)
			}
		case "AUCTION HOUSES":
			for _, l := range b.MemberLines("houses") {
				fmt.Println(l)
			}
		case "SHUTDOWN":
			fmt.Println("closing bank, goodbye")
			return
		case "HELP":
			fmt.Println("MEMBERS         list every account")
			fmt.Println("AGENTS          list agent accounts")
			fmt.Println("AUCTION HOUSES  list auction house accounts")
			fmt.Println("SHUTDOWN        close the bank")
		default:
			fmt.Println("unrecognized command; HELP lists the commands")
		}
	}
	logger.Printf("stdin closed, shutting down")
}
