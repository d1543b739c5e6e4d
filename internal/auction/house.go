package auction

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"auctionnet/internal/config"
	"auctionnet/internal/protocol"
	"auctionnet/internal/transport"
)

// House runs one auction house: it registers with the bank, serves agent
// connections, and fans item lifecycle events out to every agent. It is the
// block's Funds (via the bank client) and Events implementation.
type House struct {
	cfg   config.Settings
	log   *log.Logger
	block *Block

	upgrader websocket.Upgrader

	mu     sync.Mutex
	bank   *BankClient
	id     int
	addr   string
	srv    *http.Server
	agents map[int]*transport.Conn
	ended  bool
}

func New(queue []string, cfg config.Settings, logger *log.Logger) *House {
	h := &House{
		cfg: cfg,
		log: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		agents: make(map[int]*transport.Conn),
	}
	h.block = NewBlock(queue, cfg, h, h, logger)
	return h
}

// Run connects to the bank (polling until it answers), registers, and then
// serves agent websockets on listenAddr until the auction ends. The
// advertised address is what agents are told to dial; when empty, the bound
// listener address is advertised.
func (h *House) Run(ctx context.Context, bankURL, listenAddr, advertiseAddr string) error {
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return err
	}
	if advertiseAddr == "" {
		advertiseAddr = ln.Addr().String()
	}

	ws, err := transport.DialRetry(ctx, bankURL, h.cfg.BankRetryDelay, h.log)
	if err != nil {
		ln.Close()
		return err
	}
	caller := transport.NewCaller(ws, h.log)
	go caller.Start(nil, func(err error) {
		if err != nil {
			h.log.Printf("bank link lost: %v", err)
		}
		// No bank, no auction: stop without settlement.
		h.halt()
	})

	bank := NewBankClient(caller, h.log)
	id, err := bank.Register(advertiseAddr)
	if err != nil {
		caller.Close()
		ln.Close()
		return fmt.Errorf("register with bank: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.handleWS)
	srv := &http.Server{Handler: mux}

	h.mu.Lock()
	h.bank = bank
	h.id = id
	h.srv = srv
	h.addr = advertiseAddr
	h.mu.Unlock()

	h.log.Printf("auction house %d listening on %s (advertised %s)", id, ln.Addr(), advertiseAddr)
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the advertised address, empty before Run reaches serving.
func (h *House) Addr() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.addr
}

// ID returns the bank account id, 0 before registration completes.
func (h *House) ID() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.id
}

func (h *House) Items() []protocol.ItemInfo { return h.block.Items() }

// EndAuction is the manual shutdown. Refused while live bids exist.
func (h *House) EndAuction() bool {
	if !h.block.ShutDown() {
		return false
	}
	h.AuctionEnded()
	return true
}

func (h *House) handleWS(rw http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		return
	}
	conn := transport.NewConn(ws, h.log)
	sess := &session{house: h, conn: conn}
	conn.Start(sess.handle, func(err error) {
		if err != nil {
			h.log.Printf("agent %d link lost: %v", sess.id, err)
		}
		if sess.id != 0 {
			h.removeAgent(sess.id)
		}
	})
}

func (h *House) addAgent(id int, conn *transport.Conn) {
	h.mu.Lock()
	h.agents[id] = conn
	h.mu.Unlock()
	h.log.Printf("new agent registered: %d", id)
}

func (h *House) removeAgent(id int) {
	h.mu.Lock()
	delete(h.agents, id)
	h.mu.Unlock()
}

func (h *House) links() (map[int]*transport.Conn, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[int]*transport.Conn, len(h.agents))
	for id, c := range h.agents {
		out[id] = c
	}
	return out, h.id
}

func (h *House) broadcast(m protocol.Message) {
	links, id := h.links()
	m.AccountID = id
	for _, c := range links {
		_ = c.Send(m)
	}
}

// Funds: delegate to the bank client. A house that lost its bank link
// refuses every hold, which rejects every bid.

func (h *House) Reserve(agentID int, itemID string, amount int) bool {
	h.mu.Lock()
	bank := h.bank
	h.mu.Unlock()
	if bank == nil {
		return false
	}
	return bank.Reserve(agentID, itemID, amount)
}

func (h *House) Release(agentID int, itemID string, amount int) {
	h.mu.Lock()
	bank := h.bank
	h.mu.Unlock()
	if bank != nil {
		bank.Release(agentID, itemID, amount)
	}
}

func (h *House) Settle(winnerID int, itemID string, amount int) {
	h.mu.Lock()
	bank := h.bank
	h.mu.Unlock()
	if bank != nil {
		bank.Settle(winnerID, itemID, amount)
	}
}

// Events: push snapshots to the connected agents.

func (h *House) ItemListed(info protocol.ItemInfo) {
	h.broadcast(protocol.Message{Type: protocol.KindNewItem, Item: &info})
}

func (h *House) ItemUpdated(info protocol.ItemInfo) {
	h.broadcast(protocol.Message{Type: protocol.KindUpdate, Item: &info})
}

func (h *House) ItemElapsed(info protocol.ItemInfo) {
	h.broadcast(protocol.Message{Type: protocol.KindElapsed, Item: &info})
}

// ItemExpired tells the winner they won and everyone else that the item is
// gone.
func (h *House) ItemExpired(info protocol.ItemInfo, winnerID int) {
	links, id := h.links()
	for agentID, c := range links {
		kind := protocol.KindExpired
		if agentID == winnerID {
			kind = protocol.KindWin
		}
		_ = c.Send(protocol.Message{Type: kind, AccountID: id, Item: &info})
	}
}

func (h *House) ItemOutbid(agentID int, info protocol.ItemInfo) {
	links, id := h.links()
	if c, ok := links[agentID]; ok {
		_ = c.Send(protocol.Message{Type: protocol.KindOutbid, AccountID: id, Item: &info})
	}
}

// AuctionEnded runs the end-of-auction ceremony once: AUCTION_END to every
// agent, deregistration from the bank, and the listener closed.
func (h *House) AuctionEnded() {
	h.mu.Lock()
	if h.ended {
		h.mu.Unlock()
		return
	}
	h.ended = true
	bank := h.bank
	h.mu.Unlock()

	h.broadcast(protocol.Message{Type: protocol.KindAuctionEnd})
	if bank != nil {
		bank.Deregister()
		bank.Close()
	}
	h.closeDown()
	h.log.Printf("auction ended")
}

// halt stops everything without the shutdown ceremony (bank link gone).
func (h *House) halt() {
	h.mu.Lock()
	if h.ended {
		h.mu.Unlock()
		return
	}
	h.ended = true
	h.mu.Unlock()

	h.block.Stop()
	h.closeDown()
}

func (h *House) closeDown() {
	h.mu.Lock()
	srv := h.srv
	links := make([]*transport.Conn, 0, len(h.agents))
	for _, c := range h.agents {
		links = append(links, c)
	}
	h.agents = make(map[int]*transport.Conn)
	h.mu.Unlock()

	for _, c := range links {
		c.Close()
	}
	if srv != nil {
		_ = srv.Close()
	}
}

// session is one connected agent's side of the house.
type session struct {
	house *House
	conn  *transport.Conn
	id    int
}

func (s *session) handle(m protocol.Message) {
	switch m.Type {
	case protocol.KindNewAgent:
		s.id = m.AccountID
		s.house.addAgent(s.id, s.conn)
		_ = s.conn.Send(protocol.Message{
			Type:      protocol.KindItemList,
			AccountID: s.house.ID(),
			Items:     s.house.Items(),
		})
		// First registered agent starts the countdowns.
		s.house.block.Start()

	case protocol.KindNewBid:
		s.house.log.Printf("new bid from %d: %s for %d", m.AccountID, m.ItemID, m.Amount)
		info, ok := s.house.block.ProposeBid(m.ItemID, m.AccountID, m.Amount)
		kind := protocol.KindRejected
		if ok {
			kind = protocol.KindAccepted
		}
		_ = s.conn.Send(protocol.Message{
			Type:      kind,
			RequestID: m.RequestID,
			AccountID: s.house.ID(),
			ItemID:    m.ItemID,
			Amount:    m.Amount,
			Item:      &info,
		})

	case protocol.KindDeregister:
		if s.id != 0 {
			s.house.removeAgent(s.id)
		}
		s.conn.Close()

	default:
		s.house.log.Printf("agent %d sent unexpected %s, closing link", s.id, m.Type)
		s.conn.Close()
	}
}
