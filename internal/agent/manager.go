package agent

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"auctionnet/internal/protocol"
	"auctionnet/internal/transport"
)

// Manager is the agent node: one bank link plus one proxy per known auction
// house, kept in sync with the bank's topology pushes. A Strategy, when
// set, reacts to item events by placing bids; without one the manager just
// observes (an interactive front end would drive it the same way).
type Manager struct {
	log      *log.Logger
	strategy Strategy

	bank *transport.Caller

	mu      sync.Mutex
	id      int
	balance int // available balance as last reported by the bank
	houses  map[string]*HouseProxy

	done     chan struct{}
	doneOnce sync.Once
}

// Strategy decides how the agent reacts to an item it can see. Returning a
// bid of 0 means no action.
type Strategy interface {
	NextBid(info protocol.ItemInfo, available int) int
}

func NewManager(strategy Strategy, logger *log.Logger) *Manager {
	return &Manager{
		log:      logger,
		strategy: strategy,
		houses:   make(map[string]*HouseProxy),
		done:     make(chan struct{}),
	}
}

// Connect registers with the bank and dials every auction house in the
// confirmation list. It polls until the bank is reachable.
func (m *Manager) Connect(ctx context.Context, bankURL string, initialBalance int, retry time.Duration) error {
	ws, err := transport.DialRetry(ctx, bankURL, retry, m.log)
	if err != nil {
		return err
	}
	caller := transport.NewCaller(ws, m.log)
	m.bank = caller
	go caller.Start(m.handleBankPush, func(err error) {
		if err != nil {
			m.log.Printf("bank link lost: %v", err)
		}
		m.shutdown()
	})

	reply, err := caller.Call(protocol.Message{
		Type:   protocol.KindNewAgent,
		Amount: initialBalance,
	})
	if err != nil {
		return fmt.Errorf("register with bank: %w", err)
	}
	if reply.Type != protocol.KindRegConfirm {
		return fmt.Errorf("register with bank: unexpected reply %s", reply.Type)
	}

	m.mu.Lock()
	m.id = reply.AccountID
	m.balance = reply.Amount
	m.mu.Unlock()
	m.log.Printf("registered: account %d, balance %d", reply.AccountID, reply.Amount)

	m.updateHouses(reply.AuctionHouses)
	return nil
}

func (m *Manager) ID() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id
}

func (m *Manager) Available() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balance
}

// Done closes when the manager has shut down (bank gone or Close called).
func (m *Manager) Done() <-chan struct{} { return m.done }

func (m *Manager) handleBankPush(msg protocol.Message) {
	switch msg.Type {
	case protocol.KindUpdateList:
		m.updateHouses(msg.AuctionHouses)
	case protocol.KindUpdateBal:
		m.mu.Lock()
		m.balance = msg.Amount
		m.mu.Unlock()
		m.log.Printf("balance update: %d available", msg.Amount)
	default:
		m.log.Printf("bank pushed unexpected %s", msg.Type)
	}
}

// updateHouses diffs the pushed topology against the live proxies, dialing
// the new houses and dropping the departed ones.
func (m *Manager) updateHouses(addrs []string) {
	want := make(map[string]bool, len(addrs))
	for _, a := range addrs {
		want[a] = true
	}

	m.mu.Lock()
	var toClose []*HouseProxy
	for addr, p := range m.houses {
		if !want[addr] {
			delete(m.houses, addr)
			toClose = append(toClose, p)
		}
	}
	var toDial []string
	for _, addr := range addrs {
		if _, ok := m.houses[addr]; !ok {
			toDial = append(toDial, addr)
		}
	}
	m.mu.Unlock()

	for _, p := range toClose {
		p.Close()
	}
	for _, addr := range toDial {
		if err := m.dialHouse(addr); err != nil {
			m.log.Printf("connect auction house %s: %v", addr, err)
		}
	}
}

func (m *Manager) dialHouse(addr string) error {
	ws, _, err := transport.Dial(fmt.Sprintf("ws://%s/ws", addr))
	if err != nil {
		return err
	}

	p := &HouseProxy{
		mgr:     m,
		addr:    addr,
		conn:    transport.NewConn(ws, m.log),
		items:   make(map[string]protocol.ItemInfo),
		winning: make(map[string]int),
	}
	m.mu.Lock()
	m.houses[addr] = p
	m.mu.Unlock()

	go p.conn.Start(p.handle, func(err error) {
		if err != nil {
			m.log.Printf("auction house %s link lost: %v", addr, err)
		}
		m.mu.Lock()
		if m.houses[addr] == p {
			delete(m.houses, addr)
		}
		m.mu.Unlock()
	})

	// Announce ourselves; the house answers with the item list.
	return p.conn.Send(protocol.Message{
		Type:      protocol.KindNewAgent,
		AccountID: m.ID(),
	})
}

// Proxy returns the live proxy for one auction house address.
func (m *Manager) Proxy(addr string) (*HouseProxy, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.houses[addr]
	return p, ok
}

// Bid submits a bid at the given house. The outcome arrives asynchronously
// as ACCEPTED or REJECTED.
func (m *Manager) Bid(addr, itemID string, amount int) error {
	p, ok := m.Proxy(addr)
	if !ok {
		return fmt.Errorf("no auction house at %s", addr)
	}
	return p.conn.Send(protocol.Message{
		Type:      protocol.KindNewBid,
		AccountID: m.ID(),
		ItemID:    itemID,
		Amount:    amount,
	})
}

// Houses lists the addresses of the connected auction houses, for display.
func (m *Manager) Houses() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.houses))
	for addr := range m.houses {
		out = append(out, addr)
	}
	return out
}

// Close deregisters from the bank and drops every link.
func (m *Manager) Close() {
	id := m.ID()
	if m.bank != nil && id != 0 {
		_ = m.bank.Send(protocol.Message{Type: protocol.KindDeregister, AccountID: id})
	}
	m.shutdown()
}

func (m *Manager) shutdown() {
	m.doneOnce.Do(func() {
		m.mu.Lock()
		houses := make([]*HouseProxy, 0, len(m.houses))
		for _, p := range m.houses {
			houses = append(houses, p)
		}
		m.houses = make(map[string]*HouseProxy)
		m.mu.Unlock()

		for _, p := range houses {
			p.Close()
		}
		if m.bank != nil {
			m.bank.Close()
		}
		close(m.done)
	})
}

// maybeBid consults the strategy and pushes a bid if it wants one.
func (m *Manager) maybeBid(p *HouseProxy, info protocol.ItemInfo) {
	if m.strategy == nil {
		return
	}
	amount := m.strategy.NextBid(info, m.Available())
	if amount <= info.CurrentBid {
		return
	}
	m.log.Printf("bidding %d on %s at %s", amount, info.ItemID, p.addr)
	_ = p.conn.Send(protocol.Message{
		Type:      protocol.KindNewBid,
		AccountID: m.ID(),
		ItemID:    info.ItemID,
		Amount:    amount,
	})
}
