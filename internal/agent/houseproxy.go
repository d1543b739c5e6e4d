package agent

import (
	"sync"

	"auctionnet/internal/protocol"
	"auctionnet/internal/transport"
)

// HouseProxy is the agent's local representative of one auction house. It
// tracks the item snapshots the house pushes and which items this agent is
// currently winning.
type HouseProxy struct {
	mgr  *Manager
	addr string
	conn *transport.Conn

	mu      sync.Mutex
	houseID int
	items   map[string]protocol.ItemInfo
	winning map[string]int // item id -> our held amount
}

func (p *HouseProxy) handle(m protocol.Message) {
	switch m.Type {
	case protocol.KindItemList:
		p.mu.Lock()
		p.houseID = m.AccountID
		for _, info := range m.Items {
			p.items[info.ItemID] = info
		}
		p.mu.Unlock()
		for _, info := range m.Items {
			p.mgr.maybeBid(p, info)
		}

	case protocol.KindNewItem:
		if m.Item == nil {
			return
		}
		p.storeItem(*m.Item)
		p.mgr.maybeBid(p, *m.Item)

	case protocol.KindUpdate, protocol.KindElapsed:
		if m.Item != nil {
			p.storeItem(*m.Item)
		}

	case protocol.KindAccepted:
		p.mu.Lock()
		p.winning[m.ItemID] = m.Amount
		p.mu.Unlock()
		p.mgr.log.Printf("bid accepted: %s for %d at %s", m.ItemID, m.Amount, p.addr)

	case protocol.KindRejected:
		p.mgr.log.Printf("bid rejected: %s for %d at %s", m.ItemID, m.Amount, p.addr)

	case protocol.KindOutbid:
		if m.Item == nil {
			return
		}
		p.mu.Lock()
		delete(p.winning, m.Item.ItemID)
		p.mu.Unlock()
		p.storeItem(*m.Item)
		p.mgr.log.Printf("outbid on %s (now %d) at %s", m.Item.ItemID, m.Item.CurrentBid, p.addr)
		p.mgr.maybeBid(p, *m.Item)

	case protocol.KindExpired:
		if m.Item == nil {
			return
		}
		p.dropItem(m.Item.ItemID)

	case protocol.KindWin:
		if m.Item == nil {
			return
		}
		p.dropItem(m.Item.ItemID)
		p.mgr.log.Printf("won %s for %d at %s", m.Item.ItemID, m.Item.CurrentBid, p.addr)

	case protocol.KindAuctionEnd:
		p.mgr.log.Printf("auction ended at %s", p.addr)
		p.Close()

	default:
		p.mgr.log.Printf("auction house %s pushed unexpected %s", p.addr, m.Type)
	}
}

func (p *HouseProxy) storeItem(info protocol.ItemInfo) {
	p.mu.Lock()
	p.items[info.ItemID] = info
	p.mu.Unlock()
}

func (p *HouseProxy) dropItem(id string) {
	p.mu.Lock()
	delete(p.items, id)
	delete(p.winning, id)
	p.mu.Unlock()
}

// HasActiveBids reports whether this agent currently holds the high bid on
// anything at this house.
func (p *HouseProxy) HasActiveBids() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.winning) > 0
}

// Items snapshots the proxy's view of the house's listings.
func (p *HouseProxy) Items() []protocol.ItemInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]protocol.ItemInfo, 0, len(p.items))
	for _, info := range p.items {
		out = append(out, info)
	}
	return out
}

func (p *HouseProxy) Close() { p.conn.Close() }

// IncrementStrategy bids a fixed step over the current high bid, within a
// spending cap and the agent's available balance.
type IncrementStrategy struct {
	Step int
	Max  int
}

func (s IncrementStrategy) NextBid(info protocol.ItemInfo, available int) int {
	bid := info.CurrentBid + s.Step
	if bid > s.Max || bid > available {
		return 0
	}
	return bid
}
