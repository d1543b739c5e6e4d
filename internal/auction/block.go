package auction

import (
	"log"
	"sort"
	"sync"
	"time"

	"auctionnet/internal/config"
	"auctionnet/internal/protocol"
)

// Funds is the synchronous window into the bank used while bidding and
// settling. Reserve answers false for both a refusal and a dead bank link;
// either way the bid is rejected.
type Funds interface {
	Reserve(agentID int, itemID string, amount int) bool
	Release(agentID int, itemID string, amount int)
	Settle(winnerID int, itemID string, amount int)
}

// Events is the house-side fan-out for item lifecycle notifications. The
// block never talks to a connection directly.
type Events interface {
	ItemListed(info protocol.ItemInfo)
	ItemUpdated(info protocol.ItemInfo)
	ItemElapsed(info protocol.ItemInfo)
	ItemExpired(info protocol.ItemInfo, winnerID int)
	ItemOutbid(agentID int, info protocol.ItemInfo)
	AuctionEnded()
}

// Block is one house's auction block: the items currently for sale plus the
// replenishment queue, driven by a once-per-time-unit scheduler. One lock
// covers items and queue; bids and ticks serialize through it, bank calls
// included, so no two bids can both win the same update.
type Block struct {
	cfg    config.Settings
	funds  Funds
	events Events
	log    *log.Logger

	mu      sync.Mutex
	items   map[string]*Item
	queue   []string
	started bool

	stopOnce sync.Once
	stop     chan struct{}
}

// NewBlock lists the first InitialListings items from the queue immediately.
func NewBlock(queue []string, cfg config.Settings, funds Funds, events Events, logger *log.Logger) *Block {
	b := &Block{
		cfg:    cfg,
		funds:  funds,
		events: events,
		log:    logger,
		items:  make(map[string]*Item),
		queue:  append([]string(nil), queue...),
		stop:   make(chan struct{}),
	}
	for len(b.items) < cfg.InitialListings && len(b.queue) > 0 {
		id := b.queue[0]
		b.queue = b.queue[1:]
		b.items[id] = newItem(id, cfg.BidDuration)
		logger.Printf("new item for sale: %s", id)
	}
	return b
}

// Start launches the scheduler. Idempotent; the house calls it when the
// first agent registers so timers do not burn down in an empty room.
func (b *Block) Start() {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return
	}
	b.started = true
	b.mu.Unlock()
	go b.run()
}

func (b *Block) run() {
	ticker := time.NewTicker(b.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			if drained := b.tick(); drained {
				b.log.Printf("no more items for sale")
				select {
				case <-b.stop:
					return
				case <-time.After(b.cfg.GracePeriod):
				}
				b.stopOnce.Do(func() { close(b.stop) })
				b.events.AuctionEnded()
				return
			}
		}
	}
}

// tick advances every listed item by one time unit and handles expiries and
// replenishment. Returns true once both the block and the queue are empty.
func (b *Block) tick() (drained bool) {
	var (
		elapsed []protocol.ItemInfo
		expired []*Item
		listed  []protocol.ItemInfo
	)

	b.mu.Lock()
	for _, it := range b.items {
		it.TimeLeft--
		switch {
		case it.TimeLeft <= 0:
			it.TimeLeft = 0
			it.OnSale = false
			expired = append(expired, it)
		case it.TimeLeft%b.cfg.ElapseEvery == 0:
			elapsed = append(elapsed, it.Snapshot())
		}
	}
	for _, it := range expired {
		delete(b.items, it.ID)
		if len(b.queue) > 0 {
			id := b.queue[0]
			b.queue = b.queue[1:]
			next := newItem(id, b.cfg.BidDuration)
			b.items[id] = next
			listed = append(listed, next.Snapshot())
		}
	}
	drained = len(b.items) == 0 && len(b.queue) == 0
	b.mu.Unlock()

	for _, info := range elapsed {
		b.events.ItemElapsed(info)
	}
	for _, it := range expired {
		b.settleAndExpire(it)
	}
	for _, info := range listed {
		b.log.Printf("new item for sale: %s", info.ItemID)
		b.events.ItemListed(info)
	}
	return drained
}

func (b *Block) settleAndExpire(it *Item) {
	b.log.Printf("auction expired: %s (bid %d, winner %d)", it.ID, it.CurrentBid, it.Winner)
	if it.Winner != 0 {
		b.funds.Settle(it.Winner, it.ID, it.CurrentBid)
	}
	b.events.ItemExpired(it.Snapshot(), it.Winner)
}

// ProposeBid validates and commits one bid. Rejected without mutation when
// the item is unknown, off sale, the amount does not beat the current bid,
// or the bank refuses the hold. An accepted bid resets the countdown to the
// full duration.
func (b *Block) ProposeBid(itemID string, agentID, amount int) (protocol.ItemInfo, bool) {
	b.mu.Lock()
	it, ok := b.items[itemID]
	if !ok || !it.OnSale || amount <= it.CurrentBid {
		b.mu.Unlock()
		return protocol.ItemInfo{ItemID: itemID}, false
	}

	// The reserve happens inside the lock: the bid's validation, the hold,
	// and the item mutation must not interleave with a competing bid.
	if !b.funds.Reserve(agentID, itemID, amount) {
		info := it.Snapshot()
		b.mu.Unlock()
		return info, false
	}

	prevWinner, prevBid := it.Winner, it.CurrentBid
	it.CurrentBid = amount
	it.Winner = agentID
	it.TimeLeft = b.cfg.BidDuration
	info := it.Snapshot()

	if prevWinner != 0 {
		b.funds.Release(prevWinner, itemID, prevBid)
	}
	b.mu.Unlock()

	if prevWinner != 0 {
		b.events.ItemOutbid(prevWinner, info)
	}
	b.events.ItemUpdated(info)
	return info, true
}

// Items snapshots the current listings, ordered by id.
func (b *Block) Items() []protocol.ItemInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]protocol.ItemInfo, 0, len(b.items))
	for _, it := range b.items {
		out = append(out, it.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out
}

// HasLiveBids reports whether any listed item carries a bid.
func (b *Block) HasLiveBids() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, it := range b.items {
		if it.CurrentBid > 0 {
			return true
		}
	}
	return false
}

// ShutDown is the manual stop. It refuses while any listed item has a live
// bid; on success every remaining item is expired (settling winners — there
// are none by definition) and the scheduler stops. The caller broadcasts
// AUCTION_END and deregisters.
func (b *Block) ShutDown() bool {
	b.mu.Lock()
	for _, it := range b.items {
		if it.CurrentBid > 0 {
			b.mu.Unlock()
			return false
		}
	}
	remaining := make([]*Item, 0, len(b.items))
	for _, it := range b.items {
		it.OnSale = false
		remaining = append(remaining, it)
		delete(b.items, it.ID)
	}
	b.queue = nil
	b.mu.Unlock()

	b.stopOnce.Do(func() { close(b.stop) })
	sort.Slice(remaining, func(i, j int) bool { return remaining[i].ID < remaining[j].ID })
	for _, it := range remaining {
		b.settleAndExpire(it)
	}
	return true
}

// Stop halts the scheduler without the manual-shutdown ceremony.
func (b *Block) Stop() {
	b.stopOnce.Do(func() { close(b.stop) })
}
