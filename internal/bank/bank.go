package bank

import (
	"fmt"
	"log"
	"sort"
	"sync"

	"auctionnet/internal/persistence/indexdb"
	"auctionnet/internal/protocol"
)

// Notifier is the standing push link to one registered agent. The bank only
// ever needs this one capability from a connection.
type Notifier interface {
	Send(m protocol.Message) error
}

// Bank arbitrates accounts and topology. It is constructed once at startup
// and handed to every connection operator; there is no global state.
type Bank struct {
	ledger  *Ledger
	journal *Journal
	index   *indexdb.SQLiteIndex
	log     *log.Logger

	mu     sync.Mutex
	houses map[int]string   // house account id -> listen address
	agents map[int]Notifier // agent account id -> push link
}

func New(ledger *Ledger, journal *Journal, index *indexdb.SQLiteIndex, logger *log.Logger) *Bank {
	return &Bank{
		ledger:  ledger,
		journal: journal,
		index:   index,
		log:     logger,
		houses:  make(map[int]string),
		agents:  make(map[int]Notifier),
	}
}

func (b *Bank) Ledger() *Ledger { return b.ledger }

// RegisterAgent opens an account with the requested starting balance and
// keeps the link for topology pushes.
func (b *Bank) RegisterAgent(initial int, link Notifier) *Account {
	a := b.ledger.Open(initial)
	b.mu.Lock()
	b.agents[a.ID] = link
	b.mu.Unlock()
	b.record("open", a.ID, 0, "", initial, true)
	b.log.Printf("new agent member %d (balance %d)", a.ID, initial)
	return a
}

// RegisterHouse opens a zero-balance account, adds the house to the
// topology, and fans the updated list out to every agent.
func (b *Bank) RegisterHouse(addr string) *Account {
	a := b.ledger.Open(0)
	b.mu.Lock()
	b.houses[a.ID] = addr
	b.mu.Unlock()
	b.record("open", a.ID, 0, "", 0, true)
	b.log.Printf("new auction house %d at %s", a.ID, addr)
	b.broadcastTopology()
	return a
}

// Deregister removes the account and whatever registry entries it had. A
// departing house triggers a topology fanout. Safe to call twice; the
// second call is a no-op.
func (b *Bank) Deregister(id int) {
	if _, ok := b.ledger.Get(id); !ok {
		return
	}
	b.ledger.CloseAccount(id)

	b.mu.Lock()
	_, wasHouse := b.houses[id]
	delete(b.houses, id)
	delete(b.agents, id)
	b.mu.Unlock()

	b.record("close", id, 0, "", 0, true)
	b.log.Printf("member %d deregistered", id)
	if wasHouse {
		b.broadcastTopology()
	}
}

// Topology lists the addresses of every open auction house, sorted.
func (b *Bank) Topology() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.houses))
	for _, addr := range b.houses {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}

func (b *Bank) broadcastTopology() {
	list := b.Topology()

	b.mu.Lock()
	links := make([]Notifier, 0, len(b.agents))
	for _, l := range b.agents {
		links = append(links, l)
	}
	b.mu.Unlock()

	for _, l := range links {
		_ = l.Send(protocol.Message{Type: protocol.KindUpdateList, AuctionHouses: list})
	}
}

// Reserve places a tagged hold iff funds cover it.
func (b *Bank) Reserve(id int, tag string, amount int) bool {
	ok := b.ledger.Reserve(id, tag, amount)
	b.record("reserve", id, 0, tag, amount, ok)
	return ok
}

// Release drops the tagged hold.
func (b *Bank) Release(id int, tag string, amount int) {
	b.ledger.Release(id, tag, amount)
	b.record("release", id, 0, tag, amount, true)
}

// Transfer settles a won bid and pushes the payer's new balance down their
// standing link, if they still have one. Returns the payer's new available
// balance.
func (b *Bank) Transfer(from, to int, tag string, amount int) (int, error) {
	avail, err := b.ledger.Transfer(from, to, tag, amount)
	b.record("transfer", from, to, tag, amount, err == nil)
	if err != nil {
		return avail, err
	}

	b.mu.Lock()
	link := b.agents[from]
	b.mu.Unlock()
	if link != nil {
		_ = link.Send(protocol.Message{Type: protocol.KindUpdateBal, AccountID: from, Amount: avail})
	}
	return avail, nil
}

// MemberLines renders the shell views: every account, only agents, or only
// auction houses.
func (b *Bank) MemberLines(filter string) []string {
	b.mu.Lock()
	houses := make(map[int]string, len(b.houses))
	for id, addr := range b.houses {
		houses[id] = addr
	}
	agents := make(map[int]bool, len(b.agents))
	for id := range b.agents {
		agents[id] = true
	}
	b.mu.Unlock()

	var out []string
	for _, a := range b.ledger.Accounts() {
		switch filter {
		case "agents":
			if !agents[a.ID] {
				continue
			}
		case "houses":
			if _, ok := houses[a.ID]; !ok {
				continue
			}
		}
		line := fmt.Sprintf("account %d  balance %d  available %d", a.ID, a.Balance(), a.Available())
		if addr, ok := houses[a.ID]; ok {
			line += "  house@" + addr
		}
		out = append(out, line)
	}
	return out
}

func (b *Bank) record(op string, account, payee int, tag string, amount int, ok bool) {
	if err := b.journal.Record(JournalEntry{Op: op, Account: account, Payee: payee, Tag: tag, Amount: amount, OK: ok}); err != nil {
		b.log.Printf("journal: %v", err)
	}
	b.index.Record(indexdb.TxRow{Op: op, Account: account, Payee: payee, Tag: tag, Amount: amount, OK: ok})
}
