package bank

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
)

// Account is one bank-held balance with its outstanding holds. Holds are
// keyed by a caller-supplied tag (the item id for auction holds) so a
// release always targets the hold that created it; untagged peers fall back
// to amount matching.
type Account struct {
	ID int

	mu      sync.Mutex
	balance int
	holds   map[string]int
}

// Available is the balance minus every outstanding hold.
func (a *Account) Available() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.availableLocked()
}

func (a *Account) availableLocked() int {
	v := a.balance
	for _, h := range a.holds {
		v -= h
	}
	return v
}

func (a *Account) Balance() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balance
}

func (a *Account) HoldCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.holds)
}

// Ledger owns every account. Registry mutation (open/close/lookup) takes the
// ledger lock; balance and hold mutation takes only the account's own lock,
// so operations on different accounts never contend.
type Ledger struct {
	mu       sync.Mutex
	accounts map[int]*Account
	rng      *rand.Rand
}

func NewLedger(seed int64) *Ledger {
	return &Ledger{
		accounts: make(map[int]*Account),
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// Open creates an account with a fresh id and the given starting balance.
func (l *Ledger) Open(initial int) *Account {
	l.mu.Lock()
	defer l.mu.Unlock()

	var id int
	for {
		id = l.rng.Intn(100000)
		if id != 0 {
			if _, taken := l.accounts[id]; !taken {
				break
			}
		}
	}
	a := &Account{ID: id, balance: initial, holds: make(map[string]int)}
	l.accounts[id] = a
	return a
}

func (l *Ledger) Get(id int) (*Account, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.accounts[id]
	return a, ok
}

// CloseAccount removes the account. Outstanding holds die with it.
func (l *Ledger) CloseAccount(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.accounts, id)
}

func (l *Ledger) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.accounts)
}

// Accounts returns a stable snapshot of all accounts, ordered by id.
func (l *Ledger) Accounts() []*Account {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Account, 0, len(l.accounts))
	for _, a := range l.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Reserve earmarks amount against the account iff the available balance
// covers it. The tag identifies the hold for a later Release or Transfer.
func (l *Ledger) Reserve(id int, tag string, amount int) bool {
	a, ok := l.Get(id)
	if !ok || amount <= 0 {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.availableLocked() < amount {
		return false
	}
	a.holds[holdKey(a, tag)] = amount
	return true
}

// Release drops the hold identified by tag, or failing that the first hold
// equal to amount. A release with no matching hold is a no-op.
func (l *Ledger) Release(id int, tag string, amount int) {
	a, ok := l.Get(id)
	if !ok {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dropHoldLocked(tag, amount)
}

func (a *Account) dropHoldLocked(tag string, amount int) {
	if tag != "" {
		if _, ok := a.holds[tag]; ok {
			delete(a.holds, tag)
			return
		}
	}
	for k, h := range a.holds {
		if h == amount {
			delete(a.holds, k)
			return
		}
	}
}

// Transfer settles amount from one account to another, dropping the
// matching hold on the payer first. It does not re-check funds; a prior
// Reserve is assumed. Returns the payer's new available balance.
func (l *Ledger) Transfer(from, to int, tag string, amount int) (int, error) {
	src, okFrom := l.Get(from)
	dst, okTo := l.Get(to)
	if !okFrom {
		return 0, fmt.Errorf("transfer: unknown payer account %d", from)
	}

	src.mu.Lock()
	src.dropHoldLocked(tag, amount)
	src.balance -= amount
	avail := src.availableLocked()
	src.mu.Unlock()

	if okTo {
		dst.mu.Lock()
		dst.balance += amount
		dst.mu.Unlock()
	} else {
		return avail, fmt.Errorf("transfer: unknown payee account %d", to)
	}
	return avail, nil
}

// HoldTag derives the ledger hold tag for one bid. Bids on an item strictly
// increase, so item id plus amount is unique; an agent outbidding itself
// holds both tags until the older one is released.
func HoldTag(itemID string, amount int) string {
	if itemID == "" {
		return ""
	}
	return fmt.Sprintf("%s#%d", itemID, amount)
}

func holdKey(a *Account, tag string) string {
	if tag != "" {
		return tag
	}
	for i := 1; ; i++ {
		k := fmt.Sprintf("hold-%d", i)
		if _, taken := a.holds[k]; !taken {
			return k
		}
	}
}
