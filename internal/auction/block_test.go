package auction

import (
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"auctionnet/internal/config"
	"auctionnet/internal/protocol"
)

type fundsCall struct {
	agent  int
	item   string
	amount int
}

// fakeFunds records every bank interaction. refuse flips Reserve to a
// blanket no.
type fakeFunds struct {
	mu     sync.Mutex
	refuse bool

	reserves []fundsCall
	releases []fundsCall
	settles  []fundsCall
}

func (f *fakeFunds) Reserve(agentID int, itemID string, amount int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reserves = append(f.reserves, fundsCall{agentID, itemID, amount})
	return !f.refuse
}

func (f *fakeFunds) Release(agentID int, itemID string, amount int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releases = append(f.releases, fundsCall{agentID, itemID, amount})
}

func (f *fakeFunds) Settle(winnerID int, itemID string, amount int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settles = append(f.settles, fundsCall{winnerID, itemID, amount})
}

type expiry struct {
	info   protocol.ItemInfo
	winner int
}

type fakeEvents struct {
	mu      sync.Mutex
	listed  []protocol.ItemInfo
	updated []protocol.ItemInfo
	elapsed []protocol.ItemInfo
	expired []expiry
	outbid  []fundsCall // agent + item + amount seen in the notification
	ended   int
}

func (e *fakeEvents) ItemListed(info protocol.ItemInfo) {
	e.mu.Lock()
	e.listed = append(e.listed, info)
	e.mu.Unlock()
}

func (e *fakeEvents) ItemUpdated(info protocol.ItemInfo) {
	e.mu.Lock()
	e.updated = append(e.updated, info)
	e.mu.Unlock()
}

func (e *fakeEvents) ItemElapsed(info protocol.ItemInfo) {
	e.mu.Lock()
	e.elapsed = append(e.elapsed, info)
	e.mu.Unlock()
}

func (e *fakeEvents) ItemExpired(info protocol.ItemInfo, winnerID int) {
	e.mu.Lock()
	e.expired = append(e.expired, expiry{info, winnerID})
	e.mu.Unlock()
}

func (e *fakeEvents) ItemOutbid(agentID int, info protocol.ItemInfo) {
	e.mu.Lock()
	e.outbid = append(e.outbid, fundsCall{agentID, info.ItemID, info.CurrentBid})
	e.mu.Unlock()
}

func (e *fakeEvents) AuctionEnded() {
	e.mu.Lock()
	e.ended++
	e.mu.Unlock()
}

func (e *fakeEvents) endedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ended
}

func testSettings() config.Settings {
	return config.Settings{
		BidDuration:     15,
		ElapseEvery:     5,
		InitialListings: 3,
		TickInterval:    time.Hour, // tests drive ticks by hand
		GracePeriod:     0,
		BankRetryDelay:  time.Second,
	}
}

func newTestBlock(queue []string, cfg config.Settings) (*Block, *fakeFunds, *fakeEvents) {
	funds := &fakeFunds{}
	events := &fakeEvents{}
	logger := log.New(io.Discard, "", 0)
	return NewBlock(queue, cfg, funds, events, logger), funds, events
}

func TestNewBlock_ListsInitialItems(t *testing.T) {
	b, _, _ := newTestBlock([]string{"sword", "shield", "helmet", "lute", "chalice"}, testSettings())

	items := b.Items()
	if len(items) != 3 {
		t.Fatalf("listed %d items, want 3", len(items))
	}
	for _, info := range items {
		if info.CurrentBid != 0 || info.TimeLeft != 15 {
			t.Fatalf("fresh listing = %+v", info)
		}
	}
}

func TestNewBlock_ShortQueue(t *testing.T) {
	b, _, _ := newTestBlock([]string{"sword"}, testSettings())
	if got := len(b.Items()); got != 1 {
		t.Fatalf("listed %d items, want 1", got)
	}
}

func TestTick_ElapsedHeartbeat(t *testing.T) {
	b, _, events := newTestBlock([]string{"sword"}, testSettings())

	for i := 0; i < 4; i++ {
		b.tick()
	}
	if got := len(events.elapsed); got != 0 {
		t.Fatalf("%d heartbeats before a multiple of elapse_every", got)
	}

	b.tick() // time_left 10
	if got := len(events.elapsed); got != 1 {
		t.Fatalf("heartbeats = %d, want 1", got)
	}
	if info := events.elapsed[0]; info.ItemID != "sword" || info.TimeLeft != 10 {
		t.Fatalf("heartbeat = %+v", info)
	}
}

func TestTick_ExpiryReplenishesAndDrains(t *testing.T) {
	cfg := testSettings()
	cfg.BidDuration = 2
	cfg.InitialListings = 1
	b, funds, events := newTestBlock([]string{"sword", "shield"}, cfg)

	b.tick()
	if drained := b.tick(); drained {
		t.Fatalf("drained with shield still queued")
	}
	if len(events.expired) != 1 || events.expired[0].info.ItemID != "sword" || events.expired[0].winner != 0 {
		t.Fatalf("expired = %+v", events.expired)
	}
	if len(events.listed) != 1 || events.listed[0].ItemID != "shield" {
		t.Fatalf("replenishment = %+v", events.listed)
	}
	if len(funds.settles) != 0 {
		t.Fatalf("unbid expiry settled: %+v", funds.settles)
	}

	b.tick()
	if drained := b.tick(); !drained {
		t.Fatalf("not drained after the last item expired")
	}
	if len(events.expired) != 2 {
		t.Fatalf("expired %d items, want 2", len(events.expired))
	}
}

func TestTick_SettlesWinnerOnExpiry(t *testing.T) {
	cfg := testSettings()
	cfg.BidDuration = 2
	cfg.InitialListings = 1
	b, funds, events := newTestBlock([]string{"sword"}, cfg)

	if _, ok := b.ProposeBid("sword", 42, 50); !ok {
		t.Fatalf("bid rejected")
	}
	b.tick()
	b.tick()

	if len(funds.settles) != 1 {
		t.Fatalf("settles = %+v, want exactly one", funds.settles)
	}
	if got := funds.settles[0]; got != (fundsCall{42, "sword", 50}) {
		t.Fatalf("settle = %+v", got)
	}
	if len(events.expired) != 1 || events.expired[0].winner != 42 {
		t.Fatalf("expired = %+v", events.expired)
	}
}

func TestProposeBid_Validation(t *testing.T) {
	b, funds, _ := newTestBlock([]string{"sword"}, testSettings())

	if _, ok := b.ProposeBid("ghost", 1, 50); ok {
		t.Fatalf("bid on unknown item accepted")
	}
	if _, ok := b.ProposeBid("sword", 1, 0); ok {
		t.Fatalf("zero bid accepted")
	}
	if len(funds.reserves) != 0 {
		t.Fatalf("invalid bids reached the bank: %+v", funds.reserves)
	}

	if _, ok := b.ProposeBid("sword", 1, 50); !ok {
		t.Fatalf("opening bid rejected")
	}
	if _, ok := b.ProposeBid("sword", 2, 50); ok {
		t.Fatalf("equal bid accepted")
	}
	if _, ok := b.ProposeBid("sword", 2, 49); ok {
		t.Fatalf("lower bid accepted")
	}
}

func TestProposeBid_BankRefusalRejects(t *testing.T) {
	b, funds, _ := newTestBlock([]string{"sword"}, testSettings())
	funds.refuse = true

	info, ok := b.ProposeBid("sword", 1, 50)
	if ok {
		t.Fatalf("bid accepted without funds")
	}
	if info.CurrentBid != 0 {
		t.Fatalf("refused bid mutated the item: %+v", info)
	}
	if len(funds.reserves) != 1 {
		t.Fatalf("reserve attempts = %d, want 1", len(funds.reserves))
	}
}

func TestProposeBid_ResetsCountdown(t *testing.T) {
	b, _, _ := newTestBlock([]string{"sword"}, testSettings())

	for i := 0; i < 7; i++ {
		b.tick()
	}
	info, ok := b.ProposeBid("sword", 1, 50)
	if !ok {
		t.Fatalf("bid rejected")
	}
	if info.TimeLeft != 15 {
		t.Fatalf("time_left after accepted bid = %d, want full duration", info.TimeLeft)
	}
}

func TestProposeBid_OutbidReleasesPreviousHold(t *testing.T) {
	b, funds, events := newTestBlock([]string{"sword"}, testSettings())

	if _, ok := b.ProposeBid("sword", 1, 50); !ok {
		t.Fatalf("first bid rejected")
	}
	info, ok := b.ProposeBid("sword", 2, 75)
	if !ok {
		t.Fatalf("higher bid rejected")
	}
	if info.CurrentBid != 75 {
		t.Fatalf("current bid = %d, want 75", info.CurrentBid)
	}

	if len(funds.releases) != 1 {
		t.Fatalf("releases = %+v, want exactly one", funds.releases)
	}
	if got := funds.releases[0]; got != (fundsCall{1, "sword", 50}) {
		t.Fatalf("release = %+v", got)
	}
	if len(events.outbid) != 1 {
		t.Fatalf("outbid notifications = %+v, want exactly one", events.outbid)
	}
	if got := events.outbid[0]; got.agent != 1 || got.amount != 75 {
		t.Fatalf("outbid = %+v", got)
	}
}

// An agent raising its own bid releases the superseded hold like any other
// outbid.
func TestProposeBid_SelfOutbid(t *testing.T) {
	b, funds, _ := newTestBlock([]string{"sword"}, testSettings())

	if _, ok := b.ProposeBid("sword", 1, 50); !ok {
		t.Fatalf("first bid rejected")
	}
	if _, ok := b.ProposeBid("sword", 1, 75); !ok {
		t.Fatalf("raise rejected")
	}
	if len(funds.reserves) != 2 {
		t.Fatalf("reserves = %+v", funds.reserves)
	}
	if len(funds.releases) != 1 || funds.releases[0] != (fundsCall{1, "sword", 50}) {
		t.Fatalf("releases = %+v, want the 50 hold dropped", funds.releases)
	}
}

func TestProposeBid_ConcurrentEqualBids(t *testing.T) {
	b, funds, _ := newTestBlock([]string{"sword"}, testSettings())

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		oks int
	)
	for agent := 1; agent <= 2; agent++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if _, ok := b.ProposeBid("sword", id, 60); ok {
				mu.Lock()
				oks++
				mu.Unlock()
			}
		}(agent)
	}
	wg.Wait()

	if oks != 1 {
		t.Fatalf("%d equal bids accepted, want 1", oks)
	}
	if len(funds.reserves) != 1 {
		t.Fatalf("reserves = %+v, want the winner's only", funds.reserves)
	}
	if len(funds.releases) != 0 {
		t.Fatalf("releases = %+v, want none", funds.releases)
	}
}

func TestShutDown_RefusedWithLiveBids(t *testing.T) {
	b, _, _ := newTestBlock([]string{"sword"}, testSettings())

	if _, ok := b.ProposeBid("sword", 1, 50); !ok {
		t.Fatalf("bid rejected")
	}
	if b.ShutDown() {
		t.Fatalf("shut down with a live bid")
	}
	if !b.HasLiveBids() {
		t.Fatalf("live bid lost")
	}
}

func TestShutDown_ExpiresRemainder(t *testing.T) {
	b, funds, events := newTestBlock([]string{"sword", "shield", "helmet", "lute"}, testSettings())

	if !b.ShutDown() {
		t.Fatalf("shut down refused with no bids")
	}
	if len(events.expired) != 3 {
		t.Fatalf("expired %d items, want the 3 listed", len(events.expired))
	}
	if len(funds.settles) != 0 {
		t.Fatalf("settles = %+v, want none", funds.settles)
	}
	if got := len(b.Items()); got != 0 {
		t.Fatalf("%d items still listed", got)
	}
}

// The scheduler ends the auction one grace period after the last expiry.
func TestRun_EndsAfterGrace(t *testing.T) {
	cfg := testSettings()
	cfg.BidDuration = 1
	cfg.InitialListings = 1
	cfg.TickInterval = 5 * time.Millisecond
	cfg.GracePeriod = 10 * time.Millisecond
	b, _, events := newTestBlock([]string{"sword"}, cfg)

	b.Start()
	b.Start() // idempotent

	deadline := time.Now().Add(2 * time.Second)
	for events.endedCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("auction never ended")
		}
		time.Sleep(time.Millisecond)
	}
	if got := events.endedCount(); got != 1 {
		t.Fatalf("auction ended %d times", got)
	}
}
