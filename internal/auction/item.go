package auction

import "auctionnet/internal/protocol"

// Item is the mutable auction record for one listing. It is owned by the
// house's Block and only touched under the block lock; everything that
// leaves the block is a Snapshot.
type Item struct {
	ID         string
	CurrentBid int
	Winner     int // winning agent's account id, 0 = no bid yet
	TimeLeft   int
	OnSale     bool
}

func newItem(id string, duration int) *Item {
	return &Item{ID: id, TimeLeft: duration, OnSale: true}
}

// Snapshot converts the item to the immutable wire form.
func (it *Item) Snapshot() protocol.ItemInfo {
	return protocol.ItemInfo{
		ItemID:     it.ID,
		CurrentBid: it.CurrentBid,
		TimeLeft:   it.TimeLeft,
	}
}
