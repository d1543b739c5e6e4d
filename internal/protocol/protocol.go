package protocol

import (
	"encoding/json"
	"fmt"
)

const Version = "1.0"

// Message kinds.
const (
	KindNewAgent     = "NEW_AGENT"     // agent -> bank: amount (initial balance)
	KindNewAuc       = "NEW_AUC"       // house -> bank: address
	KindRegConfirm   = "REGISTRATION_CONFIRM"
	KindDeregister   = "DEREGISTRATION"
	KindUpdateList   = "UPDATE_LIST"   // bank -> agent: auction_houses
	KindQuery        = "QUERY"         // house -> bank: account_id, amount (neg = release), item_id tag
	KindQueryResp    = "QUERY_RESPONSE"
	KindTransfer     = "TRANSFER"      // account_id -> account_id2, amount
	KindUpdateBal    = "UPDATE_BALANCE"
	KindNewBid       = "NEW_BID"       // agent -> house: account_id, item_id, amount
	KindAccepted     = "ACCEPTED"
	KindRejected     = "REJECTED"
	KindItemList     = "ITEM_LIST"
	KindUpdate       = "UPDATE"
	KindElapsed      = "ELAPSED"
	KindNewItem      = "NEW_ITEM"
	KindOutbid       = "OUTBID"
	KindExpired      = "EXPIRED"
	KindWin          = "WIN"
	KindAuctionEnd   = "AUCTION_END"
)

// ItemInfo is the read-only snapshot of an auctioned item that crosses the
// wire. Agents never see the mutable item record.
type ItemInfo struct {
	ItemID     string `json:"item_id"`
	CurrentBid int    `json:"current_bid"`
	TimeLeft   int    `json:"time_left"`
}

// Message is the single wire envelope. Type selects which of the optional
// fields are meaningful; everything else stays unset. Messages are immutable
// once constructed.
//
// RequestID correlates a reply with its request so several synchronous calls
// can share one connection. Requests that expect a reply (NEW_AGENT, NEW_AUC,
// QUERY, TRANSFER) set it; the reply echoes it verbatim.
type Message struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`

	AccountID  int    `json:"account_id,omitempty"`
	AccountID2 int    `json:"account_id2,omitempty"`

	ItemID string     `json:"item_id,omitempty"`
	Item   *ItemInfo  `json:"item,omitempty"`
	Items  []ItemInfo `json:"items,omitempty"`

	Amount         int  `json:"amount,omitempty"`
	FundsAvailable bool `json:"funds_available,omitempty"`

	Address       string   `json:"address,omitempty"`
	AuctionHouses []string `json:"auction_houses,omitempty"`
}

func Encode(m Message) ([]byte, error) {
	if m.Type == "" {
		return nil, fmt.Errorf("encode: message has no type")
	}
	return json.Marshal(m)
}

func Decode(b []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		return Message{}, err
	}
	if m.Type == "" {
		return Message{}, fmt.Errorf("decode: message has no type")
	}
	return m, nil
}
