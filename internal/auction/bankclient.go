package auction

import (
	"fmt"
	"log"

	"auctionnet/internal/protocol"
	"auctionnet/internal/transport"
)

// BankClient is the house's synchronous view of the bank, implemented over
// a correlated Caller so concurrent bids can query in parallel on the one
// connection.
type BankClient struct {
	caller  *transport.Caller
	houseID int
	log     *log.Logger
}

func NewBankClient(caller *transport.Caller, logger *log.Logger) *BankClient {
	return &BankClient{caller: caller, log: logger}
}

// Register announces the house's listen address and returns the account id
// the bank assigned.
func (c *BankClient) Register(addr string) (int, error) {
	reply, err := c.caller.Call(protocol.Message{
		Type:    protocol.KindNewAuc,
		Address: addr,
	})
	if err != nil {
		return 0, err
	}
	if reply.Type != protocol.KindRegConfirm {
		return 0, fmt.Errorf("register: unexpected reply %s", reply.Type)
	}
	c.houseID = reply.AccountID
	return reply.AccountID, nil
}

// Reserve asks the bank to hold amount against the agent's account for this
// item. False means refused or unreachable; either way the bid dies.
func (c *BankClient) Reserve(agentID int, itemID string, amount int) bool {
	reply, err := c.caller.Call(protocol.Message{
		Type:      protocol.KindQuery,
		AccountID: agentID,
		ItemID:    itemID,
		Amount:    amount,
	})
	if err != nil {
		c.log.Printf("bank reserve for %d: %v", agentID, err)
		return false
	}
	return reply.Type == protocol.KindQueryResp && reply.FundsAvailable
}

// Release drops the hold created by an earlier Reserve with the same item
// and amount. Encoded as a negative-amount query.
func (c *BankClient) Release(agentID int, itemID string, amount int) {
	if _, err := c.caller.Call(protocol.Message{
		Type:      protocol.KindQuery,
		AccountID: agentID,
		ItemID:    itemID,
		Amount:    -amount,
	}); err != nil {
		c.log.Printf("bank release for %d: %v", agentID, err)
	}
}

// Settle charges the auction winner, moving the held amount into the
// house's own account.
func (c *BankClient) Settle(winnerID int, itemID string, amount int) {
	if _, err := c.caller.Call(protocol.Message{
		Type:       protocol.KindTransfer,
		AccountID:  winnerID,
		AccountID2: c.houseID,
		ItemID:     itemID,
		Amount:     amount,
	}); err != nil {
		c.log.Printf("bank settle for %d: %v", winnerID, err)
	}
}

// Deregister tells the bank the house is closing. Fire-and-forget; the bank
// also cleans up when the socket drops.
func (c *BankClient) Deregister() {
	if c.houseID == 0 {
		return
	}
	_ = c.caller.Send(protocol.Message{
		Type:      protocol.KindDeregister,
		AccountID: c.houseID,
	})
}

func (c *BankClient) Close() { c.caller.Close() }
