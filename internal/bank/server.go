package bank

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"auctionnet/internal/protocol"
	"auctionnet/internal/transport"
)

// Server accepts agent and auction house connections and runs one operator
// per socket. The first inbound message must be a registration; everything
// after that is ledger traffic.
type Server struct {
	bank *Bank
	log  *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(b *Bank, logger *log.Logger) *Server {
	return &Server{
		bank: b,
		log:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		ws, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}

		conn := transport.NewConn(ws, s.log)
		acct := s.handshake(ws, conn)
		if acct == nil {
			conn.Close()
			return
		}

		op := &operator{bank: s.bank, conn: conn, id: acct.ID, log: s.log}
		conn.Start(op.handle, func(err error) {
			if err != nil {
				s.log.Printf("member %d link lost: %v", acct.ID, err)
			}
			s.bank.Deregister(acct.ID)
		})
	}
}

// handshake reads the registration message straight off the socket, before
// the connection loops take over, and answers with REGISTRATION_CONFIRM.
func (s *Server) handshake(ws *websocket.Conn, conn *transport.Conn) *Account {
	_ = ws.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, b, err := ws.ReadMessage()
	_ = ws.SetReadDeadline(time.Time{})
	if err != nil {
		return nil
	}
	m, err := protocol.Decode(b)
	if err != nil {
		s.log.Printf("handshake from %s: %v", ws.RemoteAddr(), err)
		return nil
	}

	switch m.Type {
	case protocol.KindNewAgent:
		acct := s.bank.RegisterAgent(m.Amount, conn)
		_ = conn.Send(protocol.Message{
			Type:          protocol.KindRegConfirm,
			RequestID:     m.RequestID,
			AccountID:     acct.ID,
			Amount:        acct.Balance(),
			AuctionHouses: s.bank.Topology(),
		})
		return acct
	case protocol.KindNewAuc:
		if m.Address == "" {
			s.log.Printf("handshake from %s: NEW_AUC without address", ws.RemoteAddr())
			return nil
		}
		acct := s.bank.RegisterHouse(m.Address)
		_ = conn.Send(protocol.Message{
			Type:      protocol.KindRegConfirm,
			RequestID: m.RequestID,
			AccountID: acct.ID,
		})
		return acct
	default:
		s.log.Printf("handshake from %s: unexpected %s", ws.RemoteAddr(), m.Type)
		return nil
	}
}

// operator serves one registered member's connection.
type operator struct {
	bank *Bank
	conn *transport.Conn
	id   int
	log  *log.Logger
}

func (o *operator) handle(m protocol.Message) {
	switch m.Type {
	case protocol.KindQuery:
		_ = o.conn.Send(o.query(m))

	case protocol.KindTransfer:
		avail, err := o.bank.Transfer(m.AccountID, m.AccountID2, HoldTag(m.ItemID, m.Amount), m.Amount)
		if err != nil {
			o.log.Printf("transfer %d -> %d: %v", m.AccountID, m.AccountID2, err)
		}
		_ = o.conn.Send(protocol.Message{
			Type:      protocol.KindUpdateBal,
			RequestID: m.RequestID,
			AccountID: m.AccountID,
			Amount:    avail,
		})

	case protocol.KindUpdateBal:
		var avail int
		if a, ok := o.bank.Ledger().Get(m.AccountID); ok {
			avail = a.Available()
		}
		_ = o.conn.Send(protocol.Message{
			Type:      protocol.KindUpdateBal,
			RequestID: m.RequestID,
			AccountID: m.AccountID,
			Amount:    avail,
		})

	case protocol.KindDeregister:
		o.bank.Deregister(m.AccountID)

	default:
		o.log.Printf("member %d sent unexpected %s, closing link", o.id, m.Type)
		o.conn.Close()
	}
}

// query implements reserve (positive amount) and release (negative amount).
func (o *operator) query(m protocol.Message) protocol.Message {
	reply := protocol.Message{
		Type:      protocol.KindQueryResp,
		RequestID: m.RequestID,
		AccountID: m.AccountID,
	}
	if m.Amount < 0 {
		amount := -m.Amount
		o.bank.Release(m.AccountID, HoldTag(m.ItemID, amount), amount)
		reply.FundsAvailable = true
		return reply
	}
	reply.FundsAvailable = o.bank.Reserve(m.AccountID, HoldTag(m.ItemID, m.Amount), m.Amount)
	return reply
}
