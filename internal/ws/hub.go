package ws

import (
	"context"
	"encoding/json"
)

// PaymentUpdate is pushed to every client watching a payment intent.
type PaymentUpdate struct {
	PaymentIntentID string `json:"payment_intent_id"`
	EventType       string `json:"event_type"`
	Status          string `json:"status"`
}

type Client struct {
	hub      *Hub
	conn     *Conn
	send     chan []byte
	intentID string
}

type Hub struct {
	register   chan *Client
	unregister chan *Client
	broadcast  chan PaymentUpdate
	clients    map[string]map[*Client]bool
}

func NewHub() *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan PaymentUpdate),
		clients:    make(map[string]map[*Client]bool),
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case c := <-h.register:
			set, ok := h.clients[c.intentID]
			if !ok {
				set = make(map[*Client]bool)
				h.clients[c.intentID] = set
			}
			h.clients[c.intentID][c] = true
		case c := <-h.unregister:
			if set, ok := h.clients[c.intentID]; ok {
				if _, exists := set[c]; exists {
					delete(set, c)
					close(c.send)
				}
				if len(set) == 0 {
					delete(h.clients, c.intentID)
				}
			}
		case upd := <-h.broadcast:
			msg, _ := json.Marshal(upd)
			if set, ok := h.clients[upd.PaymentIntentID]; ok {
				for c := range set {
					select {
					case c.send <- msg:
					default:
						delete(set, c)
						close(c.send)
					}
				}
			}
		case <-ctx.Done():
			for _, set := range h.clients {
				for c := range set {
					close(c.send)
				}
			}
			return
		}
	}
}

func (h *Hub) Broadcast(u PaymentUpdate) {
	go func() { h.broadcast <- u }()
}

// BroadcastPaymentUpdate satisfies the dispatcher's feed interface.
func (h *Hub) BroadcastPaymentUpdate(intentID, eventType, status string) {
	h.Broadcast(PaymentUpdate{PaymentIntentID: intentID, EventType: eventType, Status: status})
}
