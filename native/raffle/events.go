package raffle

import (
	"strconv"

	"sktvault/core/types"
	"sktvault/crypto"
)

const (
	EventTypeCreated   = "raffle.created"
	EventTypeBuy       = "raffle.buy"
	EventTypeFinalized = "raffle.finalized"
)

type raffleEvent struct {
	evt *types.Event
}

func (e raffleEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e raffleEvent) Event() *types.Event { return e.evt }

// BuyEvent is emitted for every accepted ticket purchase.
type BuyEvent struct {
	Raffle    [20]byte
	Buyer     [20]byte
	Amount    uint32
	Sold      uint32
	Total     uint32
	Remaining uint32
}

func (BuyEvent) EventType() string { return EventTypeBuy }

func (e BuyEvent) Event() *types.Event {
	return &types.Event{Type: EventTypeBuy, Attributes: map[string]string{
		"raffle":           crypto.FromRaw(e.Raffle).String(),
		"buyer":            crypto.FromRaw(e.Buyer).String(),
		"amount":           strconv.FormatUint(uint64(e.Amount), 10),
		"soldTickets":      strconv.FormatUint(uint64(e.Sold), 10),
		"totalTickets":     strconv.FormatUint(uint64(e.Total), 10),
		"remainingTickets": strconv.FormatUint(uint64(e.Remaining), 10),
	}}
}

func newRaffleEvent(eventType string, r *Raffle) *types.Event {
	return &types.Event{Type: eventType, Attributes: map[string]string{
		"raffle":         crypto.FromRaw(r.ID).String(),
		"owner":          crypto.FromRaw(r.Owner).String(),
		"token":          crypto.FromRaw(r.TokenAddress).String(),
		"nftMint":        crypto.FromRaw(r.NFTMintAddress).String(),
		"pricePerTicket": strconv.FormatUint(r.PricePerTicket, 10),
		"totalTickets":   strconv.FormatUint(uint64(r.TotalTickets), 10),
		"soldTickets":    strconv.FormatUint(uint64(r.SoldTickets), 10),
	}}
}
