package raffle

const (
	// ModuleName is used for pause switches and metrics labels.
	ModuleName = "raffle"
	// PoolSeedPrefix is the purpose tag used to derive a raffle's pool authority.
	PoolSeedPrefix = "raffle-pool"
)

// Buyer is one purchaser's running ticket count.
type Buyer struct {
	Key     [20]byte
	Tickets uint32
}

// Raffle tracks ticket inventory for one raffle instance.
type Raffle struct {
	ID               [20]byte
	PoolNonce        uint8
	TotalTickets     uint32
	SoldTickets      uint32
	PricePerTicket   uint64
	TokenAddress     [20]byte
	Owner            [20]byte
	NFTMintAddress   [20]byte
	StoreBuyers      bool
	IsFinalized      bool
	Pool             [20]byte
	PoolTokenAccount [20]byte
	Buyers           []Buyer
}

// Remaining returns the unsold ticket count.
func (r *Raffle) Remaining() uint32 {
	if r == nil || r.SoldTickets >= r.TotalTickets {
		return 0
	}
	return r.TotalTickets - r.SoldTickets
}

// Clone returns a detached copy including the buyer list.
func (r *Raffle) Clone() *Raffle {
	if r == nil {
		return nil
	}
	cp := *r
	if len(r.Buyers) > 0 {
		cp.Buyers = make([]Buyer, len(r.Buyers))
		copy(cp.Buyers, r.Buyers)
	} else {
		cp.Buyers = nil
	}
	return &cp
}

// TicketsOf returns how many tickets key holds according to the buyer list.
func (r *Raffle) TicketsOf(key [20]byte) uint32 {
	if r == nil {
		return 0
	}
	for _, b := range r.Buyers {
		if b.Key == key {
			return b.Tickets
		}
	}
	return 0
}

// BuyersPage returns up to limit buyer records starting at offset.
func BuyersPage(r *Raffle, offset, limit int) []Buyer {
	if r == nil || offset < 0 || offset >= len(r.Buyers) || limit <= 0 {
		return []Buyer{}
	}
	end := offset + limit
	if end > len(r.Buyers) {
		end = len(r.Buyers)
	}
	out := make([]Buyer, end-offset)
	copy(out, r.Buyers[offset:end])
	return out
}
