package raffle

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/holiman/uint256"

	coreerrors "sktvault/core/errors"
	"sktvault/core/events"
	"sktvault/crypto"
	"sktvault/native/common"
	"sktvault/native/custody"
)

// DefaultBuyerWarnThreshold is the buyer-list length past which each sale
// logs a warning.
const DefaultBuyerWarnThreshold = 10_000

var (
	errNilState     = errors.New("raffle ledger: state not configured")
	ErrRaffleExists = &coreerrors.Error{Code: coreerrors.CodeErrorCustom, Msg: "raffle: already exists"}
)

// State is what the ledger needs from the host.
type State interface {
	custody.TokenLedger
	RaffleGet(id [20]byte) (*Raffle, bool, error)
	RafflePut(r *Raffle) error
}

// Ledger applies ticket sales and finalisation to raffle records.
type Ledger struct {
	state         State
	emitter       events.Emitter
	pauses        common.PauseView
	logger        *slog.Logger
	warnThreshold int
}

func NewLedger() *Ledger {
	return &Ledger{
		emitter:       events.NoopEmitter{},
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		warnThreshold: DefaultBuyerWarnThreshold,
	}
}

func (l *Ledger) SetState(state State) { l.state = state }

func (l *Ledger) SetPauses(p common.PauseView) { l.pauses = p }

func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

func (l *Ledger) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	l.logger = logger
}

// SetBuyerWarnThreshold overrides the buyer-list warning level. Zero or
// negative disables the warning.
func (l *Ledger) SetBuyerWarnThreshold(n int) { l.warnThreshold = n }

func (l *Ledger) ready() error {
	if l == nil || l.state == nil {
		return errNilState
	}
	return common.Guard(l.pauses, ModuleName)
}

func (l *Ledger) emit(evt events.Event) {
	if l.emitter != nil && evt != nil {
		l.emitter.Emit(evt)
	}
}

// CreateParams describes a new raffle.
type CreateParams struct {
	ID             [20]byte
	PoolNonce      uint8
	TotalTickets   uint32
	PricePerTicket uint64
	TokenAddress   [20]byte
	NFTMintAddress [20]byte
	StoreBuyers    bool
}

// Create registers a raffle owned by owner and provisions its pool token
// account.
func (l *Ledger) Create(owner [20]byte, p CreateParams) (*Raffle, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	if p.ID == ([20]byte{}) || p.TokenAddress == ([20]byte{}) {
		return nil, fmt.Errorf("raffle: id and token required: %w", coreerrors.ErrCustom)
	}
	if p.TotalTickets == 0 || p.PricePerTicket == 0 {
		return nil, fmt.Errorf("raffle: tickets and price must be positive: %w", coreerrors.ErrInvalidAmount)
	}
	if _, exists, err := l.state.RaffleGet(p.ID); err != nil {
		return nil, err
	} else if exists {
		return nil, ErrRaffleExists
	}
	authority, err := custody.NewDerivedAuthority(PoolSeedPrefix, p.ID, p.PoolNonce)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", coreerrors.ErrAuthorityMismatch, err)
	}
	pool := authority.Address()
	poolAccount := l.state.TokenAccountAddress(pool, p.TokenAddress)
	if _, ok, err := l.state.TokenAccount(poolAccount); err != nil {
		return nil, err
	} else if !ok {
		if _, err := l.state.CreateTokenAccount(owner, pool, p.TokenAddress); err != nil {
			return nil, err
		}
	}
	r := &Raffle{
		ID:               p.ID,
		PoolNonce:        p.PoolNonce,
		TotalTickets:     p.TotalTickets,
		PricePerTicket:   p.PricePerTicket,
		TokenAddress:     p.TokenAddress,
		Owner:            owner,
		NFTMintAddress:   p.NFTMintAddress,
		StoreBuyers:      p.StoreBuyers,
		Pool:             pool,
		PoolTokenAccount: poolAccount,
	}
	if err := l.state.RafflePut(r); err != nil {
		return nil, err
	}
	l.emit(raffleEvent{evt: newRaffleEvent(EventTypeCreated, r)})
	return r.Clone(), nil
}

// Get loads a raffle record.
func (l *Ledger) Get(id [20]byte) (*Raffle, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	r, ok, err := l.state.RaffleGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("raffle %s: %w", crypto.FromRaw(id), coreerrors.ErrNotFound)
	}
	return r, nil
}

// BuyParams describes a ticket purchase.
type BuyParams struct {
	Tickets uint32
	// Price is the per-ticket price the buyer expects to pay.
	Price uint64
	// TokenAccount is the buyer's paying token account.
	TokenAccount [20]byte
}

// Buy sells tickets to buyer. Checks run in order: finalized, inventory,
// price, token mint, payment.
func (l *Ledger) Buy(buyer, id [20]byte, p BuyParams) (*Raffle, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	r, err := l.Get(id)
	if err != nil {
		return nil, err
	}
	if r.IsFinalized {
		return nil, coreerrors.ErrRaffleFinalized
	}
	if p.Tickets == 0 {
		return nil, fmt.Errorf("raffle: ticket count must be positive: %w", coreerrors.ErrInvalidAmount)
	}
	if uint64(r.SoldTickets)+uint64(p.Tickets) > uint64(r.TotalTickets) {
		return nil, coreerrors.ErrNoTicketsLeft
	}
	if p.Price != r.PricePerTicket {
		return nil, coreerrors.ErrRafflePriceMismatched
	}
	payer, ok, err := l.state.TokenAccount(p.TokenAccount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("raffle: token account %s: %w", crypto.FromRaw(p.TokenAccount), coreerrors.ErrNotFound)
	}
	if payer.Mint != r.TokenAddress {
		return nil, coreerrors.ErrRaffleTokenSPLAddressMismatched
	}
	total, err := ticketCost(p.Tickets, r.PricePerTicket)
	if err != nil {
		return nil, err
	}
	if err := l.state.TransferToken(p.TokenAccount, r.PoolTokenAccount, buyer, total); err != nil {
		return nil, err
	}

	r.SoldTickets += p.Tickets
	if r.StoreBuyers {
		recordBuyer(r, buyer, p.Tickets)
		if l.warnThreshold > 0 && len(r.Buyers) > l.warnThreshold {
			l.logger.Warn("raffle buyer list above threshold",
				slog.String("raffle", crypto.FromRaw(r.ID).String()),
				slog.Int("buyers", len(r.Buyers)),
				slog.Int("threshold", l.warnThreshold))
		}
	}
	if err := l.state.RafflePut(r); err != nil {
		return nil, err
	}
	l.emit(BuyEvent{
		Raffle:    r.ID,
		Buyer:     buyer,
		Amount:    p.Tickets,
		Sold:      r.SoldTickets,
		Total:     r.TotalTickets,
		Remaining: r.Remaining(),
	})
	return r.Clone(), nil
}

// Finalize closes ticket sales. The owner or any admin may finalize; a
// second call is a no-op.
func (l *Ledger) Finalize(caller, id [20]byte, cfg *custody.GlobalConfig) (*Raffle, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	r, err := l.Get(id)
	if err != nil {
		return nil, err
	}
	if caller != r.Owner {
		if err := custody.RequireAdmin(caller, cfg); err != nil {
			return nil, err
		}
	}
	if r.IsFinalized {
		return r.Clone(), nil
	}
	r.IsFinalized = true
	if err := l.state.RafflePut(r); err != nil {
		return nil, err
	}
	l.emit(raffleEvent{evt: newRaffleEvent(EventTypeFinalized, r)})
	return r.Clone(), nil
}

func recordBuyer(r *Raffle, buyer [20]byte, tickets uint32) {
	for i := range r.Buyers {
		if r.Buyers[i].Key == buyer {
			r.Buyers[i].Tickets += tickets
			return
		}
	}
	r.Buyers = append(r.Buyers, Buyer{Key: buyer, Tickets: tickets})
}

func ticketCost(tickets uint32, price uint64) (uint64, error) {
	total, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(uint64(tickets)), uint256.NewInt(price))
	if overflow || !total.IsUint64() {
		return 0, fmt.Errorf("raffle: ticket cost overflows: %w", coreerrors.ErrInvalidAmount)
	}
	return total.Uint64(), nil
}
