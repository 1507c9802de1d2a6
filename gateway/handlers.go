package gateway

import (
	"net/http"
	"strconv"

	"sktvault/core/state"
	"sktvault/crypto"
	"sktvault/native/custody"
	"sktvault/native/exchange"
	"sktvault/native/raffle"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

func (s *Server) handleGlobal(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.backend.Global()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newGlobalView(cfg))
}

func (s *Server) handleInitGlobal(w http.ResponseWriter, r *http.Request) {
	if err := decode(r, &struct{}{}); err != nil {
		s.writeError(w, r, err)
		return
	}
	cfg, err := s.backend.InitGlobal(r.Context(), callerFrom(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newGlobalView(cfg))
}

type adminRequest struct {
	Admin Address `json:"admin"`
}

func (s *Server) handleAddAdmin(w http.ResponseWriter, r *http.Request) {
	var req adminRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Admin == (Address{}) {
		s.writeError(w, r, badRequest("admin required"))
		return
	}
	cfg, err := s.backend.AddAdmin(r.Context(), callerFrom(r), req.Admin)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newGlobalView(cfg))
}

func (s *Server) handleRemoveAdmin(w http.ResponseWriter, r *http.Request) {
	admin, err := pathAddress(r, "addr")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	cfg, err := s.backend.RemoveAdmin(r.Context(), callerFrom(r), admin)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newGlobalView(cfg))
}

type initVaultRequest struct {
	Vault     Address  `json:"vault"`
	TokenType Address  `json:"tokenType"`
	Nonce     *uint8   `json:"nonce,omitempty"`
	Pool      *Address `json:"pool,omitempty"`
}

func (s *Server) handleInitializeVault(w http.ResponseWriter, r *http.Request) {
	var req initVaultRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Vault == (Address{}) || req.TokenType == (Address{}) {
		s.writeError(w, r, badRequest("vault and tokenType required"))
		return
	}
	payer := callerFrom(r)
	params := custody.InitParams{Vault: req.Vault, TokenType: req.TokenType, Payer: payer}
	if req.Nonce != nil {
		params.Nonce = *req.Nonce
	} else {
		_, nonce, err := crypto.FindAuthority(custody.VaultSeedPrefix, req.Vault)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		params.Nonce = nonce
	}
	if req.Pool != nil {
		pool := [20]byte(*req.Pool)
		params.ExpectedPool = &pool
	}
	vault, err := s.backend.InitializeVault(r.Context(), payer, params)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newVaultView(vault))
}

func (s *Server) handleListVaults(w http.ResponseWriter, r *http.Request) {
	ids, err := s.backend.Vaults()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]vaultView, 0, len(ids))
	for _, id := range ids {
		v, err := s.backend.Vault(id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		out = append(out, newVaultBalanceView(v))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleVault(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r, "vault")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	v, err := s.backend.Vault(addr)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newVaultBalanceView(v))
}

type authorityView struct {
	Vault     Address `json:"vault"`
	Authority Address `json:"authority"`
	Nonce     uint8   `json:"nonce"`
}

// handleVaultAuthority reports the canonical custody authority for a vault
// address, whether or not the vault exists yet.
func (s *Server) handleVaultAuthority(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r, "vault")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	authority, nonce, err := crypto.FindAuthority(custody.VaultSeedPrefix, addr)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, authorityView{Vault: addr, Authority: authority, Nonce: nonce})
}

type withdrawRequest struct {
	TokenAmount  Amount `json:"tokenAmount"`
	NativeAmount Amount `json:"nativeAmount"`
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	vault, err := pathAddress(r, "vault")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req withdrawRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.backend.Withdraw(r.Context(), callerFrom(r), vault, uint64(req.TokenAmount), uint64(req.NativeAmount)); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeVault(w, r, vault)
}

type claimRequest struct {
	Amount Amount `json:"amount"`
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	vault, err := pathAddress(r, "vault")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req claimRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.backend.Claim(r.Context(), callerFrom(r), vault, uint64(req.Amount)); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeVault(w, r, vault)
}

func (s *Server) writeVault(w http.ResponseWriter, r *http.Request, vault [20]byte) {
	v, err := s.backend.Vault(vault)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newVaultBalanceView(v))
}

type convertRequest struct {
	Option   uint8 `json:"option"`
	IsHolder bool  `json:"isHolder"`
}

type convertView struct {
	Cost         Amount  `json:"cost"`
	Granted      Amount  `json:"granted"`
	TokenAccount Address `json:"tokenAccount"`
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	vault, err := pathAddress(r, "vault")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req convertRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.backend.Convert(r.Context(), callerFrom(r), vault, req.Option, req.IsHolder)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convertView{Cost: Amount(res.Cost), Granted: Amount(res.Granted), TokenAccount: res.TokenAccount})
}

type rateView struct {
	Option       uint8  `json:"option"`
	StandardCost Amount `json:"standardCost"`
	HolderCost   Amount `json:"holderCost"`
	Granted      Amount `json:"granted"`
}

func (s *Server) handleRates(w http.ResponseWriter, r *http.Request) {
	out := make([]rateView, 0, len(exchange.Tiers))
	for i, tier := range exchange.Tiers {
		out = append(out, rateView{
			Option:       uint8(i),
			StandardCost: Amount(tier.StandardCost),
			HolderCost:   Amount(tier.HolderCost),
			Granted:      Amount(tier.Granted),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type createRaffleRequest struct {
	ID             Address `json:"id"`
	PoolNonce      *uint8  `json:"poolNonce,omitempty"`
	TotalTickets   uint32  `json:"totalTickets"`
	PricePerTicket Amount  `json:"pricePerTicket"`
	Token          Address `json:"token"`
	NFTMint        Address `json:"nftMint"`
	StoreBuyers    bool    `json:"storeBuyers"`
}

func (s *Server) handleCreateRaffle(w http.ResponseWriter, r *http.Request) {
	var req createRaffleRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.ID == (Address{}) || req.Token == (Address{}) {
		s.writeError(w, r, badRequest("id and token required"))
		return
	}
	params := raffle.CreateParams{
		ID:             req.ID,
		TotalTickets:   req.TotalTickets,
		PricePerTicket: uint64(req.PricePerTicket),
		TokenAddress:   req.Token,
		NFTMintAddress: req.NFTMint,
		StoreBuyers:    req.StoreBuyers,
	}
	if req.PoolNonce != nil {
		params.PoolNonce = *req.PoolNonce
	} else {
		_, nonce, err := crypto.FindAuthority(raffle.PoolSeedPrefix, req.ID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		params.PoolNonce = nonce
	}
	created, err := s.backend.CreateRaffle(r.Context(), callerFrom(r), params)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newRaffleView(created))
}

func (s *Server) handleListRaffles(w http.ResponseWriter, r *http.Request) {
	ids, err := s.backend.Raffles()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]raffleView, 0, len(ids))
	for _, id := range ids {
		rec, err := s.backend.Raffle(id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		out = append(out, newRaffleView(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRaffle(w http.ResponseWriter, r *http.Request) {
	id, err := pathAddress(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rec, err := s.backend.Raffle(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newRaffleView(rec))
}

type buyersPageView struct {
	Total  int         `json:"total"`
	Offset int         `json:"offset"`
	Buyers []buyerView `json:"buyers"`
}

func (s *Server) handleRaffleBuyers(w http.ResponseWriter, r *http.Request) {
	id, err := pathAddress(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", defaultPageSize)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	rec, err := s.backend.Raffle(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	page := raffle.BuyersPage(rec, offset, limit)
	out := buyersPageView{Total: len(rec.Buyers), Offset: offset, Buyers: make([]buyerView, 0, len(page))}
	for _, b := range page {
		out.Buyers = append(out.Buyers, buyerView{Buyer: b.Key, Tickets: b.Tickets})
	}
	writeJSON(w, http.StatusOK, out)
}

type buyRequest struct {
	Tickets      uint32   `json:"tickets"`
	Price        Amount   `json:"price"`
	TokenAccount *Address `json:"tokenAccount,omitempty"`
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	id, err := pathAddress(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req buyRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	buyer := callerFrom(r)
	params := raffle.BuyParams{Tickets: req.Tickets, Price: uint64(req.Price)}
	if req.TokenAccount != nil {
		params.TokenAccount = *req.TokenAccount
	} else {
		rec, err := s.backend.Raffle(id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		params.TokenAccount = state.TokenAccountAddress(buyer, rec.TokenAddress)
	}
	updated, err := s.backend.BuyTickets(r.Context(), buyer, id, params)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newRaffleView(updated))
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	id, err := pathAddress(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	updated, err := s.backend.FinalizeRaffle(r.Context(), callerFrom(r), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newRaffleView(updated))
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r, "addr")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	acct, err := s.backend.Account(addr)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAccountView(acct))
}

type mintView struct {
	Address  Address `json:"address"`
	Symbol   string  `json:"symbol"`
	Decimals uint8   `json:"decimals"`
	Supply   Amount  `json:"supply"`
}

func (s *Server) handleMints(w http.ResponseWriter, r *http.Request) {
	mints, err := s.backend.Mints()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]mintView, 0, len(mints))
	for _, m := range mints {
		out = append(out, mintView{Address: m.Address, Symbol: m.Symbol, Decimals: m.Decimals, Supply: Amount(m.Supply)})
	}
	writeJSON(w, http.StatusOK, out)
}

type pausesView struct {
	Paused []string `json:"paused"`
}

type pauseRequest struct {
	Module string `json:"module"`
	Paused bool   `json:"paused"`
}

func (s *Server) handlePauses(w http.ResponseWriter, r *http.Request) {
	out := pausesView{Paused: []string{}}
	if s.pauses != nil {
		out.Paused = append(out.Paused, s.pauses.Paused()...)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleSetPause flips a module switch. Only the configuration authority may
// call it.
func (s *Server) handleSetPause(w http.ResponseWriter, r *http.Request) {
	if s.pauses == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorEnvelope{Error: apiError{Name: "Unavailable", Message: "pause switches not configured"}})
		return
	}
	var req pauseRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	switch req.Module {
	case custody.ModuleName, exchange.ModuleName, raffle.ModuleName:
	default:
		s.writeError(w, r, badRequest("unknown module %q", req.Module))
		return
	}
	cfg, err := s.backend.Global()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	caller := callerFrom(r)
	if caller != cfg.Authority {
		writeJSON(w, http.StatusForbidden, errorEnvelope{Error: apiError{Name: "Forbidden", Message: "caller is not the configuration authority"}})
		return
	}
	s.pauses.Set(req.Module, req.Paused)
	s.logger.Warn("module pause switch changed", "module", req.Module, "paused", req.Paused,
		"caller", crypto.FromRaw(caller).String())
	s.handlePauses(w, r)
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, badRequest("%s must be a non-negative integer", name)
	}
	return v, nil
}
