package config

import (
	"sktvault/native/common"
	"sktvault/native/custody"
	"sktvault/native/exchange"
	"sktvault/native/raffle"
)

// PauseSwitches converts the configured pauses into runtime switches.
func (g Global) PauseSwitches() *common.Pauses {
	p := common.NewPauses()
	p.Set(custody.ModuleName, g.Pauses.Custody)
	p.Set(exchange.ModuleName, g.Pauses.Exchange)
	p.Set(raffle.ModuleName, g.Pauses.Raffle)
	return p
}
