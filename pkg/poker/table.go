package poker

import (
	"errors"
	"fmt"
)

// Table is the immutable per-hand table record published under t_table_info.
// StartBlock is the chain height at table start and is the height_start every
// in-hand reader filters from.
type Table struct {
	MaxPlayers int     `json:"max_players"`
	BigBlind   float64 `json:"big_blind"`
	MinStake   float64 `json:"min_stake"`
	MaxStake   float64 `json:"max_stake"`
	TableID    string  `json:"table_id"`
	DealerID   string  `json:"dealer_id"`
	CashierID  string  `json:"cashier_id"`
	StartBlock int64   `json:"start_block"`
}

// Validate checks the table record is usable.
func (t *Table) Validate() error {
	if t.TableID == "" || t.DealerID == "" || t.CashierID == "" {
		return errors.New("poker: table record missing identities")
	}
	if t.MaxPlayers < 2 || t.MaxPlayers > MaxPlayers {
		return fmt.Errorf("poker: max_players %d out of range", t.MaxPlayers)
	}
	if t.MinStake <= 0 || t.MaxStake < t.MinStake {
		return fmt.Errorf("poker: bad stake range [%v, %v]", t.MinStake, t.MaxStake)
	}
	return nil
}

// Seat is one entry of t_player_info.
type Seat struct {
	Slot        int     `json:"slot"`
	VerusPID    string  `json:"verus_pid"`
	PayinTx     string  `json:"payin_tx"`
	PayinAmount float64 `json:"payin_amount"`
}

// PlayerInfo is the t_player_info record. NumPlayers always equals
// len(Players) and len(PayinAmounts); the three grow together.
type PlayerInfo struct {
	NumPlayers   int       `json:"num_players"`
	Players      []Seat    `json:"player_info"`
	PayinAmounts []float64 `json:"payin_amounts"`
}

// Find returns the seat for the given identity, if present.
func (p *PlayerInfo) Find(verusPID string) (Seat, bool) {
	for _, s := range p.Players {
		if s.VerusPID == verusPID {
			return s, true
		}
	}
	return Seat{}, false
}

// Add appends a seat. Duplicate identities are rejected so
// processing the same join request twice adds the player exactly once.
func (p *PlayerInfo) Add(seat Seat) error {
	if _, ok := p.Find(seat.VerusPID); ok {
		return fmt.Errorf("poker: player %s already seated", seat.VerusPID)
	}
	seat.Slot = len(p.Players)
	p.Players = append(p.Players, seat)
	p.PayinAmounts = append(p.PayinAmounts, seat.PayinAmount)
	p.NumPlayers = len(p.Players)
	return nil
}

// IDs returns the seated identities in slot order.
func (p *PlayerInfo) IDs() []string {
	ids := make([]string, len(p.Players))
	for i, s := range p.Players {
		ids[i] = s.VerusPID
	}
	return ids
}
