package poker

// Wire records serialized into CMM entries (JSON, hex-encoded byte-vectors).
// CHIPS amounts are JSON numbers with 8 decimals of precision.

// GameInfo is the t_game_info record carrying the state machine value and an
// optional state payload.
type GameInfo struct {
	GameState GameState      `json:"game_state"`
	Info      *GameStateInfo `json:"game_state_info,omitempty"`
}

// GameStateInfo is the payload for REVEAL_CARD / REVEAL_CARD_P_DONE and the
// initial betting announcements. PlayerID is -1 for community cards.
type GameStateInfo struct {
	PlayerID int      `json:"player_id"`
	CardID   int      `json:"card_id"`
	CardType CardType `json:"card_type"`
}

// JoinRequest is the p_join_request record a player writes after paying in.
// Valid only if PayinTx targets the cashier address at or after the table's
// start_block.
type JoinRequest struct {
	DealerID  string `json:"dealer_id"`
	TableID   string `json:"table_id"`
	CashierID string `json:"cashier_id"`
	PayinTx   string `json:"payin_tx"`
}

// GameHistory is the p_game_history record backing dispute resolution.
type GameHistory struct {
	PayinTx   string  `json:"payin_tx"`
	TableID   string  `json:"table_id"`
	GameID    string  `json:"game_id"`
	Amount    float64 `json:"amount"`
	JoinBlock int64   `json:"join_block"`
	PlayerID  int     `json:"player_id"`
}

// DecodedCard is the p_decoded_card record a player publishes for community
// cards so the dealer can cross-check all decoders. At showdown the
// same key carries the player's hole-card reveal: CardType HoleCard with
// both values in HoleCards.
type DecodedCard struct {
	CardID    int      `json:"card_id"`
	CardType  CardType `json:"card_type"`
	CardValue int      `json:"card_value"`
	HoleCards []int    `json:"hole_cards,omitempty"`
}

// BettingAction is the p_betting_action record. TurnID echoes the
// turn_start_time of the betting state being answered, so the dealer never
// processes a stale entry twice when the turn cycles back to the same seat.
type BettingAction struct {
	Action string  `json:"action"`
	Amount float64 `json:"amount"`
	Round  int     `json:"round"`
	TurnID int64   `json:"turn_id"`
	Auto   bool    `json:"auto_fold,omitempty"`
}

// CardBV is the t_card_bv record publishing the cashier's blinding value(s).
// For community cards (PlayerID == -1) BV carries one entry per seat.
type CardBV struct {
	PlayerID int      `json:"player_id"`
	CardID   int      `json:"card_id"`
	BV       []string `json:"bv"`
}

// BoardCards is the t_board_cards record; -1 marks an unrevealed card.
type BoardCards struct {
	Flop  [3]int `json:"flop"`
	Turn  int    `json:"turn"`
	River int    `json:"river"`
}

// NewBoardCards returns a board with every card unrevealed.
func NewBoardCards() *BoardCards {
	return &BoardCards{Flop: [3]int{-1, -1, -1}, Turn: -1, River: -1}
}

// Set records the consensus value for a community card type.
func (b *BoardCards) Set(ct CardType, value int) {
	switch ct {
	case FlopCard1:
		b.Flop[0] = value
	case FlopCard2:
		b.Flop[1] = value
	case FlopCard3:
		b.Flop[2] = value
	case TurnCard:
		b.Turn = value
	case RiverCard:
		b.River = value
	}
}

// Get returns the recorded value for a community card type, -1 if unset.
func (b *BoardCards) Get(ct CardType) int {
	switch ct {
	case FlopCard1:
		return b.Flop[0]
	case FlopCard2:
		return b.Flop[1]
	case FlopCard3:
		return b.Flop[2]
	case TurnCard:
		return b.Turn
	case RiverCard:
		return b.River
	}
	return -1
}

// Revealed returns the board cards revealed so far, in street order.
func (b *BoardCards) Revealed() []int {
	var out []int
	for _, v := range []int{b.Flop[0], b.Flop[1], b.Flop[2], b.Turn, b.River} {
		if v >= 0 {
			out = append(out, v)
		}
	}
	return out
}

// Settlement status values.
const (
	SettlementPending   = "pending"
	SettlementCompleted = "completed"
)

// SettlementInfo is the t_settlement_info record. The dealer writes it with
// status pending at showdown; the cashier rewrites it completed with the
// payout transaction ids filled in.
type SettlementInfo struct {
	Status        string    `json:"status"`
	PlayerIDs     []string  `json:"player_ids"`
	SettleAmounts []float64 `json:"settle_amounts"`
	PayoutTxs     []string  `json:"payout_txs,omitempty"`
}

// Dispute status values published by the cashier.
const (
	DisputePaid     = "paid"
	DisputeRefunded = "refunded"
	DisputeRejected = "rejected"
)

// DisputeRequest is the p_dispute_request record.
type DisputeRequest struct {
	PayinTx      string `json:"payin_tx"`
	TableID      string `json:"table_id"`
	GameID       string `json:"game_id"`
	Reason       string `json:"reason"`
	RequestBlock int64  `json:"request_block"`
	PlayerID     string `json:"player_id"`
}

// DisputeResult is the verdict published under
// c_dispute_result.<game_id>.<player_id>.
type DisputeResult struct {
	PlayerID      string `json:"player_id"`
	GameID        string `json:"game_id"`
	Status        string `json:"status"`
	Reason        string `json:"reason"`
	PayoutTx      string `json:"payout_tx"`
	ResolvedBlock int64  `json:"resolved_block"`
}

// CashierRegistry is the registry record on the cashiers identity.
type CashierRegistry struct {
	Cashiers []string `json:"cashiers"`
}

// DealerRegistry is the registry record on the dealers identity.
type DealerRegistry struct {
	Dealers []string `json:"dealers"`
}
