package poker

import (
	"time"

	"github.com/decred/dcrd/dcrutil/v4"
)

// Betting action names carried in p_betting_action and t_betting_state.
const (
	ActionNone       = ""
	ActionSmallBlind = "small_blind"
	ActionBigBlind   = "big_blind"
	ActionCheck      = "check"
	ActionBet        = "bet"
	ActionCall       = "call"
	ActionRaise      = "raise"
	ActionAllin      = "allin"
	ActionFold       = "fold"
	// ActionRoundBetting labels a regular betting turn in t_betting_state.
	ActionRoundBetting = "round_betting"
)

// RoundChips snaps a CHIPS amount to 8 decimal places, keeping wire numbers
// and pot sums exact across float arithmetic.
func RoundChips(v float64) float64 {
	a, err := dcrutil.NewAmount(v)
	if err != nil {
		return 0
	}
	return a.ToCoin()
}

// AddChips returns a+b snapped to 8 decimals.
func AddChips(a, b float64) float64 { return RoundChips(a + b) }

// SubChips returns a-b snapped to 8 decimals.
func SubChips(a, b float64) float64 { return RoundChips(a - b) }

// Vars is the dealer's betting bookkeeping for one hand. All amounts are
// CHIPS. Funds per player are monotonically non-increasing within a hand;
// winnings return only through settlement.
type Vars struct {
	NumPlayers int
	Dealer     int
	Turn       int
	LastTurn   int
	Round      int
	Pot        float64
	SmallBlind float64
	BigBlind   float64
	LastRaise  float64

	TurnStartTime  int64
	TurnStartBlock int64

	Funds      []float64   // available per player
	IniFunds   []float64   // payin amounts
	BetAmounts [][]float64 // [player][round]
	Actions    [][]string  // [player][round]
}

// NewVars initializes betting state for the seated players, loading funds
// from the recorded payin amounts.
func NewVars(payins []float64, smallBlind, bigBlind float64) *Vars {
	n := len(payins)
	v := &Vars{
		NumPlayers: n,
		SmallBlind: smallBlind,
		BigBlind:   bigBlind,
		Funds:      make([]float64, n),
		IniFunds:   make([]float64, n),
		BetAmounts: make([][]float64, n),
		Actions:    make([][]string, n),
	}
	for i := 0; i < n; i++ {
		v.Funds[i] = payins[i]
		v.IniFunds[i] = payins[i]
		v.BetAmounts[i] = make([]float64, MaxRounds)
		v.Actions[i] = make([]string, MaxRounds)
	}
	return v
}

// MaxBet returns the highest non-folded bet this round.
func (v *Vars) MaxBet() float64 {
	var max float64
	for i := 0; i < v.NumPlayers; i++ {
		if v.Actions[i][v.Round] == ActionFold {
			continue
		}
		if v.BetAmounts[i][v.Round] > max {
			max = v.BetAmounts[i][v.Round]
		}
	}
	return max
}

// ToCall returns the amount the given player must add to match the max bet.
func (v *Vars) ToCall(player int) float64 {
	return SubChips(v.MaxBet(), v.BetAmounts[player][v.Round])
}

// Folded reports whether the player has folded in any round up to now.
func (v *Vars) Folded(player int) bool {
	for r := 0; r <= v.Round && r < MaxRounds; r++ {
		if v.Actions[player][r] == ActionFold {
			return true
		}
	}
	return false
}

// PlayersLeft counts the players who have not folded.
func (v *Vars) PlayersLeft() int {
	left := 0
	for i := 0; i < v.NumPlayers; i++ {
		if !v.Folded(i) {
			left++
		}
	}
	return left
}

// ProcessAction applies the current player's betting action. Declared
// amounts exceeding available funds are coerced to all-in.
func (v *Vars) ProcessAction(act BettingAction) {
	player := v.Turn
	amount := RoundChips(act.Amount)
	available := v.Funds[player]

	commit := func(delta float64, action string) {
		v.BetAmounts[player][v.Round] = AddChips(v.BetAmounts[player][v.Round], delta)
		v.Funds[player] = SubChips(v.Funds[player], delta)
		v.Pot = AddChips(v.Pot, delta)
		v.Actions[player][v.Round] = action
	}

	switch act.Action {
	case ActionFold:
		// A fold removes the player for the rest of the hand.
		for r := v.Round; r < MaxRounds; r++ {
			v.Actions[player][r] = ActionFold
		}
	case ActionCheck:
		v.Actions[player][v.Round] = ActionCheck
	case ActionCall:
		toCall := v.ToCall(player)
		if toCall > available {
			commit(available, ActionAllin)
		} else {
			commit(toCall, ActionCall)
		}
	case ActionRaise:
		if amount > available {
			commit(available, ActionAllin)
		} else {
			commit(amount, ActionRaise)
			v.LastRaise = amount
		}
	case ActionAllin:
		commit(available, ActionAllin)
	case ActionBet, ActionSmallBlind:
		if amount > available {
			commit(available, ActionAllin)
		} else {
			commit(amount, ActionSmallBlind)
		}
	case ActionBigBlind:
		if amount > available {
			commit(available, ActionAllin)
		} else {
			commit(amount, ActionBigBlind)
		}
	}
}

// FoldOut marks a player folded for every round; used when a reveal times
// out and the laggard is dropped from the hand.
func (v *Vars) FoldOut(player int) {
	for r := 0; r < MaxRounds; r++ {
		v.Actions[player][r] = ActionFold
	}
}

// NextTurn returns the next seat that still needs to act this round, or -1
// when the round is complete. Folded, all-in and empty-stack players are
// skipped; a player acts again only if it has not acted or trails the max
// bet.
func (v *Vars) NextTurn() int {
	maxBet := v.MaxBet()
	for i := 1; i <= v.NumPlayers; i++ {
		idx := (v.Turn + i) % v.NumPlayers
		action := v.Actions[idx][v.Round]
		if action == ActionFold || action == ActionAllin || v.Funds[idx] == 0 {
			continue
		}
		if action == ActionNone {
			return idx
		}
		if v.BetAmounts[idx][v.Round] < maxBet {
			return idx
		}
	}
	return -1
}

// StartTurn stamps the timeout anchors for the current turn.
func (v *Vars) StartTurn(now time.Time, height int64) {
	v.TurnStartTime = now.Unix()
	v.TurnStartBlock = height
}

// TurnTimedOut reports whether the turn has expired: BOTH the wall-clock
// and the block thresholds must have elapsed; either alone is insufficient.
func (v *Vars) TurnTimedOut(now time.Time, height int64) bool {
	elapsedSecs := now.Unix() - v.TurnStartTime
	elapsedBlocks := height - v.TurnStartBlock
	return elapsedSecs >= TurnTimeoutSecs && elapsedBlocks >= TurnTimeoutBlocks
}

// BettingState is the t_betting_state record the dealer publishes each turn.
type BettingState struct {
	CurrentTurn    int       `json:"current_turn"`
	Round          int       `json:"round"`
	Pot            float64   `json:"pot"`
	Action         string    `json:"action"`
	LastTurn       int       `json:"last_turn"`
	TurnStartTime  int64     `json:"turn_start_time"`
	TurnStartBlock int64     `json:"turn_start_block"`
	TimeoutSecs    int       `json:"timeout_secs"`
	TimeoutBlocks  int       `json:"timeout_blocks"`
	MinAmount      float64   `json:"min_amount"`
	BetAmounts     []float64 `json:"bet_amounts"`
	PlayerFunds    []float64 `json:"player_funds"`
	Possibilities  []string  `json:"possibilities"`
}

// Snapshot builds the betting state for the current turn with the given
// action label.
func (v *Vars) Snapshot(action string) *BettingState {
	maxBet := v.MaxBet()

	var minAmount float64
	switch action {
	case ActionSmallBlind:
		minAmount = v.SmallBlind
	case ActionBigBlind:
		minAmount = v.BigBlind
	default:
		minAmount = SubChips(maxBet, v.BetAmounts[v.Turn][v.Round])
	}

	var possibilities []string
	if action == ActionSmallBlind || action == ActionBigBlind {
		possibilities = []string{ActionBet}
	} else {
		if maxBet == v.BetAmounts[v.Turn][v.Round] {
			possibilities = append(possibilities, ActionCheck)
		} else {
			possibilities = append(possibilities, ActionCall)
		}
		possibilities = append(possibilities, ActionRaise, ActionFold, ActionAllin)
	}

	bets := make([]float64, v.NumPlayers)
	funds := make([]float64, v.NumPlayers)
	for i := 0; i < v.NumPlayers; i++ {
		bets[i] = v.BetAmounts[i][v.Round]
		funds[i] = v.Funds[i]
	}

	return &BettingState{
		CurrentTurn:    v.Turn,
		Round:          v.Round,
		Pot:            v.Pot,
		Action:         action,
		LastTurn:       v.LastTurn,
		TurnStartTime:  v.TurnStartTime,
		TurnStartBlock: v.TurnStartBlock,
		TimeoutSecs:    TurnTimeoutSecs,
		TimeoutBlocks:  TurnTimeoutBlocks,
		MinAmount:      minAmount,
		BetAmounts:     bets,
		PlayerFunds:    funds,
		Possibilities:  possibilities,
	}
}
