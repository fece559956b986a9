package poker

// GameState is the table state machine value published under
// t_game_info.game_state.
type GameState int

const (
	StateZeroized GameState = iota
	StateTableActive
	StateTableStarted
	StatePlayersJoined
	StateDeckShufflingP
	StateDeckShufflingD
	StateDeckShufflingB
	StateRevealCard
	StateRevealCardPDone
	StateRoundBetting
	StateShowdown
	StateSettlementPending
	StateSettlementComplete
)

func (s GameState) String() string {
	switch s {
	case StateZeroized:
		return "Zeroized state, Table is not initialized yet"
	case StateTableActive:
		return "Table is active"
	case StateTableStarted:
		return "Table is started"
	case StatePlayersJoined:
		return "Players joined the table"
	case StateDeckShufflingP:
		return "Deck shuffling by players is done"
	case StateDeckShufflingD:
		return "Deck shuffling by dealer is done"
	case StateDeckShufflingB:
		return "Deck shuffling by cashier is done"
	case StateRevealCard:
		return "Drawing the card from deck"
	case StateRevealCardPDone:
		return "Player(s) got the card"
	case StateRoundBetting:
		return "Round betting is happening"
	case StateShowdown:
		return "Showdown - determining winner"
	case StateSettlementPending:
		return "Settlement pending - cashier processing payouts"
	case StateSettlementComplete:
		return "Settlement complete - game finished"
	default:
		return "Invalid game state"
	}
}

// Timeouts and limits shared by the roles.
const (
	// TurnTimeoutSecs and TurnTimeoutBlocks must BOTH elapse before a turn
	// times out; either alone is insufficient.
	TurnTimeoutSecs   = 60
	TurnTimeoutBlocks = 6

	// JoinWaitBlocks bounds how long a player waits for its seat to appear
	// in t_player_info after paying in.
	JoinWaitBlocks = 5

	// DisputeTimeoutBlocks is the payin age past which a stalled hand is
	// treated as aborted and refundable.
	DisputeTimeoutBlocks = 60

	// MaxRounds is the number of betting rounds (preflop, flop, turn, river).
	MaxRounds = 4

	// MaxPlayers is the largest supported seat count.
	MaxPlayers = 9
)

// Default table economics, in CHIPS.
const (
	DefaultBigBlind   = 0.02
	DefaultSmallBlind = 0.01
	DefaultMinStake   = 0.5
	DefaultMaxStake   = 2.0
	DefaultTxFee      = 0.0001
)
