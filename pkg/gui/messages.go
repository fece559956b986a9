package gui

import "github.com/sg777/pangea/pkg/poker"

// Messages are JSON objects tagged with a "method" field, matching the GUI
// front-end protocol.

// Message is one GUI protocol frame.
type Message map[string]interface{}

// Server→client method tags.
const (
	MethodBackendStatus   = "backend_status"
	MethodTableInfo       = "table_info"
	MethodSeats           = "seats"
	MethodDeal            = "deal"
	MethodBetting         = "betting"
	MethodFinalInfo       = "finalInfo"
	MethodWalletInfo      = "walletInfo"
	MethodPlayerInitState = "player_init_state"
)

// Client→server method tags.
const (
	MethodPlayerJoin  = "player_join"
	MethodJoinTable   = "join_table"
	MethodBettingView = "betting"
	MethodWithdraw    = "withdraw"
	MethodTableQuery  = "table_info"
)

// BackendStatus reports whether the role backend is ready.
func BackendStatus(ready bool) Message {
	status := 0
	if ready {
		status = 1
	}
	return Message{"method": MethodBackendStatus, "backend_status": status}
}

// TableInfo publishes the table parameters.
func TableInfo(t *poker.Table) Message {
	return Message{
		"method":      MethodTableInfo,
		"max_players": t.MaxPlayers,
		"big_blind":   t.BigBlind,
		"min_stake":   t.MinStake,
		"max_stake":   t.MaxStake,
		"table_id":    t.TableID,
		"dealer_id":   t.DealerID,
	}
}

// Seats publishes the seat occupancy.
func Seats(info *poker.PlayerInfo, maxPlayers int) Message {
	seats := make([]Message, 0, maxPlayers)
	for i := 0; i < maxPlayers; i++ {
		seat := Message{"seat": i, "empty": true}
		if i < len(info.Players) {
			seat["empty"] = false
			seat["player_id"] = info.Players[i].VerusPID
			seat["chips"] = info.PayinAmounts[i]
		}
		seats = append(seats, seat)
	}
	return Message{"method": MethodSeats, "seats": seats}
}

// DealHoleCards pushes the player's decoded hole cards.
func DealHoleCards(card1, card2 int, balance float64) Message {
	return Message{
		"method": MethodDeal,
		"deal": Message{
			"holecards": []string{poker.CardName(card1), poker.CardName(card2)},
			"balance":   balance,
		},
	}
}

// DealBoard pushes the community cards revealed so far.
func DealBoard(board []int) Message {
	names := make([]string, len(board))
	for i, c := range board {
		names[i] = poker.CardName(c)
	}
	return Message{
		"method": MethodDeal,
		"deal":   Message{"board": names},
	}
}

// BettingRound prompts the GUI for the player's action.
func BettingRound(playerID int, state *poker.BettingState) Message {
	minRaise := state.MinAmount * 2
	if minRaise == 0 {
		minRaise = poker.DefaultBigBlind
	}
	return Message{
		"method":        MethodBetting,
		"playerid":      playerID,
		"round":         state.Round,
		"pot":           state.Pot,
		"min_amount":    state.MinAmount,
		"min_raise":     minRaise,
		"possibilities": state.Possibilities,
		"player_funds":  state.PlayerFunds,
	}
}

// FinalInfo publishes the settlement outcome.
func FinalInfo(settlement *poker.SettlementInfo) Message {
	return Message{
		"method":         MethodFinalInfo,
		"status":         settlement.Status,
		"player_ids":     settlement.PlayerIDs,
		"settle_amounts": settlement.SettleAmounts,
	}
}

// WalletInfo publishes the wallet address and balance.
func WalletInfo(addr string, balance float64) Message {
	return Message{
		"method":  MethodWalletInfo,
		"address": addr,
		"balance": balance,
	}
}

// PlayerInitState publishes the player's position and decoded cards after a
// rejoin so the GUI can restore its view.
func PlayerInitState(playerID int, decoded []int) Message {
	names := make([]string, 0, len(decoded))
	for _, c := range decoded {
		if c >= 0 {
			names = append(names, poker.CardName(c))
		}
	}
	return Message{
		"method":    MethodPlayerInitState,
		"player_id": playerID,
		"cards":     names,
	}
}
