package vdxf

import "fmt"

// DefaultKeyPrefix namespaces every poker key. Per-hand keys are further
// suffixed with ".<game_id>" so entries from earlier hands never collide.
const DefaultKeyPrefix = "chips.vrsc::poker.sg777z."

// Logical key names, resolved to vdxf ids through getvdxfid.
const (
	KeyCashiers = "cashiers"
	KeyDealers  = "dealers"

	KeyTGameID         = "t_game_id"
	KeyTTableInfo      = "t_table_info"
	KeyTPlayerInfo     = "t_player_info"
	KeyTDDeck          = "t_d_deck"
	KeyTCardBV         = "t_card_bv"
	KeyTGameInfo       = "t_game_info"
	KeyTBettingState   = "t_betting_state"
	KeyTBoardCards     = "t_board_cards"
	KeyTSettlementInfo = "t_settlement_info"

	KeyPlayerDeck      = "player_deck"
	KeyPDecodedCard    = "p_decoded_card"
	KeyPBettingAction  = "p_betting_action"
	KeyPJoinRequest    = "p_join_request"
	KeyPGameHistory    = "p_game_history"
	KeyPDisputeRequest = "p_dispute_request"

	KeyCDisputeResult = "c_dispute_result"
)

// MaxSlots is the largest supported table; per-slot deck keys are fixed names
// t_d_p1_deck..t_d_p9_deck for interop with existing tables.
const MaxSlots = 9

// DealerDeckKey returns the per-slot dealer-blinded deck key for slot 0..8.
func DealerDeckKey(slot int) string {
	return fmt.Sprintf("t_d_p%d_deck", slot+1)
}

// BlinderDeckKey returns the per-slot cashier-blinded deck key for slot 0..8.
func BlinderDeckKey(slot int) string {
	return fmt.Sprintf("t_b_p%d_deck", slot+1)
}
