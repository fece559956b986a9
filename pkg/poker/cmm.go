package poker

import (
	"errors"
	"fmt"

	"github.com/sg777/pangea/pkg/vdxf"
)

// View binds the CMM layer to one hand: a table identity, the start_block
// all reads filter from, and the hand's game id. Every reader takes the last
// entry under a key within [StartBlock, tip], so earlier hands are invisible.
type View struct {
	CMM         *vdxf.Client
	TableID     string
	HeightStart int64

	gameID string
}

// ErrNoGameID means the table identity has not published a game id yet.
var ErrNoGameID = errors.New("poker: table has no game id")

// NewView creates a view over the table's current hand.
func NewView(cmm *vdxf.Client, tableID string, heightStart int64) *View {
	return &View{CMM: cmm, TableID: tableID, HeightStart: heightStart}
}

// GameID returns the hand's game id, set exactly once per hand. The
// value is cached after the first successful read.
func (v *View) GameID() (string, error) {
	if v.gameID != "" {
		return v.gameID, nil
	}
	keyID, err := v.CMM.KeyID(vdxf.KeyTGameID)
	if err != nil {
		return "", err
	}
	gid, err := v.CMM.GetLatestString(v.TableID, keyID, v.HeightStart)
	if err != nil {
		if errors.Is(err, vdxf.ErrKeyNotFound) {
			return "", ErrNoGameID
		}
		return "", err
	}
	v.gameID = gid
	return gid, nil
}

// Get reads the latest per-hand record under the key from the given identity.
func (v *View) Get(id, key string, out interface{}) error {
	gid, err := v.GameID()
	if err != nil {
		return err
	}
	keyID, err := v.CMM.DataKeyID(key, gid)
	if err != nil {
		return err
	}
	return v.CMM.GetLatestJSON(id, keyID, v.HeightStart, out)
}

// GetTable reads a per-hand record from the table identity.
func (v *View) GetTable(key string, out interface{}) error {
	return v.Get(v.TableID, key, out)
}

// Put appends a per-hand record under the key on the given identity.
func (v *View) Put(id, key string, val interface{}) error {
	gid, err := v.GameID()
	if err != nil {
		return err
	}
	keyID, err := v.CMM.DataKeyID(key, gid)
	if err != nil {
		return err
	}
	return v.CMM.AppendJSON(id, keyID, val)
}

// PutTable appends a per-hand record on the table identity.
func (v *View) PutTable(key string, val interface{}) error {
	return v.Put(v.TableID, key, val)
}

// StateOf returns the game state recorded on an identity; missing entries
// mean the zeroized state.
func (v *View) StateOf(id string) (GameState, error) {
	var info GameInfo
	err := v.Get(id, vdxf.KeyTGameInfo, &info)
	if err != nil {
		if errors.Is(err, vdxf.ErrKeyNotFound) || errors.Is(err, ErrNoGameID) {
			return StateZeroized, nil
		}
		return StateZeroized, err
	}
	return info.GameState, nil
}

// State returns the table's game state.
func (v *View) State() (GameState, error) {
	return v.StateOf(v.TableID)
}

// StateInfoOf returns the payload attached to an identity's latest game
// state, nil when absent.
func (v *View) StateInfoOf(id string) (*GameStateInfo, error) {
	var info GameInfo
	err := v.Get(id, vdxf.KeyTGameInfo, &info)
	if err != nil {
		if errors.Is(err, vdxf.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return info.Info, nil
}

// StateInfo returns the table's current state payload.
func (v *View) StateInfo() (*GameStateInfo, error) {
	return v.StateInfoOf(v.TableID)
}

// AppendStateTo publishes a game state (with optional payload) on the given
// identity.
func (v *View) AppendStateTo(id string, state GameState, info *GameStateInfo) error {
	return v.Put(id, vdxf.KeyTGameInfo, &GameInfo{GameState: state, Info: info})
}

// AppendState publishes a game state on the table identity.
func (v *View) AppendState(state GameState, info *GameStateInfo) error {
	return v.AppendStateTo(v.TableID, state, info)
}

// PlayerInfo reads the table's seat list.
func (v *View) PlayerInfo() (*PlayerInfo, error) {
	var info PlayerInfo
	if err := v.GetTable(vdxf.KeyTPlayerInfo, &info); err != nil {
		if errors.Is(err, vdxf.ErrKeyNotFound) {
			return &PlayerInfo{}, nil
		}
		return nil, err
	}
	if info.NumPlayers != len(info.Players) || info.NumPlayers != len(info.PayinAmounts) {
		return nil, fmt.Errorf("poker: t_player_info arrays out of sync (%d/%d/%d)",
			info.NumPlayers, len(info.Players), len(info.PayinAmounts))
	}
	return &info, nil
}

// TableInfo reads the immutable table record.
func (v *View) TableInfo() (*Table, error) {
	var t Table
	if err := v.GetTable(vdxf.KeyTTableInfo, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// BettingState reads the current betting turn, nil when none published yet.
func (v *View) BettingState() (*BettingState, error) {
	var bs BettingState
	err := v.GetTable(vdxf.KeyTBettingState, &bs)
	if err != nil {
		if errors.Is(err, vdxf.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &bs, nil
}

// BoardCards reads the community board, fresh when none published yet.
func (v *View) BoardCards() (*BoardCards, error) {
	var b BoardCards
	err := v.GetTable(vdxf.KeyTBoardCards, &b)
	if err != nil {
		if errors.Is(err, vdxf.ErrKeyNotFound) {
			return NewBoardCards(), nil
		}
		return nil, err
	}
	return &b, nil
}

// Settlement reads the settlement record, nil when none published yet.
func (v *View) Settlement() (*SettlementInfo, error) {
	var s SettlementInfo
	err := v.GetTable(vdxf.KeyTSettlementInfo, &s)
	if err != nil {
		if errors.Is(err, vdxf.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// CardBV reads the cashier's latest published blinding values, nil when none.
func (v *View) CardBV() (*CardBV, error) {
	var bv CardBV
	err := v.GetTable(vdxf.KeyTCardBV, &bv)
	if err != nil {
		if errors.Is(err, vdxf.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &bv, nil
}
