package poker_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sg777/pangea/pkg/chain/chaintest"
	"github.com/sg777/pangea/pkg/poker"
	"github.com/sg777/pangea/pkg/vdxf"
)

const (
	parentFQN  = "poker.sg777z.chips.vrsc@"
	testGameID = "1234567890abcdef1234567890abcdef1234567890abcdef1234567890abcdef"
)

func newTestView(t *testing.T) (*poker.View, *chaintest.Daemon) {
	t.Helper()
	d := chaintest.New(parentFQN)
	t.Cleanup(d.Close)
	d.AddIdentity("t1", "RTable", true)
	d.AppendRaw("t1", chaintest.VdxfID(vdxf.DefaultKeyPrefix+vdxf.KeyTGameID), []byte(testGameID))

	cmm := vdxf.New(d.Client(), "", parentFQN, nil)
	return poker.NewView(cmm, "t1", 0), d
}

func TestViewGameIDSetOncePerHand(t *testing.T) {
	view, _ := newTestView(t)
	gid, err := view.GameID()
	require.NoError(t, err)
	require.Equal(t, testGameID, gid)
}

func TestViewStateRoundTrip(t *testing.T) {
	view, _ := newTestView(t)

	state, err := view.State()
	require.NoError(t, err)
	require.Equal(t, poker.StateZeroized, state, "no published state reads as zeroized")

	require.NoError(t, view.AppendState(poker.StateTableStarted, nil))
	require.NoError(t, view.AppendState(poker.StateRevealCard, &poker.GameStateInfo{
		PlayerID: 1, CardID: 3, CardType: poker.HoleCard,
	}))

	state, err = view.State()
	require.NoError(t, err)
	require.Equal(t, poker.StateRevealCard, state, "reader takes the last entry")

	info, err := view.StateInfo()
	require.NoError(t, err)
	require.NotNil(t, info)
	require.Equal(t, 1, info.PlayerID)
	require.Equal(t, 3, info.CardID)
}

func TestViewMissingGameID(t *testing.T) {
	d := chaintest.New(parentFQN)
	t.Cleanup(d.Close)
	d.AddIdentity("fresh", "RFresh", true)

	cmm := vdxf.New(d.Client(), "", parentFQN, nil)
	view := poker.NewView(cmm, "fresh", 0)

	_, err := view.GameID()
	require.ErrorIs(t, err, poker.ErrNoGameID)

	state, err := view.State()
	require.NoError(t, err)
	require.Equal(t, poker.StateZeroized, state)
}

func TestViewRecordsRoundTrip(t *testing.T) {
	view, _ := newTestView(t)

	players, err := view.PlayerInfo()
	require.NoError(t, err)
	require.Zero(t, players.NumPlayers, "empty before any join")

	require.NoError(t, players.Add(poker.Seat{VerusPID: "p1", PayinTx: "tx1", PayinAmount: 0.5}))
	require.NoError(t, view.PutTable(vdxf.KeyTPlayerInfo, players))

	reread, err := view.PlayerInfo()
	require.NoError(t, err)
	require.Equal(t, players, reread)

	settlement, err := view.Settlement()
	require.NoError(t, err)
	require.Nil(t, settlement, "no settlement before showdown")
}
