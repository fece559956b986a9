package cards

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitAndRecoverBlinding(t *testing.T) {
	const numPlayers = 4
	cashierKey, err := GenKeypair()
	require.NoError(t, err)

	playerKeys := make([]Keypair, numPlayers)
	playerPubs := make([]Scalar, numPlayers)
	for i := range playerKeys {
		kp, err := GenKeypair()
		require.NoError(t, err)
		playerKeys[i] = kp
		playerPubs[i] = kp.Pub
	}

	bv := Rand256(true)
	shares, err := SplitBlinding(bv, playerPubs, cashierKey.Priv)
	require.NoError(t, err)
	require.Len(t, shares, numPlayers)

	// A threshold of players can open their shares and reconstruct.
	opened := make(map[byte][]byte)
	for i := 0; i < Threshold(numPlayers); i++ {
		share, err := OpenShare(shares[i], cashierKey.Pub, playerKeys[i].Priv)
		require.NoError(t, err)
		opened[shares[i].X] = share
	}
	recovered, err := RecoverBlinding(opened)
	require.NoError(t, err)
	require.Equal(t, bv, recovered)
}

func TestOpenShareWrongKey(t *testing.T) {
	cashierKey, err := GenKeypair()
	require.NoError(t, err)
	playerKey, err := GenKeypair()
	require.NoError(t, err)
	intruder, err := GenKeypair()
	require.NoError(t, err)

	bv := Rand256(true)
	shares, err := SplitBlinding(bv, []Scalar{playerKey.Pub, cashierKey.Pub}, cashierKey.Priv)
	require.NoError(t, err)

	// Another player's key must not open this player's share.
	_, err = OpenShare(shares[0], cashierKey.Pub, intruder.Priv)
	require.Error(t, err)
}

func TestThreshold(t *testing.T) {
	require.Equal(t, 2, Threshold(2))
	require.Equal(t, 2, Threshold(3))
	require.Equal(t, 3, Threshold(4))
	require.Equal(t, 5, Threshold(9))
}
