package cards

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// runShuffle drives the full P → D → B cascade for the given player count
// and returns the players' decks, the dealer deck and the cashier-blinded
// decks per player.
func runShuffle(t *testing.T, numPlayers int) ([]*PlayerDeck, *DealerDeck, *BlinderDeck, []*BlindedDeck) {
	t.Helper()

	playerDecks := make([]*PlayerDeck, numPlayers)
	for i := range playerDecks {
		deck, err := GenPlayerDeck(NumCards)
		require.NoError(t, err)
		playerDecks[i] = deck
	}

	dealerDeck, err := GenDealerDeck(NumCards)
	require.NoError(t, err)

	blinder := GenBlinderDeck(numPlayers, NumCards)

	blinded := make([]*BlindedDeck, numPlayers)
	for i, pd := range playerDecks {
		dBlinded, err := dealerDeck.BlindForPlayer(pd.PublicPoints())
		require.NoError(t, err)
		blinded[i], err = blinder.Blind(i, dBlinded)
		require.NoError(t, err)
	}
	return playerDecks, dealerDeck, blinder, blinded
}

func TestShuffleRoundTrip(t *testing.T) {
	const numPlayers = 2
	players, dealerDeck, blinder, blinded := runShuffle(t, numPlayers)
	dealerPoints := dealerDeck.PublicPoints()

	for p := 0; p < numPlayers; p++ {
		seen := make(map[int]bool)
		for card := 0; card < NumCards; card++ {
			bv := blinder.BlindingValue(p, card)
			value, err := players[p].Decode(blinded[p].Cards[card], bv,
				blinded[p].GHash[card], dealerPoints)
			require.NoError(t, err, "player %d card %d", p, card)
			require.GreaterOrEqual(t, value, 0)
			require.Less(t, value, NumCards)
			require.False(t, seen[value], "card value %d decoded twice", value)
			seen[value] = true
		}
		require.Len(t, seen, NumCards, "every card value recovered exactly once")
	}
}

func TestShuffleAgreesAcrossPlayers(t *testing.T) {
	// Community cards rely on every player's deck mapping the same final
	// position to the same face value, because the dealer and cashier use
	// one permutation for all players.
	const numPlayers = 3
	players, dealerDeck, blinder, blinded := runShuffle(t, numPlayers)
	dealerPoints := dealerDeck.PublicPoints()

	for card := 0; card < NumCards; card++ {
		want := -1
		for p := 0; p < numPlayers; p++ {
			value, err := players[p].Decode(blinded[p].Cards[card],
				blinder.BlindingValue(p, card), blinded[p].GHash[card], dealerPoints)
			require.NoError(t, err)
			if want == -1 {
				want = value
			}
			require.Equal(t, want, value, "player %d disagrees on card %d", p, card)
		}
	}
}

func TestDecodeWrongBlindingValue(t *testing.T) {
	players, dealerDeck, _, blinded := runShuffle(t, 2)

	wrong := Rand256(true)
	_, err := players[0].Decode(blinded[0].Cards[0], wrong,
		blinded[0].GHash[0], dealerDeck.PublicPoints())
	require.ErrorIs(t, err, ErrDecodeFailed)

	var zero Scalar
	_, err = players[0].Decode(blinded[0].Cards[0], zero,
		blinded[0].GHash[0], dealerDeck.PublicPoints())
	require.ErrorIs(t, err, ErrDecodeFailed)
}

func TestClampAndCardIndex(t *testing.T) {
	deck, err := GenPlayerDeck(NumCards)
	require.NoError(t, err)
	for i, c := range deck.Cards {
		require.Equal(t, byte(i), c.Priv[30], "card index rides at byte 30")
		require.Zero(t, c.Priv[0]&0x07, "low bits clamped")
		require.Zero(t, c.Priv[31]&0x80, "high bit clamped")
		require.Equal(t, byte(0x40), c.Priv[31]&0x40, "second-highest bit set")
	}
}

func TestPermutationIsValid(t *testing.T) {
	perm := Permutation(52)
	seen := make([]bool, 52)
	for _, v := range perm {
		require.False(t, seen[v])
		seen[v] = true
	}
}

func TestFieldOpsInverse(t *testing.T) {
	a := Rand256(true)
	b := Rand256(true)
	prod := FMul(a, b)
	back := FMul(prod, CRecip(b))
	require.Equal(t, a, back, "fmul then multiply by inverse recovers the scalar")
}

func TestScalarHexRoundTrip(t *testing.T) {
	s := Rand256(false)
	parsed, err := ParseScalar(s.String())
	require.NoError(t, err)
	require.Equal(t, s, parsed)

	_, err = ParseScalar("zz")
	require.Error(t, err)
}
