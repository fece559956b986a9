package cards

import (
	"crypto/sha256"
	"errors"
	"fmt"
)

// NumCards is the default deck size: 14 cards covers a two-player hand (4
// hole + 5 community + 5 spare). Larger decks work but must respect the
// chain's identity update size limit.
const NumCards = 14

var (
	// ErrDecodeFailed means no (card, dealer-point) pair matched the
	// published anchor; the hand cannot continue and the player disputes.
	ErrDecodeFailed = errors.New("cards: card decoding failed")
	// ErrDeckSize means a published deck did not carry the expected number
	// of entries.
	ErrDeckSize = errors.New("cards: unexpected deck size")
)

// CardKey is one per-card keypair.
type CardKey struct {
	Priv Scalar
	Pub  Scalar
}

// PlayerDeck is the player's view of the deck: one identity keypair plus N
// per-card scalars whose public points are published as the player's deck.
// The card index rides in byte 30 of each private scalar.
type PlayerDeck struct {
	Key   Keypair
	Cards []CardKey
}

// GenPlayerDeck generates the player keypair and n per-card keys. Each card's
// public point is the card scalar applied to the player's own public key, so
// the dealer's shared-point hash commits to the player identity as well.
func GenPlayerDeck(n int) (*PlayerDeck, error) {
	key, err := GenKeypair()
	if err != nil {
		return nil, err
	}
	deck := &PlayerDeck{Key: key, Cards: make([]CardKey, n)}
	for i := 0; i < n; i++ {
		priv := cardRand256(byte(i))
		pub, err := ScalarMult(priv, key.Pub)
		if err != nil {
			return nil, err
		}
		deck.Cards[i] = CardKey{Priv: priv, Pub: pub}
	}
	return deck, nil
}

// PublicPoints returns the card points in generation order, as published
// under the player_deck key.
func (d *PlayerDeck) PublicPoints() []Scalar {
	pts := make([]Scalar, len(d.Cards))
	for i, c := range d.Cards {
		pts[i] = c.Pub
	}
	return pts
}

// DealerDeck is the dealer's view: N per-card scalars and a secret
// permutation applied to every player's deck.
type DealerDeck struct {
	Perm  []int
	Cards []CardKey
}

// GenDealerDeck generates the dealer's per-card keypairs and permutation.
func GenDealerDeck(n int) (*DealerDeck, error) {
	deck := &DealerDeck{Perm: Permutation(n), Cards: make([]CardKey, n)}
	for i := 0; i < n; i++ {
		kp, err := GenKeypair()
		if err != nil {
			return nil, err
		}
		deck.Cards[i] = CardKey{Priv: kp.Priv, Pub: kp.Pub}
	}
	return deck, nil
}

// PublicPoints returns the dealer's card points in generation order, as
// published under t_d_deck.
func (d *DealerDeck) PublicPoints() []Scalar {
	pts := make([]Scalar, len(d.Cards))
	for i, c := range d.Cards {
		pts[i] = c.Pub
	}
	return pts
}

// BlindedDeck is one permuted, blinded deck together with the hash anchors
// that let the recipient disambiguate candidate cards at reveal time. The
// anchors are permuted in lockstep with the cards through every shuffle.
type BlindedDeck struct {
	Cards []Scalar `json:"cards"`
	GHash []Scalar `json:"ghash"`
	// Shares, present only on cashier-blinded decks, holds the per-card
	// Shamir shares of the blinding scalars, each encrypted to one player.
	Shares [][]EncShare `json:"shares,omitempty"`
}

// Validate checks the deck carries n aligned entries.
func (b *BlindedDeck) Validate(n int) error {
	if len(b.Cards) != n || len(b.GHash) != n {
		return fmt.Errorf("%w: %d cards, %d anchors, want %d",
			ErrDeckSize, len(b.Cards), len(b.GHash), n)
	}
	return nil
}

// BlindForPlayer performs the dealer's shuffle of one player's published card
// points: each card is bound to a fresh dealer secret through the hash of the
// shared point, then the whole deck is permuted under the dealer's
// permutation. The returned anchors are the SHA-256 hashes the recipient
// brute-forces against during reveal.
func (d *DealerDeck) BlindForPlayer(playerPoints []Scalar) (*BlindedDeck, error) {
	n := len(d.Cards)
	if len(playerPoints) != n {
		return nil, fmt.Errorf("%w: got %d player points, want %d",
			ErrDeckSize, len(playerPoints), n)
	}

	blinded := make([]Scalar, n)
	hashes := make([]Scalar, n)
	for i := 0; i < n; i++ {
		shared, err := ScalarMult(d.Cards[i].Priv, playerPoints[i])
		if err != nil {
			return nil, err
		}
		h := Scalar(sha256.Sum256(shared[:]))
		hashes[i] = h
		blinded[i] = FMul(FieldElement(h), d.Cards[i].Priv)
	}

	out := &BlindedDeck{Cards: make([]Scalar, n), GHash: make([]Scalar, n)}
	for i := 0; i < n; i++ {
		out.Cards[i] = blinded[d.Perm[i]]
		out.GHash[i] = hashes[d.Perm[i]]
	}
	return out, nil
}

// BlinderDeck is the cashier's view: a secret permutation plus one blinding
// scalar per (player, card). Publishing a blinding scalar is what reveals a
// card.
type BlinderDeck struct {
	Perm      []int
	Blindings [][]Scalar // [player][card]
}

// GenBlinderDeck generates the cashier's permutation and per-player blinding
// scalars.
func GenBlinderDeck(numPlayers, n int) *BlinderDeck {
	deck := &BlinderDeck{
		Perm:      Permutation(n),
		Blindings: make([][]Scalar, numPlayers),
	}
	for p := 0; p < numPlayers; p++ {
		deck.Blindings[p] = make([]Scalar, n)
		for i := 0; i < n; i++ {
			deck.Blindings[p][i] = Rand256(true)
		}
	}
	return deck
}

// Blind applies the cashier's permutation and per-card blinding to one
// player's dealer-blinded deck, keeping the anchors aligned.
func (b *BlinderDeck) Blind(player int, in *BlindedDeck) (*BlindedDeck, error) {
	n := len(b.Perm)
	if err := in.Validate(n); err != nil {
		return nil, err
	}
	if player < 0 || player >= len(b.Blindings) {
		return nil, fmt.Errorf("cards: no blindings for player %d", player)
	}
	out := &BlindedDeck{Cards: make([]Scalar, n), GHash: make([]Scalar, n)}
	for i := 0; i < n; i++ {
		out.Cards[i] = FMul(b.Blindings[player][i], in.Cards[b.Perm[i]])
		out.GHash[i] = in.GHash[b.Perm[i]]
	}
	return out, nil
}

// BlindingValue returns the secret for one (player, card) slot.
func (b *BlinderDeck) BlindingValue(player, card int) Scalar {
	return b.Blindings[player][card]
}
