package cards

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/corvus-ch/shamir"
	"golang.org/x/crypto/nacl/box"
)

// Threshold returns the share threshold M = ⌊players/2⌋ + 1.
func Threshold(players int) int { return players/2 + 1 }

// EncShare is one player's encrypted Shamir share of a blinding scalar. X is
// the GF(256) x-coordinate the scheme assigned to the share; Sealed is the
// NaCl box ciphertext (nonce-prefixed), hex encoded.
type EncShare struct {
	X      byte   `json:"x"`
	Sealed string `json:"sealed"`
}

var errShareDecrypt = errors.New("cards: share decryption failed")

// SplitBlinding Shamir-splits a blinding scalar into one share per player
// with threshold M, sealing share j to player j's public key under the
// cashier's key. Any M cooperating players can later reconstruct the scalar
// if the cashier disappears mid-hand.
func SplitBlinding(bv Scalar, playerPubs []Scalar, cashierPriv Scalar) ([]EncShare, error) {
	players := len(playerPubs)
	if players < 2 {
		return nil, fmt.Errorf("cards: need at least 2 players to split, got %d", players)
	}
	shares, err := shamir.Split(bv[:], players, Threshold(players))
	if err != nil {
		return nil, fmt.Errorf("cards: shamir split: %w", err)
	}

	// Map iteration order is unspecified; fix an order over x-coordinates.
	xs := make([]byte, 0, players)
	for x := range shares {
		xs = append(xs, x)
	}
	for i := 1; i < len(xs); i++ {
		for j := i; j > 0 && xs[j-1] > xs[j]; j-- {
			xs[j-1], xs[j] = xs[j], xs[j-1]
		}
	}

	out := make([]EncShare, players)
	for i, x := range xs {
		sealed, err := sealShare(shares[x], playerPubs[i], cashierPriv)
		if err != nil {
			return nil, err
		}
		out[i] = EncShare{X: x, Sealed: sealed}
	}
	return out, nil
}

func sealShare(share []byte, peerPub, priv Scalar) (string, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", err
	}
	pub := [32]byte(peerPub)
	key := [32]byte(priv)
	sealed := box.Seal(nonce[:], share, &nonce, &pub, &key)
	return hex.EncodeToString(sealed), nil
}

// OpenShare decrypts this player's share with its private key and the
// cashier's public key.
func OpenShare(s EncShare, cashierPub, playerPriv Scalar) ([]byte, error) {
	sealed, err := hex.DecodeString(s.Sealed)
	if err != nil || len(sealed) < 24 {
		return nil, errShareDecrypt
	}
	var nonce [24]byte
	copy(nonce[:], sealed[:24])
	pub := [32]byte(cashierPub)
	key := [32]byte(playerPriv)
	opened, ok := box.Open(nil, sealed[24:], &nonce, &pub, &key)
	if !ok {
		return nil, errShareDecrypt
	}
	return opened, nil
}

// RecoverBlinding reconstructs a blinding scalar from at least M opened
// shares, keyed by their x-coordinates.
func RecoverBlinding(shares map[byte][]byte) (Scalar, error) {
	var out Scalar
	secret, err := shamir.Combine(shares)
	if err != nil {
		return out, fmt.Errorf("cards: shamir combine: %w", err)
	}
	if len(secret) != len(out) {
		return out, fmt.Errorf("cards: recovered secret has length %d", len(secret))
	}
	copy(out[:], secret)
	return out, nil
}
