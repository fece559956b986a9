package cards

import "crypto/sha256"

// Decode recovers the face value of one revealed card.
//
// blindedCard is the entry from the player's cashier-blinded deck, bv the
// blinding scalar the cashier published, anchor the hash committed alongside
// the card, and dealerPoints the dealer's public points from t_d_deck.
//
// Removing the blinding leaves the dealer's encoding fmul(fe(h), d). The
// decoder then searches (m, n) pairs: the shared-point hash for card m under
// dealer point n must equal the anchor, and the dealer scalar recovered from
// the encoding must reproduce dealer point n. Discovery is O(N²) per reveal
// but bounded by the deck size. Returns the card value in [0, N).
func (d *PlayerDeck) Decode(blindedCard, bv, anchor Scalar, dealerPoints []Scalar) (int, error) {
	if bv.IsZero() {
		return -1, ErrDecodeFailed
	}
	dealerBlinded := FMul(CRecip(bv), blindedCard)
	basepoint := Basepoint()

	for m := range d.Cards {
		for n := range dealerPoints {
			// x(p · r_m · d_n · G), matching the dealer's x(d_n · r_m · P).
			rd, err := ScalarMult(d.Cards[m].Priv, dealerPoints[n])
			if err != nil {
				continue
			}
			shared, err := ScalarMult(d.Key.Priv, rd)
			if err != nil {
				continue
			}
			h := Scalar(sha256.Sum256(shared[:]))
			if h != anchor {
				continue
			}
			// Anchor matched; confirm the blinding was genuine by
			// recovering the dealer scalar and checking its point.
			dealerScalar := FMul(dealerBlinded, CRecip(FieldElement(h)))
			point, err := ScalarMult(dealerScalar, basepoint)
			if err != nil || point != dealerPoints[n] {
				continue
			}
			return int(d.Cards[m].Priv[30]), nil
		}
	}
	return -1, ErrDecodeFailed
}
