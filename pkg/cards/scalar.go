package cards

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"filippo.io/edwards25519/field"
	"golang.org/x/crypto/curve25519"
)

// Scalar is a 32-byte little-endian value. The same representation carries
// curve25519 private scalars, affine x-coordinates of points, and GF(2^255-19)
// field elements, matching the composable fmul/crecip/xoverz contract.
type Scalar [32]byte

// String returns the canonical hex encoding.
func (s Scalar) String() string { return hex.EncodeToString(s[:]) }

// IsZero reports whether every byte is zero.
func (s Scalar) IsZero() bool {
	var z Scalar
	return s == z
}

// MarshalJSON encodes the scalar as a hex string.
func (s Scalar) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON decodes a hex string.
func (s *Scalar) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return errors.New("cards: scalar must be a hex string")
	}
	parsed, err := ParseScalar(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseScalar decodes a 64-character hex string.
func ParseScalar(s string) (Scalar, error) {
	var out Scalar
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, fmt.Errorf("cards: bad scalar hex: %w", err)
	}
	if len(b) != len(out) {
		return out, fmt.Errorf("cards: bad scalar length %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}

// Clamp applies the standard curve25519 private-key clamping in place.
func (s *Scalar) Clamp() {
	s[0] &= 0xf8
	s[31] &= 0x7f
	s[31] |= 0x40
}

// FieldElement coerces an arbitrary 32-byte value (typically a hash) into a
// well-formed field scalar by clamping.
func FieldElement(h Scalar) Scalar {
	h.Clamp()
	return h
}

// Rand256 returns a fresh random scalar; when clamp is set it is clamped for
// use as a private scalar.
func Rand256(clamp bool) Scalar {
	var s Scalar
	if _, err := rand.Read(s[:]); err != nil {
		panic("cards: rand: " + err.Error())
	}
	if clamp {
		s.Clamp()
	}
	return s
}

// cardRand256 returns a clamped random scalar carrying the card index at byte
// 30; the index is the card's face value recovered at decode time.
func cardRand256(index byte) Scalar {
	s := Rand256(true)
	s[30] = index
	return s
}

func mustElement(s Scalar) *field.Element {
	e, err := new(field.Element).SetBytes(s[:])
	if err != nil {
		panic("cards: field element: " + err.Error())
	}
	return e
}

// FMul multiplies two scalars in GF(2^255-19), returning the canonical
// reduced form.
func FMul(a, b Scalar) Scalar {
	var out Scalar
	e := new(field.Element).Multiply(mustElement(a), mustElement(b))
	copy(out[:], e.Bytes())
	return out
}

// CRecip returns the multiplicative inverse of a in GF(2^255-19).
func CRecip(a Scalar) Scalar {
	var out Scalar
	e := new(field.Element).Invert(mustElement(a))
	copy(out[:], e.Bytes())
	return out
}

// Basepoint returns the standard curve25519 base point (u = 9).
func Basepoint() Scalar {
	var b Scalar
	copy(b[:], curve25519.Basepoint)
	return b
}

// ScalarMult performs the Montgomery-ladder multiplication priv * point,
// returning the affine x coordinate of the product.
func ScalarMult(priv, point Scalar) (Scalar, error) {
	var out Scalar
	prod, err := curve25519.X25519(priv[:], point[:])
	if err != nil {
		return out, fmt.Errorf("cards: scalar mult: %w", err)
	}
	copy(out[:], prod)
	return out, nil
}

// Keypair is a curve25519 private scalar and its public point.
type Keypair struct {
	Priv Scalar
	Pub  Scalar
}

// GenKeypair generates a random clamped keypair.
func GenKeypair() (Keypair, error) {
	priv := Rand256(true)
	pub, err := ScalarMult(priv, Basepoint())
	if err != nil {
		return Keypair{}, err
	}
	return Keypair{Priv: priv, Pub: pub}, nil
}

// Permutation returns a uniformly random permutation of [0, n).
func Permutation(n int) []int {
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	for i := n - 1; i > 0; i-- {
		j := int(randIndex(i + 1))
		perm[i], perm[j] = perm[j], perm[i]
	}
	return perm
}

func randIndex(n int) uint32 {
	// Rejection sampling keeps the permutation unbiased.
	max := ^uint32(0) - ^uint32(0)%uint32(n)
	var b [4]byte
	for {
		if _, err := rand.Read(b[:]); err != nil {
			panic("cards: rand: " + err.Error())
		}
		v := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
		if v < max {
			return v % uint32(n)
		}
	}
}
