// Package currency holds the two price denominations (keys and refined metal) and the
// scrap arithmetic metal prices are built on. One refined metal is nine scrap, and a
// scrap is written as 0.11 ref, so 2 ref + 1 scrap is 2.11 and 8 scrap is 0.88.
package currency

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Unit is the denomination of a price.
type Unit string

const (
	// Keys is the primary unit: the currency item itself.
	Keys Unit = "keys"
	// Metal is the secondary unit, refined metal.
	Metal Unit = "metal"
)

// ScrapPerRefined is the number of scrap in one refined metal.
const ScrapPerRefined = 9

var (
	scrapValue  = decimal.RequireFromString("0.11")
	scrapPerRef = decimal.NewFromInt(ScrapPerRefined)
)

// ErrNoKeyRate is returned when a conversion needs a key price that is unknown or not positive.
var ErrNoKeyRate = errors.New("no usable key rate")

// Valid reports whether u is one of the known units.
func (u Unit) Valid() bool {
	return u == Keys || u == Metal
}

// ParseUnit maps a wire string to a Unit.
func ParseUnit(s string) (Unit, error) {
	u := Unit(s)
	if !u.Valid() {
		return "", fmt.Errorf("unknown currency unit %q", s)
	}
	return u, nil
}

// ToScrap converts a refined value to a whole number of scrap, rounding to the
// nearest scrap.
func ToScrap(ref decimal.Decimal) int64 {
	if ref.IsNegative() {
		return -ToScrap(ref.Neg())
	}
	whole := ref.Floor()
	frac := ref.Sub(whole)
	n := frac.Div(scrapValue).Round(0).IntPart()
	return whole.IntPart()*ScrapPerRefined + n
}

// FromScrap converts scrap to its refined notation (19 scrap is 2.11).
func FromScrap(scrap int64) decimal.Decimal {
	if scrap < 0 {
		return FromScrap(-scrap).Neg()
	}
	whole := decimal.NewFromInt(scrap / ScrapPerRefined)
	rem := decimal.NewFromInt(scrap % ScrapPerRefined)
	return whole.Add(rem.Mul(scrapValue))
}

// AddScrap shifts a refined value by a signed number of scrap.
func AddScrap(ref decimal.Decimal, scrap int64) decimal.Decimal {
	return FromScrap(ToScrap(ref) + scrap)
}

// CeilScrap rounds a non-negative refined value up to the next whole scrap.
// Negative values are rounded to two places.
func CeilScrap(ref decimal.Decimal) decimal.Decimal {
	if ref.IsNegative() {
		return ref.Round(2)
	}
	whole := ref.Floor()
	n := ref.Sub(whole).Div(scrapValue).Ceil().IntPart()
	// above 0.99 the next scrap is the next whole refined
	if n > ScrapPerRefined {
		n = ScrapPerRefined
	}
	return FromScrap(whole.IntPart()*ScrapPerRefined + n)
}

// Converter moves amounts between the two units.
type Converter interface {
	ToMetal(amount decimal.Decimal, unit Unit) (decimal.Decimal, error)
	ToKeys(amount decimal.Decimal, unit Unit) (decimal.Decimal, error)
}

// KeyRate converts using the refined price of one key.
type KeyRate struct {
	Metal decimal.Decimal
}

// ToMetal returns amount expressed in refined metal, rounded to the nearest scrap.
func (k KeyRate) ToMetal(amount decimal.Decimal, unit Unit) (decimal.Decimal, error) {
	switch unit {
	case Metal:
		return amount, nil
	case Keys:
		if !k.Metal.IsPositive() {
			return decimal.Zero, ErrNoKeyRate
		}
		return FromScrap(ToScrap(amount.Mul(k.Metal))), nil
	default:
		return decimal.Zero, fmt.Errorf("unknown currency unit %q", unit)
	}
}

// ToKeys returns amount expressed in keys, rounded to two places.
func (k KeyRate) ToKeys(amount decimal.Decimal, unit Unit) (decimal.Decimal, error) {
	switch unit {
	case Keys:
		return amount, nil
	case Metal:
		if !k.Metal.IsPositive() {
			return decimal.Zero, ErrNoKeyRate
		}
		// scrap-exact division: 2.11 ref is 19/9 ref, not 2.11
		value := decimal.NewFromInt(ToScrap(amount)).Div(scrapPerRef)
		keyValue := decimal.NewFromInt(ToScrap(k.Metal)).Div(scrapPerRef)
		return value.Div(keyValue).Round(2), nil
	default:
		return decimal.Zero, fmt.Errorf("unknown currency unit %q", unit)
	}
}

var _ Converter = KeyRate{}
