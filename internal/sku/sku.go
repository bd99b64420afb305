// Package sku parses and encodes item keys.
//
// A key is a semicolon separated list: base item id, quality, then option tokens
// in canonical order:
//
//	<baseId>;<quality>[;u<effect>][;australium][;uncraftable][;untradable][;strange][;kt-<tier>][;festive]
//
// Parse accepts option tokens in any order; Encode always writes the canonical order,
// so Encode(Parse(k)) == k for every key Encode produced.
package sku

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Quality codes used by the pricing rules.
const (
	QualityNormal  = 0
	QualityGenuine = 1
	QualityVintage = 3
	QualityUnusual = 5
	QualityUnique  = 6
	QualityStrange = 11
)

// ErrMalformedKey is returned for keys that cannot be parsed or attributes that cannot be encoded.
var ErrMalformedKey = errors.New("malformed item key")

// Attributes is the flat attribute record behind a key.
type Attributes struct {
	BaseID     int
	Quality    int
	Quality2   int // 0 or QualityStrange
	Tradable   bool
	Craftable  bool
	Killstreak int // 0 none .. 3 professional
	Australium bool
	Festive    bool
	Effect     int // 0 none; only valid with QualityUnusual
}

// IsUnusual reports whether the primary quality is unusual.
func (a Attributes) IsUnusual() bool {
	return a.Quality == QualityUnusual
}

// Validate checks the attribute invariants the codec relies on. It does not range-check
// quality: whether a quality is priceable is the resolver's decision.
func (a Attributes) Validate() error {
	if a.BaseID < 0 {
		return fmt.Errorf("%w: negative base id %d", ErrMalformedKey, a.BaseID)
	}
	if a.Quality < 0 {
		return fmt.Errorf("%w: negative quality %d", ErrMalformedKey, a.Quality)
	}
	if a.Quality2 != 0 && a.Quality2 != QualityStrange {
		return fmt.Errorf("%w: unsupported secondary quality %d", ErrMalformedKey, a.Quality2)
	}
	if a.Killstreak < 0 || a.Killstreak > 3 {
		return fmt.Errorf("%w: killstreak tier %d out of range", ErrMalformedKey, a.Killstreak)
	}
	if a.Effect < 0 {
		return fmt.Errorf("%w: negative effect %d", ErrMalformedKey, a.Effect)
	}
	if a.Effect > 0 && !a.IsUnusual() {
		return fmt.Errorf("%w: effect %d on non-unusual quality %d", ErrMalformedKey, a.Effect, a.Quality)
	}
	return nil
}

// Codec converts between keys and Attributes. Base ids present in the alias table are
// rewritten to their canonical id on Encode.
type Codec struct {
	aliases map[int]int
}

// NewCodec creates a codec. A nil alias table disables canonicalization.
func NewCodec(aliases map[int]int) *Codec {
	return &Codec{aliases: aliases}
}

// DefaultAliases maps stock weapons to their upgradeable variants, which is how the
// catalog lists them.
func DefaultAliases() map[int]int {
	return map[int]int{
		0: 190, 1: 191, 2: 192, 3: 193, 4: 194, 5: 195, 6: 196, 7: 197, 8: 198,
		9: 199, 10: 199, 11: 199, 12: 199,
		13: 200, 14: 201, 15: 202, 16: 203, 17: 204, 18: 205, 19: 206, 20: 207,
		21: 208, 22: 209, 23: 209, 24: 210, 29: 211, 30: 212,
	}
}

// Canonical returns the canonical base id for id.
func (c *Codec) Canonical(id int) int {
	if canonical, ok := c.aliases[id]; ok {
		return canonical
	}
	return id
}

// Parse decodes a key. Unknown option tokens make the key malformed.
func (c *Codec) Parse(key string) (Attributes, error) {
	parts := strings.Split(strings.TrimSpace(key), ";")
	if len(parts) < 2 {
		return Attributes{}, fmt.Errorf("%w: %q", ErrMalformedKey, key)
	}

	baseID, err := strconv.Atoi(parts[0])
	if err != nil {
		return Attributes{}, fmt.Errorf("%w: base id %q", ErrMalformedKey, parts[0])
	}
	quality, err := strconv.Atoi(parts[1])
	if err != nil {
		return Attributes{}, fmt.Errorf("%w: quality %q", ErrMalformedKey, parts[1])
	}

	attrs := Attributes{
		BaseID:    baseID,
		Quality:   quality,
		Tradable:  true,
		Craftable: true,
	}

	for _, token := range parts[2:] {
		switch {
		case token == "australium":
			attrs.Australium = true
		case token == "uncraftable":
			attrs.Craftable = false
		case token == "untradable", token == "untradeable":
			attrs.Tradable = false
		case token == "strange":
			attrs.Quality2 = QualityStrange
		case token == "festive":
			attrs.Festive = true
		case strings.HasPrefix(token, "u"):
			effect, err := strconv.Atoi(token[1:])
			if err != nil || effect <= 0 {
				return Attributes{}, fmt.Errorf("%w: effect token %q", ErrMalformedKey, token)
			}
			attrs.Effect = effect
		case strings.HasPrefix(token, "kt-"):
			tier, err := strconv.Atoi(token[3:])
			if err != nil {
				return Attributes{}, fmt.Errorf("%w: killstreak token %q", ErrMalformedKey, token)
			}
			attrs.Killstreak = tier
		default:
			return Attributes{}, fmt.Errorf("%w: unknown token %q in %q", ErrMalformedKey, token, key)
		}
	}

	if err := attrs.Validate(); err != nil {
		return Attributes{}, err
	}
	return attrs, nil
}

// Encode writes the canonical key for attrs.
func (c *Codec) Encode(attrs Attributes) (string, error) {
	if err := attrs.Validate(); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(strconv.Itoa(c.Canonical(attrs.BaseID)))
	b.WriteByte(';')
	b.WriteString(strconv.Itoa(attrs.Quality))
	if attrs.Effect > 0 {
		b.WriteString(";u")
		b.WriteString(strconv.Itoa(attrs.Effect))
	}
	if attrs.Australium {
		b.WriteString(";australium")
	}
	if !attrs.Craftable {
		b.WriteString(";uncraftable")
	}
	if !attrs.Tradable {
		b.WriteString(";untradable")
	}
	if attrs.Quality2 == QualityStrange {
		b.WriteString(";strange")
	}
	if attrs.Killstreak > 0 {
		b.WriteString(";kt-")
		b.WriteString(strconv.Itoa(attrs.Killstreak))
	}
	if attrs.Festive {
		b.WriteString(";festive")
	}
	return b.String(), nil
}
