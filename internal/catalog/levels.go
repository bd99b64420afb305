package catalog

import (
	"fmt"
	"strconv"

	"github.com/rewired-gh/skupricer/internal/sku"
)

// NormalLabel is the generic label a level falls back to when the exact label is absent.
const NormalLabel = "Normal"

// Level identifies one level of the price tree.
type Level int

const (
	LevelQuality Level = iota
	LevelTradable
	LevelCraftable
	LevelKillstreak
	LevelQuality2
	LevelAustralium
	LevelFestive
	LevelEffect
)

// MaxDepth is the number of tree levels. No leaf sits deeper than this, so traversal
// stops at an inner node found at MaxDepth.
const MaxDepth = int(LevelEffect) + 1

var killstreakLabels = [...]string{
	NormalLabel,
	"Killstreak",
	"Specialized Killstreak",
	"Professional Killstreak",
}

// levelDef maps one tree level to an attribute and back.
type levelDef struct {
	name   string
	strict bool // no NormalLabel fallback
	label  func(sku.Attributes) string
	apply  func(*sku.Attributes, string) error
}

var levels = [MaxDepth]levelDef{
	LevelQuality: {
		name:  "quality",
		label: func(a sku.Attributes) string { return strconv.Itoa(a.Quality) },
		apply: func(a *sku.Attributes, label string) error {
			q, err := strconv.Atoi(label)
			if err != nil {
				return err
			}
			a.Quality = q
			return nil
		},
	},
	LevelTradable: {
		name:  "tradable",
		label: func(a sku.Attributes) string { return flagLabel(a.Tradable, "Tradable", "Non-Tradable") },
		apply: func(a *sku.Attributes, label string) error {
			return applyFlag(&a.Tradable, label, "Tradable", "Non-Tradable")
		},
	},
	LevelCraftable: {
		name:  "craftable",
		label: func(a sku.Attributes) string { return flagLabel(a.Craftable, "Craftable", "Non-Craftable") },
		apply: func(a *sku.Attributes, label string) error {
			return applyFlag(&a.Craftable, label, "Craftable", "Non-Craftable")
		},
	},
	LevelKillstreak: {
		name: "killstreak",
		label: func(a sku.Attributes) string {
			if a.Killstreak < 0 || a.Killstreak >= len(killstreakLabels) {
				return ""
			}
			return killstreakLabels[a.Killstreak]
		},
		apply: func(a *sku.Attributes, label string) error {
			for tier, l := range killstreakLabels {
				if l == label {
					a.Killstreak = tier
					return nil
				}
			}
			return fmt.Errorf("unknown killstreak label %q", label)
		},
	},
	LevelQuality2: {
		name: "quality2",
		label: func(a sku.Attributes) string {
			return flagLabel(a.Quality2 == sku.QualityStrange, "Strange", NormalLabel)
		},
		apply: func(a *sku.Attributes, label string) error {
			var strange bool
			if err := applyFlag(&strange, label, "Strange", NormalLabel); err != nil {
				return err
			}
			a.Quality2 = 0
			if strange {
				a.Quality2 = sku.QualityStrange
			}
			return nil
		},
	},
	LevelAustralium: {
		name:  "australium",
		label: func(a sku.Attributes) string { return flagLabel(a.Australium, "Australium", NormalLabel) },
		apply: func(a *sku.Attributes, label string) error {
			return applyFlag(&a.Australium, label, "Australium", NormalLabel)
		},
	},
	LevelFestive: {
		name:  "festive",
		label: func(a sku.Attributes) string { return flagLabel(a.Festive, "Festive", NormalLabel) },
		apply: func(a *sku.Attributes, label string) error {
			return applyFlag(&a.Festive, label, "Festive", NormalLabel)
		},
	},
	LevelEffect: {
		name:   "effect",
		strict: true,
		label:  func(a sku.Attributes) string { return strconv.Itoa(a.Effect) },
		apply: func(a *sku.Attributes, label string) error {
			effect, err := strconv.Atoi(label)
			if err != nil || effect <= 0 {
				return fmt.Errorf("invalid effect label %q", label)
			}
			a.Effect = effect
			return nil
		},
	},
}

func flagLabel(v bool, yes, no string) string {
	if v {
		return yes
	}
	return no
}

func applyFlag(dst *bool, label, yes, no string) error {
	switch label {
	case yes:
		*dst = true
	case no:
		*dst = false
	default:
		return fmt.Errorf("unexpected label %q (want %q or %q)", label, yes, no)
	}
	return nil
}

func (l Level) String() string {
	if l < 0 || int(l) >= len(levels) {
		return fmt.Sprintf("level(%d)", int(l))
	}
	return levels[l].name
}

// Strict reports whether the level requires an exact label match.
func (l Level) Strict() bool {
	return l >= 0 && int(l) < len(levels) && levels[l].strict
}

// Path returns the label path for attrs. The effect level is included only for
// unusual items that carry an effect.
func Path(attrs sku.Attributes) []string {
	n := int(LevelEffect)
	if attrs.IsUnusual() && attrs.Effect > 0 {
		n++
	}
	path := make([]string, n)
	for i := 0; i < n; i++ {
		path[i] = levels[i].label(attrs)
	}
	return path
}

// ApplyLabel sets the attribute that level encodes from label. It is the inverse of Path.
func ApplyLabel(attrs *sku.Attributes, level Level, label string) error {
	if level < 0 || int(level) >= len(levels) {
		return fmt.Errorf("no attribute at tree depth %d", int(level))
	}
	if err := levels[level].apply(attrs, label); err != nil {
		return fmt.Errorf("level %s: %w", level, err)
	}
	return nil
}
