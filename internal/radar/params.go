package radar

import (
	"fmt"
)

// Mode selects between real network fetching and synthetic items.
type Mode string

// Run modes.
const (
	ModeReal  Mode = "real"
	ModeDummy Mode = "dummy"
)

// Locale filters. LocaleAll disables filtering.
const (
	LocaleKO  = "ko"
	LocaleEN  = "en"
	LocaleAll = "all"
)

// Parameter bounds.
const (
	MaxSourceIDs     = 50
	MaxCategoryLimit = 5
	MinLookbackDays  = 1
	MaxLookbackDays  = 180
)

// RunParams is the immutable request carried by a Run.
type RunParams struct {
	Mode         Mode             `json:"mode,omitempty"`
	Locale       string           `json:"locale,omitempty"`
	PresetID     string           `json:"presetId,omitempty"`
	SourceIDs    []string         `json:"sourceIds,omitempty"`
	LookbackDays int              `json:"lookbackDays,omitempty"`
	HTMLFallback *bool            `json:"htmlFallback,omitempty"`
	IncludeSeen  bool             `json:"includeSeen,omitempty"`
	Limits       map[Category]int `json:"limits,omitempty"`
}

// ParamDefaults supplies service-level defaults for unset run parameters.
type ParamDefaults struct {
	LookbackDays int
	HTMLFallback bool
}

// Validate rejects out-of-range request values.
func (p RunParams) Validate() error {
	switch p.Mode {
	case "", ModeReal, ModeDummy:
	default:
		return fmt.Errorf("mode must be one of real, dummy")
	}
	switch p.Locale {
	case "", LocaleKO, LocaleEN, LocaleAll:
	default:
		return fmt.Errorf("locale must be one of ko, en, all")
	}
	if p.LookbackDays != 0 && (p.LookbackDays < MinLookbackDays || p.LookbackDays > MaxLookbackDays) {
		return fmt.Errorf("lookbackDays must be between %d and %d", MinLookbackDays, MaxLookbackDays)
	}
	for category, limit := range p.Limits {
		if !category.Valid() {
			return fmt.Errorf("unknown category %q", category)
		}
		if limit < 0 || limit > MaxCategoryLimit {
			return fmt.Errorf("limits.%s must be between 0 and %d", category, MaxCategoryLimit)
		}
	}
	for _, id := range p.SourceIDs {
		if id == "" {
			return fmt.Errorf("sourceIds must not contain empty ids")
		}
	}
	return nil
}

// Normalize returns a copy with defaults applied and values clamped.
func (p RunParams) Normalize(defaults ParamDefaults) RunParams {
	out := p
	if out.Mode == "" {
		out.Mode = ModeReal
	}
	if out.Locale == "" {
		out.Locale = LocaleAll
	}
	if out.LookbackDays == 0 {
		out.LookbackDays = defaults.LookbackDays
	}
	out.LookbackDays = clamp(out.LookbackDays, MinLookbackDays, MaxLookbackDays)
	if out.HTMLFallback == nil {
		enabled := defaults.HTMLFallback
		out.HTMLFallback = &enabled
	}
	if len(out.SourceIDs) > MaxSourceIDs {
		out.SourceIDs = append([]string(nil), out.SourceIDs[:MaxSourceIDs]...)
	}
	limits := make(map[Category]int, len(Categories))
	for _, category := range Categories {
		limits[category] = clamp(p.Limits[category], 0, MaxCategoryLimit)
	}
	out.Limits = limits
	return out
}

// FallbackEnabled reports the effective HTML fallback flag.
func (p RunParams) FallbackEnabled() bool {
	return p.HTMLFallback == nil || *p.HTMLFallback
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
