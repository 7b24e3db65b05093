// Package venues loads the static venue table (monthly indices, weekday
// multipliers, channels) and serves it read-only for a calculation session.
package venues

import (
	_ "embed"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"momentum-peaks/internal/models"
)

//go:embed default_venues.yaml
var defaultVenuesYAML []byte

// multiplierDriftTolerance is how far the mean weekday multiplier may sit from 1.0 before a warning
const multiplierDriftTolerance = 0.15

type file struct {
	Venues []models.VenueProfile `yaml:"venues"`
}

// Registry is an immutable venue table keyed by upper-case venue ID
type Registry struct {
	byID     map[string]models.VenueProfile
	order    []string
	warnings []string
}

// Load reads and validates a venue file
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading venue file %s: %w", path, err)
	}
	return Parse(data)
}

// Default returns the venue table compiled into the binary
func Default() (*Registry, error) {
	return Parse(defaultVenuesYAML)
}

// Parse decodes and validates venue YAML
func Parse(data []byte) (*Registry, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing venue file: %w", err)
	}
	if len(f.Venues) == 0 {
		return nil, fmt.Errorf("venue file defines no venues")
	}

	r := &Registry{byID: make(map[string]models.VenueProfile, len(f.Venues))}
	for _, v := range f.Venues {
		v.ID = normalizeID(v.ID)
		if v.ID == "" {
			return nil, fmt.Errorf("venue with display name %q has no id", v.DisplayName)
		}
		if _, dup := r.byID[v.ID]; dup {
			return nil, fmt.Errorf("duplicate venue id %s", v.ID)
		}
		warnings, err := validate(&v)
		if err != nil {
			return nil, fmt.Errorf("venue %s: %w", v.ID, err)
		}
		r.warnings = append(r.warnings, warnings...)
		r.byID[v.ID] = v
		r.order = append(r.order, v.ID)
	}
	sort.Strings(r.order)
	return r, nil
}

func validate(v *models.VenueProfile) ([]string, error) {
	var warnings []string

	for m := 1; m <= 12; m++ {
		idx, ok := v.MonthlyIndex[m]
		if !ok {
			return nil, &models.ConfigurationError{VenueID: v.ID, Month: m, Reason: "month entry missing"}
		}
		if idx.Seasonal < 1 || idx.Seasonal > 5 {
			return nil, fmt.Errorf("month %d: seasonal index %d outside 1..5", m, idx.Seasonal)
		}
		if idx.Visitor <= 0 {
			return nil, fmt.Errorf("month %d: visitor index must be positive", m)
		}
		if idx.Visitor > 5 {
			warnings = append(warnings, fmt.Sprintf("%s month %d: visitor index %.2f above 5", v.ID, m, idx.Visitor))
		}
	}
	for m := range v.MonthlyIndex {
		if m < 1 || m > 12 {
			return nil, fmt.Errorf("unknown month key %d", m)
		}
	}

	if n := len(v.WeekdayMultiplier); n != 0 && n != 7 {
		return nil, fmt.Errorf("weekday_multiplier needs 7 values (Mon..Sun), got %d", n)
	}
	if len(v.WeekdayMultiplier) == 7 {
		sum := 0.0
		for _, m := range v.WeekdayMultiplier {
			if m <= 0 {
				return nil, fmt.Errorf("weekday_multiplier values must be positive")
			}
			sum += m
		}
		if mean := sum / 7; math.Abs(mean-1.0) > multiplierDriftTolerance {
			warnings = append(warnings, fmt.Sprintf("%s weekday multipliers average %.3f, expected about 1.0", v.ID, mean))
		}
	}

	seen := make(map[string]bool, len(v.Channels))
	for _, ch := range v.Channels {
		if ch.ID == "" {
			return nil, fmt.Errorf("channel %q has no id", ch.Name)
		}
		if seen[ch.ID] {
			return nil, fmt.Errorf("duplicate channel id %s", ch.ID)
		}
		if ch.FlatFeeWindowDays < 0 {
			return nil, fmt.Errorf("channel %s: flat_fee_window_days must not be negative", ch.ID)
		}
		seen[ch.ID] = true
	}

	return warnings, nil
}

func normalizeID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

// Venue returns a copy of the profile for id (case-insensitive)
func (r *Registry) Venue(id string) (*models.VenueProfile, bool) {
	v, ok := r.byID[normalizeID(id)]
	if !ok {
		return nil, false
	}
	c := clone(v)
	return &c, true
}

// List returns copies of all profiles ordered by ID
func (r *Registry) List() []models.VenueProfile {
	out := make([]models.VenueProfile, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, clone(r.byID[id]))
	}
	return out
}

// IDs returns all venue IDs in order
func (r *Registry) IDs() []string {
	return append([]string(nil), r.order...)
}

// Warnings lists soft configuration problems found while loading
func (r *Registry) Warnings() []string {
	return append([]string(nil), r.warnings...)
}

func clone(v models.VenueProfile) models.VenueProfile {
	months := make(map[int]models.MonthIndex, len(v.MonthlyIndex))
	for k, m := range v.MonthlyIndex {
		months[k] = m
	}
	v.MonthlyIndex = months
	v.WeekdayMultiplier = append([]float64(nil), v.WeekdayMultiplier...)

	channels := make([]models.Channel, len(v.Channels))
	for i, ch := range v.Channels {
		ch.DaySegments = append([]string(nil), ch.DaySegments...)
		channels[i] = ch
	}
	v.Channels = channels
	return v
}
