package domain

import (
	"strings"
	"time"
)

// Category labels a news article for the map frontend.
type Category string

const (
	CategoryCrime          Category = "crime"
	CategoryInfrastructure Category = "infrastructure"
	CategoryHazard         Category = "hazard"
	CategorySocial         Category = "social"
)

// Categories lists every value accepted by the store's CHECK constraint.
var Categories = []Category{CategoryCrime, CategoryInfrastructure, CategoryHazard, CategorySocial}

// Valid reports whether c is one of the fixed category values.
func (c Category) Valid() bool {
	switch c {
	case CategoryCrime, CategoryInfrastructure, CategoryHazard, CategorySocial:
		return true
	}
	return false
}

// ParseCategory normalizes a raw model completion (trimmed, lower-cased,
// quotes and trailing periods stripped) and matches it against the valid
// categories. The second return is false for anything else, including the
// model's explicit DISCARD answer.
func ParseCategory(raw string) (Category, bool) {
	cleaned := strings.ToLower(strings.TrimSpace(raw))
	cleaned = strings.ReplaceAll(cleaned, `"`, "")
	cleaned = strings.ReplaceAll(cleaned, "'", "")
	cleaned = strings.Trim(cleaned, ".")
	cleaned = strings.TrimSpace(cleaned)

	c := Category(cleaned)
	if !c.Valid() {
		return "", false
	}
	return c, true
}

// Coordinates is a WGS84 longitude/latitude pair, in geocoder center order.
type Coordinates struct {
	Longitude float64
	Latitude  float64
}

// Article is the single entity flowing through the pipeline. The feed source
// creates it and each stage enriches it in place; exactly one worker owns an
// instance for the duration of its stage sequence.
type Article struct {
	Source      string
	Title       string
	Description string
	URL         string
	PublishedAt time.Time

	// Enrichment fields, zero until their stage succeeds.
	Category    Category
	Location    string
	Coordinates *Coordinates
}

// LocationKind classifies an extraction outcome.
type LocationKind int

const (
	// LocationFound is a concrete place string from the model.
	LocationFound LocationKind = iota
	// LocationFallback carries the country-level default used when the
	// extraction call failed in transport; the article continues.
	LocationFallback
	// LocationNone is the sentinel "no location" answer; the article is
	// discarded.
	LocationNone
)

// LocationResult is the explicit outcome of the extraction stage. The
// fallback-vs-discard policy lives in the result, not in error handling.
type LocationResult struct {
	Kind  LocationKind
	Value string
}
