package models

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status reports whether a quotation can currently be bet.
type Status string

const (
	StatusActive Status = "active"
	StatusLocked Status = "locked"
)

// StatusFilter selects records by status when reading the store.
type StatusFilter string

const (
	FilterActive StatusFilter = "active"
	FilterLocked StatusFilter = "locked"
	FilterAll    StatusFilter = "all"
)

// ParseStatusFilter accepts active, locked or all (case-insensitive). The
// empty string means all.
func ParseStatusFilter(s string) (StatusFilter, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "active":
		return FilterActive, nil
	case "locked":
		return FilterLocked, nil
	case "all", "":
		return FilterAll, nil
	default:
		return "", fmt.Errorf("unknown status filter %q", s)
	}
}

// Matches reports whether a record with status st passes the filter.
func (f StatusFilter) Matches(st Status) bool {
	switch f {
	case FilterActive:
		return st == StatusActive
	case FilterLocked:
		return st == StatusLocked
	default:
		return true
	}
}

// Record is one odds quotation as held by the store.
type Record struct {
	ID            string              `json:"id"`
	FixtureID     string              `json:"fixture_id"`
	League        string              `json:"league"`
	Sport         string              `json:"sport"`
	Market        string              `json:"market"`
	Sportsbook    string              `json:"sportsbook"`
	SelectionName string              `json:"selection_name"`
	Price         *int                `json:"price"`
	DecimalPrice  decimal.NullDecimal `json:"decimal_price"`
	Points        *float64            `json:"points,omitempty"`
	IsMain        bool                `json:"is_main"`
	IsLive        bool                `json:"is_live"`
	Status        Status              `json:"status"`
	ObservedAt    time.Time           `json:"observed_at"`
	Raw           RawRecord           `json:"raw,omitempty"`
}

// NewRecord builds a typed record from a raw feed object. ok is false when
// the object carries no identity key. now is used when the payload has no
// timestamp of its own.
func NewRecord(raw RawRecord, status Status, now time.Time) (Record, bool) {
	id, ok := raw.String("id")
	if !ok || id == "" {
		return Record{}, false
	}

	rec := Record{
		ID:         id,
		Status:     status,
		IsMain:     raw.Bool("is_main"),
		IsLive:     raw.Bool("is_live"),
		ObservedAt: now,
		Raw:        raw.Clone(),
	}
	rec.FixtureID, _ = raw.String("fixture_id")
	rec.League, _ = raw.String("league")
	rec.Sport, _ = raw.String("sport")
	rec.Market, _ = raw.String("market")
	rec.Sportsbook, _ = raw.String("sportsbook")
	if name, ok := raw.String("name"); ok && name != "" {
		rec.SelectionName = name
	} else {
		rec.SelectionName, _ = raw.String("selection")
	}

	if price, ok := raw.Int("price"); ok {
		rec.Price = &price
	}
	rec.DecimalPrice = AmericanToDecimal(rec.Price)

	if points, ok := raw.Number("points"); ok {
		rec.Points = &points
	}

	if ts, ok := raw.Number("timestamp"); ok && ts > 0 {
		sec, frac := math.Modf(ts)
		rec.ObservedAt = time.Unix(int64(sec), int64(frac*1e9)).UTC()
	}

	return rec, true
}

// Clone returns a deep enough copy that the caller may modify it freely.
func (r Record) Clone() Record {
	out := r
	if r.Price != nil {
		p := *r.Price
		out.Price = &p
	}
	if r.Points != nil {
		p := *r.Points
		out.Points = &p
	}
	out.Raw = r.Raw.Clone()
	return out
}
