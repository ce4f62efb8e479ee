package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestAmericanToDecimal(t *testing.T) {
	got := AmericanToDecimal(intPtr(150))
	require.True(t, got.Valid)
	assert.True(t, got.Decimal.Equal(decimal.RequireFromString("2.5")), "+150 gave %s", got.Decimal)

	got = AmericanToDecimal(intPtr(-110))
	require.True(t, got.Valid)
	assert.Equal(t, "1.909", got.Decimal.StringFixed(3))
	assert.True(t, strings.HasPrefix(got.Decimal.String(), "1.90909090"), "stored value was rounded: %s", got.Decimal)

	assert.False(t, AmericanToDecimal(nil).Valid)
	assert.False(t, AmericanToDecimal(intPtr(0)).Valid)
}

func TestAmericanToDecimalMonotonic(t *testing.T) {
	prices := []int{-1000, -250, -110, -101, 100, 101, 150, 400, 2500}
	prev := AmericanToDecimal(intPtr(prices[0])).Decimal
	for _, p := range prices[1:] {
		cur := AmericanToDecimal(intPtr(p)).Decimal
		require.True(t, cur.GreaterThan(prev), "decimal odds not increasing at %d: %s <= %s", p, cur, prev)
		prev = cur
	}
}

func TestFormatDecimalOdds(t *testing.T) {
	assert.Equal(t, "1.91", FormatDecimalOdds(AmericanToDecimal(intPtr(-110)), 2))
	assert.Empty(t, FormatDecimalOdds(decimal.NullDecimal{}, 2))
}

func TestNewRecordFromRaw(t *testing.T) {
	var raw RawRecord
	dec := json.NewDecoder(strings.NewReader(`{
		"id": "31209-39208-25:draftkings:moneyline:new_york_jets",
		"fixture_id": "31209-39208-25",
		"sportsbook": "DraftKings",
		"market": "Moneyline",
		"name": "New York Jets",
		"price": -110,
		"points": 3.5,
		"is_main": true,
		"is_live": false,
		"league": "NFL",
		"sport": "football",
		"timestamp": 1700000000.5
	}`))
	dec.UseNumber()
	require.NoError(t, dec.Decode(&raw))

	rec, ok := NewRecord(raw, StatusLocked, time.Unix(1, 0))
	require.True(t, ok)

	assert.Equal(t, "31209-39208-25", rec.FixtureID)
	assert.Equal(t, "DraftKings", rec.Sportsbook)
	assert.Equal(t, "Moneyline", rec.Market)
	assert.Equal(t, "New York Jets", rec.SelectionName)
	assert.Equal(t, "NFL", rec.League)
	assert.Equal(t, "football", rec.Sport)
	require.NotNil(t, rec.Price)
	assert.Equal(t, -110, *rec.Price)
	require.NotNil(t, rec.Points)
	assert.Equal(t, 3.5, *rec.Points)
	assert.True(t, rec.IsMain)
	assert.False(t, rec.IsLive)
	assert.Equal(t, StatusLocked, rec.Status)
	assert.Equal(t, int64(1700000000), rec.ObservedAt.Unix(), "timestamp not taken from payload")
	assert.Equal(t, json.Number("-110"), rec.Raw["price"])
}

func TestNewRecordWithoutIDOrPrice(t *testing.T) {
	_, ok := NewRecord(RawRecord{"fixture_id": "f"}, StatusActive, time.Now())
	assert.False(t, ok, "record without id must be rejected")

	now := time.Unix(50, 0)
	rec, ok := NewRecord(RawRecord{"id": "a", "selection": "Over"}, StatusActive, now)
	require.True(t, ok)
	assert.Nil(t, rec.Price)
	assert.False(t, rec.DecimalPrice.Valid)
	assert.Equal(t, "Over", rec.SelectionName)
	assert.True(t, rec.ObservedAt.Equal(now))
}

func TestRawCloneIsDeep(t *testing.T) {
	raw := RawRecord{"id": "a", "limits": map[string]any{"max": json.Number("500")}, "tags": []any{"main"}}
	clone := raw.Clone()

	clone["limits"].(map[string]any)["max"] = json.Number("1")
	clone["tags"].([]any)[0] = "alt"

	assert.Equal(t, json.Number("500"), raw["limits"].(map[string]any)["max"])
	assert.Equal(t, "main", raw["tags"].([]any)[0])
}

func TestParseStatusFilter(t *testing.T) {
	cases := map[string]StatusFilter{"active": FilterActive, "LOCKED": FilterLocked, "": FilterAll, "all": FilterAll}
	for in, want := range cases {
		got, err := ParseStatusFilter(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseStatusFilter("pending")
	assert.Error(t, err)

	assert.True(t, FilterAll.Matches(StatusLocked))
	assert.False(t, FilterActive.Matches(StatusLocked))
}

func TestStreamCursorIgnoresEmpty(t *testing.T) {
	c := NewStreamCursor("")
	_, ok := c.Get()
	assert.False(t, ok)

	c.Advance("17")
	c.Advance("")
	id, ok := c.Get()
	assert.True(t, ok)
	assert.Equal(t, "17", id)
}

func TestParseEventType(t *testing.T) {
	assert.Equal(t, EventOdds, ParseEventType("odds"))
	assert.Equal(t, EventLockedOdds, ParseEventType("locked-odds"))
	assert.Equal(t, EventFixtureStatus, ParseEventType("fixture-status"))
	assert.Equal(t, EventOther, ParseEventType("ping"))

	assert.True(t, EventLockedOdds.Decodable())
	assert.False(t, EventFixtureStatus.Decodable())
	assert.Equal(t, StatusLocked, EventLockedOdds.Status())
	assert.Equal(t, StatusActive, EventOdds.Status())
}

func TestFramePayloadJoinsFragments(t *testing.T) {
	f := Frame{Type: EventOdds, Name: "odds", Fragments: []string{`{"a":`, `1}`}}
	assert.Equal(t, "{\"a\":\n1}", f.Payload())
}
