package storage

import "time"

// PriceSnapshot is one timestamped (code, price) observation.
type PriceSnapshot struct {
	ID       int64
	Code     string
	PriceUSD float64
	TS       int64
}

// DailyRollup holds the single representative price per code per UTC day,
// taken from whichever ingestion cycle first priced that code that day.
type DailyRollup struct {
	ID       int64
	Code     string
	PriceUSD float64
	Day      time.Time
}

// AlertDefinition is a user-defined price alert. LastTriggered is the only
// mutable field and is owned exclusively by the evaluator.
type AlertDefinition struct {
	ID            int64
	UserID        int64
	Code          string
	Condition     string
	Threshold     float64
	Email         string
	CreatedAt     int64
	LastTriggered *int64
}

// IngestionBatch is the atomic unit written by one ingestion cycle: a raw
// snapshot plus a rollup attempt for every code priced that cycle.
type IngestionBatch struct {
	TS     int64
	Day    time.Time
	Prices map[string]float64
}

// NewIngestionBatch stamps a price set with the given observation time.
func NewIngestionBatch(prices map[string]float64, now time.Time) IngestionBatch {
	now = now.UTC()
	return IngestionBatch{
		TS:     now.UnixMilli(),
		Day:    DayOf(now),
		Prices: prices,
	}
}

// DayOf truncates a time to its UTC calendar day.
func DayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
