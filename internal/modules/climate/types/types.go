package types

import (
	"encoding/json"
	"time"
)

// DateLayout is the only accepted date format, both in the store and in
// request paths.
const DateLayout = "2006-01-02"

// WindowDays is the length of the trailing window ending at the latest
// recorded date.
const WindowDays = 365

// ParseDate parses s strictly as YYYY-MM-DD.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

type Station struct {
	Station   string   `json:"station" validate:"required"`
	Name      string   `json:"name"`
	Latitude  *float64 `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
	Elevation *float64 `json:"elevation"`
}

type Measurement struct {
	Station             string   `json:"station" validate:"required"`
	Date                string   `json:"date" validate:"required"`
	Precipitation       *float64 `json:"prcp" validate:"omitempty,gte=0"`
	TemperatureObserved float64  `json:"tobs"`
}

// Window is an inclusive date range.
type Window struct {
	Start time.Time
	End   time.Time
}

// WindowEndingAt returns the trailing WindowDays window that ends on latest.
func WindowEndingAt(latest time.Time) Window {
	return Window{Start: latest.AddDate(0, 0, -WindowDays), End: latest}
}

func (w Window) StartDate() string { return FormatDate(w.Start) }

func (w Window) EndDate() string { return FormatDate(w.End) }

// PrecipitationRow is one (date, prcp) row as read from the store.
type PrecipitationRow struct {
	Date          string
	Precipitation *float64
}

// Precipitation maps a date to its precipitation. When several stations
// report the same date the last row read wins.
type Precipitation map[string]*float64

// Observation is a (date, tobs) pair. It encodes as a two element JSON array.
type Observation struct {
	Date                string
	TemperatureObserved float64
}

func (o Observation) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{o.Date, o.TemperatureObserved})
}

// TemperatureAggregate holds MIN/MAX/AVG of tobs over a filtered set. All
// three are nil when the set is empty.
type TemperatureAggregate struct {
	Min *float64
	Max *float64
	Avg *float64
}

type TemperatureStats struct {
	StartDate string   `json:"start_date"`
	EndDate   *string  `json:"end_date"`
	TMin      *float64 `json:"TMIN"`
	TMax      *float64 `json:"TMAX"`
	TAvg      *float64 `json:"TAVG"`
}
