package app

import (
	"cmp"
	"slices"
	"strconv"
	"time"

	"github.com/roman-kulish/antenna-station/internal/storage"
)

// Bar is the latest reading of one frequency
type Bar struct {
	Frequency int64
	RSSI      string
	Level     *float64 // nil when the antenna reported a non-numeric value
	Timestamp time.Time
	Count     int
}

// ReportData collects the readings of a session into one bar per frequency
type ReportData struct {
	Session                      *storage.Session
	TimestampStart, TimestampEnd time.Time
	LevelMin, LevelMax           float64
	Readings                     int
	Bars                         []Bar

	index map[int64]int
}

func NewReportData(session *storage.Session) *ReportData {
	return &ReportData{
		Session: session,
		index:   make(map[int64]int),
	}
}

// Update adds a reading. Readings must arrive in time order, the last one of
// a frequency wins.
func (d *ReportData) Update(r *storage.Reading) {
	freq, err := r.Frequency.Value()
	if err != nil {
		return
	}

	d.Readings++
	if d.TimestampStart.IsZero() || d.TimestampStart.After(r.Timestamp) {
		d.TimestampStart = r.Timestamp
	}
	if d.TimestampEnd.IsZero() || d.TimestampEnd.Before(r.Timestamp) {
		d.TimestampEnd = r.Timestamp
	}

	bar := Bar{
		Frequency: freq,
		RSSI:      r.RSSI,
		Timestamp: r.Timestamp,
		Count:     1,
	}
	if v, err := strconv.ParseFloat(r.RSSI, 64); err == nil {
		bar.Level = &v
	}

	if i, ok := d.index[freq]; ok {
		bar.Count += d.Bars[i].Count
		d.Bars[i] = bar
	} else {
		d.index[freq] = len(d.Bars)
		d.Bars = append(d.Bars, bar)
	}
}

// Finish sorts the bars by frequency and computes the level bounds
func (d *ReportData) Finish() {
	slices.SortFunc(d.Bars, func(a, b Bar) int {
		return cmp.Compare(a.Frequency, b.Frequency)
	})
	for i, bar := range d.Bars {
		d.index[bar.Frequency] = i
	}

	first := true
	for _, bar := range d.Bars {
		if bar.Level == nil {
			continue
		}
		if first {
			d.LevelMin, d.LevelMax = *bar.Level, *bar.Level
			first = false
			continue
		}
		d.LevelMin = min(d.LevelMin, *bar.Level)
		d.LevelMax = max(d.LevelMax, *bar.Level)
	}
}

// Strongest returns the bar with the highest level
func (d *ReportData) Strongest() (Bar, bool) {
	var best Bar
	var found bool
	for _, bar := range d.Bars {
		if bar.Level == nil {
			continue
		}
		if !found || *bar.Level > *best.Level {
			best, found = bar, true
		}
	}
	return best, found
}
