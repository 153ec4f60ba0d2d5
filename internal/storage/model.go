package storage

import (
	"database/sql"
	"time"

	"github.com/roman-kulish/antenna-station/internal/spectrum"
)

// Session is a recording session of one station
type Session struct {
	ID        int64     `json:"id"`
	StartTime time.Time `json:"startTime"`
	Station   string    `json:"station"`
	Role      string    `json:"role"`
	Preset    string    `json:"preset,omitempty"`
}

// Reading is a stored RSSI reading
type Reading struct {
	ID        int64              `json:"id"`
	SessionID int64              `json:"sessionId"`
	Timestamp time.Time          `json:"timestamp"`
	Frequency spectrum.Frequency `json:"frequency"`
	RSSI      string             `json:"rssi"`
}

type readingData struct {
	SessionID int64
	Timestamp time.Time
	Frequency int64
	RSSI      string
	Level     sql.NullInt64 // numeric RSSI, when the reported value parses
}
