package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/roman-kulish/antenna-station/internal/spectrum"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

// rollbackWithError is deferred after BeginTx; a committed transaction is left alone
func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && !errors.Is(cErr, sql.ErrTxDone) && *err == nil {
		*err = cErr
	}
}

func toReadingData(sessionID int64, r spectrum.RSSIReading) (*readingData, error) {
	freq, err := r.Frequency.Value()
	if err != nil {
		return nil, fmt.Errorf("invalid reading frequency: %w", err)
	}

	var level sql.NullInt64
	if v, err := strconv.ParseInt(r.RSSI, 10, 64); err == nil {
		level.Int64 = v
		level.Valid = true
	}

	return &readingData{
		SessionID: sessionID,
		Timestamp: r.Timestamp.UTC(),
		Frequency: freq,
		RSSI:      r.RSSI,
		Level:     level,
	}, nil
}

// scanner is implemented by *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*Session, error) {
	var sess Session
	var preset sql.NullString

	if err := row.Scan(&sess.ID, &sess.StartTime, &sess.Station, &sess.Role, &preset); err != nil {
		return nil, err
	}
	sess.Preset = preset.String

	return &sess, nil
}

func scanReading(row scanner) (*Reading, error) {
	var r Reading
	var freq int64

	if err := row.Scan(&r.ID, &r.SessionID, &r.Timestamp, &freq, &r.RSSI); err != nil {
		return nil, err
	}
	r.Frequency = spectrum.NewFrequency(freq)

	return &r, nil
}
