package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/roman-kulish/antenna-station/internal/spectrum"
)

// ReaderOption configures a reading reader with specific filtering criteria.
type ReaderOption func(*SqliteReadingReader)

// WithFrequencyRange limits readings to frequencies within [minFreq, maxFreq].
func WithFrequencyRange(minFreq, maxFreq spectrum.Frequency) ReaderOption {
	return func(r *SqliteReadingReader) {
		r.minFreq = &minFreq
		r.maxFreq = &maxFreq
	}
}

// WithMinFrequency excludes readings below minFreq.
func WithMinFrequency(minFreq spectrum.Frequency) ReaderOption {
	return func(r *SqliteReadingReader) {
		r.minFreq = &minFreq
	}
}

// WithMaxFrequency excludes readings above maxFreq.
func WithMaxFrequency(maxFreq spectrum.Frequency) ReaderOption {
	return func(r *SqliteReadingReader) {
		r.maxFreq = &maxFreq
	}
}

// WithStartTime excludes readings taken before t.
func WithStartTime(t time.Time) ReaderOption {
	return func(r *SqliteReadingReader) {
		r.startTime = &t
	}
}

// WithEndTime excludes readings taken after t.
func WithEndTime(t time.Time) ReaderOption {
	return func(r *SqliteReadingReader) {
		r.endTime = &t
	}
}

// WithTimeRange is equivalent to applying both WithStartTime and WithEndTime.
func WithTimeRange(startTime, endTime time.Time) ReaderOption {
	return func(r *SqliteReadingReader) {
		r.startTime = &startTime
		r.endTime = &endTime
	}
}

// SqliteReadingReader iterates over the readings of a session in time order.
// Each reader instance should only be used from a single goroutine.
type SqliteReadingReader struct {
	db        *sql.DB
	sessionID int64
	session   *Session

	startTime *time.Time
	endTime   *time.Time
	minFreq   *spectrum.Frequency
	maxFreq   *spectrum.Frequency

	rows    *sql.Rows
	current *Reading
	err     error
}

func newSqliteReadingReader(ctx context.Context, db *sql.DB, sessionID int64, opts ...ReaderOption) (*SqliteReadingReader, error) {
	rr := &SqliteReadingReader{
		db:        db,
		sessionID: sessionID,
	}
	for _, opt := range opts {
		opt(rr)
	}
	if err := rr.init(ctx); err != nil {
		return nil, fmt.Errorf("initializing reader: %w", err)
	}
	return rr, nil
}

func (rr *SqliteReadingReader) init(ctx context.Context) (err error) {
	stmt, err := rr.db.PrepareContext(ctx, selectSessionSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	rr.session, err = scanSession(stmt.QueryRowContext(ctx, rr.sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %d", ErrSessionNotFound, rr.sessionID)
	}
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}

	query, args, err := rr.buildQuery()
	if err != nil {
		return err
	}

	if rr.rows, err = rr.db.QueryContext(ctx, query, args...); err != nil {
		return fmt.Errorf("querying readings: %w", err)
	}
	return nil
}

func (rr *SqliteReadingReader) buildQuery() (string, []any, error) {
	var sb strings.Builder
	args := []any{rr.sessionID}

	sb.WriteString(selectReadingsSQL)

	if rr.startTime != nil {
		sb.WriteString(" AND timestamp >= ?")
		args = append(args, rr.startTime.UTC())
	}
	if rr.endTime != nil {
		sb.WriteString(" AND timestamp <= ?")
		args = append(args, rr.endTime.UTC())
	}
	if rr.minFreq != nil {
		v, err := rr.minFreq.Value()
		if err != nil {
			return "", nil, fmt.Errorf("invalid minimum frequency: %w", err)
		}
		sb.WriteString(" AND frequency >= ?")
		args = append(args, v)
	}
	if rr.maxFreq != nil {
		v, err := rr.maxFreq.Value()
		if err != nil {
			return "", nil, fmt.Errorf("invalid maximum frequency: %w", err)
		}
		sb.WriteString(" AND frequency <= ?")
		args = append(args, v)
	}

	sb.WriteString(" ORDER BY timestamp, id")

	return sb.String(), args, nil
}

// Session returns the session this reader is accessing.
func (rr *SqliteReadingReader) Session() *Session {
	return rr.session
}

// Next advances to the next reading. It returns false at the end of the
// readings or on error; check Error to tell them apart.
func (rr *SqliteReadingReader) Next() bool {
	if rr.rows == nil || rr.err != nil {
		return false
	}

	if !rr.rows.Next() {
		rr.current = nil
		return false
	}

	rr.current, rr.err = scanReading(rr.rows)
	if rr.err != nil {
		rr.err = fmt.Errorf("scanning reading: %w", rr.err)
		rr.current = nil
		return false
	}
	return true
}

// Current returns the reading at the current position of the iteration
func (rr *SqliteReadingReader) Current() *Reading {
	return rr.current
}

func (rr *SqliteReadingReader) Error() error {
	if rr.err != nil {
		return rr.err
	}
	if rr.rows != nil {
		return rr.rows.Err()
	}
	return nil
}

func (rr *SqliteReadingReader) Close() error {
	if rr.rows != nil {
		err := rr.rows.Close()
		rr.rows = nil
		rr.current = nil
		return err
	}
	return nil
}
