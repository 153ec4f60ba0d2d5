package storage

import (
	"context"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roman-kulish/antenna-station/internal/spectrum"
)

// Store provides an interface for persisting the RSSI history of stations.
// Readings are grouped into sessions; a session is created for every station
// each time the application starts.
type Store interface {
	// CreateSession starts a new session for a station and returns its unique identifier.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - station: Name of the station
	//   - role: Role the station runs in ("station" or "tower")
	//   - preset: Name of the frequency preset the station is configured with
	//
	// Returns:
	//   - sessionID: Unique identifier for the created session
	//   - error: If session creation fails or context is cancelled
	CreateSession(ctx context.Context, station, role, preset string) (sessionID int64, err error)

	// Session retrieves a specific session by its ID.
	//
	// Returns ErrSessionNotFound if no such session exists.
	Session(ctx context.Context, id int64) (session *Session, err error)

	// Sessions returns all sessions ordered by start time in ascending order.
	Sessions(ctx context.Context) (sessions []*Session, err error)

	// StoreReading saves one RSSI reading of a session.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - sessionID: ID of the session this reading belongs to
	//   - r: Reading correlated to the frequency it was taken on
	//
	// Returns:
	//   - error: If the frequency is not a number, storage fails or context is cancelled
	StoreReading(ctx context.Context, sessionID int64, r spectrum.RSSIReading) error

	// ReadReadings returns a reader over the readings of a session, ordered by time.
	// The returned reader must be closed after use.
	ReadReadings(ctx context.Context, sessionID int64, opts ...ReaderOption) (*SqliteReadingReader, error)

	// LatestReadings returns the most recent reading for every frequency of a
	// session, ordered by frequency.
	LatestReadings(ctx context.Context, sessionID int64) ([]*Reading, error)

	// Close releases all database connections and resources.
	// It is safe to call Close multiple times.
	Close() error
}
