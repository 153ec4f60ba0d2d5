package storage

const (
	initSchemaSQL = `
CREATE TABLE IF NOT EXISTS sessions (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    start_time DATETIME NOT NULL,
    station    TEXT     NOT NULL,
    role       TEXT     NOT NULL,
    preset     TEXT
);

CREATE TABLE IF NOT EXISTS readings (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id INTEGER  NOT NULL REFERENCES sessions (id),
    timestamp  DATETIME NOT NULL,
    frequency  INTEGER  NOT NULL,
    rssi       TEXT     NOT NULL,
    level      INTEGER
);`

	// Indexes are created when the write connection is closed, so that inserts
	// during a session are not slowed down.
	initIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_readings_session_time ON readings (session_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_readings_session_frequency ON readings (session_id, frequency);`

	insertSessionSQL = `
INSERT INTO sessions (
                      start_time,
                      station,
                      role,
                      preset)
VALUES (?, ?, ?, ?)`

	selectSessionSQL = `
SELECT
    id,
    start_time,
    station,
    role,
    preset
FROM sessions
WHERE
    id = ?`

	selectSessionsSQL = `
SELECT
    id,
    start_time,
    station,
    role,
    preset
FROM sessions
ORDER BY start_time, id`

	insertReadingSQL = `
INSERT INTO readings (session_id,
                      timestamp,
                      frequency,
                      rssi,
                      level)
VALUES (?, ?, ?, ?, ?)`

	selectReadingsSQL = `
SELECT
    id,
    session_id,
    timestamp,
    frequency,
    rssi
FROM readings
WHERE
    session_id = ?`

	// SQLite returns the bare columns of the row holding MAX(id)
	selectLatestReadingsSQL = `
SELECT
    MAX(id),
    session_id,
    timestamp,
    frequency,
    rssi
FROM readings
WHERE
    session_id = ?
GROUP BY frequency
ORDER BY frequency`
)
