// Package history persists request/response exchanges per owner and serves
// paginated, newest-first reads over them.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const (
	// DefaultLimit is the page size when the caller does not supply one.
	DefaultLimit = 10
	// MaxLimit caps the page size a caller can request.
	MaxLimit = 100
)

var (
	// ErrNotFound covers both an absent id and an id owned by someone else;
	// the store never distinguishes the two.
	ErrNotFound = errors.New("history entry not found")

	errMissingOwner = errors.New("history entry requires an owner")
)

// Store manages request history persistence.
type Store struct {
	db *sql.DB
}

// NewStore creates a new history store at the given path.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening history db: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func createTables(db *sql.DB) error {
	// seq breaks timestamp ties so page ordering is deterministic.
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS history (
			seq                  INTEGER PRIMARY KEY AUTOINCREMENT,
			id                   TEXT NOT NULL UNIQUE,
			owner_id             TEXT NOT NULL,
			endpoint             TEXT NOT NULL,
			method               TEXT NOT NULL,
			timestamp            INTEGER NOT NULL,
			request_headers      TEXT NOT NULL,
			request_body         TEXT,
			response_status      INTEGER NOT NULL,
			response_status_text TEXT,
			response_headers     TEXT NOT NULL,
			response_body        TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_history_owner_time ON history(owner_id, timestamp DESC, seq DESC);
	`)
	if err != nil {
		return fmt.Errorf("creating history table: %w", err)
	}

	return nil
}

// Append inserts a new entry, assigning an id and timestamp when unset.
// The insert is a single statement, so a cancelled caller never leaves a
// partially written entry behind.
func (s *Store) Append(ctx context.Context, e *Entry) (string, error) {
	if e.OwnerID == "" {
		return "", errMissingOwner
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	requestHeaders, err := marshalHeaders(e.Request.Headers)
	if err != nil {
		return "", err
	}

	responseHeaders, err := marshalHeaders(e.Response.Headers)
	if err != nil {
		return "", err
	}

	requestBody, err := marshalBody(e.Request.Body)
	if err != nil {
		return "", err
	}

	responseBody, err := marshalBody(e.Response.Body)
	if err != nil {
		return "", err
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO history (id, owner_id, endpoint, method, timestamp,
			request_headers, request_body,
			response_status, response_status_text, response_headers, response_body)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.OwnerID, e.Endpoint, e.Method, e.Timestamp.UTC().UnixNano(),
		requestHeaders, requestBody,
		e.Response.Status, e.Response.StatusText, responseHeaders, responseBody,
	)
	if err != nil {
		return "", fmt.Errorf("inserting history entry: %w", err)
	}

	e.Seq, _ = result.LastInsertId()

	return e.ID, nil
}

// Page returns one page of the owner's entries, newest first. Out-of-range
// page and limit values are clamped rather than rejected; a page past the
// end yields an empty item list with correct metadata.
func (s *Store) Page(ctx context.Context, ownerID string, page, limit int) (*Page, error) {
	if page < 1 {
		page = 1
	}

	if limit < 1 {
		limit = 1
	}

	if limit > MaxLimit {
		limit = MaxLimit
	}

	var total int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM history WHERE owner_id = ?`, ownerID,
	).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting history: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, owner_id, endpoint, method, timestamp,
			request_headers, request_body,
			response_status, response_status_text, response_headers, response_body
		FROM history
		WHERE owner_id = ?
		ORDER BY timestamp DESC, seq DESC
		LIMIT ? OFFSET ?`, ownerID, limit, (page-1)*limit)
	if err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}
	defer rows.Close()

	items, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))

	return &Page{
		Items:       items,
		CurrentPage: page,
		TotalPages:  totalPages,
		TotalCount:  total,
		Limit:       limit,
		HasNext:     page < totalPages,
		HasPrev:     page > 1,
	}, nil
}

// GetOne returns the entry with the given id if the owner matches.
func (s *Store) GetOne(ctx context.Context, ownerID, id string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT seq, id, owner_id, endpoint, method, timestamp,
			request_headers, request_body,
			response_status, response_status_text, response_headers, response_body
		FROM history
		WHERE owner_id = ? AND id = ?`, ownerID, id)

	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, err
	}

	return entry, nil
}

// DeleteOne removes the entry with the given id if the owner matches,
// reporting whether anything was deleted.
func (s *Store) DeleteOne(ctx context.Context, ownerID, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM history WHERE owner_id = ? AND id = ?`, ownerID, id)
	if err != nil {
		return false, fmt.Errorf("deleting history entry: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deleting history entry: %w", err)
	}

	return affected > 0, nil
}

// DeleteAll removes every entry owned by ownerID and returns the count removed.
func (s *Store) DeleteAll(ctx context.Context, ownerID string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM history WHERE owner_id = ?`, ownerID)
	if err != nil {
		return 0, fmt.Errorf("clearing history: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clearing history: %w", err)
	}

	return affected, nil
}

// Outcomes returns the method and response status of every entry owned by
// ownerID in one read, so statistics derived from it cannot disagree with
// each other.
func (s *Store) Outcomes(ctx context.Context, ownerID string) ([]Outcome, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT method, response_status FROM history WHERE owner_id = ?`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("reading history outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []Outcome

	for rows.Next() {
		var o Outcome
		if err := rows.Scan(&o.Method, &o.Status); err != nil {
			return nil, fmt.Errorf("scanning history outcome: %w", err)
		}

		outcomes = append(outcomes, o)
	}

	return outcomes, rows.Err()
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var (
		e               Entry
		timestampNs     int64
		requestHeaders  string
		responseHeaders string
		requestBody     sql.NullString
		responseBody    sql.NullString
		statusText      sql.NullString
	)

	err := row.Scan(&e.Seq, &e.ID, &e.OwnerID, &e.Endpoint, &e.Method, &timestampNs,
		&requestHeaders, &requestBody,
		&e.Response.Status, &statusText, &responseHeaders, &responseBody)
	if err != nil {
		return nil, err
	}

	e.Timestamp = time.Unix(0, timestampNs).UTC()
	e.Request.Headers = unmarshalHeaders(requestHeaders)
	e.Request.Body = unmarshalBody(requestBody)
	e.Response.StatusText = statusText.String
	e.Response.Headers = unmarshalHeaders(responseHeaders)
	e.Response.Body = unmarshalBody(responseBody)

	return &e, nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	entries := []Entry{}

	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}

		entries = append(entries, *entry)
	}

	return entries, rows.Err()
}

func marshalHeaders(headers map[string]string) (string, error) {
	if headers == nil {
		headers = map[string]string{}
	}

	data, err := json.Marshal(headers)
	if err != nil {
		return "", fmt.Errorf("encoding headers: %w", err)
	}

	return string(data), nil
}

func unmarshalHeaders(data string) map[string]string {
	headers := map[string]string{}
	_ = json.Unmarshal([]byte(data), &headers)

	return headers
}

func marshalBody(body any) (sql.NullString, error) {
	if body == nil {
		return sql.NullString{}, nil
	}

	data, err := json.Marshal(body)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encoding body: %w", err)
	}

	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalBody(ns sql.NullString) any {
	if !ns.Valid {
		return nil
	}

	var v any
	if err := json.Unmarshal([]byte(ns.String), &v); err != nil {
		return ns.String
	}

	return v
}
