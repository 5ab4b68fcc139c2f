package workitems

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Custom errors for work item operations
var (
	ErrItemNotFound    = errors.New("work item not found")
	ErrNoPendingItems  = errors.New("no pending work items")
	ErrInvalidPayload  = errors.New("payload must be a JSON object")
	ErrInvalidState    = errors.New("state must be pending, in_progress, done, or failed")
	ErrStateConflict   = errors.New("work item is not in the expected state")
	ErrMissingFailCode = errors.New("failure requires an exception type and code")
)

// Work item states.
const (
	StatePending    = "pending"
	StateInProgress = "in_progress"
	StateDone       = "done"
	StateFailed     = "failed"
)

// Failure classifications reported for failed items.
const (
	ExceptionApplication = "APPLICATION"
	ExceptionBusiness    = "BUSINESS"

	CodeUnexpectedError = "UNEXPECTED_ERROR"
	CodeInvalidPayload  = "INVALID_PAYLOAD"
)

// Store is a SQLite-backed queue of work items.
type Store struct {
	db *sql.DB
}

// Item is one unit of work and its processing outcome.
type Item struct {
	ID            uuid.UUID       `json:"id"`
	Payload       json.RawMessage `json:"payload"`
	State         string          `json:"state"`
	ExceptionType *string         `json:"exception_type,omitempty"`
	Code          *string         `json:"code,omitempty"`
	Message       *string         `json:"message,omitempty"`
	OutputPath    *string         `json:"output_path,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Failure describes why an item failed.
type Failure struct {
	ExceptionType string
	Code          string
	Message       string
}

// Filter represents filtering options for listing items.
type Filter struct {
	State  *string
	Limit  int
	Offset int
}

// NewStore opens (creating if needed) the queue database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection serializes claims, which keeps them atomic.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates the work_items table if it doesn't exist.
func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS work_items (
		item_id TEXT PRIMARY KEY,
		payload TEXT NOT NULL,
		state TEXT NOT NULL,
		exception_type TEXT,
		code TEXT,
		message TEXT,
		output_path TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS work_items_state ON work_items (state, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create enqueues a new pending item.
func (s *Store) Create(payload []byte) (*Item, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(payload, &obj); err != nil || obj == nil {
		return nil, ErrInvalidPayload
	}

	now := time.Now()
	item := &Item{
		ID:        uuid.New(),
		Payload:   json.RawMessage(payload),
		State:     StatePending,
		CreatedAt: now.Truncate(0),
		UpdatedAt: now.Truncate(0),
	}

	query := `
		INSERT INTO work_items (item_id, payload, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query,
		item.ID.String(),
		string(payload),
		item.State,
		formatTime(&item.CreatedAt),
		formatTime(&item.UpdatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert work item: %w", err)
	}

	return item, nil
}

const selectColumns = `
	SELECT item_id, payload, state, exception_type, code, message,
	       output_path, created_at, updated_at
	FROM work_items
`

// Get retrieves an item by ID.
func (s *Store) Get(id uuid.UUID) (*Item, error) {
	row := s.db.QueryRow(selectColumns+" WHERE item_id = ?", id.String())
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query work item: %w", err)
	}
	return item, nil
}

// List lists items oldest first with optional filtering.
func (s *Store) List(filter Filter) ([]Item, error) {
	query := selectColumns
	var args []any

	if filter.State != nil {
		if !validState(*filter.State) {
			return nil, ErrInvalidState
		}
		query += " WHERE state = ?"
		args = append(args, *filter.State)
	}

	query += " ORDER BY created_at ASC, rowid ASC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	} else if filter.Offset > 0 {
		query += " LIMIT -1"
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query work items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan work item: %w", err)
		}
		items = append(items, *item)
	}

	return items, rows.Err()
}

// Claim moves the oldest pending item to in_progress and returns it. It
// returns ErrNoPendingItems when the queue is drained.
func (s *Store) Claim() (*Item, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRow(selectColumns+" WHERE state = ? ORDER BY created_at ASC, rowid ASC LIMIT 1", StatePending)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, ErrNoPendingItems
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query pending item: %w", err)
	}

	now := time.Now()
	_, err = tx.Exec("UPDATE work_items SET state = ?, updated_at = ? WHERE item_id = ?",
		StateInProgress, formatTime(&now), item.ID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to claim work item: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}

	item.State = StateInProgress
	item.UpdatedAt = now.Truncate(0)
	return item, nil
}

// Done marks an in-progress item as completed.
func (s *Store) Done(id uuid.UUID, outputPath string) error {
	var out *string
	if outputPath != "" {
		out = &outputPath
	}
	return s.transition(id, StateInProgress, StateDone, nil, out)
}

// Fail marks an in-progress item as failed.
func (s *Store) Fail(id uuid.UUID, failure Failure) error {
	if failure.ExceptionType == "" || failure.Code == "" {
		return ErrMissingFailCode
	}
	return s.transition(id, StateInProgress, StateFailed, &failure, nil)
}

// Retry moves a failed item back to pending and clears its failure.
func (s *Store) Retry(id uuid.UUID) error {
	return s.transition(id, StateFailed, StatePending, nil, nil)
}

// Delete removes an item.
// Reclaim moves in_progress items whose last update is older than olderThan
// back to pending. A consumer that dies mid-run leaves its item claimed; this
// makes it available again. It returns the IDs that were requeued.
func (s *Store) Reclaim(olderThan time.Duration) ([]uuid.UUID, error) {
	state := StateInProgress
	claimed, err := s.List(Filter{State: &state})
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-olderThan)
	requeued := []uuid.UUID{}
	for _, item := range claimed {
		if !item.UpdatedAt.Before(cutoff) {
			continue
		}
		err := s.transition(item.ID, StateInProgress, StatePending, nil, nil)
		if errors.Is(err, ErrStateConflict) || errors.Is(err, ErrItemNotFound) {
			continue
		}
		if err != nil {
			return requeued, err
		}
		requeued = append(requeued, item.ID)
	}

	return requeued, nil
}

func (s *Store) Delete(id uuid.UUID) error {
	result, err := s.db.Exec("DELETE FROM work_items WHERE item_id = ?", id.String())
	if err != nil {
		return fmt.Errorf("failed to delete work item: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrItemNotFound
	}

	return nil
}

// transition moves id from one state to another, writing the failure fields
// (cleared when failure is nil) and the output path.
func (s *Store) transition(id uuid.UUID, from, to string, failure *Failure, outputPath *string) error {
	now := time.Now()
	setClauses := []string{"state = ?", "updated_at = ?", "exception_type = ?", "code = ?", "message = ?"}
	args := []any{to, formatTime(&now)}

	if failure != nil {
		args = append(args, failure.ExceptionType, failure.Code, failure.Message)
	} else {
		args = append(args, nil, nil, nil)
	}
	if outputPath != nil {
		setClauses = append(setClauses, "output_path = ?")
		args = append(args, *outputPath)
	}

	args = append(args, id.String(), from)
	query := fmt.Sprintf("UPDATE work_items SET %s WHERE item_id = ? AND state = ?",
		strings.Join(setClauses, ", "))

	result, err := s.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to update work item: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		if _, err := s.Get(id); err != nil {
			return err
		}
		return fmt.Errorf("%w: want %s", ErrStateConflict, from)
	}

	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*Item, error) {
	var idStr, payload, state, createdAtStr, updatedAtStr string
	var exceptionType, code, message, outputPath sql.NullString

	err := row.Scan(&idStr, &payload, &state, &exceptionType, &code, &message,
		&outputPath, &createdAtStr, &updatedAtStr)
	if err != nil {
		return nil, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse item ID: %w", err)
	}

	item := &Item{
		ID:        id,
		Payload:   json.RawMessage(payload),
		State:     state,
		CreatedAt: parseTime(createdAtStr),
		UpdatedAt: parseTime(updatedAtStr),
	}
	if exceptionType.Valid {
		item.ExceptionType = &exceptionType.String
	}
	if code.Valid {
		item.Code = &code.String
	}
	if message.Valid {
		item.Message = &message.String
	}
	if outputPath.Valid {
		item.OutputPath = &outputPath.String
	}

	return item, nil
}

func validState(state string) bool {
	switch state {
	case StatePending, StateInProgress, StateDone, StateFailed:
		return true
	}
	return false
}

// Helper functions for time formatting
func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	// Strip monotonic clock for consistent storage and comparisons
	return t.Truncate(0).Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339, s)
	}
	return t.Truncate(0)
}
