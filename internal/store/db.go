package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"taskplanner/api/internal/ordering"
)

type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrAlreadyMember      = errors.New("user is already a board member")
	ErrNotBoardMember     = errors.New("user is not a board member")
	ErrAuthorProtected    = errors.New("the board author always stays a moderating member")
	ErrModeratorProtected = errors.New("only the board author can remove a moderator")
	ErrForeignTag         = errors.New("tag belongs to another board")
	ErrNotAssigned        = errors.New("not assigned to this card")
)

// Open connects to Postgres, or to SQLite when the URL starts with
// "sqlite:" or "file:".
func Open(ctx context.Context, databaseURL string) (*sql.DB, Dialect, error) {
	if dsn, ok := sqliteDSN(databaseURL); ok {
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, "", fmt.Errorf("open db: %w", err)
		}
		db.SetMaxOpenConns(1)
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, "", fmt.Errorf("ping db: %w", err)
		}
		return db, DialectSQLite, nil
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, "", fmt.Errorf("open db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(10)
	db.SetMaxOpenConns(20)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, "", fmt.Errorf("ping db: %w", err)
	}
	return db, DialectPostgres, nil
}

func sqliteDSN(databaseURL string) (string, bool) {
	var path string
	switch {
	case strings.HasPrefix(databaseURL, "sqlite:"):
		path = "file:" + strings.TrimPrefix(strings.TrimPrefix(databaseURL, "sqlite:"), "//")
	case strings.HasPrefix(databaseURL, "file:"):
		path = databaseURL
	default:
		return "", false
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate", true
}

// TxPolicy bounds every write transaction.
type TxPolicy struct {
	Timeout     time.Duration
	MaxAttempts int
}

type SQLStore struct {
	db     *sql.DB
	policy TxPolicy
}

func NewSQLStore(db *sql.DB, policy TxPolicy) *SQLStore {
	if policy.Timeout <= 0 {
		policy.Timeout = 5 * time.Second
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	return &SQLStore{db: db, policy: policy}
}

func (s *SQLStore) DB() *sql.DB {
	return s.db
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// inTx runs fn in a transaction and retries the whole transaction on
// serialization failures, deadlocks, busy databases and stale positions.
func (s *SQLStore) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	var err error
	for attempt := 1; attempt <= s.policy.MaxAttempts; attempt++ {
		err = s.runTx(ctx, fn)
		if err == nil || !retryable(err) {
			return err
		}
		if attempt == s.policy.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt*attempt) * 15 * time.Millisecond):
		}
	}
	return fmt.Errorf("transaction failed after %d attempts: %w", s.policy.MaxAttempts, err)
}

func (s *SQLStore) runTx(ctx context.Context, fn func(*sql.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.policy.Timeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func retryable(err error) bool {
	if errors.Is(err, ordering.ErrStale) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code() & 0xff
		return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
	}
	return false
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// affectedOne maps a zero-row update or delete to ErrNotFound.
func affectedOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
