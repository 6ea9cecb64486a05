package db

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	_ "modernc.org/sqlite"
)

//go:embed schema/*.sql
var schemaFS embed.FS

func init() {
	// modernc registers itself as "sqlite", which sqlx does not know by name.
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// DB wraps sqlx.DB to provide database operations
type DB struct {
	*sqlx.DB
	txTimeout time.Duration
}

// Options configures the connection pool.
type Options struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	TxTimeout       time.Duration
}

// New creates a new DB instance
func New(sqlxDB *sqlx.DB) *DB {
	return &DB{DB: sqlxDB}
}

// Open connects to the configured driver and verifies the connection.
func Open(ctx context.Context, opts Options) (*DB, error) {
	switch opts.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return nil, fmt.Errorf("db: unsupported driver %q", opts.Driver)
	}

	sqlxDB, err := sqlx.Open(opts.Driver, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("db: open %s: %w", opts.Driver, err)
	}
	if opts.MaxOpenConns > 0 {
		sqlxDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		sqlxDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		sqlxDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlxDB.PingContext(pingCtx); err != nil {
		sqlxDB.Close()
		return nil, fmt.Errorf("db: ping %s: %w", opts.Driver, err)
	}

	database := New(sqlxDB)
	database.txTimeout = opts.TxTimeout
	return database, nil
}

// WithTx executes a function within a transaction. The transaction is
// committed when fn returns nil and rolled back otherwise.
func (db *DB) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) (err error) {
	if db.txTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, db.txTimeout)
		defer cancel()
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	err = fn(tx)
	return err
}

// ApplySchema runs the embedded schema for the connected driver. Statements
// are idempotent (CREATE ... IF NOT EXISTS).
func (db *DB) ApplySchema(ctx context.Context) error {
	name := db.DriverName()
	raw, err := schemaFS.ReadFile("schema/" + name + ".sql")
	if err != nil {
		return fmt.Errorf("db: no schema for driver %q: %w", name, err)
	}

	for _, stmt := range strings.Split(string(raw), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("db: apply schema: %w", err)
		}
	}
	return nil
}

// IsUniqueViolation reports whether err is a unique/primary key violation
// on any of the supported drivers.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}

	errStr := err.Error()
	return strings.Contains(errStr, "Duplicate entry") ||
		strings.Contains(errStr, "UNIQUE constraint")
}
