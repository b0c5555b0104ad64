// Package database opens the metadata store, applies schema migrations and
// provides the small query-building layer the repositories are written on.
package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Dialect names the SQL flavour of the connected database.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
	DialectPgx      Dialect = "pgx"
)

func (d Dialect) driverName() string {
	switch d {
	case DialectSQLite:
		return "sqlite3"
	case DialectPgx:
		return "pgx"
	default:
		return "postgres"
	}
}

func (d Dialect) gooseDialect() goose.Dialect {
	if d == DialectSQLite {
		return goose.DialectSQLite3
	}
	return goose.DialectPostgres
}

// DB wraps *sql.DB together with its dialect.
type DB struct {
	sqlDB   *sql.DB
	dialect Dialect
}

// Open 打开数据库连接并检查可用性
func Open(ctx context.Context, dialect Dialect, dsn string) (*DB, error) {
	if dialect == DialectSQLite {
		dsn = sqliteDSN(dsn)
	}

	sqlDB, err := sql.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if dialect == DialectSQLite {
		// sqlite has a single writer; one connection also keeps ":memory:" databases alive
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(25)
		sqlDB.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{sqlDB: sqlDB, dialect: dialect}, nil
}

// Wrap adopts an already opened pool, e.g. one created by sqlmock.
func Wrap(sqlDB *sql.DB, dialect Dialect) *DB {
	return &DB{sqlDB: sqlDB, dialect: dialect}
}

func sqliteDSN(path string) string {
	if path == ":memory:" {
		return "file::memory:?_foreign_keys=on"
	}
	return "file:" + path + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"
}

// Migrate 执行内嵌的 goose 迁移
func (db *DB) Migrate(ctx context.Context) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("migrations fs: %w", err)
	}

	provider, err := goose.NewProvider(db.dialect.gooseDialect(), db.sqlDB, fsys)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}

	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

func (db *DB) Dialect() Dialect {
	return db.dialect
}

func (db *DB) Close() error {
	return db.sqlDB.Close()
}

func (db *DB) Ping(ctx context.Context) error {
	return db.sqlDB.PingContext(ctx)
}

// Runner executes built statements. *DB and the handle passed to WithTx
// callbacks both satisfy it.
type Runner interface {
	Query(ctx context.Context, stmt Statement) (*sql.Rows, error)
	QueryRow(ctx context.Context, stmt Statement) *sql.Row
	Exec(ctx context.Context, stmt Statement) (sql.Result, error)
}

// dbtx is the subset of database/sql shared by *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type runner struct {
	conn    dbtx
	dialect Dialect
}

func (r runner) Query(ctx context.Context, stmt Statement) (*sql.Rows, error) {
	return r.conn.QueryContext(ctx, Rebind(r.dialect, stmt.Build()), stmt.Args()...)
}

func (r runner) QueryRow(ctx context.Context, stmt Statement) *sql.Row {
	return r.conn.QueryRowContext(ctx, Rebind(r.dialect, stmt.Build()), stmt.Args()...)
}

func (r runner) Exec(ctx context.Context, stmt Statement) (sql.Result, error) {
	return r.conn.ExecContext(ctx, Rebind(r.dialect, stmt.Build()), stmt.Args()...)
}

func (db *DB) Query(ctx context.Context, stmt Statement) (*sql.Rows, error) {
	return runner{conn: db.sqlDB, dialect: db.dialect}.Query(ctx, stmt)
}

func (db *DB) QueryRow(ctx context.Context, stmt Statement) *sql.Row {
	return runner{conn: db.sqlDB, dialect: db.dialect}.QueryRow(ctx, stmt)
}

func (db *DB) Exec(ctx context.Context, stmt Statement) (sql.Result, error) {
	return runner{conn: db.sqlDB, dialect: db.dialect}.Exec(ctx, stmt)
}

// WithTx begins a transaction, runs fn with a transactional runner and
// commits on success or rolls back on error/panic. Panics are rethrown.
func (db *DB) WithTx(ctx context.Context, fn func(ctx context.Context, tx Runner) error) (err error) {
	tx, err := db.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if cerr := tx.Commit(); cerr != nil {
			err = fmt.Errorf("commit tx: %w", cerr)
		}
	}()

	err = fn(ctx, runner{conn: tx, dialect: db.dialect})
	return err
}
