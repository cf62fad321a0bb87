package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// Store reads the tenant catalog and the external agent registry.
type Store struct {
	DB      *sql.DB
	Dialect Dialect
}

// Open connects to driver ("sqlite" or "postgres") and pings it.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	d := Dialect(driver)
	if d != DialectSQLite && d != DialectPostgres {
		return nil, fmt.Errorf("unsupported storage driver %q", driver)
	}
	db, err := sql.Open(string(d), dsn)
	if err != nil {
		return nil, err
	}
	if d == DialectSQLite {
		// modernc sqlite serialises writers; one connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetConnMaxIdleTime(5 * time.Minute)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{DB: db, Dialect: d}, nil
}

func (s *Store) Close() error { return s.DB.Close() }

// bind rewrites ? placeholders to $n for postgres.
func (s *Store) bind(query string) string {
	if s.Dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
