package store

import (
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
)

// sqlOpen opens a database/sql handle over the same pgx driver the pool
// uses, needed only because golang-migrate's postgres driver is built on
// database/sql rather than pgxpool.
func sqlOpen(connString string) (*sql.DB, error) {
	return sql.Open("pgx", connString)
}
