// Package repo persists run results to Postgres and serves recent-run
// queries, caching hot reads through the go-zero cache layer.
package repo

import (
	"errors"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver
	"github.com/zeromicro/go-zero/core/stores/cache"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

// TTLs bundles cache durations in seconds.
type TTLs struct {
	Short  int
	Medium int
	Long   int
}

// Dependencies bundles shared infrastructure required by repository
// implementations.
type Dependencies struct {
	DBConn sqlx.SqlConn
	Cache  cache.Cache
	TTL    TTLs
}

// Set exposes strongly typed repositories to application logic.
type Set struct {
	Runs RunsRepo
}

// New constructs the repository set, validating required dependencies.
func New(deps Dependencies) (*Set, error) {
	if deps.DBConn == nil {
		return nil, errors.New("repo: missing DBConn dependency")
	}

	return &Set{
		Runs: newRunsRepo(deps),
	}, nil
}

// Connect opens a Postgres connection through the pgx driver.
func Connect(dsn string) (sqlx.SqlConn, error) {
	if dsn == "" {
		return nil, errors.New("repo: empty postgres dsn")
	}
	return sqlx.NewSqlConn("pgx", dsn), nil
}
