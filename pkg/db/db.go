// Package db opens the Postgres database backing the durable job store.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/url"
	"runtime"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"
)

type Config struct {
	Host     string `default:"localhost"`
	Port     int    `default:"5432"`
	User     string `default:"qhook"`
	Password string `default:"password"`
	Database string `envconfig:"NAME" default:"qhook"`
	SSLMode  string `default:"disable"`
}

// DSN renders the connection string.
func (c Config) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

// New connects and pings the database. Queries are logged to debugOut when
// BUNDEBUG is set.
func New(ctx context.Context, cfg Config, debugOut io.Writer) (*bun.DB, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN())))

	db := bun.NewDB(sqldb, pgdialect.New())

	if debugOut != nil {
		db.AddQueryHook(bundebug.NewQueryHook(
			bundebug.WithWriter(debugOut),
			bundebug.FromEnv("BUNDEBUG"),
		))
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	maxOpenConns := 4 * runtime.GOMAXPROCS(0)
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxOpenConns)

	return db, nil
}
