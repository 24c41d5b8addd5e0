package mysql

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"golang.org/x/xerrors"
)

func Connect(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, xerrors.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	// test ping
	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx2); err != nil {
		_ = db.Close()
		return nil, xerrors.Errorf("ping mysql: %w", err)
	}
	return sqlx.NewDb(db, "mysql"), nil
}
