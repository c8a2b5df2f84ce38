/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package archive

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/go-sql-driver/mysql" // SQL driver
	"github.com/google/uuid"
	_ "github.com/lib/pq" // SQL driver
	"github.com/parley-im/parley/log"
)

const messagesTable = "messages"

// pingInterval defines how often to check the connection
var pingInterval = 15 * time.Second

// pingTimeout defines how long to wait for pong from server
var pingTimeout = 10 * time.Second

type sqlArchive struct {
	db     *sql.DB
	sb     sq.StatementBuilderType
	doneCh chan chan bool
}

func newPgSQL(cfg *SQLConfig) (*sqlArchive, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=%s", cfg.User, cfg.Password, cfg.Host, cfg.Database, cfg.SSLMode)
	return openSQL("postgres", dsn, sq.Dollar, cfg.PoolSize)
}

func newMySQL(cfg *SQLConfig) (*sqlArchive, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true", cfg.User, cfg.Password, cfg.Host, cfg.Database)
	return openSQL("mysql", dsn, sq.Question, cfg.PoolSize)
}

func openSQL(driver, dsn string, placeholder sq.PlaceholderFormat, poolSize int) (*sqlArchive, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(poolSize) // set max opened connection count

	a := newSQLArchive(db, placeholder)
	if err := a.ping(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	go a.loop()
	return a, nil
}

func newSQLArchive(db *sql.DB, placeholder sq.PlaceholderFormat) *sqlArchive {
	return &sqlArchive{
		db:     db,
		sb:     sq.StatementBuilder.PlaceholderFormat(placeholder),
		doneCh: make(chan chan bool, 1),
	}
}

func (a *sqlArchive) Store(ctx context.Context, r Record) error {
	if len(r.ID) == 0 {
		r.ID = uuid.New().String()
	}
	q := a.sb.Insert(messagesTable).
		Columns("id", "account", "peer", "direction", "type", "body", "created_at").
		Values(r.ID, r.Account, r.Peer, string(r.Direction), r.Type, r.Body, r.Stamp)

	_, err := q.RunWith(a.db).ExecContext(ctx)
	return err
}

func (a *sqlArchive) Fetch(ctx context.Context, account, peer string, limit int) ([]Record, error) {
	q := a.sb.Select("id", "account", "peer", "direction", "type", "body", "created_at").
		From(messagesTable).
		Where(sq.And{sq.Eq{"account": account}, sq.Eq{"peer": peer}}).
		OrderBy("created_at DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	rows, err := q.RunWith(a.db).QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var records []Record
	for rows.Next() {
		var r Record
		var dir string
		if err := rows.Scan(&r.ID, &r.Account, &r.Peer, &dir, &r.Type, &r.Body, &r.Stamp); err != nil {
			return nil, err
		}
		r.Direction = Direction(dir)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

func (a *sqlArchive) Close(ctx context.Context) error {
	ch := make(chan bool)
	a.doneCh <- ch
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *sqlArchive) loop() {
	tick := time.NewTicker(pingInterval)
	defer tick.Stop()

	for {
		select {
		case <-tick.C:
			if err := a.ping(context.Background()); err != nil {
				log.Error(err)
			}

		case ch := <-a.doneCh:
			if err := a.db.Close(); err != nil {
				log.Error(err)
			}
			close(ch)
			return
		}
	}
}

// ping sends a ping request to the server and outputs any error to log
func (a *sqlArchive) ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	return a.db.PingContext(pingCtx)
}
