// Package store 持久化轮次、比赛与历史积分。
//
// 同一套 SQL 同时跑在 SQLite（modernc.org/sqlite，本地/测试）与 Postgres（pgx 连接池）上；
// 语句统一用 `?` 占位，Postgres 下改写为 $n。
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var (
	ErrNoJornada      = errors.New("No hay ninguna jornada. Crea una primero.")
	ErrNotFound       = errors.New("jornada no encontrada")
	ErrIncomplete     = errors.New("La jornada no tiene 15 partidos.")
	ErrInvalidNumber  = errors.New("Número de jornada inválido (debe ser 1 o más).")
	ErrDuplicateEntry = errors.New("jornada duplicada")
)

// DuplicateError 表示同一赛季已有同号轮次。
type DuplicateError struct {
	Number int
	Season string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("Ya existe una jornada con número %d en la temporada %q. Usa otro número.", e.Number, e.Season)
}

func (e *DuplicateError) Unwrap() error { return ErrDuplicateEntry }

type Config struct {
	Driver      string
	DSN         string
	MaxConns    int32
	DialTimeout time.Duration
}

type Store struct {
	db     *sql.DB
	pool   *pgxpool.Pool
	driver string
	log    *slog.Logger
}

// Open 打开数据库。Postgres 走 pgxpool 并包成 *sql.DB。
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{driver: cfg.Driver, log: logger}
	switch cfg.Driver {
	case DriverSQLite, "":
		s.driver = DriverSQLite
		db, err := sql.Open("sqlite", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("打开 sqlite 失败: %w", err)
		}
		// SQLite 单写者；:memory: 库也只存在于单个连接内。
		db.SetMaxOpenConns(1)
		s.db = db
	case DriverPostgres:
		pc, err := pgxpool.ParseConfig(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("解析 postgres DSN 失败: %w", err)
		}
		if cfg.MaxConns > 0 {
			pc.MaxConns = cfg.MaxConns
		}
		pc.ConnConfig.RuntimeParams["application_name"] = "quiniela"
		dialCtx := ctx
		if cfg.DialTimeout > 0 {
			var cancel context.CancelFunc
			dialCtx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
			defer cancel()
		}
		pool, err := pgxpool.NewWithConfig(dialCtx, pc)
		if err != nil {
			return nil, fmt.Errorf("连接 postgres 失败: %w", err)
		}
		s.pool = pool
		s.db = stdlib.OpenDBFromPool(pool)
	default:
		return nil, fmt.Errorf("未知数据库驱动: %q", cfg.Driver)
	}
	logger.Debug("store opened", "driver", s.driver)
	return s, nil
}

func (s *Store) Close() error {
	err := s.db.Close()
	if s.pool != nil {
		s.pool.Close()
	}
	return err
}

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Migrate 幂等地建表。
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("建表失败: %w", err)
		}
	}
	return nil
}

// q 按驱动改写占位符。
func (s *Store) q(query string) string {
	if s.driver != DriverPostgres {
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

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
