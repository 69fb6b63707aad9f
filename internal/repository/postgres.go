// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/RaifayoussefDev/Backend-DabApp-sub000/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUserExists возвращается при попытке создать пользователя с уже существующим логином.
var (
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrListingNotFound возвращается, если объявление не найдено.
	ErrListingNotFound = errors.New("listing not found")
	// ErrSoomNotFound возвращается, если предложение не найдено.
	ErrSoomNotFound = errors.New("soom not found")
	// ErrDuplicatePending возвращается, когда у покупателя уже есть открытое предложение по объявлению.
	ErrDuplicatePending = errors.New("pending soom already exists")
)

// Store описывает операции хранилища. Реализуется как пулом соединений,
// так и открытой транзакцией, поэтому одна и та же бизнес-логика может
// выполняться и вне, и внутри транзакции.
type Store interface {
	CreateUser(ctx context.Context, login string, passwordHash []byte) (int64, error)
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)

	GetListing(ctx context.Context, id string) (*model.Listing, error)
	LockListing(ctx context.Context, id string) (*model.Listing, error)

	HighestAmount(ctx context.Context, listingID, excludeSoomID string) (*int64, error)
	PendingByUser(ctx context.Context, listingID string, userID int64) (*model.Soom, error)
	InsertSoom(ctx context.Context, soom *model.Soom) error
	GetSoom(ctx context.Context, id string) (*model.Soom, error)
	UpdateSoomStatus(ctx context.Context, id string, status model.SoomStatus, reason *string) error
	RejectPendingExcept(ctx context.Context, listingID, soomID string) error
	UpdateSoomAmount(ctx context.Context, id string, amount, minSoom int64, at time.Time) error
	DeleteSoom(ctx context.Context, id string) error

	ListByListing(ctx context.Context, listingID string) ([]model.ListingSoom, error)
	LastByListing(ctx context.Context, listingID string) (*model.Soom, int64, error)
	ListBySeller(ctx context.Context, sellerID int64) ([]model.BoxSoom, model.SoomStats, error)
	ListByBidder(ctx context.Context, userID int64) ([]model.BoxSoom, model.SoomStats, error)
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	queries
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{
		queries: queries{db: pool},
		pool:    pool,
	}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// InTx выполняет fn в рамках одной транзакции. При конфликте сериализации
// или дедлоке транзакция перезапускается с нарастающей задержкой.
func (r *PostgresRepository) InTx(ctx context.Context, fn func(Store) error) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		if err := fn(&queries{db: tx}); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// queries реализует Store поверх пула либо транзакции.
type queries struct {
	db querier
}

// CreateUser создаёт нового пользователя.
func (q *queries) CreateUser(ctx context.Context, login string, passwordHash []byte) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx,
		`INSERT INTO users (login, password_hash) VALUES ($1, $2) RETURNING id`,
		login, passwordHash,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrUserExists, login)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// GetUserByLogin возвращает пользователя по логину.
func (q *queries) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	row := q.db.QueryRow(ctx,
		`SELECT id, login, password_hash, created_at FROM users WHERE login = $1`,
		login,
	)

	var u model.User
	err := row.Scan(&u.ID, &u.Login, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return &u, nil
}
