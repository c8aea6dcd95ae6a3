package repo

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/lavrd/yt-audio-dl-tg/internal/types"
)

const (
	driver = "sqlite3"

	ModeMemory = "memory"
)

//go:embed migrations/*.sql
var migrations embed.FS

type RequestsRepository interface {
	Create(ctx context.Context, id string, chatID, userID int64, uri string) (*types.Request, error)
	UpdateTitle(ctx context.Context, id, title string) error
	// UpdateState moves request to the state; errorKind is stored only for failed requests.
	UpdateState(ctx context.Context, id string, state types.RequestState, errorKind types.Kind) error
	GetInProgress(ctx context.Context, userID int64) ([]*types.Request, error)
	CountByState(ctx context.Context) (map[types.RequestState]int, error)
	DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error)
}

// OpenDBAndMigrate opens sqlite database and applies embedded migrations.
// With ModeMemory the name identifies the shared in-memory database.
func OpenDBAndMigrate(name, mode string) (*sqlx.DB, error) {
	dsn := fmt.Sprintf(
		"file:%s?cache=shared&mode=%s&_foreign_keys=1",
		name, mode,
	)
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Shared cache connections lock tables against each other, so writes are serialized here.
	db.SetMaxOpenConns(1)
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	// Do database structure migration.
	drv, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create new driver: %w", err)
	}
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open migrations source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, driver, drv)
	if err != nil {
		return nil, fmt.Errorf("failed to create new migration manager: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return nil, fmt.Errorf("failed to do database structure migration: %w", err)
	}
	return sqlx.NewDb(db, driver), nil
}

func New(db *sqlx.DB) RequestsRepository {
	return &requestsRepository{db}
}

//nolint:govet // for better reading and keep as it in .sql files
type request struct {
	ID     string `db:"id"`
	ChatID int64  `db:"chat_id"`
	UserID int64  `db:"user_id"`
	// Link sent by the user.
	URI       string             `db:"uri"`
	Title     string             `db:"title"`
	State     types.RequestState `db:"state"`
	ErrorKind types.Kind         `db:"error_kind"`
	CreatedAt time.Time          `db:"created_at"`
	UpdatedAt time.Time          `db:"updated_at"`
	// When request reached a final state.
	DoneAt *time.Time `db:"done_at"`
}

func (r *request) ToTypes() *types.Request {
	return &types.Request{
		ID:        r.ID,
		ChatID:    r.ChatID,
		UserID:    r.UserID,
		URI:       r.URI,
		Title:     r.Title,
		State:     r.State,
		ErrorKind: r.ErrorKind,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
		DoneAt:    r.DoneAt,
	}
}

type requestsRepository struct {
	db *sqlx.DB
}

func (r *requestsRepository) Create(
	ctx context.Context, id string, chatID, userID int64, uri string,
) (*types.Request, error) {

	req := &request{}
	if err := r.db.GetContext(ctx, req, `
		insert into requests (id, chat_id, user_id, uri) VALUES ($1, $2, $3, $4) returning *
	`,
		id, chatID, userID, uri,
	); err != nil {
		return nil, fmt.Errorf("failed to get: %w", err)
	}
	return req.ToTypes(), nil
}

func (r *requestsRepository) UpdateTitle(ctx context.Context, id, title string) error {
	if _, err := r.db.ExecContext(ctx, "update requests set title = $1 where id = $2", title, id); err != nil {
		return fmt.Errorf("failed to exec: %w", err)
	}
	return nil
}

func (r *requestsRepository) UpdateState(
	ctx context.Context, id string, state types.RequestState, errorKind types.Kind,
) error {

	doneAt := sql.NullTime{}
	if state.Finished() {
		doneAt = sql.NullTime{
			Time:  time.Now().UTC(),
			Valid: true,
		}
	}
	if state != types.FailedRequestState {
		errorKind = ""
	}
	if _, err := r.db.ExecContext(ctx,
		"update requests set state = $1, error_kind = $2, updated_at = current_timestamp, done_at = $3 where id = $4",
		state, errorKind, doneAt, id,
	); err != nil {
		return fmt.Errorf("failed to exec: %w", err)
	}
	return nil
}

func (r *requestsRepository) GetInProgress(ctx context.Context, userID int64) ([]*types.Request, error) {
	rows := make([]*request, 0)
	if err := r.db.SelectContext(ctx, &rows, `
		select * from requests where user_id = $1 and state not in ('completed', 'failed') order by created_at
	`,
		userID,
	); err != nil {
		return nil, fmt.Errorf("failed to select: %w", err)
	}
	requests := make([]*types.Request, 0, len(rows))
	for _, row := range rows {
		requests = append(requests, row.ToTypes())
	}
	return requests, nil
}

func (r *requestsRepository) CountByState(ctx context.Context) (map[types.RequestState]int, error) {
	rows := make([]struct {
		State types.RequestState `db:"state"`
		Count int                `db:"count"`
	}, 0)
	if err := r.db.SelectContext(ctx, &rows, "select state, count(*) as count from requests group by state"); err != nil {
		return nil, fmt.Errorf("failed to select: %w", err)
	}
	counts := make(map[types.RequestState]int, len(rows))
	for _, row := range rows {
		counts[row.State] = row.Count
	}
	return counts, nil
}

// DeleteFinishedBefore removes finished requests done before the given time
// and returns how many were removed.
func (r *requestsRepository) DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"delete from requests where done_at is not null and done_at < $1", before.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to exec: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return deleted, nil
}
