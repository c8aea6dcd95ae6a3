package repo_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"

	"github.com/lavrd/yt-audio-dl-tg/internal/repo"
	"github.com/lavrd/yt-audio-dl-tg/internal/types"
)

const (
	chatID int64 = 249191443
	userID int64 = 554555
	uri          = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"
)

func openDB(r *require.Assertions) *sqlx.DB {
	db, err := repo.OpenDBAndMigrate(uuid.NewString(), repo.ModeMemory)
	r.NoError(err)
	return db
}

func closeDB(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close database")
	}
}

//nolint:govet // for better reading
type storedRequest struct {
	Title     string             `db:"title"`
	State     types.RequestState `db:"state"`
	ErrorKind types.Kind         `db:"error_kind"`
	DoneAt    *time.Time         `db:"done_at"`
}

func getRequest(db *sqlx.DB, id string) (*storedRequest, error) {
	req := &storedRequest{}
	if err := db.Get(req, "select title, state, error_kind, done_at from requests where id = $1", id); err != nil {
		return nil, err
	}
	return req, nil
}

func TestRequestsRepository(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()

	db := openDB(r)
	defer closeDB(db)
	requestsRepo := repo.New(db)

	id := uuid.NewString()
	req, err := requestsRepo.Create(ctx, id, chatID, userID, uri)
	r.NoError(err)
	r.Equal(id, req.ID)
	r.Equal(chatID, req.ChatID)
	r.Equal(userID, req.UserID)
	r.Equal(uri, req.URI)
	r.Equal(types.AcceptedRequestState, req.State)
	r.Empty(req.Title)
	r.Empty(req.ErrorKind)
	r.False(req.CreatedAt.IsZero())
	r.Nil(req.DoneAt)

	// Duplicate id.
	_, err = requestsRepo.Create(ctx, id, chatID, userID, uri)
	r.Error(err)
	r.Contains(err.Error(), "UNIQUE constraint failed")

	title := "hello neighbor"
	r.NoError(requestsRepo.UpdateTitle(ctx, id, title))
	r.NoError(requestsRepo.UpdateState(ctx, id, types.ExtractingRequestState, types.KindTimeout))
	stored, err := getRequest(db, id)
	r.NoError(err)
	r.Equal(title, stored.Title)
	r.Equal(types.ExtractingRequestState, stored.State)
	// Error kind is kept only for failed requests.
	r.Empty(stored.ErrorKind)
	r.Nil(stored.DoneAt)

	r.NoError(requestsRepo.UpdateState(ctx, id, types.FailedRequestState, types.KindTooLarge))
	stored, err = getRequest(db, id)
	r.NoError(err)
	r.Equal(types.FailedRequestState, stored.State)
	r.Equal(types.KindTooLarge, stored.ErrorKind)
	r.NotNil(stored.DoneAt)
	r.False(stored.DoneAt.IsZero())

	// Check incorrect state.
	err = requestsRepo.UpdateState(ctx, id, "asd", "")
	r.Error(err)
	r.Contains(err.Error(), "CHECK constraint failed")

	_, err = getRequest(db, "missing")
	r.Error(err)
	r.True(errors.Is(err, sql.ErrNoRows))
}

func TestRequestsInProgress(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()

	db := openDB(r)
	defer closeDB(db)
	requestsRepo := repo.New(db)

	requests, err := requestsRepo.GetInProgress(ctx, userID)
	r.NoError(err)
	r.NotNil(requests)
	r.Empty(requests)

	ids := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		req, err := requestsRepo.Create(ctx, uuid.NewString(), chatID, userID, uri)
		r.NoError(err)
		ids = append(ids, req.ID)
	}
	_, err = requestsRepo.Create(ctx, uuid.NewString(), chatID, userID+1, uri)
	r.NoError(err)

	r.NoError(requestsRepo.UpdateState(ctx, ids[0], types.CompletedRequestState, ""))
	r.NoError(requestsRepo.UpdateState(ctx, ids[1], types.UploadingRequestState, ""))

	requests, err = requestsRepo.GetInProgress(ctx, userID)
	r.NoError(err)
	r.Len(requests, 2)
	for _, req := range requests {
		r.False(req.State.Finished())
		r.Equal(userID, req.UserID)
	}

	counts, err := requestsRepo.CountByState(ctx)
	r.NoError(err)
	r.Equal(2, counts[types.AcceptedRequestState])
	r.Equal(1, counts[types.UploadingRequestState])
	r.Equal(1, counts[types.CompletedRequestState])
	r.Zero(counts[types.FailedRequestState])
}

func TestDeleteFinishedBefore(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()

	db := openDB(r)
	defer closeDB(db)
	requestsRepo := repo.New(db)

	old, err := requestsRepo.Create(ctx, uuid.NewString(), chatID, userID, uri)
	r.NoError(err)
	r.NoError(requestsRepo.UpdateState(ctx, old.ID, types.CompletedRequestState, ""))
	_, err = db.Exec("update requests set done_at = $1 where id = $2", time.Now().UTC().Add(-2*time.Hour), old.ID)
	r.NoError(err)

	recent, err := requestsRepo.Create(ctx, uuid.NewString(), chatID, userID, uri)
	r.NoError(err)
	r.NoError(requestsRepo.UpdateState(ctx, recent.ID, types.FailedRequestState, types.KindTimeout))

	active, err := requestsRepo.Create(ctx, uuid.NewString(), chatID, userID, uri)
	r.NoError(err)

	deleted, err := requestsRepo.DeleteFinishedBefore(ctx, time.Now().Add(-time.Hour))
	r.NoError(err)
	r.EqualValues(1, deleted)

	_, err = getRequest(db, old.ID)
	r.True(errors.Is(err, sql.ErrNoRows))
	_, err = getRequest(db, recent.ID)
	r.NoError(err)
	_, err = getRequest(db, active.ID)
	r.NoError(err)
}

func TestOpenDBTwice(t *testing.T) {
	r := require.New(t)

	name := uuid.NewString()
	first, err := repo.OpenDBAndMigrate(name, repo.ModeMemory)
	r.NoError(err)
	defer closeDB(first)
	// Same shared database, migrations are already applied.
	second, err := repo.OpenDBAndMigrate(name, repo.ModeMemory)
	r.NoError(err)
	defer closeDB(second)

	_, err = repo.New(first).Create(context.Background(), uuid.NewString(), chatID, userID, uri)
	r.NoError(err)
	counts, err := repo.New(second).CountByState(context.Background())
	r.NoError(err)
	r.Equal(1, counts[types.AcceptedRequestState])
}
