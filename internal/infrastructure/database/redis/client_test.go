package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/BizAtlas/internal/config"
	pkgerrors "github.com/turtacn/BizAtlas/pkg/errors"
)

func TestClient_KeyPrefix(t *testing.T) {
	db, _ := redismock.NewClientMock()
	assert.Equal(t, "x:companies", NewClientWithRDB(db, "x:", nil).Key("companies"))
	assert.Equal(t, config.DefaultRedisKeyPrefix+"companies", NewClientWithRDB(db, "", nil).Key("companies"))
}

func TestClient_Close(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewClientWithRDB(db, "", nil)

	mock.ExpectPing().SetVal("PONG")
	require.NoError(t, c.Ping(context.Background()))

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	assert.ErrorIs(t, c.Get(context.Background(), "k").Err(), ErrClientClosed)
	assert.ErrorIs(t, c.Incr(context.Background(), "k").Err(), ErrClientClosed)
	assert.ErrorIs(t, c.Ping(context.Background()), ErrClientClosed)
}

func TestVersionStore(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewVersionStore(NewClientWithRDB(db, "t:", nil))
	ctx := context.Background()

	mock.ExpectGet("t:companies:version").RedisNil()
	v, err := store.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), v)

	mock.ExpectIncr("t:companies:version").SetVal(1)
	v, err = store.Bump(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v)

	mock.ExpectGet("t:companies:version").SetVal("1")
	v, err = store.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v)

	mock.ExpectIncr("t:companies:version").SetErr(errors.New("READONLY"))
	_, err = store.Bump(ctx)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeCacheError))

	assert.NoError(t, mock.ExpectationsWereMet())
}

//Personal.AI order the ending
