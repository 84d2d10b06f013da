package db_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ymmfilter/compat-service/internal/db"
)

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	rdb, err := db.NewRedisClient(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	defer rdb.Close()

	require.NoError(t, rdb.Set(context.Background(), "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestNewRedisClient_BadURL(t *testing.T) {
	_, err := db.NewRedisClient(context.Background(), "http://not-redis")
	assert.ErrorContains(t, err, "redis.ParseURL")
}

func TestNewPostgresPool_BadURL(t *testing.T) {
	_, err := db.NewPostgresPool(context.Background(), "postgres://%zz")
	assert.ErrorContains(t, err, "pgxpool.ParseConfig")
}
