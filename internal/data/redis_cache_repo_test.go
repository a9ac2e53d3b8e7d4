package data

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tribunal-ia/portal/internal/testutil"
)

func TestRedisCacheRepo_SetGetDelete(t *testing.T) {
	mr, client := testutil.SetupMiniRedis(t)
	repo := NewRedisCacheRepo(client, "tribunal:")
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "portal:settings", []byte(`{"max_petitions_per_user":5}`), time.Minute))
	assert.True(t, mr.Exists("tribunal:portal:settings"), "key must carry the prefix")
	assert.Equal(t, time.Minute, mr.TTL("tribunal:portal:settings"))

	got, err := repo.Get(ctx, "portal:settings")
	require.NoError(t, err)
	assert.JSONEq(t, `{"max_petitions_per_user":5}`, string(got))

	deleted, err := repo.Delete(ctx, "portal:settings")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = repo.Delete(ctx, "portal:settings")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestRedisCacheRepo_MissingKey(t *testing.T) {
	_, client := testutil.SetupMiniRedis(t)
	repo := NewRedisCacheRepo(client, "")

	got, err := repo.Get(context.Background(), "absent")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisCacheRepo_Expiry(t *testing.T) {
	mr, client := testutil.SetupMiniRedis(t)
	repo := NewRedisCacheRepo(client, "")
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "k", []byte("v"), time.Second))
	mr.FastForward(2 * time.Second)

	got, err := repo.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisCacheRepo_EmptyKey(t *testing.T) {
	_, client := testutil.SetupMiniRedis(t)
	repo := NewRedisCacheRepo(client, "")
	ctx := context.Background()

	require.Error(t, repo.Set(ctx, "", nil, 0))
	_, err := repo.Get(ctx, "")
	require.Error(t, err)
	_, err = repo.Delete(ctx, "")
	require.Error(t, err)
}

func TestRedisCacheRepo_Health(t *testing.T) {
	mr, client := testutil.SetupMiniRedis(t)
	repo := NewRedisCacheRepo(client, "")

	require.NoError(t, repo.Health(context.Background()))
	mr.Close()
	assert.Error(t, repo.Health(context.Background()))
}
