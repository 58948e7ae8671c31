package points

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestBalanceCacheReadThrough(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewBalanceCache(client, time.Minute)
	ctx := context.Background()

	loads := 0
	load := func(ctx context.Context) (CardBalances, error) {
		loads++
		return CardBalances{Hardware: 5, Plywood: 2}, nil
	}

	got, err := cache.Fetch(ctx, "C-1", load)
	require.NoError(t, err)
	require.Equal(t, CardBalances{Hardware: 5, Plywood: 2}, got)
	require.Equal(t, 1, loads)

	// Second fetch is served from the cache.
	got, err = cache.Fetch(ctx, "C-1", load)
	require.NoError(t, err)
	require.Equal(t, CardBalances{Hardware: 5, Plywood: 2}, got)
	require.Equal(t, 1, loads)
}

func TestBalanceCacheInvalidate(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewBalanceCache(client, time.Minute)
	ctx := context.Background()

	balance := int64(5)
	load := func(ctx context.Context) (CardBalances, error) {
		return CardBalances{Hardware: balance}, nil
	}

	got, err := cache.Fetch(ctx, "C-1", load)
	require.NoError(t, err)
	require.Equal(t, int64(5), got.Hardware)

	balance = 3
	require.NoError(t, cache.Invalidate(ctx, "C-1"))

	got, err = cache.Fetch(ctx, "C-1", load)
	require.NoError(t, err)
	require.Equal(t, int64(3), got.Hardware)
}

func TestBalanceCacheLoaderErrorPropagates(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewBalanceCache(client, time.Minute)

	wantErr := errors.New("boom")
	_, err := cache.Fetch(context.Background(), "C-1", func(ctx context.Context) (CardBalances, error) {
		return CardBalances{}, wantErr
	})
	require.ErrorIs(t, err, wantErr)
}

func TestBalanceCacheNilClientFallsBack(t *testing.T) {
	var cache *BalanceCache
	got, err := cache.Fetch(context.Background(), "C-1", func(ctx context.Context) (CardBalances, error) {
		return CardBalances{Plywood: 9}, nil
	})
	require.NoError(t, err)
	require.Equal(t, int64(9), got.Plywood)
}
