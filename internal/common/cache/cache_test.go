// internal/common/cache/cache_test.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caserank/internal/models"
)

func ptr(f float64) *float64 { return &f }

func TestKey(t *testing.T) {
	clin := &models.Clinician{
		ProviderID: "PR-100",
		Discipline: models.DisciplinePT,
	}
	cf := &models.CaseFeatures{
		PatientCase: models.PatientCase{
			CaseID:     "C-1",
			Status:     "Open",
			Conditions: []string{"stroke", "gait"},
		},
		PrimaryDistance: ptr(3.21),
	}

	t.Run("deterministic", func(t *testing.T) {
		assert.Equal(t, Key(clin, cf), Key(clin, cf))
	})

	t.Run("score-relevant change alters key", func(t *testing.T) {
		changed := *cf
		changed.Status = "Closed"
		assert.NotEqual(t, Key(clin, cf), Key(clin, &changed))
	})

	t.Run("nil distance differs from zero", func(t *testing.T) {
		noDist := *cf
		noDist.PrimaryDistance = nil
		zeroDist := *cf
		zeroDist.PrimaryDistance = ptr(0)
		assert.NotEqual(t, Key(clin, &noDist), Key(clin, &zeroDist))
	})
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()

	t.Run("miss returns nil nil", func(t *testing.T) {
		c := NewMemoryCache(10)
		got, err := c.Get(ctx, "absent")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("set then get", func(t *testing.T) {
		c := NewMemoryCache(10)
		entry := &Entry{CaseID: "C-1", Score: 72, Reasons: []string{"previous provider"}}
		require.NoError(t, c.Set(ctx, "k1", entry))

		got, err := c.Get(ctx, "k1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, 72, got.Score)
		assert.Equal(t, []string{"previous provider"}, got.Reasons)
	})

	t.Run("bound enforced", func(t *testing.T) {
		c := NewMemoryCache(5)
		for i := 0; i < 20; i++ {
			require.NoError(t, c.Set(ctx, fmt.Sprintf("k%d", i), &Entry{CaseID: "C", Score: i}))
		}
		assert.LessOrEqual(t, c.Len(), 5)
	})

	t.Run("overwrite does not evict", func(t *testing.T) {
		c := NewMemoryCache(2)
		require.NoError(t, c.Set(ctx, "a", &Entry{Score: 1}))
		require.NoError(t, c.Set(ctx, "b", &Entry{Score: 2}))
		require.NoError(t, c.Set(ctx, "a", &Entry{Score: 3}))

		assert.Equal(t, 2, c.Len())
		got, err := c.Get(ctx, "a")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, 3, got.Score)
	})

	t.Run("returned entry is a copy", func(t *testing.T) {
		c := NewMemoryCache(10)
		require.NoError(t, c.Set(ctx, "k", &Entry{Score: 10}))
		got, err := c.Get(ctx, "k")
		require.NoError(t, err)
		got.Score = 99

		again, err := c.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, 10, again.Score)
	})
}

func TestRedisCache(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	c := NewRedisCache(client, time.Hour)

	t.Run("miss returns nil nil", func(t *testing.T) {
		got, err := c.Get(ctx, "absent")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("round trip", func(t *testing.T) {
		entry := &Entry{CaseID: "C-2", Score: 55, Reasons: []string{"distance", "status"}}
		require.NoError(t, c.Set(ctx, "k1", entry))

		got, err := c.Get(ctx, "k1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, entry, got)
	})

	t.Run("expired entry is a miss", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "k2", &Entry{Score: 1}))
		mr.FastForward(2 * time.Hour)

		got, err := c.Get(ctx, "k2")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("corrupt entry is a miss", func(t *testing.T) {
		require.NoError(t, client.Set(ctx, "k3", "not-json", 0).Err())
		got, err := c.Get(ctx, "k3")
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestRedisCache_BackendErrors(t *testing.T) {
	client, mock := redismock.NewClientMock()
	defer client.Close()

	ctx := context.Background()
	c := NewRedisCache(client, time.Hour)

	mock.ExpectGet("k1").SetErr(fmt.Errorf("connection reset"))
	_, err := c.Get(ctx, "k1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache get")

	entry := &Entry{CaseID: "C-9", Score: 42}
	raw, marshalErr := json.Marshal(entry)
	require.NoError(t, marshalErr)

	mock.ExpectSet("k2", raw, time.Hour).SetErr(fmt.Errorf("connection reset"))
	err = c.Set(ctx, "k2", entry)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache set")

	require.NoError(t, mock.ExpectationsWereMet())
}
