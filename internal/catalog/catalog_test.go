package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"radio-station/internal/models"
	"radio-station/internal/storage"
)

func seedObjectCatalog(t *testing.T) *ObjectCatalog {
	t.Helper()
	ctx := context.Background()
	c := NewObjectCatalog(storage.NewMemoryStore())
	old := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, c.SaveProgram(ctx, models.ListenerProgram{ID: "p1", Title: "Morning", BaseRadioCastIDs: []string{"c1"}},
		[]models.ProgramSegment{
			{ID: "s2", Kind: models.SegmentWeb, Order: 2},
			{ID: "s1", Kind: models.SegmentRSS, Order: 1, LastReadTimestamp: &old},
		}))
	require.NoError(t, c.SaveCast(ctx, models.RadioCast{ID: "c1", Name: "Aki"}))
	require.NoError(t, c.SaveTokens(ctx, "l1", OAuthTokens{AccessToken: "a", Scopes: []string{"scope.read"}}))
	return c
}

func TestObjectCatalog(t *testing.T) {
	ctx := context.Background()
	c := seedObjectCatalog(t)

	p, err := c.GetProgram(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Morning", p.Title)

	segs, err := c.GetSegments(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.Equal(t, "s1", segs[0].ID)

	casts, err := c.GetCasts(ctx, []string{"c1", "missing"})
	require.NoError(t, err)
	require.Len(t, casts, 1)
	assert.Equal(t, "Aki", casts[0].Name)

	_, err = c.GetProgram(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	tok, err := c.GetOAuthTokens(ctx, "l1")
	require.NoError(t, err)
	assert.True(t, tok.HasScope("scope.read"))
	assert.False(t, tok.HasScope("scope.write"))

	programs, err := c.ListPrograms(ctx)
	require.NoError(t, err)
	require.Len(t, programs, 1)
}

func TestUpdateWatermarks_OnlyMovesForward(t *testing.T) {
	ctx := context.Background()
	c := seedObjectCatalog(t)
	newer := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	older := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, c.UpdateWatermarks(ctx, "p1", map[string]time.Time{"s1": older, "s2": newer}))
	segs, err := c.GetSegments(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), segs[0].Watermark())
	assert.Equal(t, newer, segs[1].Watermark())
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.PutProgram(models.ListenerProgram{ID: "p1"}, models.ProgramSegment{ID: "s1", Order: 1})
	m.PutCasts(models.RadioCast{ID: "c1"}, models.RadioCast{ID: "c2"})

	casts, err := m.GetCasts(ctx, []string{"c2", "c1"})
	require.NoError(t, err)
	assert.Equal(t, "c2", casts[0].ID)

	mark := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, m.UpdateWatermarks(ctx, "p1", map[string]time.Time{"s1": mark}))
	segs, err := m.GetSegments(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, mark, segs[0].Watermark())

	_, err = m.GetOAuthTokens(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}
