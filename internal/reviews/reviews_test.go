package reviews

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepository(t *testing.T) {
	repo := NewMemoryRepository()
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	repo.nowFunc = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}
	ctx := context.Background()

	require.NoError(t, repo.Add(ctx, &Review{PaperID: 1, Reviewer: "r1", Suggestions: "tighten intro"}))
	require.NoError(t, repo.Add(ctx, &Review{PaperID: 2, Reviewer: "r2"}))
	require.NoError(t, repo.Add(ctx, &Review{PaperID: 1, Reviewer: "r3", OverallComment: "accept"}))

	got, err := repo.ListFor(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "r1", got[0].Reviewer)
	assert.Equal(t, "r3", got[1].Reviewer)
	assert.True(t, got[0].CreatedAt.Before(got[1].CreatedAt))

	// returned values are copies
	got[0].Suggestions = "changed"
	again, _ := repo.ListFor(ctx, 1)
	assert.Equal(t, "tighten intro", again[0].Suggestions)

	require.NoError(t, repo.DeleteFor(ctx, 1))
	got, err = repo.ListFor(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, got)
	got, _ = repo.ListFor(ctx, 2)
	assert.Len(t, got, 1)
}
