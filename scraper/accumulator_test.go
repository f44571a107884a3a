package scraper

import (
	"testing"

	"jobs-scraper/models"

	"github.com/stretchr/testify/require"
)

func TestAccumulatorFirstSeenWins(t *testing.T) {
	acc := NewResultAccumulator()

	require.True(t, acc.Add(models.Listing{Title: "first", Link: "https://x/1"}))
	require.True(t, acc.Add(models.Listing{Title: "other", Link: "https://x/2"}))
	require.False(t, acc.Add(models.Listing{Title: "second", Link: "https://x/1"}))

	got := acc.Snapshot()
	require.Len(t, got, 2)
	require.Equal(t, "first", got[0].Title)
	require.Equal(t, "other", got[1].Title)
}

func TestAccumulatorKeepsListingsWithoutLink(t *testing.T) {
	acc := NewResultAccumulator()
	added := acc.AddAll([]models.Listing{{Title: "a"}, {Title: "b"}, {Title: "c", Link: "https://x/c"}})

	require.Equal(t, 3, added)
	require.Equal(t, 3, acc.Len())
}

func TestAccumulatorUnseen(t *testing.T) {
	acc := NewResultAccumulator()
	acc.Add(models.Listing{Link: "https://x/1"})

	fresh := acc.Unseen([]models.Listing{
		{Link: "https://x/1"},
		{Link: "https://x/2"},
		{Link: "https://x/2"},
		{Title: "no link"},
	})

	require.Len(t, fresh, 2)
	require.Equal(t, "https://x/2", fresh[0].Link)
	require.Equal(t, "no link", fresh[1].Title)
	// Unseen does not store anything
	require.Equal(t, 1, acc.Len())
}

func TestAccumulatorSnapshotIsACopy(t *testing.T) {
	acc := NewResultAccumulator()
	acc.Add(models.Listing{Title: "a", Link: "https://x/a"})

	snap := acc.Snapshot()
	snap[0].Title = "changed"

	require.Equal(t, "a", acc.Snapshot()[0].Title)
}
