package memory

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/newsdesk-sync/internal/syncer"
)

func TestRunStoreKeepsNewestFirst(t *testing.T) {
	t.Parallel()

	store := NewRunStore(3)
	_, ok := store.Latest()
	require.False(t, ok)

	for i := 1; i <= 4; i++ {
		store.Record(syncer.RunSummary{RunID: fmt.Sprintf("run-%d", i), TotalFound: i})
	}

	latest, ok := store.Latest()
	require.True(t, ok)
	require.Equal(t, "run-4", latest.RunID)

	all := store.List(10, 0)
	require.Len(t, all, 3)
	require.Equal(t, []string{"run-4", "run-3", "run-2"}, runIDs(all))

	require.Equal(t, []string{"run-3"}, runIDs(store.List(1, 1)))
	require.Empty(t, store.List(5, 10))

	_, ok = store.Get("run-1")
	require.False(t, ok, "oldest run should be evicted")
	got, ok := store.Get("run-2")
	require.True(t, ok)
	require.Equal(t, 2, got.TotalFound)
}

func TestRunStoreCopiesSites(t *testing.T) {
	t.Parallel()

	store := NewRunStore(0)
	sites := []syncer.SiteSummary{{Site: "reuters", Found: 2}}
	store.Record(syncer.RunSummary{RunID: "run", Sites: sites})
	sites[0].Found = 99

	got, _ := store.Latest()
	require.Equal(t, 2, got.Sites[0].Found)
}

func runIDs(runs []syncer.RunSummary) []string {
	out := make([]string, 0, len(runs))
	for _, r := range runs {
		out = append(out, r.RunID)
	}
	return out
}
