package history

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func sampleEntry(owner string, status int) *Entry {
	return &Entry{
		OwnerID:  owner,
		Endpoint: "https://api.example.com/users",
		Method:   "GET",
		Request: RequestData{
			Headers: map[string]string{"Accept": "application/json"},
		},
		Response: ResponseData{
			Status:     status,
			StatusText: "OK",
			Headers:    map[string]string{"Content-Type": "application/json"},
			Body:       map[string]any{"ok": true},
		},
	}
}

func TestStore_Append(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	entry := sampleEntry("owner-1", 200)
	id, err := store.Append(ctx, entry)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, entry.ID)
	assert.False(t, entry.Timestamp.IsZero())
	assert.Positive(t, entry.Seq)

	got, err := store.GetOne(ctx, "owner-1", id)
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/users", got.Endpoint)
	assert.Equal(t, "GET", got.Method)
	assert.Equal(t, 200, got.Response.Status)
	assert.Equal(t, map[string]any{"ok": true}, got.Response.Body)
	assert.Equal(t, "application/json", got.Request.Headers["Accept"])
	assert.WithinDuration(t, entry.Timestamp, got.Timestamp, time.Millisecond)
}

func TestStore_AppendRequiresOwner(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	_, err := store.Append(context.Background(), &Entry{Endpoint: "https://example.com", Method: "GET"})
	require.Error(t, err)
}

func TestStore_TextBodyRoundTrip(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	entry := sampleEntry("owner-1", 200)
	entry.Response.Body = "<html>hello</html>"

	id, err := store.Append(ctx, entry)
	require.NoError(t, err)

	got, err := store.GetOne(ctx, "owner-1", id)
	require.NoError(t, err)
	assert.Equal(t, "<html>hello</html>", got.Response.Body)
}

func TestStore_Page(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := range 15 {
		entry := sampleEntry("owner-1", 200)
		entry.Endpoint = fmt.Sprintf("https://api.example.com/items/%d", i)
		entry.Timestamp = base.Add(time.Duration(i) * time.Minute)
		_, err := store.Append(ctx, entry)
		require.NoError(t, err)
	}

	page1, err := store.Page(ctx, "owner-1", 1, 10)
	require.NoError(t, err)
	assert.Len(t, page1.Items, 10)
	assert.Equal(t, 1, page1.CurrentPage)
	assert.Equal(t, 2, page1.TotalPages)
	assert.Equal(t, int64(15), page1.TotalCount)
	assert.True(t, page1.HasNext)
	assert.False(t, page1.HasPrev)
	// Newest first.
	assert.Equal(t, "https://api.example.com/items/14", page1.Items[0].Endpoint)

	page2, err := store.Page(ctx, "owner-1", 2, 10)
	require.NoError(t, err)
	assert.Len(t, page2.Items, 5)
	assert.False(t, page2.HasNext)
	assert.True(t, page2.HasPrev)

	// Concatenated pages cover the full set exactly once.
	seen := map[string]bool{}
	for _, e := range append(page1.Items, page2.Items...) {
		assert.False(t, seen[e.ID], "duplicate entry %s", e.ID)
		seen[e.ID] = true
	}
	assert.Len(t, seen, 15)

	for i := 1; i < len(page1.Items); i++ {
		assert.False(t, page1.Items[i-1].Timestamp.Before(page1.Items[i].Timestamp))
	}
}

func TestStore_PageTiebreakIsStable(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for range 5 {
		entry := sampleEntry("owner-1", 200)
		entry.Timestamp = ts
		_, err := store.Append(ctx, entry)
		require.NoError(t, err)
	}

	first, err := store.Page(ctx, "owner-1", 1, 5)
	require.NoError(t, err)

	second, err := store.Page(ctx, "owner-1", 1, 5)
	require.NoError(t, err)

	for i := range first.Items {
		assert.Equal(t, first.Items[i].ID, second.Items[i].ID)
	}

	// Ties resolve to the most recently inserted entry first.
	for i := 1; i < len(first.Items); i++ {
		assert.Greater(t, first.Items[i-1].Seq, first.Items[i].Seq)
	}
}

func TestStore_PageClamping(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	for range 3 {
		_, err := store.Append(ctx, sampleEntry("owner-1", 200))
		require.NoError(t, err)
	}

	// Out-of-range inputs are clamped, not rejected.
	page, err := store.Page(ctx, "owner-1", -4, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, page.CurrentPage)
	assert.Equal(t, 1, page.Limit)
	assert.Len(t, page.Items, 1)

	page, err = store.Page(ctx, "owner-1", 1, 5000)
	require.NoError(t, err)
	assert.Equal(t, MaxLimit, page.Limit)

	// A page past the end is empty but carries correct metadata.
	page, err = store.Page(ctx, "owner-1", 99, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, 99, page.CurrentPage)
	assert.Equal(t, int64(3), page.TotalCount)
	assert.False(t, page.HasNext)
	assert.True(t, page.HasPrev)
}

func TestStore_OwnershipIsolation(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Append(ctx, sampleEntry("owner-1", 200))
	require.NoError(t, err)

	// Another owner's lookups report not-found, never the entry itself.
	_, err = store.GetOne(ctx, "owner-2", id)
	require.ErrorIs(t, err, ErrNotFound)

	deleted, err := store.DeleteOne(ctx, "owner-2", id)
	require.NoError(t, err)
	assert.False(t, deleted)

	page, err := store.Page(ctx, "owner-2", 1, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, int64(0), page.TotalCount)

	// The rightful owner still sees it.
	got, err := store.GetOne(ctx, "owner-1", id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
}

func TestStore_DeleteOne(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Append(ctx, sampleEntry("owner-1", 200))
	require.NoError(t, err)

	deleted, err := store.DeleteOne(ctx, "owner-1", id)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = store.DeleteOne(ctx, "owner-1", id)
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = store.GetOne(ctx, "owner-1", id)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStore_DeleteAll(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	for range 5 {
		_, err := store.Append(ctx, sampleEntry("owner-1", 200))
		require.NoError(t, err)
	}

	_, err := store.Append(ctx, sampleEntry("owner-2", 200))
	require.NoError(t, err)

	count, err := store.DeleteAll(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)

	page, err := store.Page(ctx, "owner-1", 1, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, int64(0), page.TotalCount)

	// Clearing an already-empty history is not an error.
	count, err = store.DeleteAll(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	// Other owners are untouched.
	page, err = store.Page(ctx, "owner-2", 1, 10)
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
}

func TestStore_Outcomes(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	statuses := []int{200, 201, 404, 500}
	for _, status := range statuses {
		entry := sampleEntry("owner-1", status)
		if status >= 400 {
			entry.Method = "POST"
		}
		_, err := store.Append(ctx, entry)
		require.NoError(t, err)
	}

	outcomes, err := store.Outcomes(ctx, "owner-1")
	require.NoError(t, err)
	require.Len(t, outcomes, 4)

	methods := map[string]int{}
	for _, o := range outcomes {
		methods[o.Method]++
	}
	assert.Equal(t, map[string]int{"GET": 2, "POST": 2}, methods)

	outcomes, err = store.Outcomes(ctx, "owner-2")
	require.NoError(t, err)
	assert.Empty(t, outcomes)
}
