package pagination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedFetcher serves pages keyed by the cursor that requests them.
type scriptedFetcher struct {
	pages   map[string]Page
	errs    map[string]error
	cursors []string
}

func (f *scriptedFetcher) FetchPage(_ context.Context, cursor string) (Page, error) {
	f.cursors = append(f.cursors, cursor)
	if err, ok := f.errs[cursor]; ok {
		return Page{}, err
	}
	page, ok := f.pages[cursor]
	if !ok {
		return Page{}, fmt.Errorf("unexpected cursor %q", cursor)
	}
	return page, nil
}

func rawEvents(ids ...int) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(ids))
	for _, id := range ids {
		out = append(out, json.RawMessage(fmt.Sprintf(`{"id":%d}`, id)))
	}
	return out
}

func TestWalk_FollowsCursorsToTheEnd(t *testing.T) {
	fetcher := &scriptedFetcher{pages: map[string]Page{
		"":   {Events: rawEvents(1, 2), Next: "c1"},
		"c1": {Events: rawEvents(3), Next: "c2"},
		"c2": {Events: rawEvents(4, 5), Next: "c3"},
		"c3": {Events: rawEvents(6), Next: ""},
	}}

	events, err := NewWalker(fetcher, DefaultConfig()).Walk(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"", "c1", "c2", "c3"}, fetcher.cursors)
	assert.Equal(t, rawEvents(1, 2, 3, 4, 5, 6), events)
}

func TestWalk_EmptyCollection(t *testing.T) {
	fetcher := &scriptedFetcher{pages: map[string]Page{
		"": {Events: nil, Next: ""},
	}}

	events, err := NewWalker(fetcher, DefaultConfig()).Walk(context.Background())
	require.NoError(t, err)

	assert.NotNil(t, events)
	assert.Empty(t, events)
	assert.Len(t, fetcher.cursors, 1)

	out, err := Marshal(events)
	require.NoError(t, err)
	assert.Equal(t, "[]", out)
}

func TestWalk_FailureDiscardsAccumulatedEvents(t *testing.T) {
	pageErr := errors.New("boom")
	fetcher := &scriptedFetcher{
		pages: map[string]Page{
			"":   {Events: rawEvents(1), Next: "c1"},
			"c1": {Events: rawEvents(2), Next: "c2"},
		},
		errs: map[string]error{"c2": pageErr},
	}

	events, err := NewWalker(fetcher, DefaultConfig()).Walk(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, pageErr)
	assert.Contains(t, err.Error(), "page 3")
	assert.Nil(t, events)
	assert.Equal(t, []string{"", "c1", "c2"}, fetcher.cursors)
}

func TestWalk_MaxPages(t *testing.T) {
	looping := PageFetcherFunc(func(_ context.Context, cursor string) (Page, error) {
		return Page{Events: rawEvents(1), Next: "same"}, nil
	})

	_, err := NewWalker(looping, Config{MaxPages: 3}).Walk(context.Background())
	assert.ErrorIs(t, err, ErrPageLimit)
}

func TestWalk_ContextCancelledBetweenPages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	fetcher := PageFetcherFunc(func(_ context.Context, cursor string) (Page, error) {
		calls++
		cancel()
		return Page{Events: rawEvents(calls), Next: "more"}, nil
	})

	_, err := NewWalker(fetcher, DefaultConfig()).Walk(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestMarshal_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 50; i++ {
		n := rng.Intn(20)
		events := make([]json.RawMessage, 0, n)
		for j := 0; j < n; j++ {
			obj := map[string]any{
				"event_type": []string{"sale", "offer", "listing"}[rng.Intn(3)],
				"quantity":   rng.Intn(100),
				"nft":        map[string]any{"identifier": fmt.Sprint(rng.Int63())},
				"closed":     rng.Intn(2) == 0,
			}
			data, err := json.Marshal(obj)
			require.NoError(t, err)
			events = append(events, data)
		}

		out, err := Marshal(events)
		require.NoError(t, err)

		var parsed []any
		require.NoError(t, json.Unmarshal([]byte(out), &parsed))
		require.Len(t, parsed, len(events))

		for j, ev := range events {
			var want any
			require.NoError(t, json.Unmarshal(ev, &want))
			assert.Equal(t, want, parsed[j])
		}
	}
}
