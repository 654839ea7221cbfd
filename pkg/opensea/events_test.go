package opensea

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEventType(t *testing.T) {
	for _, name := range []string{"sale", "offer", "listing"} {
		et, err := ParseEventType(name)
		require.NoError(t, err)
		assert.Equal(t, EventType(name), et)
	}

	for _, name := range []string{"", "Sale", "transfer", "sales"} {
		_, err := ParseEventType(name)
		require.ErrorIs(t, err, ErrInvalidEventType, name)
		assert.Contains(t, err.Error(), "sale, offer, listing")
	}
}

func TestEventsURL(t *testing.T) {
	tests := []struct {
		name     string
		base     string
		query    EventsQuery
		cursor   string
		expected string
	}{
		{
			name:     "no filter no cursor",
			base:     "https://api.opensea.io",
			query:    EventsQuery{Collection: "azuki"},
			expected: "https://api.opensea.io/api/v2/events/collection/azuki",
		},
		{
			name:     "filter only",
			base:     "https://api.opensea.io/",
			query:    EventsQuery{Collection: "azuki", EventType: EventTypeSale},
			expected: "https://api.opensea.io/api/v2/events/collection/azuki?event_type=sale",
		},
		{
			name:     "filter and cursor",
			base:     "https://api.opensea.io",
			query:    EventsQuery{Collection: "azuki", EventType: EventTypeListing},
			cursor:   "LXBrPTE=",
			expected: "https://api.opensea.io/api/v2/events/collection/azuki?event_type=listing&next=LXBrPTE%3D",
		},
		{
			name:     "cursor only",
			base:     "http://127.0.0.1:8080",
			query:    EventsQuery{Collection: "azuki"},
			cursor:   "abc",
			expected: "http://127.0.0.1:8080/api/v2/events/collection/azuki?next=abc",
		},
		{
			name:     "slug is path escaped",
			base:     "https://api.opensea.io",
			query:    EventsQuery{Collection: "a/b c"},
			expected: "https://api.opensea.io/api/v2/events/collection/a%2Fb%20c",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, eventsURL(tt.base, tt.query, tt.cursor))
		})
	}
}

func TestDecodePage(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantEvents []string
		wantNext   string
	}{
		{
			name:       "events and cursor",
			body:       `{"asset_events":[{"a":1},{"b":[2,3]}],"next":"c1"}`,
			wantEvents: []string{`{"a":1}`, `{"b":[2,3]}`},
			wantNext:   "c1",
		},
		{
			name:       "empty cursor",
			body:       `{"asset_events":[{"a":1}],"next":""}`,
			wantEvents: []string{`{"a":1}`},
		},
		{
			name:       "missing fields",
			body:       `{}`,
			wantEvents: nil,
		},
		{
			name:       "null cursor",
			body:       `{"asset_events":[],"next":null}`,
			wantEvents: []string{},
		},
		{
			name:       "non-array events and non-string cursor",
			body:       `{"asset_events":{"a":1},"next":42}`,
			wantEvents: nil,
		},
		{
			name:       "valid JSON that is not an object",
			body:       `[1,2,3]`,
			wantEvents: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := decodePage([]byte(tt.body))
			require.NoError(t, err)

			assert.Equal(t, tt.wantNext, page.Next)
			require.Len(t, page.Events, len(tt.wantEvents))
			for i, want := range tt.wantEvents {
				assert.JSONEq(t, want, string(page.Events[i]))
			}
		})
	}
}

func TestDecodePage_InvalidJSON(t *testing.T) {
	for _, body := range []string{"", "<html>", `{"asset_events":[`} {
		_, err := decodePage([]byte(body))
		assert.ErrorIs(t, err, ErrDecode, body)
	}
}

func TestDecodePage_PreservesEventBytes(t *testing.T) {
	body := `{"asset_events":[{"z":1,"a":{"nested":true}}],"next":""}`

	page, err := decodePage([]byte(body))
	require.NoError(t, err)
	require.Len(t, page.Events, 1)

	assert.Equal(t, json.RawMessage(`{"z":1,"a":{"nested":true}}`), page.Events[0])
}
