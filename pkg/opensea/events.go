package opensea

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/Sternrassler/nftide/pkg/pagination"
)

// EventType filters the events endpoint.
type EventType string

const (
	// EventTypeAny requests all event types (no filter).
	EventTypeAny EventType = ""

	EventTypeSale    EventType = "sale"
	EventTypeOffer   EventType = "offer"
	EventTypeListing EventType = "listing"
)

// EventTypes lists the accepted filter values.
var EventTypes = []EventType{EventTypeSale, EventTypeOffer, EventTypeListing}

// ParseEventType validates s against the accepted event types.
func ParseEventType(s string) (EventType, error) {
	et := EventType(s)
	if et.Valid() {
		return et, nil
	}
	names := make([]string, len(EventTypes))
	for i, t := range EventTypes {
		names[i] = string(t)
	}
	return "", fmt.Errorf("%w: %q (valid options are: %s)", ErrInvalidEventType, s, strings.Join(names, ", "))
}

// Valid reports whether et is one of sale, offer or listing.
func (et EventType) Valid() bool {
	switch et {
	case EventTypeSale, EventTypeOffer, EventTypeListing:
		return true
	}
	return false
}

// EventsQuery selects the events of one collection.
type EventsQuery struct {
	Collection string
	EventType  EventType
}

const eventsPath = "/api/v2/events/collection/"

// eventsURL builds the events URL for q, adding event_type when a filter is
// set and next when a cursor is held.
func eventsURL(baseURL string, q EventsQuery, cursor string) string {
	u := strings.TrimRight(baseURL, "/") + eventsPath + url.PathEscape(q.Collection)

	params := url.Values{}
	if q.EventType != EventTypeAny {
		params.Set("event_type", string(q.EventType))
	}
	if cursor != "" {
		params.Set("next", cursor)
	}
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

// decodePage extracts asset_events and next from an events response body.
// A missing or non-array asset_events yields no events; a missing or
// non-string next yields no cursor. Only invalid JSON is an error.
func decodePage(body []byte) (pagination.Page, error) {
	if !json.Valid(body) {
		return pagination.Page{}, fmt.Errorf("%w: invalid JSON (%d bytes)", ErrDecode, len(body))
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		// Valid JSON that is not an object carries neither field.
		return pagination.Page{}, nil
	}

	var page pagination.Page
	if raw, ok := doc["asset_events"]; ok {
		var events []json.RawMessage
		if err := json.Unmarshal(raw, &events); err == nil {
			page.Events = events
		}
	}
	if raw, ok := doc["next"]; ok {
		var next string
		if err := json.Unmarshal(raw, &next); err == nil {
			page.Next = next
		}
	}
	return page, nil
}
