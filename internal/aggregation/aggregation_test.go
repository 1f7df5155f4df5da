package aggregation_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidemark/internal/aggregation"
	"tidemark/internal/events"
)

var day = time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

func pageView(sessionID, userID, url string, ts time.Time) events.RawEvent {
	return events.RawEvent{
		EventType: events.EventTypePageView,
		URL:       url,
		SessionID: sessionID,
		UserID:    userID,
		Timestamp: ts,
	}
}

func click(sessionID, url string, element map[string]any, ts time.Time) events.RawEvent {
	var metadata events.Metadata
	if element != nil {
		metadata = events.Metadata{"element": element}
	}
	return events.RawEvent{
		EventType: events.EventTypeClick,
		URL:       url,
		SessionID: sessionID,
		Metadata:  metadata,
		Timestamp: ts,
	}
}

func TestAggregateSingleSessionWithClick(t *testing.T) {
	batch := []events.RawEvent{
		pageView("s1", "", "/a", day.Add(1*time.Second)),
		pageView("s1", "", "/a", day.Add(4*time.Second)),
		click("s1", "/a", map[string]any{"tag": "button", "id": "buy", "text": "Buy now"}, day.Add(7*time.Second)),
	}

	result := aggregation.Aggregate(batch)

	assert.Equal(t, 2, result.Totals.PageViews)
	assert.Equal(t, 1, result.Totals.UniqueVisitors)
	assert.Equal(t, 1, result.Totals.Sessions)
	assert.Equal(t, 1, result.Totals.Clicks)
	// Two page views in the session, so it is not a bounce.
	assert.Equal(t, 0.0, result.Totals.BounceRate)
	// Session span is first event to last event, clicks included.
	assert.Equal(t, 6.0, result.Totals.AvgSessionDuration)

	require.Len(t, result.TopPages, 1)
	assert.Equal(t, "/a", result.TopPages[0].Path)
	assert.Equal(t, 2, result.TopPages[0].PageViews)
	assert.Equal(t, 1, result.TopPages[0].UniqueVisitors)

	require.Len(t, result.ClickedElements, 1)
	assert.Equal(t, "#buy", result.ClickedElements[0].Selector)
	assert.Equal(t, "button", result.ClickedElements[0].Tag)
	assert.Equal(t, "Buy now", result.ClickedElements[0].Text)
	assert.Equal(t, "/a", result.ClickedElements[0].Page)
	assert.Equal(t, 1, result.ClickedElements[0].Clicks)
	assert.Equal(t, 1, result.ClickedElements[0].UniqueVisitors)
}

func TestAggregateEmptyBatch(t *testing.T) {
	result := aggregation.Aggregate(nil)

	assert.Equal(t, aggregation.Totals{}, result.Totals)
	assert.Empty(t, result.TopPages)
	assert.Empty(t, result.Referrers)
	assert.Empty(t, result.Devices)
	assert.Empty(t, result.EventTypes)
	assert.Empty(t, result.ClickedElements)
}

func TestAggregateOrderIndependence(t *testing.T) {
	batch := []events.RawEvent{
		pageView("s1", "u1", "/a", day.Add(10*time.Second)),
		pageView("s1", "u1", "/b", day.Add(2*time.Second)),
		pageView("s2", "", "/a", day.Add(5*time.Second)),
		click("s2", "/a", map[string]any{"tag": "a", "class": "nav primary"}, day.Add(6*time.Second)),
		{EventType: events.EventTypeError, SessionID: "s2", Timestamp: day.Add(7 * time.Second)},
	}

	forward := aggregation.Aggregate(batch)

	reversed := make([]events.RawEvent, len(batch))
	for i := range batch {
		reversed[i] = batch[len(batch)-1-i]
	}
	backward := aggregation.Aggregate(reversed)

	assert.Equal(t, forward.Totals, backward.Totals)
	assert.ElementsMatch(t, forward.TopPages, backward.TopPages)
	assert.ElementsMatch(t, forward.EventTypes, backward.EventTypes)
	assert.ElementsMatch(t, forward.ClickedElements, backward.ClickedElements)

	// Session duration folds as min/max, so delivery order never changes it:
	// s1 spans 8s, s2 spans 2s.
	assert.Equal(t, 5.0, forward.Totals.AvgSessionDuration)
}

func TestAggregateBounceRate(t *testing.T) {
	t.Run("single page view session bounces", func(t *testing.T) {
		result := aggregation.Aggregate([]events.RawEvent{
			pageView("s1", "", "/a", day),
		})
		assert.Equal(t, 100.0, result.Totals.BounceRate)
	})

	t.Run("clicks do not break a bounce", func(t *testing.T) {
		result := aggregation.Aggregate([]events.RawEvent{
			pageView("s1", "", "/a", day),
			click("s1", "/a", map[string]any{"tag": "button"}, day.Add(time.Second)),
		})
		assert.Equal(t, 100.0, result.Totals.BounceRate)
	})

	t.Run("session without page views is not a bounce", func(t *testing.T) {
		result := aggregation.Aggregate([]events.RawEvent{
			{EventType: events.EventTypeError, SessionID: "s1", Timestamp: day},
		})
		assert.Equal(t, 1, result.Totals.Sessions)
		assert.Equal(t, 0.0, result.Totals.BounceRate)
	})

	t.Run("mixed sessions", func(t *testing.T) {
		result := aggregation.Aggregate([]events.RawEvent{
			pageView("s1", "", "/a", day),
			pageView("s2", "", "/a", day),
			pageView("s2", "", "/b", day.Add(time.Second)),
		})
		assert.Equal(t, 50.0, result.Totals.BounceRate)
	})
}

func TestAggregateVisitorIdentity(t *testing.T) {
	batch := []events.RawEvent{
		// Same user across two sessions collapses to one visitor.
		pageView("s1", "u1", "/a", day),
		pageView("s2", "u1", "/a", day),
		// No user id falls back to the session id.
		pageView("s3", "", "/a", day),
		// Neither id lands in the shared anonymous bucket.
		pageView("", "", "/a", day),
		pageView("", "", "/b", day),
	}

	result := aggregation.Aggregate(batch)

	// u1, s3, anonymous.
	assert.Equal(t, 3, result.Totals.UniqueVisitors)
	// s1, s2, s3, unknown.
	assert.Equal(t, 4, result.Totals.Sessions)
}

func TestAggregateSessionlessEventsShareOneSession(t *testing.T) {
	result := aggregation.Aggregate([]events.RawEvent{
		pageView("", "", "/a", day),
		pageView("", "", "/b", day.Add(time.Minute)),
		{EventType: events.EventTypeError, Timestamp: day.Add(2 * time.Minute)},
	})

	assert.Equal(t, 1, result.Totals.Sessions)
	assert.Equal(t, 120.0, result.Totals.AvgSessionDuration)
}

func TestAggregateTopPagesRanking(t *testing.T) {
	var batch []events.RawEvent
	// /popular gets 3 views, /mid and /tied get 2 each, /rare gets 1.
	// /mid is encountered before /tied so the tie keeps that order.
	for i := 0; i < 3; i++ {
		batch = append(batch, pageView(fmt.Sprintf("s%d", i), "", "/popular", day))
	}
	batch = append(batch,
		pageView("s0", "", "/mid", day),
		pageView("s9", "", "/tied", day),
		pageView("s1", "", "/mid", day),
		pageView("s8", "", "/tied", day),
		pageView("s0", "", "/rare", day),
	)

	result := aggregation.Aggregate(batch)

	require.Len(t, result.TopPages, 4)
	assert.Equal(t, "/popular", result.TopPages[0].Path)
	assert.Equal(t, 3, result.TopPages[0].PageViews)
	assert.Equal(t, 3, result.TopPages[0].UniqueVisitors)
	assert.Equal(t, "/mid", result.TopPages[1].Path)
	assert.Equal(t, "/tied", result.TopPages[2].Path)
	assert.Equal(t, "/rare", result.TopPages[3].Path)
}

func TestAggregateTopPagesTruncation(t *testing.T) {
	var batch []events.RawEvent
	for i := 0; i < 60; i++ {
		url := fmt.Sprintf("/page-%02d", i)
		// Later pages get more views so the cut drops the earliest ten.
		for v := 0; v <= i; v++ {
			batch = append(batch, pageView(fmt.Sprintf("s%d", v), "", url, day))
		}
	}

	result := aggregation.Aggregate(batch)

	require.Len(t, result.TopPages, aggregation.TopPagesLimit)
	assert.Equal(t, "/page-59", result.TopPages[0].Path)
	assert.Equal(t, 60, result.TopPages[0].PageViews)
	assert.Equal(t, "/page-10", result.TopPages[len(result.TopPages)-1].Path)
}

func TestAggregateReferrers(t *testing.T) {
	ref := func(sessionID, url, referrer string) events.RawEvent {
		e := pageView(sessionID, "", url, day)
		e.Referrer = referrer
		return e
	}

	result := aggregation.Aggregate([]events.RawEvent{
		ref("s1", "/a", "https://Google.com/search?q=x"),
		ref("s2", "/a", "https://Google.com/search?q=x"),
		ref("s3", "/a", "not a url"),
		pageView("s4", "", "/a", day), // empty referrer is skipped
	})

	require.Len(t, result.Referrers, 2)
	assert.Equal(t, "https://Google.com/search?q=x", result.Referrers[0].Referrer)
	assert.Equal(t, "google.com", result.Referrers[0].Domain)
	assert.Equal(t, 2, result.Referrers[0].Visits)
	assert.Equal(t, 2, result.Referrers[0].UniqueVisitors)
	// Unparseable referrers keep the raw value as their domain.
	assert.Equal(t, "not a url", result.Referrers[1].Domain)
}

func TestAggregateDevices(t *testing.T) {
	ua := func(sessionID, userAgent string) events.RawEvent {
		e := pageView(sessionID, "", "/a", day)
		e.UserAgent = userAgent
		return e
	}

	const chromeWin = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
	const safariIPhone = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"

	result := aggregation.Aggregate([]events.RawEvent{
		ua("s1", chromeWin),
		ua("s2", chromeWin),
		ua("s3", safariIPhone),
		pageView("s4", "", "/a", day), // no user agent, no device bucket
	})

	require.Len(t, result.Devices, 2)
	assert.Equal(t, "desktop", result.Devices[0].DeviceType)
	assert.Equal(t, "Chrome", result.Devices[0].Browser)
	assert.Equal(t, "Windows", result.Devices[0].OS)
	assert.Equal(t, 2, result.Devices[0].Count)
	assert.Equal(t, "mobile", result.Devices[1].DeviceType)
	assert.Equal(t, "Safari", result.Devices[1].Browser)
	assert.Equal(t, "iOS", result.Devices[1].OS)
}

func TestAggregateEventTypeBreakdown(t *testing.T) {
	result := aggregation.Aggregate([]events.RawEvent{
		pageView("s1", "", "/a", day),
		pageView("s2", "", "/a", day),
		{EventType: events.EventTypeRageClick, SessionID: "s1", Timestamp: day},
		{EventType: "custom_goal", SessionID: "s1", Timestamp: day},
	})

	require.Len(t, result.EventTypes, 3)
	assert.Equal(t, events.EventTypePageView, result.EventTypes[0].EventType)
	assert.Equal(t, 2, result.EventTypes[0].Count)
	assert.Equal(t, 2, result.EventTypes[0].UniqueVisitors)

	assert.Equal(t, 1, result.Totals.RageClicks)

	// Unrecognized types still show up in the breakdown.
	types := make(map[string]int)
	for _, bucket := range result.EventTypes {
		types[bucket.EventType] = bucket.Count
	}
	assert.Equal(t, 1, types["custom_goal"])
}

func TestAggregateScrollDepth(t *testing.T) {
	scroll := func(sessionID string, pct float64) events.RawEvent {
		return events.RawEvent{
			EventType: events.EventTypeScroll,
			SessionID: sessionID,
			Metadata:  events.Metadata{"scrollPercentage": pct},
			Timestamp: day,
		}
	}

	result := aggregation.Aggregate([]events.RawEvent{
		scroll("s1", 40),
		scroll("s1", 80),
		{
			EventType: events.EventTypeScrollDepth,
			SessionID: "s1",
			Metadata:  events.Metadata{"depth": float64(90)},
			Timestamp: day,
		},
		// Missing depth contributes nothing to the average.
		{EventType: events.EventTypeScroll, SessionID: "s1", Timestamp: day},
	})

	assert.Equal(t, 3, result.Totals.Scrolls)
	assert.Equal(t, 70.0, result.Totals.AvgScrollDepth)
}

func TestAggregateClickedElementSelectors(t *testing.T) {
	result := aggregation.Aggregate([]events.RawEvent{
		click("s1", "/a", map[string]any{"tag": "button", "id": "cta"}, day),
		click("s2", "/a", map[string]any{"tag": "a", "class": "nav primary"}, day),
		click("s3", "/a", map[string]any{"tag": "div"}, day),
		click("s4", "/a", map[string]any{"text": "no tag"}, day),
		// No element descriptor at all: counted as a click, no bucket.
		click("s5", "/a", nil, day),
	})

	assert.Equal(t, 5, result.Totals.Clicks)
	require.Len(t, result.ClickedElements, 4)

	selectors := make(map[string]bool)
	for _, bucket := range result.ClickedElements {
		selectors[bucket.Selector] = true
	}
	assert.True(t, selectors["#cta"])
	assert.True(t, selectors["a.nav"])
	assert.True(t, selectors["div"])
	assert.True(t, selectors["unknown"])
}

func TestAggregateClickedElementTruncation(t *testing.T) {
	var batch []events.RawEvent
	for i := 0; i < 120; i++ {
		element := map[string]any{"tag": "button", "id": fmt.Sprintf("el-%03d", i)}
		for c := 0; c <= i%7; c++ {
			batch = append(batch, click(fmt.Sprintf("s%d", c), "/a", element, day))
		}
	}

	result := aggregation.Aggregate(batch)
	assert.Len(t, result.ClickedElements, aggregation.TopElementsLimit)
}

func TestAggregateMalformedMetadata(t *testing.T) {
	result := aggregation.Aggregate([]events.RawEvent{
		{
			EventType: events.EventTypeScroll,
			SessionID: "s1",
			Metadata:  events.DecodeMetadata("{not json"),
			Timestamp: day,
		},
		{
			EventType: events.EventTypeClick,
			SessionID: "s1",
			Metadata:  events.Metadata{"element": "not a map"},
			Timestamp: day,
		},
		pageView("s1", "", "/a", day),
	})

	// Malformed payloads are skipped, never fatal.
	assert.Equal(t, 1, result.Totals.Scrolls)
	assert.Equal(t, 1, result.Totals.Clicks)
	assert.Equal(t, 1, result.Totals.PageViews)
	assert.Empty(t, result.ClickedElements)
	assert.Equal(t, 0.0, result.Totals.AvgScrollDepth)
}
