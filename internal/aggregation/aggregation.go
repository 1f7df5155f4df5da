// Package aggregation compresses one project/day batch of raw events into
// the structured summary the rollup writer persists. Aggregate is a pure
// function of its input batch: all state lives in a builder allocated per
// call and discarded on return, so concurrent runs for different batches
// are safe by construction.
package aggregation

import (
	"sort"
	"strings"
	"time"

	"tidemark/internal/events"
	"tidemark/internal/pkg/referrers"
	"tidemark/internal/pkg/user_agent"
)

// Rank truncation limits for the long-tail dimensions. Devices and the
// event-type breakdown are returned in full.
const (
	TopPagesLimit     = 50
	TopReferrersLimit = 50
	TopElementsLimit  = 100
)

// Totals holds the scalar daily metrics.
type Totals struct {
	PageViews          int
	UniqueVisitors     int
	Sessions           int
	Clicks             int
	Scrolls            int
	Errors             int
	AvgSessionDuration float64 // seconds
	BounceRate         float64 // percent
	AvgScrollDepth     float64 // percent
	RageClicks         int
	DeadClicks         int
	ErrorClicks        int
}

// PageBucket is one URL's aggregate.
type PageBucket struct {
	Path           string
	PageViews      int
	UniqueVisitors int
}

// ReferrerBucket is one referrer's aggregate. Buckets are keyed by the raw
// referrer string; Domain is normalized once when the bucket is created.
type ReferrerBucket struct {
	Referrer       string
	Domain         string
	Visits         int
	UniqueVisitors int
}

// DeviceBucket is one device/browser/OS signature's aggregate.
type DeviceBucket struct {
	DeviceType     string
	Browser        string
	OS             string
	Count          int
	UniqueVisitors int
}

// EventTypeBucket is one event type's aggregate. Unrecognized types pass
// through uncategorized, so the breakdown always covers the whole batch.
type EventTypeBucket struct {
	EventType      string
	Count          int
	UniqueVisitors int
}

// ElementBucket is one clicked element's aggregate. Tag, Text and Page are
// retained from the first click seen for the selector.
type ElementBucket struct {
	Selector       string
	Tag            string
	Text           string
	Page           string
	Clicks         int
	UniqueVisitors int
}

// Result is the full output of one aggregation run.
type Result struct {
	Totals          Totals
	TopPages        []PageBucket
	Referrers       []ReferrerBucket
	Devices         []DeviceBucket
	EventTypes      []EventTypeBucket
	ClickedElements []ElementBucket
}

// session accumulates per-session state during the fold. First/last are
// folded as event-time min/max so the result is independent of input order.
type session struct {
	firstSeenAt time.Time
	lastSeenAt  time.Time
	pageViews   int
}

func (s *session) observe(ts time.Time) {
	if s.firstSeenAt.IsZero() || ts.Before(s.firstSeenAt) {
		s.firstSeenAt = ts
	}
	if ts.After(s.lastSeenAt) {
		s.lastSeenAt = ts
	}
}

// visitorSet tracks distinct visitor ids for one bucket. Cardinality is
// read at finalize time, never mutated into a running counter.
type visitorSet map[string]struct{}

func (vs visitorSet) add(id string) { vs[id] = struct{}{} }

// builder holds all running state for one aggregation pass. Each dimension
// keeps its buckets, their visitor sets, and the key encounter order, which
// breaks rank ties in the truncated outputs.
type builder struct {
	totals Totals

	visitors visitorSet
	sessions map[string]*session

	pages     map[string]*PageBucket
	pageOrder []string
	pageVis   map[string]visitorSet

	refs     map[string]*ReferrerBucket
	refOrder []string
	refVis   map[string]visitorSet

	devices     map[string]*DeviceBucket
	deviceOrder []string
	deviceVis   map[string]visitorSet

	types     map[string]*EventTypeBucket
	typeOrder []string
	typeVis   map[string]visitorSet

	elements     map[string]*ElementBucket
	elementOrder []string
	elementVis   map[string]visitorSet

	scrollDepths []float64
}

func newBuilder() *builder {
	return &builder{
		visitors:   make(visitorSet),
		sessions:   make(map[string]*session),
		pages:      make(map[string]*PageBucket),
		pageVis:    make(map[string]visitorSet),
		refs:       make(map[string]*ReferrerBucket),
		refVis:     make(map[string]visitorSet),
		devices:    make(map[string]*DeviceBucket),
		deviceVis:  make(map[string]visitorSet),
		types:      make(map[string]*EventTypeBucket),
		typeVis:    make(map[string]visitorSet),
		elements:   make(map[string]*ElementBucket),
		elementVis: make(map[string]visitorSet),
	}
}

// Aggregate folds a batch of raw events for one project/day into a Result.
// Any permutation of the batch yields identical counters, cardinalities and
// bucket sets; input order is observable only where true rank ties are
// broken by first-encounter order.
func Aggregate(batch []events.RawEvent) *Result {
	b := newBuilder()

	for i := range batch {
		b.fold(&batch[i])
	}

	return b.finalize()
}

func (b *builder) fold(e *events.RawEvent) {
	visitor := e.VisitorID()
	b.visitors.add(visitor)

	sess, ok := b.sessions[e.SessionKey()]
	if !ok {
		sess = &session{}
		b.sessions[e.SessionKey()] = sess
	}
	sess.observe(e.Timestamp)

	switch e.EventType {
	case events.EventTypePageView:
		b.totals.PageViews++
		sess.pageViews++
		if e.URL != "" {
			b.foldPage(e.URL, visitor)
		}
		if e.Referrer != "" {
			b.foldReferrer(e.Referrer, visitor)
		}
	case events.EventTypeClick:
		b.totals.Clicks++
		b.foldClickedElement(e, visitor)
	case events.EventTypeScroll:
		b.totals.Scrolls++
		if depth, ok := e.Metadata.GetNumber("scrollPercentage"); ok {
			b.scrollDepths = append(b.scrollDepths, depth)
		}
	case events.EventTypeScrollDepth:
		// Feeds the same sample list as scroll but does not count as one.
		if depth, ok := e.Metadata.GetNumber("depth"); ok {
			b.scrollDepths = append(b.scrollDepths, depth)
		}
	case events.EventTypeError:
		b.totals.Errors++
	case events.EventTypeRageClick:
		b.totals.RageClicks++
	case events.EventTypeDeadClick:
		b.totals.DeadClicks++
	case events.EventTypeErrorClick:
		b.totals.ErrorClicks++
	}

	// Every event type, recognized or not, feeds the breakdown.
	b.foldEventType(e.EventType, visitor)

	if e.UserAgent != "" {
		b.foldDevice(e.UserAgent, visitor)
	}
}

func (b *builder) foldPage(url, visitor string) {
	bucket, ok := b.pages[url]
	if !ok {
		bucket = &PageBucket{Path: url}
		b.pages[url] = bucket
		b.pageVis[url] = make(visitorSet)
		b.pageOrder = append(b.pageOrder, url)
	}
	bucket.PageViews++
	b.pageVis[url].add(visitor)
}

func (b *builder) foldReferrer(referrer, visitor string) {
	bucket, ok := b.refs[referrer]
	if !ok {
		bucket = &ReferrerBucket{
			Referrer: referrer,
			Domain:   referrers.Domain(referrer),
		}
		b.refs[referrer] = bucket
		b.refVis[referrer] = make(visitorSet)
		b.refOrder = append(b.refOrder, referrer)
	}
	bucket.Visits++
	b.refVis[referrer].add(visitor)
}

func (b *builder) foldDevice(userAgent, visitor string) {
	c := user_agent.Classify(userAgent)
	key := c.DeviceType + "|" + c.Browser + "|" + c.OS

	bucket, ok := b.devices[key]
	if !ok {
		bucket = &DeviceBucket{DeviceType: c.DeviceType, Browser: c.Browser, OS: c.OS}
		b.devices[key] = bucket
		b.deviceVis[key] = make(visitorSet)
		b.deviceOrder = append(b.deviceOrder, key)
	}
	bucket.Count++
	b.deviceVis[key].add(visitor)
}

func (b *builder) foldEventType(eventType, visitor string) {
	bucket, ok := b.types[eventType]
	if !ok {
		bucket = &EventTypeBucket{EventType: eventType}
		b.types[eventType] = bucket
		b.typeVis[eventType] = make(visitorSet)
		b.typeOrder = append(b.typeOrder, eventType)
	}
	bucket.Count++
	b.typeVis[eventType].add(visitor)
}

func (b *builder) foldClickedElement(e *events.RawEvent, visitor string) {
	element, ok := e.Metadata.GetMap("element")
	if !ok {
		return
	}

	selector, tag := elementSelector(element)

	bucket, exists := b.elements[selector]
	if !exists {
		text, _ := element.GetString("text")
		bucket = &ElementBucket{
			Selector: selector,
			Tag:      tag,
			Text:     text,
			Page:     e.URL,
		}
		b.elements[selector] = bucket
		b.elementVis[selector] = make(visitorSet)
		b.elementOrder = append(b.elementOrder, selector)
	}
	bucket.Clicks++
	b.elementVis[selector].add(visitor)
}

// elementSelector derives the CSS-ish selector key for a clicked element
// descriptor: "#id" wins, then "tag.firstClass", then the bare tag.
func elementSelector(element events.Metadata) (selector, tag string) {
	tag, _ = element.GetString("tag")

	if id, ok := element.GetString("id"); ok && id != "" {
		return "#" + id, tag
	}

	if class, ok := element.GetString("class"); ok && class != "" && tag != "" {
		if first := strings.Fields(class); len(first) > 0 {
			return tag + "." + first[0], tag
		}
	}

	if tag != "" {
		return tag, tag
	}

	return "unknown", tag
}

func (b *builder) finalize() *Result {
	result := &Result{Totals: b.totals}

	result.Totals.UniqueVisitors = len(b.visitors)
	result.Totals.Sessions = len(b.sessions)

	// Session-derived metrics. A single-event session has duration 0; a
	// bounce is a session whose final page-view count is exactly 1.
	if len(b.sessions) > 0 {
		var totalDuration float64
		bounces := 0
		for _, sess := range b.sessions {
			totalDuration += sess.lastSeenAt.Sub(sess.firstSeenAt).Seconds()
			if sess.pageViews == 1 {
				bounces++
			}
		}
		result.Totals.AvgSessionDuration = totalDuration / float64(len(b.sessions))
		result.Totals.BounceRate = float64(bounces) / float64(len(b.sessions)) * 100
	}

	if len(b.scrollDepths) > 0 {
		var sum float64
		for _, depth := range b.scrollDepths {
			sum += depth
		}
		result.Totals.AvgScrollDepth = sum / float64(len(b.scrollDepths))
	}

	// Materialize buckets in encounter order, fill in visitor-set
	// cardinalities, then stable-sort descending so true ties keep
	// first-encounter order.
	for _, key := range b.pageOrder {
		bucket := *b.pages[key]
		bucket.UniqueVisitors = len(b.pageVis[key])
		result.TopPages = append(result.TopPages, bucket)
	}
	sort.SliceStable(result.TopPages, func(i, j int) bool {
		return result.TopPages[i].PageViews > result.TopPages[j].PageViews
	})
	if len(result.TopPages) > TopPagesLimit {
		result.TopPages = result.TopPages[:TopPagesLimit]
	}

	for _, key := range b.refOrder {
		bucket := *b.refs[key]
		bucket.UniqueVisitors = len(b.refVis[key])
		result.Referrers = append(result.Referrers, bucket)
	}
	sort.SliceStable(result.Referrers, func(i, j int) bool {
		return result.Referrers[i].Visits > result.Referrers[j].Visits
	})
	if len(result.Referrers) > TopReferrersLimit {
		result.Referrers = result.Referrers[:TopReferrersLimit]
	}

	for _, key := range b.deviceOrder {
		bucket := *b.devices[key]
		bucket.UniqueVisitors = len(b.deviceVis[key])
		result.Devices = append(result.Devices, bucket)
	}
	sort.SliceStable(result.Devices, func(i, j int) bool {
		return result.Devices[i].Count > result.Devices[j].Count
	})

	for _, key := range b.typeOrder {
		bucket := *b.types[key]
		bucket.UniqueVisitors = len(b.typeVis[key])
		result.EventTypes = append(result.EventTypes, bucket)
	}
	sort.SliceStable(result.EventTypes, func(i, j int) bool {
		return result.EventTypes[i].Count > result.EventTypes[j].Count
	})

	for _, key := range b.elementOrder {
		bucket := *b.elements[key]
		bucket.UniqueVisitors = len(b.elementVis[key])
		result.ClickedElements = append(result.ClickedElements, bucket)
	}
	sort.SliceStable(result.ClickedElements, func(i, j int) bool {
		return result.ClickedElements[i].Clicks > result.ClickedElements[j].Clicks
	})
	if len(result.ClickedElements) > TopElementsLimit {
		result.ClickedElements = result.ClickedElements[:TopElementsLimit]
	}

	return result
}
