// Package sse implements a Server-Sent Events broker that tells open viewers
// when posts change.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/starford/lifepress/internal/post"
)

// Event types sent to clients.
const (
	EventPostCreated  = "post.created"
	EventPostUpdated  = "post.updated"
	EventPostDeleted  = "post.deleted"
	EventPostsChanged = "posts.changed"
)

// Change kinds accepted by PublishPostEvent.
const (
	Created = "created"
	Updated = "updated"
	Deleted = "deleted"
)

const (
	subscriberBuffer = 64
	keepAlive        = 25 * time.Second
	retryMillis      = 3000
)

var changeEvents = map[string]string{
	Created: EventPostCreated,
	Updated: EventPostUpdated,
	Deleted: EventPostDeleted,
}

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// PostChange is the payload of the post.* events.
type PostChange struct {
	Path string    `json:"path"`
	Type post.Type `json:"type"`
}

// Subscriber receives framed SSE messages on C until it is unsubscribed or
// the broker closes.
type Subscriber struct {
	C <-chan []byte

	ch   chan []byte
	only post.Type
}

func (s *Subscriber) wants(t post.Type) bool {
	return s.only == "" || t == "" || s.only == t
}

type outgoing struct {
	event Event
	// postType limits delivery to subscribers of that type; empty reaches everyone.
	postType post.Type
}

type change struct {
	kind string
	PostChange
}

type membership struct {
	sub  *Subscriber
	join bool
}

// Broker fans events out to subscribers.
//
// All subscriber state and the posts.changed throttle live in one goroutine;
// the exported methods only talk to it over channels.
type Broker struct {
	listEvery time.Duration

	members chan membership
	out     chan outgoing
	changes chan change
	counts  chan chan int

	stop    chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker starts a broker that sends at most one posts.changed event per
// listThrottle. A change arriving inside the window is reported when the
// window ends.
func NewBroker(listThrottle time.Duration) *Broker {
	if listThrottle <= 0 {
		listThrottle = 2 * time.Second
	}
	b := &Broker{
		listEvery: listThrottle,
		members:   make(chan membership),
		out:       make(chan outgoing, 256),
		changes:   make(chan change, 256),
		counts:    make(chan chan int),
		stop:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	go b.loop()
	return b
}

func (b *Broker) loop() {
	defer close(b.stopped)

	subs := make(map[*Subscriber]struct{})
	var (
		seq      uint64
		lastList time.Time
		pending  bool
		trailing <-chan time.Time
	)

	send := func(o outgoing) {
		payload, err := json.Marshal(o.event.Data)
		if err != nil {
			return
		}
		seq++
		frame := []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", seq, o.event.Type, payload))
		for s := range subs {
			if !s.wants(o.postType) {
				continue
			}
			select {
			case s.ch <- frame:
			default:
				// Slow reader; it catches up on the next posts.changed.
			}
		}
	}
	listChanged := func(now time.Time) {
		lastList = now
		pending = false
		trailing = nil
		send(outgoing{event: Event{Type: EventPostsChanged, Data: struct{}{}}})
	}

	for {
		select {
		case <-b.stop:
			for s := range subs {
				close(s.ch)
			}
			return

		case m := <-b.members:
			if m.join {
				subs[m.sub] = struct{}{}
			} else if _, ok := subs[m.sub]; ok {
				delete(subs, m.sub)
				close(m.sub.ch)
			}

		case o := <-b.out:
			send(o)

		case c := <-b.changes:
			send(outgoing{event: Event{Type: changeEvents[c.kind], Data: c.PostChange}, postType: c.Type})

			now := time.Now()
			if wait := b.listEvery - now.Sub(lastList); wait <= 0 {
				listChanged(now)
			} else if !pending {
				pending = true
				trailing = time.After(wait)
			}

		case now := <-trailing:
			listChanged(now)

		case resp := <-b.counts:
			resp <- len(subs)
		}
	}
}

// Close stops the broker and closes every subscriber. It is safe to call
// more than once.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stop)
	}
	<-b.stopped
}

// Subscribe registers a subscriber. A non-empty only restricts post.* events
// to that content type; posts.changed is always delivered.
func (b *Broker) Subscribe(only post.Type) *Subscriber {
	ch := make(chan []byte, subscriberBuffer)
	s := &Subscriber{C: ch, ch: ch, only: only}
	if b.closed.Load() {
		close(ch)
		return s
	}
	select {
	case b.members <- membership{sub: s, join: true}:
	case <-b.stopped:
		close(ch)
	}
	return s
}

// Unsubscribe removes s and closes its channel.
func (b *Broker) Unsubscribe(s *Subscriber) {
	if b.closed.Load() {
		return
	}
	select {
	case b.members <- membership{sub: s}:
	case <-b.stopped:
	}
}

// ClientCount returns the number of subscribers.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}
	resp := make(chan int, 1)
	select {
	case b.counts <- resp:
	case <-b.stopped:
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to every subscriber.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.out <- outgoing{event: event}:
	case <-b.stopped:
	}
}

// PublishPostEvent reports a change to the post at path. kind is Created,
// Updated or Deleted; anything else is ignored.
func (b *Broker) PublishPostEvent(kind, path string) {
	if _, ok := changeEvents[kind]; !ok || b.closed.Load() {
		return
	}
	c := change{kind: kind, PostChange: PostChange{Path: path, Type: post.Classify(path)}}
	select {
	case b.changes <- c:
	case <-b.stopped:
	}
}

// ServeHTTP streams events to one client (GET /api/events). The optional
// type query parameter limits post.* events to one content type.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	var only post.Type
	if raw := r.URL.Query().Get("type"); raw != "" {
		t, err := post.ParseType(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		only = t
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "retry: %d\n\n", retryMillis)
	flusher.Flush()

	sub := b.Subscribe(only)
	defer b.Unsubscribe(sub)

	ping := time.NewTicker(keepAlive)
	defer ping.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case frame, ok := <-sub.C:
			if !ok {
				return
			}
			_, _ = w.Write(frame)
			flusher.Flush()
		}
	}
}
