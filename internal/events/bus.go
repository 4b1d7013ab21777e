package events

import (
	"container/ring"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/suehn/scopy/internal/logging"
	"github.com/suehn/scopy/internal/store"
)

var log = logging.WithComponent("events")

// bufferCapacity is the "newest 200" bound of spec §4.7: a late subscriber
// catches up from this ring instead of replaying the whole outbox table.
const bufferCapacity = 200

// pollInterval is how often the bus checks the outbox table for new rows.
// The outbox is append-only and Store appends under its own write lock, so
// polling is simpler than plumbing a condition variable through Store and
// cheap enough at this interval.
const pollInterval = 100 * time.Millisecond

// fetchBatchSize bounds how many outbox rows one poll tick drains at once.
const fetchBatchSize = 256

type outboxPayload struct {
	RowID int64 `json:"row_id,omitempty"`
}

// Bus polls Store's outbox table, maintains a bounded recent-history ring,
// and fans new events out to subscribers over non-blocking channel sends.
type Bus struct {
	st *store.Store

	mu           sync.Mutex
	buf          *ring.Ring
	bufLen       int
	lastSeq      int64 // outbox polling cursor; advanced only by poll()
	syntheticSeq int64 // counter for Publish-originated events, kept disjoint from lastSeq
	subs         map[string]chan Event

	stopCh chan struct{}
	doneCh chan struct{}
}

// New builds a Bus over st. Call Start to begin polling.
func New(st *store.Store) *Bus {
	return &Bus{
		st:     st,
		buf:    ring.New(bufferCapacity),
		subs:   make(map[string]chan Event),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins the polling loop in its own goroutine. It returns
// immediately; call Stop to shut the loop down.
func (b *Bus) Start(ctx context.Context) {
	go b.run(ctx)
}

func (b *Bus) run(ctx context.Context) {
	defer close(b.doneCh)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.poll()
		case <-b.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (b *Bus) poll() {
	b.mu.Lock()
	afterSeq := b.lastSeq
	b.mu.Unlock()

	rows, err := b.st.FetchOutboxSince(afterSeq, fetchBatchSize)
	if err != nil {
		log.Error().Err(err).Msg("fetching outbox events")
		return
	}
	if len(rows) == 0 {
		return
	}

	b.mu.Lock()
	for _, row := range rows {
		var payload outboxPayload
		if err := json.Unmarshal(row.Payload, &payload); err != nil {
			log.Error().Err(err).Int64("seq", row.Seq).Msg("decoding outbox payload")
			continue
		}
		ev := Event{Seq: row.Seq, Kind: Kind(row.Kind), RowID: payload.RowID}

		b.buf.Value = ev
		b.buf = b.buf.Next()
		if b.bufLen < bufferCapacity {
			b.bufLen++
		}
		b.lastSeq = row.Seq
		b.broadcastLocked(ev)
	}
	trimSeq := b.lastSeq
	b.mu.Unlock()

	if err := b.st.TrimOutbox(trimSeq - bufferCapacity); err != nil {
		log.Error().Err(err).Msg("trimming outbox")
	}
}

// Publish broadcasts an event that never passed through the outbox table
// (KindSettingsChanged, KindStatsChanged) — these sources have no row_id or
// transactional commit to poll for, so the caller hands the fully-formed
// Event straight to the bus. It still goes through the same bounded ring
// and non-blocking fan-out as outbox-sourced events, so a subscriber sees
// one consistent stream regardless of an event's origin.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Seq is negative and counts down, so it can never collide with a real
	// (positive, DB-assigned) outbox seq and can never be mistaken for the
	// poll() cursor in lastSeq.
	b.syntheticSeq--
	ev.Seq = b.syntheticSeq

	b.buf.Value = ev
	b.buf = b.buf.Next()
	if b.bufLen < bufferCapacity {
		b.bufLen++
	}
	b.broadcastLocked(ev)
}

func (b *Bus) broadcastLocked(ev Event) {
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			// subscriber is behind: this event is not delivered to it. It
			// can notice the gap in Seq and re-read the replay buffer via
			// the backlog a fresh Subscribe returns.
		}
	}
}

// Subscribe registers a new subscriber and returns its channel along with
// whatever events are still in the replay buffer, so a subscriber that
// starts late does not miss events appended just before it joined.
func (b *Bus) Subscribe() (id string, ch <-chan Event, backlog []Event) {
	subID := uuid.NewString()
	out := make(chan Event, bufferCapacity)

	b.mu.Lock()
	b.subs[subID] = out
	backlog = b.snapshotLocked()
	b.mu.Unlock()

	return subID, out, backlog
}

func (b *Bus) snapshotLocked() []Event {
	events := make([]Event, 0, b.bufLen)
	b.buf.Do(func(v any) {
		if v == nil {
			return
		}
		events = append(events, v.(Event))
	})
	return events
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		close(ch)
		delete(b.subs, id)
	}
}

// Stop halts the polling loop and blocks until it has exited.
func (b *Bus) Stop() {
	close(b.stopCh)
	<-b.doneCh
}
