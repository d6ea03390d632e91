package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/cinelog/internal/domain"
)

type recorder struct {
	mu    sync.Mutex
	name  string
	calls *[]string
}

func (r *recorder) record(ev string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	*r.calls = append(*r.calls, r.name+":"+ev)
}

func (r *recorder) OnAdded(*domain.Review)   { r.record("added") }
func (r *recorder) OnUpdated(*domain.Review) { r.record("updated") }
func (r *recorder) OnDeleted(int64)          { r.record("deleted") }
func (r *recorder) OnBulkDeleted(int)        { r.record("bulk") }
func (r *recorder) OnCleared()               { r.record("cleared") }

func TestBus_DeliversInRegistrationOrder(t *testing.T) {
	var calls []string
	bus := NewBus(zerolog.Nop())
	a := &recorder{name: "a", calls: &calls}
	b := &recorder{name: "b", calls: &calls}
	bus.Add(a)
	bus.Add(b)

	bus.Added(&domain.Review{})
	bus.Updated(&domain.Review{})
	bus.Deleted(1)
	bus.BulkDeleted(2)
	bus.Cleared()

	require.Equal(t, []string{
		"a:added", "b:added",
		"a:updated", "b:updated",
		"a:deleted", "b:deleted",
		"a:bulk", "b:bulk",
		"a:cleared", "b:cleared",
	}, calls)
}

// tagListener is a value listener whose dynamic type is not comparable.
type tagListener struct {
	tags  []string
	calls *[]string
}

func (l tagListener) OnAdded(*domain.Review) {
	*l.calls = append(*l.calls, l.tags...)
}
func (l tagListener) OnUpdated(*domain.Review) {}
func (l tagListener) OnDeleted(int64)          {}
func (l tagListener) OnBulkDeleted(int)        {}
func (l tagListener) OnCleared()               {}

func TestBus_NonComparableListeners(t *testing.T) {
	var calls []string
	bus := NewBus(zerolog.Nop())
	a := tagListener{tags: []string{"a"}, calls: &calls}
	b := tagListener{tags: []string{"b"}, calls: &calls}

	require.NotPanics(t, func() {
		bus.Add(a)
		bus.Add(b)
	})
	require.Equal(t, 2, bus.Len())

	bus.Added(&domain.Review{})
	require.Equal(t, []string{"a", "b"}, calls)

	require.NotPanics(t, func() { bus.Remove(a) })
	require.Equal(t, 2, bus.Len())

	// Comparable listeners registered alongside still come off.
	r := &recorder{name: "r", calls: &calls}
	bus.Add(r)
	require.NotPanics(t, func() { bus.Remove(r) })
	require.Equal(t, 2, bus.Len())
}

func TestBus_AddRemoveIdempotent(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	l := &ListenerFuncs{}

	bus.Add(nil)
	bus.Add(l)
	bus.Add(l)
	require.Equal(t, 1, bus.Len())

	bus.Remove(nil)
	bus.Remove(&ListenerFuncs{})
	require.Equal(t, 1, bus.Len())

	bus.Remove(l)
	bus.Remove(l)
	require.Zero(t, bus.Len())
}

func TestBus_PanickingListenerIsSkipped(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	var got []int64
	bus.Add(&ListenerFuncs{Deleted: func(int64) { panic("boom") }})
	bus.Add(&ListenerFuncs{Deleted: func(id int64) { got = append(got, id) }})

	require.NotPanics(t, func() { bus.Deleted(7) })
	require.Equal(t, []int64{7}, got)
}

func TestBus_MutationDuringDeliveryUsesSnapshot(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	var count int
	late := &ListenerFuncs{Cleared: func() { count += 100 }}
	var self *ListenerFuncs
	self = &ListenerFuncs{Cleared: func() {
		count++
		bus.Remove(self)
		bus.Add(late)
	}}
	bus.Add(self)

	bus.Cleared()
	require.Equal(t, 1, count, "late listener joins after the current delivery")

	bus.Cleared()
	require.Equal(t, 101, count)
}

func TestBus_ConcurrentAddRemoveNotify(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			l := &ListenerFuncs{Added: func(*domain.Review) {}}
			bus.Add(l)
			bus.Remove(l)
		}()
		go func() {
			defer wg.Done()
			bus.Added(&domain.Review{})
		}()
	}
	wg.Wait()
	require.Zero(t, bus.Len())
}

func TestListenerFuncs_NilFieldsAreSkipped(t *testing.T) {
	var l Listener = &ListenerFuncs{}
	require.NotPanics(t, func() {
		l.OnAdded(nil)
		l.OnUpdated(nil)
		l.OnDeleted(1)
		l.OnBulkDeleted(1)
		l.OnCleared()
	})
}

type fakePublisher struct {
	channel  string
	messages [][]byte
	err      error
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.channel = channel
	f.messages = append(f.messages, message.([]byte))
	return redis.NewIntResult(1, f.err)
}

func TestRedisPublisher(t *testing.T) {
	pub := &fakePublisher{}
	p := NewRedisPublisher(pub, "", zerolog.Nop())
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return at }

	p.OnAdded(&domain.Review{ID: 3, UserID: 9})
	p.OnBulkDeleted(4)

	require.Equal(t, DefaultChannel, pub.channel)
	require.Len(t, pub.messages, 2)

	var ev ChangeEvent
	require.NoError(t, json.Unmarshal(pub.messages[0], &ev))
	require.Equal(t, ChangeEvent{Type: "added", ReviewID: 3, UserID: 9, At: at}, ev)

	require.NoError(t, json.Unmarshal(pub.messages[1], &ev))
	require.Equal(t, "bulk_deleted", ev.Type)
	require.Equal(t, 4, ev.Count)
}

func TestRedisPublisher_ErrorsAreLogged(t *testing.T) {
	pub := &fakePublisher{err: errors.New("down")}
	p := NewRedisPublisher(pub, "ch", zerolog.Nop())
	require.NotPanics(t, p.OnCleared)
	require.Equal(t, "ch", pub.channel)
}
