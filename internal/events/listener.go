// Package events delivers review ledger changes to registered listeners.
package events

import "github.com/prn-tf/cinelog/internal/domain"

// Listener receives ledger change notifications.
// Callbacks run synchronously on the goroutine that performed the mutation.
type Listener interface {
	OnAdded(review *domain.Review)
	OnUpdated(review *domain.Review)
	OnDeleted(id int64)
	OnBulkDeleted(count int)
	OnCleared()
}

// ListenerFuncs adapts a set of optional functions to Listener.
// Nil fields are skipped. Register it by pointer so it can be removed again.
type ListenerFuncs struct {
	Added       func(review *domain.Review)
	Updated     func(review *domain.Review)
	Deleted     func(id int64)
	BulkDeleted func(count int)
	Cleared     func()
}

// OnAdded implements Listener.
func (f *ListenerFuncs) OnAdded(review *domain.Review) {
	if f.Added != nil {
		f.Added(review)
	}
}

// OnUpdated implements Listener.
func (f *ListenerFuncs) OnUpdated(review *domain.Review) {
	if f.Updated != nil {
		f.Updated(review)
	}
}

// OnDeleted implements Listener.
func (f *ListenerFuncs) OnDeleted(id int64) {
	if f.Deleted != nil {
		f.Deleted(id)
	}
}

// OnBulkDeleted implements Listener.
func (f *ListenerFuncs) OnBulkDeleted(count int) {
	if f.BulkDeleted != nil {
		f.BulkDeleted(count)
	}
}

// OnCleared implements Listener.
func (f *ListenerFuncs) OnCleared() {
	if f.Cleared != nil {
		f.Cleared()
	}
}
