package memory

import (
	"fmt"
	"time"

	"ai-chat-be/pkg/reconcile"
	"ai-chat-be/pkg/store"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// ViewStore keeps the active conversation views in memory. Entries expire
// after a period of inactivity; an expired view is simply rebuilt from the
// persisted turns on the next request.
type ViewStore struct {
	views       *cache.Cache
	settleDelay time.Duration
}

func NewViewStore(ttl, settleDelay time.Duration) *ViewStore {
	return &ViewStore{
		views:       cache.New(ttl, 10*time.Minute),
		settleDelay: settleDelay,
	}
}

func viewKey(userId, conversationId uuid.UUID) string {
	return fmt.Sprintf("%s:%s", userId, conversationId)
}

// Get returns the live view for the pair, touching its expiration.
func (s *ViewStore) Get(userId, conversationId uuid.UUID) (*store.ActiveView, bool) {
	key := viewKey(userId, conversationId)
	x, found := s.views.Get(key)
	if !found {
		return nil, false
	}
	view := x.(*store.ActiveView)
	s.views.Set(key, view, cache.DefaultExpiration)
	return view, true
}

// GetOrCreate returns the live view, creating a fresh one on miss. A fresh
// view starts empty; the caller seeds it from the persisted turns.
func (s *ViewStore) GetOrCreate(userId, conversationId uuid.UUID) (*store.ActiveView, bool) {
	if view, found := s.Get(userId, conversationId); found {
		return view, false
	}

	transition := reconcile.NewTransitionController(s.settleDelay)
	transition.Navigate(conversationId)

	view := &store.ActiveView{
		Reconciler: reconcile.NewReconciler(userId, conversationId),
		Transition: transition,
	}
	s.views.Set(viewKey(userId, conversationId), view, cache.DefaultExpiration)
	return view, true
}

// Put registers a view built by the caller, e.g. for a conversation that
// was just created and walked through the NewUnsaved transition.
func (s *ViewStore) Put(userId, conversationId uuid.UUID, view *store.ActiveView) {
	s.views.Set(viewKey(userId, conversationId), view, cache.DefaultExpiration)
}

// Drop removes the view, e.g. after its conversation is deleted.
func (s *ViewStore) Drop(userId, conversationId uuid.UUID) {
	s.views.Delete(viewKey(userId, conversationId))
}

// SettleDelay exposes the configured settle window for callers that build
// their own TransitionController.
func (s *ViewStore) SettleDelay() time.Duration {
	return s.settleDelay
}
