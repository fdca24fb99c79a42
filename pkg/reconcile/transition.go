package reconcile

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// ViewState tracks whether the active conversation view is brand new,
// settling after its first append, or backed by persisted state.
type ViewState int

const (
	StateNewUnsaved ViewState = iota
	StateTransitioning
	StatePersisted
)

func (s ViewState) String() string {
	switch s {
	case StateTransitioning:
		return "transitioning"
	case StatePersisted:
		return "persisted"
	default:
		return "new_unsaved"
	}
}

// TransitionController is the state machine guarding the race between a
// fast local append and a slower remote fetch keyed on the newly assigned
// conversation id. While Transitioning, the background fetch is suppressed;
// while NewUnsaved, the loading indicator is suppressed. After the settle
// delay the view is Persisted and stays so until navigation resets it.
type TransitionController struct {
	mu             sync.Mutex
	state          ViewState
	conversationId uuid.UUID
	settleDelay    time.Duration
	settleAt       time.Time

	now func() time.Time // injectable for tests
}

func NewTransitionController(settleDelay time.Duration) *TransitionController {
	return &TransitionController{
		state:       StateNewUnsaved,
		settleDelay: settleDelay,
		now:         time.Now,
	}
}

// Navigate resets the controller for a new view. No id means a brand-new
// unsaved conversation; an id means an existing, persisted one.
func (t *TransitionController) Navigate(conversationId uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.conversationId = conversationId
	if conversationId == uuid.Nil {
		t.state = StateNewUnsaved
	} else {
		t.state = StatePersisted
	}
}

// BeginTransition moves NewUnsaved -> Transitioning once the first append
// has assigned an id and the location has been updated to reference it.
// The settle window starts now.
func (t *TransitionController) BeginTransition(assignedId uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateNewUnsaved {
		return
	}
	t.conversationId = assignedId
	t.state = StateTransitioning
	t.settleAt = t.now().Add(t.settleDelay)
}

// State reports the current view state, promoting Transitioning to
// Persisted once the settle window has elapsed. Persisted is terminal for
// the life of the view.
func (t *TransitionController) State() ViewState {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == StateTransitioning && !t.now().Before(t.settleAt) {
		t.state = StatePersisted
	}
	return t.state
}

func (t *TransitionController) ConversationId() uuid.UUID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conversationId
}

// ShouldFetchRemote reports whether a background fetch of persisted state
// may run. Suppressed while NewUnsaved (nothing to fetch) and while
// Transitioning (in-flight local state must win the race).
func (t *TransitionController) ShouldFetchRemote() bool {
	return t.State() == StatePersisted
}

// ShowLoading reports whether a loading indicator is appropriate: never
// for a brand-new view whose content is already known locally.
func (t *TransitionController) ShowLoading() bool {
	return t.State() != StateNewUnsaved
}
