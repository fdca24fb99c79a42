package reconcile

import (
	"errors"
	"strings"
	"sync"
	"time"

	"ai-chat-be/internal/constant"
	"ai-chat-be/internal/entity"

	"github.com/google/uuid"
)

var (
	// ErrInvalidEditTarget is returned for an out-of-range edit index or an
	// edit aimed at a non-user turn. The sequence is left untouched.
	ErrInvalidEditTarget = errors.New("invalid edit target")

	// ErrEmptyAppend is returned when an append carries neither content nor
	// attachments.
	ErrEmptyAppend = errors.New("append requires content or at least one attachment")

	// ErrStreamInFlight is returned when an append or edit is requested
	// while a completion stream is still open. Overlapping requests are
	// rejected rather than cancelling the predecessor.
	ErrStreamInFlight = errors.New("completion stream already in flight")

	// ErrNoPendingAssistantTurn is returned by fold/commit when no stream
	// is open or the request id does not match the open stream.
	ErrNoPendingAssistantTurn = errors.New("no pending assistant turn")
)

// StreamPhase is the reconciler's stream state tag.
type StreamPhase int

const (
	PhaseIdle StreamPhase = iota
	PhaseStreaming
	PhaseEditing
)

func (p StreamPhase) String() string {
	switch p {
	case PhaseStreaming:
		return "streaming"
	case PhaseEditing:
		return "editing"
	default:
		return "idle"
	}
}

// StreamState pairs the phase with the id of the request that opened it.
type StreamState struct {
	Phase     StreamPhase
	RequestId uuid.UUID
}

// Ticket describes an accepted append or edit: the id of the stream request
// it opened and the ordered history (pending assistant turn excluded) to
// hand to the completion source.
type Ticket struct {
	RequestId      uuid.UUID
	ConversationId uuid.UUID
	History        []entity.Turn
}

// Reconciler owns the canonical ordered turn sequence for one open
// conversation view. It merges three influences: local optimistic
// appends/edits, a background fetch of persisted state, and an in-flight
// streamed completion. Operations serialize behind a mutex so every caller
// observes each append, edit, fold and commit run to completion.
type Reconciler struct {
	mu             sync.Mutex
	conversationId uuid.UUID
	userId         uuid.UUID
	turns          []entity.Turn
	state          StreamState
}

func NewReconciler(userId, conversationId uuid.UUID) *Reconciler {
	return &Reconciler{
		conversationId: conversationId,
		userId:         userId,
	}
}

// ConversationId returns the id of the conversation this view holds.
// uuid.Nil until the first append assigns one.
func (r *Reconciler) ConversationId() uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conversationId
}

func (r *Reconciler) State() StreamState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Len returns the current sequence length, counting a pending assistant turn.
func (r *Reconciler) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.turns)
}

// Snapshot returns a copy of the canonical sequence.
func (r *Reconciler) Snapshot() []entity.Turn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Reconciler) snapshotLocked() []entity.Turn {
	out := make([]entity.Turn, len(r.turns))
	copy(out, r.turns)
	return out
}

// AppendUserTurn appends a user turn and opens a stream request. If the
// view has no conversation id yet, one is assigned here, before any network
// call is issued, so a concurrent background fetch can never race a
// not-yet-created conversation. A pending empty assistant turn is appended
// for the stream to fold into. The supplied attachments are bound to the
// turn exactly once; the caller must treat its pending-input state as
// consumed on success.
func (r *Reconciler) AppendUserTurn(content entity.Content, attachments []entity.Attachment) (*Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state.Phase != PhaseIdle {
		return nil, ErrStreamInFlight
	}
	if content.IsEmpty() && len(attachments) == 0 {
		return nil, ErrEmptyAppend
	}

	if r.conversationId == uuid.Nil {
		r.conversationId = uuid.New()
	}

	now := time.Now()
	r.turns = append(r.turns, entity.Turn{
		Id:             uuid.New(),
		ConversationId: r.conversationId,
		Position:       r.nextPositionLocked(),
		Role:           constant.TurnRoleUser,
		Content:        content,
		Attachments:    attachments,
		CreatedAt:      now,
	})

	ticket := r.openStreamLocked(PhaseStreaming)
	return ticket, nil
}

// EditUserTurn replaces the content of the user turn at index, discards
// every later turn, and opens a stream request over the truncated history.
// Preconditions: index in bounds and the target turn has role user; on
// violation no mutation is performed.
func (r *Reconciler) EditUserTurn(index int, newContent entity.Content) (*Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state.Phase != PhaseIdle {
		return nil, ErrStreamInFlight
	}
	if index < 0 || index >= len(r.turns) {
		return nil, ErrInvalidEditTarget
	}
	if r.turns[index].Role != constant.TurnRoleUser {
		return nil, ErrInvalidEditTarget
	}
	if newContent.IsEmpty() {
		return nil, ErrEmptyAppend
	}

	now := time.Now()
	r.turns = r.turns[:index+1]
	r.turns[index].Content = newContent
	r.turns[index].UpdatedAt = &now

	ticket := r.openStreamLocked(PhaseEditing)
	return ticket, nil
}

// nextPositionLocked continues from the last turn's stored position rather
// than the slice length, so persisted sequences with gaps (a logged, skipped
// assistant write) keep positions strictly increasing.
func (r *Reconciler) nextPositionLocked() int {
	if len(r.turns) == 0 {
		return 0
	}
	return r.turns[len(r.turns)-1].Position + 1
}

// openStreamLocked appends the pending assistant turn and tags the state.
func (r *Reconciler) openStreamLocked(phase StreamPhase) *Ticket {
	requestId := uuid.New()

	history := r.snapshotLocked()

	r.turns = append(r.turns, entity.Turn{
		Id:             uuid.New(),
		ConversationId: r.conversationId,
		Position:       r.nextPositionLocked(),
		Role:           constant.TurnRoleAssistant,
		Content:        entity.PlainText(""),
		CreatedAt:      time.Now(),
	})
	r.state = StreamState{Phase: phase, RequestId: requestId}

	return &Ticket{
		RequestId:      requestId,
		ConversationId: r.conversationId,
		History:        history,
	}
}

// FoldStreamChunk appends text to the pending assistant turn. Chunks are
// trusted to arrive at most once each; the reconciler does not deduplicate.
func (r *Reconciler) FoldStreamChunk(requestId uuid.UUID, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkPendingLocked(requestId); err != nil {
		return err
	}

	last := &r.turns[len(r.turns)-1]
	last.Content.Text += text
	return nil
}

// CommitAssistantTurn finalizes the pending assistant turn with the
// provider's reported final text, which overrides whatever was folded (the
// two are not guaranteed to be byte-equal). The stream state returns to
// idle and the full sequence is returned for persistence.
func (r *Reconciler) CommitAssistantTurn(requestId uuid.UUID, finalText string) ([]entity.Turn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkPendingLocked(requestId); err != nil {
		return nil, err
	}

	last := &r.turns[len(r.turns)-1]
	last.Content = entity.PlainText(finalText)
	r.state = StreamState{Phase: PhaseIdle}

	return r.snapshotLocked(), nil
}

// FailStream closes the stream without rolling back the pending assistant
// turn: whatever was folded stays visible and the user retries by sending
// or editing again.
func (r *Reconciler) FailStream(requestId uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state.Phase == PhaseIdle || r.state.RequestId != requestId {
		return
	}
	r.state = StreamState{Phase: PhaseIdle}
}

func (r *Reconciler) checkPendingLocked(requestId uuid.UUID) error {
	if r.state.Phase == PhaseIdle || r.state.RequestId != requestId {
		return ErrNoPendingAssistantTurn
	}
	if len(r.turns) == 0 || r.turns[len(r.turns)-1].Role != constant.TurnRoleAssistant {
		return ErrNoPendingAssistantTurn
	}
	return nil
}

// ReconcileWithRemote folds in a background fetch of persisted state.
// Last-writer-wins-by-locality: the remote sequence is applied only when
// the local one is empty or belongs to a different conversation than the
// one now viewed. A populated local sequence always wins over a slower
// fetch, so a fast optimistic append is never clobbered. Returns whether
// the remote state was applied.
func (r *Reconciler) ReconcileWithRemote(remoteTurns []entity.Turn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state.Phase != PhaseIdle {
		return false
	}
	if len(r.turns) > 0 && r.turns[0].ConversationId == r.conversationId {
		return false
	}

	r.turns = make([]entity.Turn, len(remoteTurns))
	copy(r.turns, remoteTurns)
	return true
}

// LastAssistantText returns the folded content of the pending assistant
// turn, empty when no stream is open.
func (r *Reconciler) LastAssistantText() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state.Phase == PhaseIdle || len(r.turns) == 0 {
		return ""
	}
	last := r.turns[len(r.turns)-1]
	if last.Role != constant.TurnRoleAssistant {
		return ""
	}
	return strings.Clone(last.Content.Text)
}
