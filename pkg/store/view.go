package store

import (
	"ai-chat-be/pkg/reconcile"
)

// ActiveView bundles the live, in-memory state of one open conversation:
// the turn reconciler holding the working transcript and the transition
// controller tracking its persistence lifecycle. One exists per
// (user, conversation) pair while the conversation is being interacted
// with; idle views expire and are rebuilt from the store on next use.
type ActiveView struct {
	Reconciler *reconcile.Reconciler
	Transition *reconcile.TransitionController
}
