package domain

import "time"

// Action is a negotiation step requested by a participant.
type Action string

const (
	ActionAccept  Action = "accept"
	ActionReject  Action = "reject"
	ActionCancel  Action = "cancel"
	ActionFinish  Action = "finish"
	ActionCounter Action = "counter"
)

// ParseStatusAction validates an action accepted by ChangeStatus. Counter
// offers go through their own operation and are rejected here.
func ParseStatusAction(raw string) (Action, error) {
	switch a := Action(raw); a {
	case ActionAccept, ActionReject, ActionCancel, ActionFinish:
		return a, nil
	}
	return "", Errorf(CodeBadAction, "unsupported action %q", raw)
}

// Role identifies which participant may perform an action.
type Role int

const (
	RoleProposer Role = iota + 1
	RoleReceiver
	RoleEither
)

var transitions = map[Status][]Action{
	StatusPending:   {ActionAccept, ActionReject, ActionCancel, ActionCounter},
	StatusCountered: {ActionAccept, ActionReject, ActionCancel, ActionCounter},
	StatusAccepted:  {ActionFinish, ActionCancel},
}

type policyKey struct {
	from   Status
	action Action
}

// actorPolicy is evaluated after the transition table, so every key here
// must also be an edge in transitions.
var actorPolicy = map[policyKey]Role{
	{StatusPending, ActionAccept}:    RoleReceiver,
	{StatusPending, ActionReject}:    RoleReceiver,
	{StatusPending, ActionCounter}:   RoleReceiver,
	{StatusPending, ActionCancel}:    RoleProposer,
	{StatusCountered, ActionAccept}:  RoleReceiver,
	{StatusCountered, ActionReject}:  RoleReceiver,
	{StatusCountered, ActionCounter}: RoleReceiver,
	{StatusCountered, ActionCancel}:  RoleEither,
	{StatusAccepted, ActionFinish}:   RoleEither,
	{StatusAccepted, ActionCancel}:   RoleEither,
}

var outcomes = map[Action]struct {
	to    Status
	entry HistoryAction
}{
	ActionAccept:  {StatusAccepted, HistoryAccepted},
	ActionReject:  {StatusRejected, HistoryRejected},
	ActionCancel:  {StatusCancelled, HistoryCancelled},
	ActionFinish:  {StatusFinished, HistoryFinished},
	ActionCounter: {StatusCountered, HistoryCountered},
}

// CanTransition reports whether action is an edge out of from.
func CanTransition(from Status, action Action) bool {
	for _, a := range transitions[from] {
		if a == action {
			return true
		}
	}
	return false
}

// AllowedActor returns who may perform action from the given state.
func AllowedActor(from Status, action Action) (Role, bool) {
	role, ok := actorPolicy[policyKey{from, action}]
	return role, ok
}

// Authorize checks participant, transition table and actor policy, in that order.
func (t Trade) Authorize(actorID string, action Action) error {
	if !t.IsParticipant(actorID) {
		return Errorf(CodeForbidden, "not a participant of trade %s", t.ID)
	}
	if !CanTransition(t.Status, action) {
		return Errorf(CodeBadState, "cannot %s a %s trade", action, t.Status)
	}
	role, ok := AllowedActor(t.Status, action)
	if !ok {
		return Errorf(CodeBadState, "cannot %s a %s trade", action, t.Status)
	}
	switch role {
	case RoleProposer:
		if actorID != t.ProposerID {
			return Errorf(CodeOnlyProposer, "only the proposer may %s while %s", action, t.Status)
		}
	case RoleReceiver:
		if actorID != t.ReceiverID {
			return Errorf(CodeOnlyReceiver, "only the receiver may %s", action)
		}
	}
	return nil
}

// Transition applies action on behalf of actorID and appends exactly one
// history entry.
func (t *Trade) Transition(actorID string, action Action, at time.Time) (HistoryEntry, error) {
	if err := t.Authorize(actorID, action); err != nil {
		return HistoryEntry{}, err
	}
	out := outcomes[action]
	entry := HistoryEntry{
		At:     at,
		By:     actorID,
		Action: out.entry,
		From:   t.Status,
		To:     out.to,
	}
	t.Status = out.to
	t.UpdatedAt = at
	t.history = append(t.history[:len(t.history):len(t.history)], entry)
	return entry, nil
}
