package domain

import (
	"testing"
	"time"
)

var epoch = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

func newTestTrade(t *testing.T) Trade {
	t.Helper()
	tr, err := NewTrade(Proposal{
		ID:              "t1",
		ProposerID:      "alice",
		ReceiverID:      "bob",
		PostRequestedID: "p2",
		ItemsText:       "libro",
	}, epoch)
	if err != nil {
		t.Fatalf("NewTrade: %v", err)
	}
	return tr
}

func withStatus(t *testing.T, s Status) Trade {
	tr := newTestTrade(t)
	tr.Status = s
	return tr
}

func TestCanTransition(t *testing.T) {
	all := []Action{ActionAccept, ActionReject, ActionCancel, ActionFinish, ActionCounter}
	want := map[Status]map[Action]bool{
		StatusPending:   {ActionAccept: true, ActionReject: true, ActionCancel: true, ActionCounter: true},
		StatusCountered: {ActionAccept: true, ActionReject: true, ActionCancel: true, ActionCounter: true},
		StatusAccepted:  {ActionFinish: true, ActionCancel: true},
		StatusRejected:  {},
		StatusCancelled: {},
		StatusFinished:  {},
	}
	for status, allowed := range want {
		for _, action := range all {
			if got := CanTransition(status, action); got != allowed[action] {
				t.Fatalf("CanTransition(%s, %s) = %v, want %v", status, action, got, allowed[action])
			}
		}
	}
}

func TestPolicyCoversEveryEdge(t *testing.T) {
	for status, actions := range transitions {
		for _, action := range actions {
			if _, ok := AllowedActor(status, action); !ok {
				t.Fatalf("no actor policy for (%s, %s)", status, action)
			}
		}
	}
	for key := range actorPolicy {
		if !CanTransition(key.from, key.action) {
			t.Fatalf("policy (%s, %s) is not an edge of the transition table", key.from, key.action)
		}
	}
}

func TestAuthorize(t *testing.T) {
	tests := []struct {
		name   string
		status Status
		actor  string
		action Action
		want   Code
	}{
		{"receiver accepts pending", StatusPending, "bob", ActionAccept, ""},
		{"proposer accepts own trade", StatusPending, "alice", ActionAccept, CodeOnlyReceiver},
		{"proposer rejects", StatusPending, "alice", ActionReject, CodeOnlyReceiver},
		{"proposer counters", StatusCountered, "alice", ActionCounter, CodeOnlyReceiver},
		{"receiver cancels pending", StatusPending, "bob", ActionCancel, CodeOnlyProposer},
		{"proposer cancels pending", StatusPending, "alice", ActionCancel, ""},
		{"receiver cancels countered", StatusCountered, "bob", ActionCancel, ""},
		{"receiver cancels accepted", StatusAccepted, "bob", ActionCancel, ""},
		{"proposer cancels accepted", StatusAccepted, "alice", ActionCancel, ""},
		{"proposer finishes", StatusAccepted, "alice", ActionFinish, ""},
		{"receiver finishes", StatusAccepted, "bob", ActionFinish, ""},
		{"finish pending", StatusPending, "bob", ActionFinish, CodeBadState},
		{"accept accepted", StatusAccepted, "bob", ActionAccept, CodeBadState},
		{"stranger", StatusPending, "mallory", ActionAccept, CodeForbidden},
		{"terminal rejected", StatusRejected, "bob", ActionAccept, CodeBadState},
		{"terminal cancelled", StatusCancelled, "alice", ActionCancel, CodeBadState},
		{"terminal finished", StatusFinished, "alice", ActionFinish, CodeBadState},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := withStatus(t, tt.status)
			got := CodeOf(tr.Authorize(tt.actor, tt.action))
			if got != tt.want {
				t.Fatalf("Authorize(%s, %s) on %s = %q, want %q", tt.actor, tt.action, tt.status, got, tt.want)
			}
		})
	}
}

func TestTransitionAppendsOneEntry(t *testing.T) {
	tr := newTestTrade(t)
	steps := []struct {
		actor  string
		action Action
		to     Status
	}{
		{"bob", ActionCounter, StatusCountered},
		{"bob", ActionAccept, StatusAccepted},
		{"alice", ActionFinish, StatusFinished},
	}
	for i, step := range steps {
		before := tr.History()
		entry, err := tr.Transition(step.actor, step.action, epoch.Add(time.Duration(i+1)*time.Minute))
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		after := tr.History()
		if len(after) != len(before)+1 {
			t.Fatalf("history length = %d, want %d", len(after), len(before)+1)
		}
		for j := range before {
			if before[j] != after[j] {
				t.Fatalf("history entry %d mutated: %+v -> %+v", j, before[j], after[j])
			}
		}
		if entry.To != step.to || tr.Status != step.to {
			t.Fatalf("step %d status = %s, entry.To = %s, want %s", i, tr.Status, entry.To, step.to)
		}
	}

	if _, err := tr.Transition("bob", ActionAccept, epoch); CodeOf(err) != CodeBadState {
		t.Fatalf("transition out of terminal state: %v, want BAD_STATE", err)
	}
	if got := len(tr.History()); got != 4 {
		t.Fatalf("history length after failed transition = %d, want 4", got)
	}
}

func TestTransitionDoesNotLeakIntoCopies(t *testing.T) {
	tr := newTestTrade(t)
	snapshot := tr
	if _, err := tr.Transition("bob", ActionAccept, epoch); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if len(snapshot.History()) != 1 || snapshot.Status != StatusPending {
		t.Fatalf("snapshot changed: status=%s history=%d", snapshot.Status, len(snapshot.History()))
	}
}

func TestParseStatusAction(t *testing.T) {
	for _, raw := range []string{"accept", "reject", "cancel", "finish"} {
		if _, err := ParseStatusAction(raw); err != nil {
			t.Fatalf("ParseStatusAction(%q): %v", raw, err)
		}
	}
	for _, raw := range []string{"counter", "", "ACCEPT", "delete"} {
		if _, err := ParseStatusAction(raw); CodeOf(err) != CodeBadAction {
			t.Fatalf("ParseStatusAction(%q) = %v, want BAD_ACTION", raw, err)
		}
	}
}
