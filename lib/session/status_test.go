package session

import (
	"testing"

	"github.com/go-chatgate/go-chatgate/lib/messenger"
)

func TestCanTransitionLegalSet(t *testing.T) {
	legal := []struct{ from, to Status }{
		{StatusInitializing, StatusPairing},
		{StatusInitializing, StatusAuthenticated},
		{StatusInitializing, StatusReady},
		{StatusInitializing, StatusError},
		{StatusInitializing, StatusDisconnected},
		{StatusPairing, StatusAuthenticated},
		{StatusPairing, StatusAuthFailure},
		{StatusPairing, StatusDisconnected},
		{StatusAuthenticated, StatusReady},
		{StatusAuthenticated, StatusAuthFailure},
		{StatusAuthenticated, StatusDisconnected},
		{StatusReady, StatusDisconnected},
		{StatusError, StatusInitializing},
		{StatusError, StatusDisconnected},
		{StatusAuthFailure, StatusInitializing},
		{StatusAuthFailure, StatusDisconnected},
		{StatusDisconnected, StatusInitializing},
		{StatusDisconnected, StatusAuthenticated},
		{StatusDisconnected, StatusReady},
	}
	for _, tc := range legal {
		if !CanTransition(tc.from, tc.to) {
			t.Errorf("CanTransition(%s, %s) = false, want true", tc.from, tc.to)
		}
	}
}

func TestCanTransitionRejectsOutsiders(t *testing.T) {
	illegal := []struct{ from, to Status }{
		{StatusReady, StatusPairing},
		{StatusReady, StatusAuthenticated},
		{StatusReady, StatusError},
		{StatusReady, StatusInitializing},
		{StatusPairing, StatusReady},
		{StatusPairing, StatusInitializing},
		{StatusPairing, StatusError},
		{StatusAuthenticated, StatusPairing},
		{StatusAuthenticated, StatusInitializing},
		{StatusDisconnected, StatusPairing},
		{StatusDisconnected, StatusDisconnected},
		{StatusDisconnected, StatusError},
		{StatusError, StatusReady},
		{StatusError, StatusPairing},
		{StatusAuthFailure, StatusReady},
		{StatusInitializing, StatusAuthFailure},
	}
	for _, tc := range illegal {
		if CanTransition(tc.from, tc.to) {
			t.Errorf("CanTransition(%s, %s) = true, want false", tc.from, tc.to)
		}
	}
}

func TestStatusForKindCoversAllEventKinds(t *testing.T) {
	kinds := map[messenger.EventKind]Status{
		messenger.KindInitializing:  StatusInitializing,
		messenger.KindPairing:       StatusPairing,
		messenger.KindAuthenticated: StatusAuthenticated,
		messenger.KindReady:         StatusReady,
		messenger.KindAuthFailure:   StatusAuthFailure,
		messenger.KindError:         StatusError,
		messenger.KindDisconnected:  StatusDisconnected,
	}
	for kind, want := range kinds {
		got, ok := statusForKind(kind)
		if !ok || got != want {
			t.Errorf("statusForKind(%s) = %s, %v; want %s, true", kind, got, ok, want)
		}
	}

	if _, ok := statusForKind(messenger.EventKind("carrier-pigeon")); ok {
		t.Error("statusForKind accepted an unknown kind")
	}
}
