package transaction

import "testing"

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from    Status
		to      Status
		allowed bool
	}{
		{StatusPending, StatusCompleted, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusOnHold, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusReversed, false},
		{StatusOnHold, StatusCompleted, true},
		{StatusOnHold, StatusFailed, true},
		{StatusOnHold, StatusCancelled, false},
		{StatusCompleted, StatusReversed, true},
		{StatusCompleted, StatusPending, false},
		{StatusFailed, StatusPending, false},
		{StatusCancelled, StatusCompleted, false},
		{StatusReversed, StatusCompleted, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.allowed {
			t.Fatalf("%s -> %s: got %v want %v", tc.from, tc.to, got, tc.allowed)
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range []Status{StatusFailed, StatusCancelled, StatusReversed} {
		if !s.Terminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
	for _, s := range []Status{StatusPending, StatusOnHold, StatusCompleted} {
		if s.Terminal() {
			t.Fatalf("%s should not be terminal", s)
		}
	}
}

func TestCurrencySupported(t *testing.T) {
	if !CurrencySupported("USD") {
		t.Fatal("USD should be supported")
	}
	if CurrencySupported("BTC") {
		t.Fatal("BTC should not be supported")
	}
}
