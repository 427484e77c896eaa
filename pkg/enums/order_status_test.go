package enums

import "testing"

func TestCanTransitionTable(t *testing.T) {
	allowed := map[OrderStatus]map[OrderStatus]bool{
		OrderStatusPending:        {OrderStatusConfirmed: true, OrderStatusCancelled: true},
		OrderStatusConfirmed:      {OrderStatusPreparing: true, OrderStatusCancelled: true},
		OrderStatusPreparing:      {OrderStatusReady: true, OrderStatusCancelled: true},
		OrderStatusReady:          {OrderStatusOutForDelivery: true, OrderStatusDelivered: true, OrderStatusPickedUp: true, OrderStatusCancelled: true},
		OrderStatusOutForDelivery: {OrderStatusDelivered: true},
	}

	for _, from := range validOrderStatuses {
		for _, to := range validOrderStatuses {
			want := allowed[from][to]
			if got := CanTransition(from, to); got != want {
				t.Fatalf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestTerminalStatusesAbsorb(t *testing.T) {
	for _, terminal := range []OrderStatus{OrderStatusDelivered, OrderStatusPickedUp, OrderStatusCancelled} {
		if !terminal.IsTerminal() {
			t.Fatalf("%s should be terminal", terminal)
		}
		for _, to := range validOrderStatuses {
			if CanTransition(terminal, to) {
				t.Fatalf("terminal %s must not move to %s", terminal, to)
			}
		}
	}
	if OrderStatusReady.IsTerminal() {
		t.Fatalf("ready is not terminal")
	}
}

func TestUnknownStatusNeverTransitions(t *testing.T) {
	if CanTransition("archived", OrderStatusCancelled) {
		t.Fatalf("unknown source status must not transition")
	}
	if CanTransition(OrderStatusPending, "archived") {
		t.Fatalf("unknown target status must not be reachable")
	}
	if OrderStatus("archived").IsTerminal() {
		t.Fatalf("unknown status is not terminal")
	}
}

func TestAllowedNextReturnsCopy(t *testing.T) {
	next := OrderStatusPending.AllowedNext()
	next[0] = OrderStatusDelivered
	if !CanTransition(OrderStatusPending, OrderStatusConfirmed) {
		t.Fatalf("mutating AllowedNext result leaked into the table")
	}
}

func TestParseOrderStatus(t *testing.T) {
	got, err := ParseOrderStatus("out-for-delivery")
	if err != nil || got != OrderStatusOutForDelivery {
		t.Fatalf("unexpected parse result %q %v", got, err)
	}
	if _, err := ParseOrderStatus("OUT_FOR_DELIVERY"); err == nil {
		t.Fatalf("expected error for unknown status")
	}
}
