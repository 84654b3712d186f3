package clock

import "testing"

func TestCompare(t *testing.T) {
	tests := []struct {
		name     string
		stored   Clock
		incoming Clock
		want     Outcome
	}{
		{"accept newer", Clock{Seq: 10, Ticks: 1}, Clock{Seq: 11, Ticks: 2}, Accept},
		{"accept same seq higher ticks", Clock{Seq: 10, Ticks: 1}, Clock{Seq: 10, Ticks: 2}, Accept},
		{"stale lower seq", Clock{Seq: 10, Ticks: 5}, Clock{Seq: 9, Ticks: 6}, Stale},
		{"stale lower ticks", Clock{Seq: 10, Ticks: 5}, Clock{Seq: 10, Ticks: 4}, Stale},
		{"duplicate same ticks", Clock{Seq: 10, Ticks: 5}, Clock{Seq: 10, Ticks: 5}, Duplicate},
		{"duplicate same ticks differing seq", Clock{Seq: 10, Ticks: 5}, Clock{Seq: 99, Ticks: 5}, Duplicate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Compare(tt.stored, tt.incoming); got != tt.want {
				t.Fatalf("Compare(%+v, %+v) = %v, want %v", tt.stored, tt.incoming, got, tt.want)
			}
		})
	}
}

func TestLess(t *testing.T) {
	a := Clock{Seq: 1, Ticks: 1}
	b := Clock{Seq: 1, Ticks: 2}
	if !a.Less(b) {
		t.Fatalf("expected a < b")
	}
	if b.Less(a) {
		t.Fatalf("expected b >= a")
	}
}
