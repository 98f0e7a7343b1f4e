package models

import "testing"

func TestIoU(t *testing.T) {
	cases := []struct {
		name string
		a, b Box
		want float64
	}{
		{"identical", Box{0, 0, 10, 10}, Box{0, 0, 10, 10}, 1.0},
		{"disjoint", Box{0, 0, 10, 10}, Box{20, 20, 30, 30}, 0.0},
		{"half overlap", Box{0, 0, 10, 10}, Box{5, 0, 15, 10}, 50.0 / 150.0},
		{"degenerate zero area", Box{5, 5, 5, 5}, Box{0, 0, 10, 10}, 0.0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := IoU(c.a, c.b)
			if diff := got - c.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("IoU(%v, %v) = %v, want %v", c.a, c.b, got, c.want)
			}
		})
	}
}

func TestBoxCenterAndArea(t *testing.T) {
	b := Box{X1: 0, Y1: 0, X2: 10, Y2: 20}
	cx, cy := b.Center()
	if cx != 5 || cy != 10 {
		t.Fatalf("Center() = (%v, %v), want (5, 10)", cx, cy)
	}
	if b.Area() != 200 {
		t.Fatalf("Area() = %v, want 200", b.Area())
	}
}

func TestLiveTrackTraceBounded(t *testing.T) {
	lt := &LiveTrack{}
	for i := 0; i < 15; i++ {
		lt.PushTrace(Box{X1: float64(i)})
	}
	trace := lt.Trace()
	if len(trace) != traceCap {
		t.Fatalf("len(Trace()) = %d, want %d", len(trace), traceCap)
	}
	if trace[len(trace)-1].X1 != 14 {
		t.Fatalf("most recent trace entry = %v, want X1=14", trace[len(trace)-1])
	}
	if trace[0].X1 != 5 {
		t.Fatalf("oldest retained trace entry = %v, want X1=5 (evicted the first 5)", trace[0])
	}
}

func TestTrackStateString(t *testing.T) {
	cases := map[TrackState]string{
		StateTentative: "tentative",
		StateConfirmed: "confirmed",
		StateCoasting:  "coasting",
		StateDead:      "dead",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("%v.String() = %q, want %q", int(state), got, want)
		}
	}
}
