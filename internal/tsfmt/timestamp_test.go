package tsfmt

import "testing"

func TestFromSeconds(t *testing.T) {
	cases := []struct {
		seconds float64
		want    string
	}{
		{0, "00:00:00.000"},
		{1.5, "00:00:01.500"},
		{61.001, "00:01:01.001"},
		{3661.999, "01:01:01.999"},
		{-5, "00:00:00.000"},
	}
	for _, c := range cases {
		if got := FromSeconds(c.seconds); got != c.want {
			t.Errorf("FromSeconds(%v) = %q, want %q", c.seconds, got, c.want)
		}
	}
}

func TestToSeconds(t *testing.T) {
	cases := []struct {
		ts   string
		want float64
	}{
		{"00:00:00.000", 0},
		{"00:00:01.500", 1.5},
		{"01:01:01.001", 3661.001},
	}
	for _, c := range cases {
		got, err := ToSeconds(c.ts)
		if err != nil {
			t.Fatalf("ToSeconds(%q) error: %v", c.ts, err)
		}
		if diff := got - c.want; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("ToSeconds(%q) = %v, want %v", c.ts, got, c.want)
		}
	}
}

func TestToSecondsMalformed(t *testing.T) {
	if _, err := ToSeconds("not-a-timestamp"); err == nil {
		t.Fatal("expected error for malformed timestamp")
	}
}

func TestRoundTrip(t *testing.T) {
	inputs := []string{"00:00:00.000", "00:00:01.500", "01:02:03.456", "23:59:59.999"}
	for _, in := range inputs {
		seconds, err := ToSeconds(in)
		if err != nil {
			t.Fatalf("ToSeconds(%q) error: %v", in, err)
		}
		out := FromSeconds(seconds)
		if out != in {
			t.Errorf("round trip %q -> %v -> %q, want %q", in, seconds, out, in)
		}
	}
}

func TestFromMillis(t *testing.T) {
	if got := FromMillis(61001); got != "00:01:01.001" {
		t.Errorf("FromMillis(61001) = %q, want 00:01:01.001", got)
	}
}
