package episode

import "testing"

func TestTimeWindowContains(t *testing.T) {
	w := TimeWindow{StartMS: 1000, EndMS: 2000, SlackMS: 100}

	cases := map[int64]bool{
		950:  true,
		900:  true,
		899:  false,
		1000: true,
		2000: true,
		2100: true,
		2101: false,
	}
	for ts, want := range cases {
		if got := w.Contains(ts); got != want {
			t.Fatalf("Contains(%d) = %v, want %v", ts, got, want)
		}
	}
}

func TestTimeWindowDefined(t *testing.T) {
	if (TimeWindow{}).Defined() {
		t.Fatal("zero window must not be defined")
	}
	if !(TimeWindow{StartMS: 1, EndMS: 2}).Defined() {
		t.Fatal("bounded window must be defined")
	}
}

func TestTimeFor(t *testing.T) {
	et := Time{
		Host:   TimeWindow{StartMS: 10, EndMS: 20},
		Device: TimeWindow{StartMS: 30, EndMS: 40},
	}
	if et.For(ClockDevice).StartMS != 30 {
		t.Fatal("expected device window")
	}
	if et.For(ClockHost).StartMS != 10 {
		t.Fatal("expected host window")
	}

	// Device evidence with no device window falls back to host.
	et.Device = TimeWindow{}
	if et.For(ClockDevice).StartMS != 10 {
		t.Fatal("expected host fallback")
	}
}
