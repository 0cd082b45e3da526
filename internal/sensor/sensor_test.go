package sensor

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestFeed_Update(t *testing.T) {
	f := NewFeed(time.Second)
	now := time.Unix(1700000000, 0)
	f.now = func() time.Time { return now }

	if !f.Stale() {
		t.Fatal("empty feed should be stale")
	}

	got, err := f.Update(Reading{HeadingDeg: -10, TurnRateDps: 2.5, HeelDeg: -4})
	if err != nil {
		t.Fatalf("Update() err=%v", err)
	}
	if got.HeadingDeg != 350 || !got.At.Equal(now) {
		t.Fatalf("Update() = %+v", got)
	}

	if f.CompassDeg() != 350 || f.TurnRateDps() != 2.5 || f.HeelDeg() != -4 {
		t.Fatalf("accessors disagree with reading")
	}
	if f.Stale() {
		t.Fatal("fresh reading reported stale")
	}

	now = now.Add(2 * time.Second)
	if !f.Stale() {
		t.Fatal("old reading not reported stale")
	}
}

func TestFeed_RejectsNonFinite(t *testing.T) {
	f := NewFeed(0)

	for _, r := range []Reading{
		{HeadingDeg: math.NaN()},
		{TurnRateDps: math.Inf(1)},
		{HeelDeg: math.Inf(-1)},
	} {
		if _, err := f.Update(r); !errors.Is(err, ErrInvalidReading) {
			t.Fatalf("Update(%+v) err=%v", r, err)
		}
	}
	if _, ok := f.Latest(); ok {
		t.Fatal("rejected reading was stored")
	}
}

func TestHeelText(t *testing.T) {
	cases := map[float64]string{
		0:     "LEVEL",
		1.4:   "LEVEL",
		-1.4:  "LEVEL",
		1.5:   "002 STBD",
		12.2:  "012 STBD",
		-7:    "007 PORT",
		-45.6: "046 PORT",
	}
	for heel, want := range cases {
		if got := HeelText(heel); got != want {
			t.Fatalf("HeelText(%v) = %q, want %q", heel, got, want)
		}
	}
}
