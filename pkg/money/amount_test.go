package money

import "testing"

func TestFromDollars(t *testing.T) {
	cases := []struct {
		in   string
		want int64 // cents
	}{
		{"12.50", 1250},
		{"-3", -300},
		{"0", 0},
		{"0.01", 1},
		{"-0.99", -99},
		{"+5.5", 550},
	}
	for _, c := range cases {
		got, err := FromDollars(c.in)
		if err != nil {
			t.Fatalf("FromDollars(%q): %v", c.in, err)
		}
		if got.ToCents() != c.want {
			t.Errorf("FromDollars(%q).ToCents() = %d, want %d", c.in, got.ToCents(), c.want)
		}
	}
}

func TestFromDollars_Invalid(t *testing.T) {
	for _, in := range []string{"", "abc", "-", "."} {
		if _, err := FromDollars(in); err == nil {
			t.Errorf("FromDollars(%q) expected error, got nil", in)
		}
	}
}

func TestAddSubtract(t *testing.T) {
	a := FromCents(500)
	b := FromCents(150)
	if got := a.Add(b).ToCents(); got != 650 {
		t.Errorf("Add = %d, want 650", got)
	}
	if got := a.Subtract(b).ToCents(); got != 350 {
		t.Errorf("Subtract = %d, want 350", got)
	}
}

func TestMultiplyByScalar_RoundsHalfAwayFromZero(t *testing.T) {
	// 1 raw unit * 1.5 = 1.5 raw units -> rounds to 2.
	a := FromRawUnits(1)
	if got := a.MultiplyByScalar(1.5).RawUnits(); got != 2 {
		t.Errorf("MultiplyByScalar(1.5) = %d, want 2", got)
	}

	// Negative: -1 raw unit * 1.5 = -1.5 -> rounds to -2 (away from zero).
	neg := FromRawUnits(-1)
	if got := neg.MultiplyByScalar(1.5).RawUnits(); got != -2 {
		t.Errorf("MultiplyByScalar(1.5) on negative = %d, want -2", got)
	}

	// Exact multiplication stays exact.
	exact := FromCents(100)
	if got := exact.MultiplyByScalar(2.0).ToCents(); got != 200 {
		t.Errorf("MultiplyByScalar(2.0) = %d, want 200", got)
	}
}

func TestComparisons(t *testing.T) {
	small := FromCents(100)
	big := FromCents(200)

	if !small.LessThan(big) {
		t.Error("expected small < big")
	}
	if !big.GreaterThan(small) {
		t.Error("expected big > small")
	}
	if !Zero.IsZero() {
		t.Error("Zero.IsZero() should be true")
	}
	if !FromCents(-1).IsNegative() {
		t.Error("FromCents(-1).IsNegative() should be true")
	}
}

func TestToDisplayString(t *testing.T) {
	if got := FromCents(1250).ToDisplayString(); got != "12.50" {
		t.Errorf("ToDisplayString() = %q, want %q", got, "12.50")
	}
	if got := FromCents(-99).ToDisplayString(); got != "-0.99" {
		t.Errorf("ToDisplayString() = %q, want %q", got, "-0.99")
	}
	if got := Zero.ToDisplayString(); got != "0.00" {
		t.Errorf("ToDisplayString() = %q, want %q", got, "0.00")
	}
}
