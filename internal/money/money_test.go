package money

import "testing"

func TestPlatformFeeTotal(t *testing.T) {
	cases := []struct {
		consultation int64
		fee          int64
	}{
		{100000, 10000},
		{99900, 9990},
		{15, 2}, // 1.5 rounds up
		{14, 1}, // 1.4 rounds down
		{0, 0},
	}
	for _, c := range cases {
		if got := PlatformFee(c.consultation); got != c.fee {
			t.Fatalf("PlatformFee(%d)=%d, want %d", c.consultation, got, c.fee)
		}
	}
}

func TestGST(t *testing.T) {
	if got := GST(100000, 50000); got != 27000 {
		t.Fatalf("GST(100000,50000)=%d, want 27000", got)
	}
	// 18% of 3 = 0.54, rounds to 1
	if got := GST(3, 0); got != 1 {
		t.Fatalf("GST(3,0)=%d, want 1", got)
	}
}

func TestRefundCap(t *testing.T) {
	if got := RefundCap(100000); got != 98000 {
		t.Fatalf("RefundCap(100000)=%d, want 98000", got)
	}
	if got := RefundCap(0); got != 0 {
		t.Fatalf("RefundCap(0)=%d, want 0", got)
	}
	for _, amount := range []int64{1, 49, 99, 12345, 999999} {
		if cap := RefundCap(amount); cap > amount {
			t.Fatalf("refund cap %d exceeds amount %d", cap, amount)
		}
	}
}

func TestSplitConserves(t *testing.T) {
	for _, amount := range []int64{0, 1, 99, 100, 110000, 12345} {
		payee, platform := Split(amount)
		if payee+platform != amount {
			t.Fatalf("split of %d lost money: payee=%d platform=%d", amount, payee, platform)
		}
	}
	payee, platform := Split(110000)
	if payee != 99000 || platform != 11000 {
		t.Fatalf("unexpected split: payee=%d platform=%d", payee, platform)
	}
}
