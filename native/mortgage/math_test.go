package mortgage

import "testing"

func TestPaymentCount(t *testing.T) {
	cases := []struct {
		duration uint64
		want     uint64
	}{
		{duration: PaymentPeriod - 1, want: 1},
		{duration: PaymentPeriod, want: 1},
		{duration: 12 * PaymentPeriod, want: 12},
		{duration: 31_536_000, want: 12},
	}
	for _, tc := range cases {
		if got := paymentCount(tc.duration); got != tc.want {
			t.Fatalf("paymentCount(%d): got %d want %d", tc.duration, got, tc.want)
		}
	}
}

func TestAmortizedPaymentZeroRateIsStraightLine(t *testing.T) {
	payment, err := amortizedPayment(120_000, 0, 12*PaymentPeriod)
	if err != nil {
		t.Fatalf("amortized payment: %v", err)
	}
	if payment != 10_000 {
		t.Fatalf("straight-line payment: got %d want 10000", payment)
	}
}

func TestAmortizedPaymentRetiresLoan(t *testing.T) {
	const principal = 100_000
	const rateBps = 500
	const duration = 31_536_000 // one year, 12 periods

	payment, err := amortizedPayment(principal, rateBps, duration)
	if err != nil {
		t.Fatalf("amortized payment: %v", err)
	}
	if payment <= principal/12 {
		t.Fatalf("payment %d does not cover interest on top of principal", payment)
	}

	// Simulate the schedule: interest first, remainder against principal.
	// The rounded-up annuity payment must clear the balance within n periods.
	balance := uint64(principal)
	for i := 0; i < 12 && balance > 0; i++ {
		interest, err := periodInterest(balance, rateBps)
		if err != nil {
			t.Fatalf("period interest: %v", err)
		}
		due := payment
		if balance+interest < due {
			due = balance + interest
		}
		principalPortion := due - interest
		if principalPortion > balance {
			principalPortion = balance
		}
		balance -= principalPortion
	}
	if balance != 0 {
		t.Fatalf("balance not retired after 12 payments: %d remaining", balance)
	}
}

func TestPeriodInterestFloors(t *testing.T) {
	// 100_000 at 500 bps annually is 5_000 per year, 416.67 per period.
	interest, err := periodInterest(100_000, 500)
	if err != nil {
		t.Fatalf("period interest: %v", err)
	}
	if interest != 416 {
		t.Fatalf("period interest: got %d want 416", interest)
	}
	zero, err := periodInterest(100_000, 0)
	if err != nil {
		t.Fatalf("zero rate: %v", err)
	}
	if zero != 0 {
		t.Fatalf("zero-rate interest: %d", zero)
	}
}
