package transaction

import "testing"

func TestFeeScheduleQuote(t *testing.T) {
	fees := NewFeeSchedule(FeeRates{
		TransferBPS:   100, // 1%
		WithdrawalBPS: 150,
		PaymentBPS:    250,
		PayoutFlat:    2_500,
	})

	cases := []struct {
		name    string
		txType  Type
		amount  int64
		wantFee int64
	}{
		{"transfer one percent", TypeTransferOut, 10_000, 100},
		{"transfer rounds half up", TypeTransferOut, 50, 1}, // 0.5 rounds to 1
		{"withdrawal", TypeWithdrawal, 10_000, 150},
		{"payment", TypePayment, 10_000, 250},
		{"payout flat", TypePayout, 10_000, 2_500},
		{"payout flat capped at amount", TypePayout, 1_000, 1_000},
		{"deposit free", TypeDeposit, 10_000, 0},
		{"transfer in free", TypeTransferIn, 10_000, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fee, net := fees.Quote(tc.txType, tc.amount)
			if fee != tc.wantFee {
				t.Fatalf("fee = %d want %d", fee, tc.wantFee)
			}
			if net != tc.amount-tc.wantFee {
				t.Fatalf("net = %d want %d", net, tc.amount-tc.wantFee)
			}
		})
	}
}

func TestFeeScheduleZeroRates(t *testing.T) {
	fees := NewFeeSchedule(FeeRates{})
	fee, net := fees.Quote(TypeTransferOut, 7_331)
	if fee != 0 || net != 7_331 {
		t.Fatalf("expected free transfer, got fee %d net %d", fee, net)
	}
}
