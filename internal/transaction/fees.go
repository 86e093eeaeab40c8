package transaction

import "github.com/shopspring/decimal"

// FeeRates configures the fee schedule. Basis points apply to the gross
// amount; flat fees are minor units.
type FeeRates struct {
	TransferBPS   int64
	WithdrawalBPS int64
	PaymentBPS    int64
	PayoutFlat    int64
}

// FeeSchedule computes platform fees. Quote is a pure function of
// (type, amount) and the same instance serves quoting and execution, so the
// two can never drift apart.
type FeeSchedule struct {
	rates FeeRates
}

// NewFeeSchedule builds a schedule from the configured rates.
func NewFeeSchedule(rates FeeRates) *FeeSchedule {
	return &FeeSchedule{rates: rates}
}

// Quote returns (fee, net) for a gross amount in minor units. Net is always
// amount - fee and the fee never exceeds the amount.
func (f *FeeSchedule) Quote(t Type, amount int64) (fee int64, net int64) {
	switch t {
	case TypeTransferOut:
		fee = bpsFee(amount, f.rates.TransferBPS)
	case TypeWithdrawal:
		fee = bpsFee(amount, f.rates.WithdrawalBPS)
	case TypePayment:
		fee = bpsFee(amount, f.rates.PaymentBPS)
	case TypePayout:
		fee = f.rates.PayoutFlat
	}
	if fee > amount {
		fee = amount
	}
	return fee, amount - fee
}

var tenThousand = decimal.NewFromInt(10_000)

func bpsFee(amount, bps int64) int64 {
	if bps <= 0 || amount <= 0 {
		return 0
	}
	return decimal.NewFromInt(amount).
		Mul(decimal.NewFromInt(bps)).
		Div(tenThousand).
		Round(0).
		IntPart()
}
