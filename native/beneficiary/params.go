package beneficiary

const (
	// RateBase is the fixed-point denominator for all rate parameters
	// (loan interest rate, max debt rate, fee rate).
	RateBase = 1_000_000

	// SecondsPerYear is the accrual year used by continuous compounding.
	SecondsPerYear = 31_536_000

	// MaxFeeRate caps the protocol fee rate over RateBase.
	MaxFeeRate = 500_000

	// DefaultMaxDebtRate is the genesis ceiling on aggregate owed amount
	// relative to collateral value, over RateBase.
	DefaultMaxDebtRate = 600_000

	// DefaultFeeRate is the genesis protocol fee rate over RateBase.
	DefaultFeeRate = 100_000

	// DefaultHandoffWindow bounds how stale a beneficiary handoff proof
	// timestamp may be, in seconds.
	DefaultHandoffWindow = 300
)

var (
	// PriceBase is the fixed-point denominator for sale prices: a
	// pricePerFil of PriceBase trades claims at par.
	PriceBase = mustBigInt("1000000000000000000")

	// DefaultMinLendAmount is the genesis global floor for a single lend,
	// 1 FIL in attoFIL.
	DefaultMinLendAmount = mustBigInt("1000000000000000000")
)
