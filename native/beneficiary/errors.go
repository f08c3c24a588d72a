package beneficiary

import "errors"

// Sentinel errors returned by the ledger engine. Each carries a stable
// message so integrators can distinguish causes programmatically; the
// ReasonCode helper maps them to short machine-readable codes for transport.
var (
	ErrNilState = errors.New("beneficiary engine: state not configured")

	// Policy violations.
	ErrBelowMinLend      = errors.New("beneficiary engine: amount below minimum lend")
	ErrExceedsCollateral = errors.New("beneficiary engine: max debt amount exceeds collateral ceiling")
	ErrDebtRateExceeded  = errors.New("beneficiary engine: aggregate debt rate exceeded")
	ErrDebtCapExceeded   = errors.New("beneficiary engine: aggregate debt cap exceeded")
	ErrRegistryFull      = errors.New("beneficiary engine: lender registry full")
	ErrRateMismatch      = errors.New("beneficiary engine: interest rate changed since quote")
	ErrBuyTooSmall       = errors.New("beneficiary engine: buy amount below minimum fill")
	ErrExceedsListing    = errors.New("beneficiary engine: buy amount exceeds listing")
	ErrPriceMismatch     = errors.New("beneficiary engine: sale price changed since quote")
	ErrFeeRateTooHigh    = errors.New("beneficiary engine: fee rate above maximum")
	ErrOverRepayment     = errors.New("beneficiary engine: payment exceeds owed amount")
	ErrInvalidAmount     = errors.New("beneficiary engine: amount must be positive")
	ErrInvalidPrice      = errors.New("beneficiary engine: price must be positive")

	// Authorization failures.
	ErrNotDelegator  = errors.New("beneficiary engine: caller is not the miner delegator")
	ErrNotFoundation = errors.New("beneficiary engine: caller is not the foundation")
	ErrZeroAddress   = errors.New("beneficiary engine: address must not be empty")

	// State conflicts.
	ErrAlreadyPledged   = errors.New("beneficiary engine: miner already pledged")
	ErrMinerNotPledged  = errors.New("beneficiary engine: miner not pledged")
	ErrMinerDisabled    = errors.New("beneficiary engine: lending disabled for miner")
	ErrDebtOutstanding  = errors.New("beneficiary engine: outstanding debt must be zero")
	ErrLoanNotFound     = errors.New("beneficiary engine: loan not found")
	ErrSaleExists       = errors.New("beneficiary engine: sale already listed")
	ErrSaleNotFound     = errors.New("beneficiary engine: sale not found")
	ErrInsufficientOwed = errors.New("beneficiary engine: amount exceeds current owed")

	// Arithmetic failures.
	ErrPaymentMismatch        = errors.New("beneficiary engine: payment does not match required amount")
	ErrLengthMismatch         = errors.New("beneficiary engine: batch arrays must have equal length")
	ErrAccrualOverflow        = errors.New("beneficiary engine: accrual input outside safe range")
	ErrInsufficientFunds      = errors.New("beneficiary engine: insufficient account balance")
	ErrInsufficientFeeBalance = errors.New("beneficiary engine: insufficient fee balance")

	// External dependency failures.
	ErrOracleUnavailable = errors.New("beneficiary engine: collateral oracle unavailable")
	ErrHandoffRejected   = errors.New("beneficiary engine: beneficiary handoff proof rejected")
)

var reasonCodes = map[error]string{
	ErrNilState:               "NIL_STATE",
	ErrBelowMinLend:           "BELOW_MIN_LEND",
	ErrExceedsCollateral:      "EXCEEDS_COLLATERAL",
	ErrDebtRateExceeded:       "DEBT_RATE_EXCEEDED",
	ErrDebtCapExceeded:        "DEBT_CAP_EXCEEDED",
	ErrRegistryFull:           "REGISTRY_FULL",
	ErrRateMismatch:           "RATE_MISMATCH",
	ErrBuyTooSmall:            "BUY_TOO_SMALL",
	ErrExceedsListing:         "EXCEEDS_LISTING",
	ErrPriceMismatch:          "PRICE_MISMATCH",
	ErrFeeRateTooHigh:         "FEE_RATE_TOO_HIGH",
	ErrOverRepayment:          "OVER_REPAYMENT",
	ErrInvalidAmount:          "INVALID_AMOUNT",
	ErrInvalidPrice:           "INVALID_PRICE",
	ErrNotDelegator:           "NOT_DELEGATOR",
	ErrNotFoundation:          "NOT_FOUNDATION",
	ErrZeroAddress:            "ZERO_ADDRESS",
	ErrAlreadyPledged:         "ALREADY_PLEDGED",
	ErrMinerNotPledged:        "MINER_NOT_PLEDGED",
	ErrMinerDisabled:          "DISABLED",
	ErrDebtOutstanding:        "DEBT_OUTSTANDING",
	ErrLoanNotFound:           "LOAN_NOT_FOUND",
	ErrSaleExists:             "SALE_EXISTS",
	ErrSaleNotFound:           "SALE_NOT_FOUND",
	ErrInsufficientOwed:       "INSUFFICIENT_OWED",
	ErrPaymentMismatch:        "PAYMENT_MISMATCH",
	ErrLengthMismatch:         "LENGTH_MISMATCH",
	ErrAccrualOverflow:        "ACCRUAL_OVERFLOW",
	ErrInsufficientFunds:      "INSUFFICIENT_FUNDS",
	ErrInsufficientFeeBalance: "INSUFFICIENT_FEE_BALANCE",
	ErrOracleUnavailable:      "ORACLE_UNAVAILABLE",
	ErrHandoffRejected:        "HANDOFF_REJECTED",
}

// ReasonCode resolves an engine error to its stable short code. Unknown
// errors map to "INTERNAL".
func ReasonCode(err error) string {
	for sentinel, code := range reasonCodes {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return "INTERNAL"
}
