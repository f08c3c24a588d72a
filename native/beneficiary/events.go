package beneficiary

import (
	"fmt"
	"math/big"

	"github.com/filecoin-project/go-address"

	"filpledge/core/types"
)

const (
	EventTypePledge        = "beneficiary.pledge"
	EventTypeRelease       = "beneficiary.release"
	EventTypeLend          = "beneficiary.lend"
	EventTypeMinerParam    = "beneficiary.miner_param"
	EventTypeRepayment     = "beneficiary.repayment"
	EventTypeBatchRepaid   = "beneficiary.batch_repayment"
	EventTypeSaleCreated   = "beneficiary.sale_created"
	EventTypeSaleModified  = "beneficiary.sale_modified"
	EventTypeSaleCancelled = "beneficiary.sale_cancelled"
	EventTypeClaimBought   = "beneficiary.claim_purchased"
	EventTypeWithdrawal    = "beneficiary.withdrawal"
	EventTypeTreasuryParam = "beneficiary.treasury_param"
)

// ledgerEvent adapts a typed ledger event to the emitter interface.
type ledgerEvent struct {
	evt *types.Event
}

func (l ledgerEvent) EventType() string   { return l.evt.Type }
func (l ledgerEvent) Event() *types.Event { return l.evt }

func bigAttr(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func newPledgeEvent(miner *Miner) *types.Event {
	return &types.Event{
		Type: EventTypePledge,
		Attributes: map[string]string{
			"minerId":          fmt.Sprintf("%d", miner.ID),
			"delegator":        miner.Delegator.String(),
			"maxDebtAmount":    bigAttr(miner.MaxDebtAmount),
			"loanInterestRate": fmt.Sprintf("%d", miner.LoanInterestRate),
			"receiveAddress":   miner.ReceiveAddress.String(),
			"disabled":         fmt.Sprintf("%t", miner.Disabled),
			"maxLenderCount":   fmt.Sprintf("%d", miner.MaxLenderCount),
			"minLendAmount":    bigAttr(miner.MinLendAmount),
		},
	}
}

func newReleaseEvent(miner *Miner) *types.Event {
	return &types.Event{
		Type: EventTypeRelease,
		Attributes: map[string]string{
			"minerId":   fmt.Sprintf("%d", miner.ID),
			"delegator": miner.Delegator.String(),
		},
	}
}

func newLendEvent(miner *Miner, loan *Loan, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeLend,
		Attributes: map[string]string{
			"minerId":        fmt.Sprintf("%d", miner.ID),
			"lender":         loan.Lender.String(),
			"amount":         bigAttr(amount),
			"principal":      bigAttr(loan.PrincipalAmount),
			"owed":           bigAttr(loan.LastAmount),
			"receiveAddress": miner.ReceiveAddress.String(),
		},
	}
}

func newMinerParamEvent(miner *Miner, field, value string) *types.Event {
	return &types.Event{
		Type: EventTypeMinerParam,
		Attributes: map[string]string{
			"minerId": fmt.Sprintf("%d", miner.ID),
			"field":   field,
			"value":   value,
		},
	}
}

func newRepaymentEvent(miner *Miner, lender address.Address, payment, interest, fee *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeRepayment,
		Attributes: map[string]string{
			"minerId":  fmt.Sprintf("%d", miner.ID),
			"lender":   lender.String(),
			"payment":  bigAttr(payment),
			"interest": bigAttr(interest),
			"fee":      bigAttr(fee),
		},
	}
}

func newBatchRepaymentEvent(payer address.Address, claims int, payment, totalFee *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeBatchRepaid,
		Attributes: map[string]string{
			"payer":   payer.String(),
			"claims":  fmt.Sprintf("%d", claims),
			"payment": bigAttr(payment),
			"fee":     bigAttr(totalFee),
		},
	}
}

func newSaleEvent(kind string, sale *Sale) *types.Event {
	return &types.Event{
		Type: "beneficiary." + kind,
		Attributes: map[string]string{
			"seller":      sale.Seller.String(),
			"minerId":     fmt.Sprintf("%d", sale.MinerID),
			"amount":      bigAttr(sale.AmountRemaining),
			"pricePerFil": bigAttr(sale.PricePerFil),
		},
	}
}

func newClaimPurchaseEvent(sale *Sale, buyer address.Address, buyAmount, principalMoved, payment *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeClaimBought,
		Attributes: map[string]string{
			"seller":         sale.Seller.String(),
			"buyer":          buyer.String(),
			"minerId":        fmt.Sprintf("%d", sale.MinerID),
			"amount":         bigAttr(buyAmount),
			"principalMoved": bigAttr(principalMoved),
			"payment":        bigAttr(payment),
			"remaining":      bigAttr(sale.AmountRemaining),
		},
	}
}

func newWithdrawalEvent(to address.Address, amount, remaining *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeWithdrawal,
		Attributes: map[string]string{
			"to":         to.String(),
			"amount":     bigAttr(amount),
			"feeBalance": bigAttr(remaining),
		},
	}
}

func newTreasuryParamEvent(field, value string) *types.Event {
	return &types.Event{
		Type: EventTypeTreasuryParam,
		Attributes: map[string]string{
			"field": field,
			"value": value,
		},
	}
}
