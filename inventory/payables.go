/*
payables.go - Amounts owed to suppliers

  RecordPurchase: amount += invoice total, invoice appended
  RecordPayment:  amount -= payment, floored at zero, payment appended

An overpayment is not carried as a credit: the excess is dropped and the
payment record keeps both what was paid and what was applied.
*/
package inventory

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type PayableDocument map[SupplierID]*Payable

type PayablesLedger struct {
	Store  Store
	Locker Locker
	Clock  func() time.Time
}

func (p *PayablesLedger) RecordPurchase(ctx context.Context, supplierID SupplierID, amount decimal.Decimal, invoiceRef string, txID TransactionID) (Payable, error) {
	var out Payable
	err := mutateDocument(ctx, p.Store, p.Locker, DocPayables, func(doc *PayableDocument) error {
		if *doc == nil {
			*doc = PayableDocument{}
		}
		payable, ok := (*doc)[supplierID]
		if !ok || payable == nil {
			payable = &Payable{SupplierID: supplierID}
			(*doc)[supplierID] = payable
		}
		now := p.now()
		payable.Amount = roundMoney(payable.Amount.Add(amount))
		payable.Invoices = append(payable.Invoices, InvoiceRecord{
			TransactionID: txID,
			Reference:     invoiceRef,
			Amount:        amount,
			At:            now,
		})
		payable.UpdatedAt = now
		out = *payable
		return nil
	})
	return out, err
}

func (p *PayablesLedger) RecordPayment(ctx context.Context, supplierID SupplierID, amount decimal.Decimal, ref string) (Payable, error) {
	if !amount.IsPositive() {
		return Payable{}, invalid("amount", "must be positive")
	}

	var out Payable
	err := mutateDocument(ctx, p.Store, p.Locker, DocPayables, func(doc *PayableDocument) error {
		payable, ok := (*doc)[supplierID]
		if !ok || payable == nil {
			return &NotFoundError{Kind: "payable", ID: string(supplierID)}
		}
		applied := decimal.Min(amount, payable.Amount)
		if applied.IsNegative() {
			applied = decimal.Zero
		}
		now := p.now()
		payable.Amount = roundMoney(payable.Amount.Sub(applied))
		payable.Payments = append(payable.Payments, PaymentRecord{
			Reference: ref,
			Amount:    amount,
			Applied:   applied,
			At:        now,
		})
		payable.UpdatedAt = now
		out = *payable
		return nil
	})
	return out, err
}

// List returns every payable ordered by supplier id.
func (p *PayablesLedger) List(ctx context.Context) ([]Payable, error) {
	doc := PayableDocument{}
	if err := p.Store.ReadDocument(ctx, DocPayables, &doc); err != nil {
		return nil, err
	}
	out := make([]Payable, 0, len(doc))
	for _, payable := range doc {
		if payable != nil {
			out = append(out, *payable)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SupplierID < out[j].SupplierID })
	return out, nil
}

func (p *PayablesLedger) now() time.Time {
	if p.Clock == nil {
		return time.Now().UTC()
	}
	return p.Clock().UTC()
}
