// Package api defines the JSON wire shapes shared by the HTTP server, the
// websocket feed and the Kafka publisher. Amounts travel as decimal strings
// of the smallest unit; addresses as base58.
package api

import (
	"fmt"

	"github.com/holiman/uint256"

	"reflection-token-lab/internal/domain"
)

// Amount renders an optional amount. nil stays empty.
func Amount(v *uint256.Int) string {
	if v == nil {
		return ""
	}
	return v.Dec()
}

// ParseAmount parses a decimal amount in smallest units. Empty maps to nil.
func ParseAmount(s string) (*uint256.Int, error) {
	if s == "" {
		return nil, nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidAmount, s)
	}
	return v, nil
}

// Operation is the wire form of a journal entry.
type Operation struct {
	Seq         int64          `json:"seq"`
	OperationID string         `json:"operation_id"`
	Kind        string         `json:"kind"`
	Caller      domain.Address `json:"caller"`
	From        domain.Address `json:"from"`
	To          domain.Address `json:"to"`
	Amount      string         `json:"amount,omitempty"`
	Net         string         `json:"net,omitempty"`
	Tax         string         `json:"tax,omitempty"`
	Flag        bool           `json:"flag"`
	TimestampMs int64          `json:"timestamp_ms"`
}

// FromOperation converts a journal entry.
func FromOperation(op *domain.Operation) Operation {
	return Operation{
		Seq:         op.Seq,
		OperationID: op.OperationID,
		Kind:        string(op.Kind),
		Caller:      op.Caller,
		From:        op.From,
		To:          op.To,
		Amount:      Amount(op.Amount),
		Net:         Amount(op.Net),
		Tax:         Amount(op.Tax),
		Flag:        op.Flag,
		TimestampMs: op.TimestampMs,
	}
}

// ToDomain converts back to a journal entry.
func (o Operation) ToDomain() (*domain.Operation, error) {
	op := &domain.Operation{
		Seq:         o.Seq,
		OperationID: o.OperationID,
		Kind:        domain.OperationKind(o.Kind),
		Caller:      o.Caller,
		From:        o.From,
		To:          o.To,
		Flag:        o.Flag,
		TimestampMs: o.TimestampMs,
	}
	if !op.Kind.IsValid() {
		return nil, fmt.Errorf("unknown operation kind %q", o.Kind)
	}
	var err error
	if op.Amount, err = ParseAmount(o.Amount); err != nil {
		return nil, err
	}
	if op.Net, err = ParseAmount(o.Net); err != nil {
		return nil, err
	}
	if op.Tax, err = ParseAmount(o.Tax); err != nil {
		return nil, err
	}
	return op, nil
}

// Transfer is the wire form of a committed transfer.
type Transfer struct {
	Seq         int64          `json:"seq"`
	From        domain.Address `json:"from"`
	To          domain.Address `json:"to"`
	Gross       string         `json:"gross"`
	Net         string         `json:"net"`
	Tax         string         `json:"tax"`
	Taxed       bool           `json:"taxed"`
	TimestampMs int64          `json:"timestamp_ms"`
}

// FromTransfer converts a transfer result.
func FromTransfer(seq int64, r *domain.TransferResult) Transfer {
	return Transfer{
		Seq:         seq,
		From:        r.From,
		To:          r.To,
		Gross:       domain.ZeroIfNil(r.Gross).Dec(),
		Net:         domain.ZeroIfNil(r.Net).Dec(),
		Tax:         domain.ZeroIfNil(r.Tax).Dec(),
		Taxed:       r.Taxed(),
		TimestampMs: r.TimestampMs,
	}
}

// Holder is the wire form of an account view.
type Holder struct {
	Address    domain.Address `json:"address"`
	Balance    string         `json:"balance"`
	Reflection string         `json:"reflection"`
}

// FromHolder converts an account view.
func FromHolder(h domain.Holder) Holder {
	return Holder{
		Address:    h.Address,
		Balance:    domain.ZeroIfNil(h.Balance).Dec(),
		Reflection: domain.ZeroIfNil(h.Reflection).Dec(),
	}
}

// Event is one websocket feed message.
type Event struct {
	Type      string    `json:"type"` // operation kind
	Operation Operation `json:"operation"`
	Transfer  *Transfer `json:"transfer,omitempty"`
}
