package vm

import (
	"fmt"

	"zkledger/internal/amount"
	"zkledger/internal/zerocash"
)

// Value is a function input.
type Value interface {
	// Kind names the input type in error messages.
	Kind() string
}

// RecordValue is a note owned by the caller.
type RecordValue struct {
	Note *zerocash.Note
}

// AddressValue is a recipient address.
type AddressValue struct {
	Address zerocash.Address
}

// AmountValue is an amount in microcredits.
type AmountValue struct {
	Amount amount.Amount
}

func (RecordValue) Kind() string  { return "record" }
func (AddressValue) Kind() string { return "address" }
func (AmountValue) Kind() string  { return "amount" }

func (v RecordValue) String() string {
	if v.Note == nil {
		return "record(nil)"
	}
	return fmt.Sprintf("record(%s, %s)", v.Note.Cm, v.Note.Value)
}

func (v AddressValue) String() string { return fmt.Sprintf("address(%x)", v.Address[:8]) }
func (v AmountValue) String() string  { return v.Amount.String() }
