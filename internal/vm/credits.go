package vm

import (
	"io"

	"github.com/cockroachdb/errors"

	"zkledger/internal/amount"
	"zkledger/internal/network"
	"zkledger/internal/zerocash"
)

// CreditsProgram is the native token program.
var CreditsProgram = MustParseProgramID("credits.aleo")

// Function names of CreditsProgram.
const (
	Transfer Identifier = "transfer"
	Mint     Identifier = "mint"
)

var creditsFunctions = map[Identifier]function{
	Transfer: transfer,
	Mint:     mint,
}

// transfer(record, [record], address, amount, fee) sends amount to address, pays fee and returns
// the change to the caller.
func transfer(p *network.Params, sk zerocash.PrivateKey, inputs []Value, rng io.Reader) (*zerocash.Assignment, error) {
	var records []*zerocash.Note
	for len(records) < len(inputs) {
		r, ok := inputs[len(records)].(RecordValue)
		if !ok {
			break
		}
		records = append(records, r.Note)
	}
	if len(records) == 0 || len(records) > zerocash.NumInputs {
		return nil, errors.Wrapf(ErrInvalidInputs, "transfer takes 1 to %d records, got %d", zerocash.NumInputs, len(records))
	}
	rest := inputs[len(records):]
	if len(rest) != 3 {
		return nil, errors.Wrapf(ErrInvalidInputs, "transfer takes records, address, amount, fee; got %d trailing inputs", len(rest))
	}
	to, ok := rest[0].(AddressValue)
	if !ok {
		return nil, errors.Wrapf(ErrInvalidInputs, "recipient is %s, want address", rest[0].Kind())
	}
	value, ok := rest[1].(AmountValue)
	if !ok {
		return nil, errors.Wrapf(ErrInvalidInputs, "amount is %s, want amount", rest[1].Kind())
	}
	fee, ok := rest[2].(AmountValue)
	if !ok {
		return nil, errors.Wrapf(ErrInvalidInputs, "fee is %s, want amount", rest[2].Kind())
	}
	if value.Amount <= 0 || fee.Amount < 0 {
		return nil, errors.Wrapf(ErrInvalidInputs, "amount %s and fee %s", value.Amount, fee.Amount)
	}

	spends := make([]zerocash.Spend, 0, len(records))
	var total amount.Amount
	for i, note := range records {
		if note == nil {
			return nil, errors.Wrapf(ErrInvalidInputs, "record %d is nil", i)
		}
		if note.Owner != sk.Address() {
			return nil, errors.Wrapf(ErrInvalidInputs, "record %d is not owned by the caller", i)
		}
		var err error
		if total, err = total.Add(note.Value); err != nil {
			return nil, err
		}
		spends = append(spends, zerocash.Spend{Note: note, Key: sk})
	}

	spent, err := value.Amount.Add(fee.Amount)
	if err != nil {
		return nil, err
	}
	change, err := total.Sub(spent)
	if err != nil {
		return nil, err
	}
	if change.IsNegative() {
		return nil, errors.Wrapf(ErrInsufficientFunds, "records hold %s, transfer needs %s", total, spent)
	}

	return zerocash.NewAssignment(p.ID, spends, []zerocash.Output{
		{Owner: to.Address, Value: value.Amount},
		{Owner: sk.Address(), Value: change},
	}, rng)
}

// mint(address, amount) creates up to the network block reward out of nothing. The resulting
// transaction has a negative value balance and is the block's coinbase.
func mint(p *network.Params, _ zerocash.PrivateKey, inputs []Value, rng io.Reader) (*zerocash.Assignment, error) {
	if len(inputs) != 2 {
		return nil, errors.Wrapf(ErrInvalidInputs, "mint takes address, amount; got %d inputs", len(inputs))
	}
	to, ok := inputs[0].(AddressValue)
	if !ok {
		return nil, errors.Wrapf(ErrInvalidInputs, "recipient is %s, want address", inputs[0].Kind())
	}
	value, ok := inputs[1].(AmountValue)
	if !ok {
		return nil, errors.Wrapf(ErrInvalidInputs, "amount is %s, want amount", inputs[1].Kind())
	}
	if value.Amount <= 0 || value.Amount > p.BlockReward {
		return nil, errors.Wrapf(ErrInvalidInputs, "mint amount %s outside (0, %s]", value.Amount, p.BlockReward)
	}
	return zerocash.NewAssignment(p.ID, nil, []zerocash.Output{{Owner: to.Address, Value: value.Amount}}, rng)
}
