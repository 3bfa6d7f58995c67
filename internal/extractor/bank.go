package extractor

import (
	"context"
	"fmt"

	"github.com/PageDAO/DAO-Tools/internal/proposal"
	"github.com/PageDAO/DAO-Tools/pkg/ledger"
)

// BankDecoder handles {"bank": {"send": {to_address, amount: [coins]}}}.
// Other bank actions (burn and friends) carry no recipient and yield nothing.
type BankDecoder struct{}

// Supports returns true for bank-wrapped messages.
func (BankDecoder) Supports(msg proposal.Tree) bool {
	return msg.Has("bank")
}

// Decode emits one payment per coin in the send.
func (BankDecoder) Decode(_ context.Context, msg proposal.Tree, src Source) ([]ledger.RawPayment, error) {
	bank, ok := msg.Map("bank")
	if !ok {
		return nil, fmt.Errorf("bank message is %T, want object", msg["bank"])
	}
	send, ok := bank.Map("send")
	if !ok {
		return nil, nil
	}
	return bankSend(send, src), nil
}

func bankSend(send proposal.Tree, src Source) []ledger.RawPayment {
	to := send.String("to_address", "toAddress")
	var out []ledger.RawPayment
	for _, c := range parseCoins(send["amount"]) {
		out = append(out, src.payment(ledger.KindBankSend, to, c.amount, c.denom))
	}
	return out
}
