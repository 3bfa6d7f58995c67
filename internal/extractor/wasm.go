package extractor

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/PageDAO/DAO-Tools/internal/proposal"
	"github.com/PageDAO/DAO-Tools/pkg/ledger"
)

const payrollMethod = "instantiate_native_payroll_contract"

var (
	recipientKeys = []string{"recipient", "to", "beneficiary"}
	amountKeys    = []string{"amount", "total", "value", "sum"}
)

// WasmDecoder handles {"wasm": {"execute": {contract_addr, msg, funds}}}.
// Non-execute wasm actions (instantiate, migrate, ...) yield nothing.
type WasmDecoder struct {
	opts Options
}

// NewWasmDecoder creates a wasm decoder for the given chain options.
func NewWasmDecoder(opts Options) WasmDecoder {
	return WasmDecoder{opts: opts.withDefaults()}
}

// Supports returns true for wasm-wrapped messages.
func (WasmDecoder) Supports(msg proposal.Tree) bool {
	return msg.Has("wasm")
}

// Decode extracts payments from an execute call. Funds attached to the call
// are emitted as separate contract_execute_funds payments to the contract.
func (d WasmDecoder) Decode(_ context.Context, msg proposal.Tree, src Source) ([]ledger.RawPayment, error) {
	wasm, ok := msg.Map("wasm")
	if !ok {
		return nil, fmt.Errorf("wasm message is %T, want object", msg["wasm"])
	}
	exec, ok := wasm.Map("execute")
	if !ok {
		return nil, nil
	}
	return d.execute(exec, src)
}

func (d WasmDecoder) execute(exec proposal.Tree, src Source) ([]ledger.RawPayment, error) {
	opts := d.opts.withDefaults()
	contract := exec.String("contract_addr", "contract")
	decoded, raw, decodeErr := decodePayload(exec["msg"])
	method := methodName(decoded, raw)

	payments := d.contractPayments(decoded, method, contract, src, opts)
	for _, c := range parseCoins(exec["funds"]) {
		payments = append(payments, src.payment(ledger.KindContractExecuteFunds, contract, c.amount, c.denom))
	}

	for i := range payments {
		payments[i].ContractAddress = contract
		payments[i].ContractMethod = method
	}
	return payments, decodeErr
}

func (d WasmDecoder) contractPayments(decoded proposal.Tree, method, contract string, src Source, opts Options) []ledger.RawPayment {
	switch {
	case decoded.Has("transfer"), decoded.Has("send"):
		body, ok := decoded.Map("transfer")
		if !ok {
			body, _ = decoded.Map("send")
		}
		recipient := body.String("recipient", "contract")
		amount, ok := proposal.Amount(body["amount"])
		if recipient == "" || !ok {
			return nil
		}
		denom := body.String("denom")
		if denom == "" {
			denom = contract
		}
		return []ledger.RawPayment{src.payment(ledger.KindContractExecute, recipient, amount, denom)}

	case decoded.Has(payrollMethod):
		return payroll(decoded, src, opts)

	case decoded.Has("stake"):
		body, _ := decoded.Map("stake")
		amount, ok := proposal.Amount(body["amount"])
		if !ok {
			return nil
		}
		denom := body.String("denom")
		if denom == "" {
			denom = opts.DefaultDenom
		}
		p := src.payment(ledger.KindContractExecute, contract, amount, denom)
		p.Category = ledger.CategoryStaking
		return []ledger.RawPayment{p}
	}

	var out []ledger.RawPayment
	scanNested(decoded[method], opts, func(recipient string, amount nestedAmount) {
		out = append(out, src.payment(ledger.KindContractExecute, recipient, amount.value, amount.denom))
	})
	return out
}

// payroll handles vesting contract creation through a payroll factory.
func payroll(decoded proposal.Tree, src Source, opts Options) []ledger.RawPayment {
	body, _ := decoded.Map(payrollMethod)
	inst, ok := body.Map("instantiate_msg")
	if !ok {
		return nil
	}
	recipient := inst.String("recipient")
	total, ok := proposal.Amount(inst["total"])
	if recipient == "" || !ok {
		return nil
	}

	denom := opts.DefaultDenom
	switch v := inst["denom"].(type) {
	case string:
		if v != "" {
			denom = v
		}
	default:
		if dt, ok := proposal.AsTree(v); ok {
			if native := dt.String("native"); native != "" {
				denom = native
			} else if cw20 := dt.String("cw20"); cw20 != "" {
				denom = cw20
			}
		}
	}

	p := src.payment(ledger.KindContractInstantiate, recipient, total, denom)
	p.ContractTitle = inst.String("title")
	p.ContractOwner = inst.String("owner")
	return []ledger.RawPayment{p}
}

type nestedAmount struct {
	value *big.Int
	denom string
}

// scanNested walks a decoded payload looking for recipient-like keys whose
// siblings hold an amount.
func scanNested(v any, opts Options, emit func(recipient string, amount nestedAmount)) {
	prefix := opts.AddressPrefix + "1"
	switch node := v.(type) {
	case []any:
		for _, item := range node {
			scanNested(item, opts, emit)
		}
	default:
		tree, ok := proposal.AsTree(v)
		if !ok {
			return
		}
		for _, rk := range recipientKeys {
			recipient, ok := tree[rk].(string)
			if !ok || !strings.HasPrefix(recipient, prefix) {
				continue
			}
			for _, ak := range amountKeys {
				amount, ok := proposal.Amount(tree[ak])
				if !ok {
					continue
				}
				denom := tree.String("denom")
				if denom == "" {
					denom = opts.DefaultDenom
				}
				emit(recipient, nestedAmount{value: amount, denom: denom})
				break
			}
		}
		for _, k := range sortedKeys(tree) {
			scanNested(tree[k], opts, emit)
		}
	}
}

func sortedKeys(t proposal.Tree) []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
