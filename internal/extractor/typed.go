package extractor

import (
	"context"
	"strings"

	"github.com/PageDAO/DAO-Tools/internal/proposal"
	"github.com/PageDAO/DAO-Tools/pkg/ledger"
)

// TypedDecoder handles unwrapped SDK messages identified by "@type" or
// "type_url", as emitted by indexers that store the amino-JSON form.
type TypedDecoder struct {
	wasm WasmDecoder
}

// NewTypedDecoder creates a decoder for unwrapped SDK messages.
func NewTypedDecoder(opts Options) TypedDecoder {
	return TypedDecoder{wasm: NewWasmDecoder(opts)}
}

func typeURL(msg proposal.Tree) string {
	return msg.String("@type", "type_url", "typeUrl")
}

// Supports returns true for bank sends and contract executions.
func (TypedDecoder) Supports(msg proposal.Tree) bool {
	t := typeURL(msg)
	return strings.HasSuffix(t, ".MsgSend") || strings.HasSuffix(t, ".MsgExecuteContract")
}

// Decode dispatches to the bank or wasm handling.
func (d TypedDecoder) Decode(_ context.Context, msg proposal.Tree, src Source) ([]ledger.RawPayment, error) {
	if strings.HasSuffix(typeURL(msg), ".MsgSend") {
		return bankSend(msg, src), nil
	}
	return d.wasm.execute(msg, src)
}
