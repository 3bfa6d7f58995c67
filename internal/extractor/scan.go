package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/PageDAO/DAO-Tools/internal/proposal"
	"github.com/PageDAO/DAO-Tools/pkg/ledger"
)

// scanner pairs address-shaped and amount-shaped tokens found in free text.
// It is the low-confidence path for payloads with no structured decoding.
type scanner struct {
	address *regexp.Regexp
	amount  *regexp.Regexp
	denom   string
}

func newScanner(opts Options) scanner {
	opts = opts.withDefaults()
	return scanner{
		address: regexp.MustCompile(regexp.QuoteMeta(opts.AddressPrefix) + `1[a-z0-9]{38,58}`),
		amount:  regexp.MustCompile(`(\d+)` + regexp.QuoteMeta(opts.DefaultDenom)),
		denom:   opts.DefaultDenom,
	}
}

// scan pairs the first amount with every address match in text, repeats
// included. Self-payments are dropped later by the extractor.
func (s scanner) scan(text string, kind ledger.MessageKind, src Source) []ledger.RawPayment {
	if s.address == nil {
		s = newScanner(DefaultOptions())
	}
	amounts := s.amount.FindStringSubmatch(text)
	if amounts == nil {
		return nil
	}
	amount, ok := new(big.Int).SetString(amounts[1], 10)
	if !ok {
		return nil
	}

	var out []ledger.RawPayment
	for _, addr := range s.address.FindAllString(text, -1) {
		out = append(out, src.payment(kind, addr, new(big.Int).Set(amount), s.denom))
	}
	return out
}

// StargateDecoder handles {"stargate": {"type_url", "value": base64}}.
// The protobuf value is not decoded; its bytes are scanned as text.
type StargateDecoder struct {
	scan scanner
}

// NewStargateDecoder creates a protocol message decoder.
func NewStargateDecoder(opts Options) StargateDecoder {
	return StargateDecoder{scan: newScanner(opts)}
}

// Supports returns true for stargate-wrapped messages.
func (StargateDecoder) Supports(msg proposal.Tree) bool {
	return msg.Has("stargate")
}

// Decode scans the decoded value bytes, dropping invalid UTF-8.
func (d StargateDecoder) Decode(_ context.Context, msg proposal.Tree, src Source) ([]ledger.RawPayment, error) {
	sg, ok := msg.Map("stargate")
	if !ok {
		return nil, fmt.Errorf("stargate message is %T, want object", msg["stargate"])
	}
	value := sg.String("value")
	if value == "" {
		return nil, nil
	}
	raw, err := decodeBase64(value)
	if err != nil {
		return nil, fmt.Errorf("%w: stargate value: %v", ErrPayloadDecode, err)
	}
	text := strings.ToValidUTF8(string(raw), "")
	return d.scan.scan(text, ledger.KindProtocolRaw, src), nil
}

// FallbackDecoder scans the JSON form of any message no other decoder
// claimed. It supports every message and belongs at the end of a chain.
type FallbackDecoder struct {
	scan scanner
}

// NewFallbackDecoder creates the catch-all decoder.
func NewFallbackDecoder(opts Options) FallbackDecoder {
	return FallbackDecoder{scan: newScanner(opts)}
}

// Supports returns true for all messages.
func (FallbackDecoder) Supports(msg proposal.Tree) bool {
	return true
}

// Decode scans the serialized message.
func (d FallbackDecoder) Decode(_ context.Context, msg proposal.Tree, src Source) ([]ledger.RawPayment, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("serialize message: %w", err)
	}
	return d.scan.scan(string(data), ledger.KindOther, src), nil
}
