// Package normalizer turns raw payments into enriched ledger transactions.
package normalizer

import (
	"math/big"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/PageDAO/DAO-Tools/internal/registry"
	"github.com/PageDAO/DAO-Tools/pkg/ledger"
)

// microDenoms maps well-known micro-unit native denoms to tickers.
var microDenoms = map[string]string{
	"uosmo":  "OSMO",
	"uion":   "ION",
	"uatom":  "ATOM",
	"ustars": "STARS",
	"ujuno":  "JUNO",
	"uakt":   "AKT",
	"uscrt":  "SCRT",
	"uusdc":  "USDC",
	"uluna":  "LUNA",
	"utia":   "TIA",
	"untrn":  "NTRN",
	"uumee":  "UMEE",
}

// Normalizer enriches raw payments. It reads the registry and core-team set
// only, so one instance can serve concurrent callers.
type Normalizer struct {
	registry *registry.Registry
	coreTeam map[string]struct{}
	prefix   string
}

// New creates a Normalizer. prefix is the bech32 prefix used for address
// classification; empty means "osmo".
func New(reg *registry.Registry, coreTeam []string, prefix string) *Normalizer {
	if prefix == "" {
		prefix = "osmo"
	}
	set := make(map[string]struct{}, len(coreTeam))
	for _, addr := range coreTeam {
		if addr = strings.TrimSpace(addr); addr != "" {
			set[addr] = struct{}{}
		}
	}
	return &Normalizer{registry: reg, coreTeam: set, prefix: prefix}
}

// Normalize builds the transaction for one payment. USD is left unresolved.
func (n *Normalizer) Normalize(raw ledger.RawPayment) ledger.Transaction {
	decimals := n.registry.Decimals(raw.Denom)
	amount := AdjustAmount(raw.RawAmount, decimals)

	pt := ledger.PaymentRegular
	if n.IsCoreTeam(raw.Recipient) {
		pt = ledger.PaymentCoreTeam
	}

	return ledger.Transaction{
		RawPayment:          raw,
		AdjustedAmount:      amount,
		DisplaySymbol:       n.DisplaySymbol(raw.Denom),
		PaymentType:         pt,
		RecipientType:       ClassifyRecipient(raw.Recipient, n.prefix),
		TransactionCategory: TransactionCategory(amount, pt),
		AmountCategory:      AmountCategory(amount),
		Tags:                Tags(raw.Kind, amount, raw.Recipient, n.prefix),
		USD:                 ledger.Unresolved(),
	}
}

// NormalizeAll normalizes payments preserving order.
func (n *Normalizer) NormalizeAll(raws []ledger.RawPayment) []ledger.Transaction {
	out := make([]ledger.Transaction, 0, len(raws))
	for _, raw := range raws {
		out = append(out, n.Normalize(raw))
	}
	return out
}

// IsCoreTeam reports whether addr is in the core-team set.
func (n *Normalizer) IsCoreTeam(addr string) bool {
	_, ok := n.coreTeam[addr]
	return ok
}

// AdjustAmount scales a base-unit integer by 10^decimals.
func AdjustAmount(raw *big.Int, decimals int) float64 {
	if raw == nil {
		return 0
	}
	if decimals < 0 {
		decimals = 0
	}
	return decimal.NewFromBigInt(raw, -int32(decimals)).InexactFloat64()
}

// DisplaySymbol resolves a ticker for denom: registry, micro-denom alias,
// substring match against registry symbols, short alphabetic uppercase,
// then the denom itself.
func (n *Normalizer) DisplaySymbol(denom string) string {
	if tok, ok := n.registry.Lookup(denom); ok && tok.Symbol != "" {
		return tok.Symbol
	}
	lower := strings.ToLower(denom)
	if ticker, ok := microDenoms[lower]; ok {
		return ticker
	}
	if sym := n.substringSymbol(lower); sym != "" {
		return sym
	}
	if len(denom) > 0 && len(denom) <= 6 && isAlpha(denom) {
		return strings.ToUpper(denom)
	}
	return denom
}

// substringSymbol returns the longest registry symbol that contains or is
// contained in denom. Earlier registrations win ties. Address and IBC hash
// denoms are opaque and never matched.
func (n *Normalizer) substringSymbol(lowerDenom string) string {
	if lowerDenom == "" || strings.HasPrefix(lowerDenom, "ibc/") || strings.HasPrefix(lowerDenom, n.prefix+"1") {
		return ""
	}
	best := ""
	for _, sym := range n.registry.Symbols() {
		ls := strings.ToLower(sym)
		if len(ls) < 2 {
			continue
		}
		if strings.Contains(lowerDenom, ls) || strings.Contains(ls, lowerDenom) {
			if len(sym) > len(best) {
				best = sym
			}
		}
	}
	return best
}

func isAlpha(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}
