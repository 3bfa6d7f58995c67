package normalizer

import (
	"strings"

	"github.com/PageDAO/DAO-Tools/pkg/ledger"
)

// contractAddressLength separates contract addresses (32-byte hashes) from
// wallet addresses (20-byte hashes) in bech32 form.
const contractAddressLength = 50

// Amount-range labels in display order, largest first.
const (
	AmountVeryLarge = "Very Large (100K+ OSMO)"
	AmountLarge     = "Large (50K-100K OSMO)"
	AmountMedium    = "Medium (10K-50K OSMO)"
	AmountSmall     = "Small (1K-10K OSMO)"
	AmountMinor     = "Minor (100-1K OSMO)"
	AmountMicro     = "Micro (<100 OSMO)"
)

type bucket struct {
	min   float64
	label string
}

var amountBuckets = []bucket{
	{100000, AmountVeryLarge},
	{50000, AmountLarge},
	{10000, AmountMedium},
	{1000, AmountSmall},
	{100, AmountMinor},
}

var amountTags = []bucket{
	{50000, "Major Expenditure"},
	{10000, "Significant Payment"},
	{1000, "Standard Payment"},
	{100, "Minor Payment"},
}

var sizeBuckets = []bucket{
	{10000, "Large"},
	{1000, "Medium"},
	{100, "Small"},
}

// AmountCategoryOrder returns the amount-range labels in display order.
func AmountCategoryOrder() []string {
	out := make([]string, 0, len(amountBuckets)+1)
	for _, b := range amountBuckets {
		out = append(out, b.label)
	}
	return append(out, AmountMicro)
}

// AmountCategory buckets an adjusted amount. Every amount maps to exactly
// one label; anything below 100, including negatives and NaN, is Micro.
func AmountCategory(amount float64) string {
	for _, b := range amountBuckets {
		if amount >= b.min {
			return b.label
		}
	}
	return AmountMicro
}

// TransactionCategory combines a size bucket with the payment type.
func TransactionCategory(amount float64, pt ledger.PaymentType) string {
	for _, b := range sizeBuckets {
		if amount >= b.min {
			if pt == ledger.PaymentCoreTeam {
				return b.label + " Core Team Payment"
			}
			return b.label + " External Payment"
		}
	}
	return "Micro Payment"
}

// AmountTag labels an amount on the five-tier tag scale.
func AmountTag(amount float64) string {
	for _, b := range amountTags {
		if amount >= b.min {
			return b.label
		}
	}
	return "Micro Payment"
}

// KindTag labels the message family, or returns "" for scanned messages
// that carry no family.
func KindTag(kind ledger.MessageKind) string {
	switch {
	case kind == ledger.KindBankSend:
		return "Direct Transfer"
	case kind == ledger.KindProtocolRaw:
		return "Protocol Operation"
	case kind.IsContract():
		return "Smart Contract"
	}
	return ""
}

// ClassifyRecipient classifies an address by shape. It is a heuristic,
// not bech32 validation.
func ClassifyRecipient(addr, prefix string) ledger.RecipientType {
	if addr == "" {
		return ledger.RecipientUnknown
	}
	if strings.HasPrefix(addr, prefix+"1") {
		if len(addr) > contractAddressLength {
			return ledger.RecipientContract
		}
		return ledger.RecipientWallet
	}
	return ledger.RecipientOther
}

// Tags builds the ordered tag list: message family, amount tier, then
// address shape.
func Tags(kind ledger.MessageKind, amount float64, recipient, prefix string) []string {
	var tags []string
	if t := KindTag(kind); t != "" {
		tags = append(tags, t)
	}
	tags = append(tags, AmountTag(amount))
	if strings.HasPrefix(recipient, prefix+"1") {
		if len(recipient) > contractAddressLength {
			tags = append(tags, "Contract Address")
		} else {
			tags = append(tags, "Wallet Address")
		}
	}
	return tags
}
