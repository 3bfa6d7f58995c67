// Package ledger defines the payment records produced by the extraction
// pipeline and consumed by reporting and export collaborators.
package ledger

import (
	"math/big"
	"strings"
)

// MessageKind identifies the decoding path that produced a payment.
type MessageKind string

const (
	KindBankSend             MessageKind = "bank_send"
	KindContractExecute      MessageKind = "contract_execute"
	KindContractExecuteFunds MessageKind = "contract_execute_funds"
	KindContractInstantiate  MessageKind = "contract_instantiate"
	KindProtocolRaw          MessageKind = "protocol_raw"
	KindOther                MessageKind = "other"
)

// LowConfidence reports whether the kind was produced by pattern scraping
// rather than a structured decode.
func (k MessageKind) LowConfidence() bool {
	return k == KindProtocolRaw || k == KindOther
}

// IsContract reports whether the kind originates from a smart-contract message.
func (k MessageKind) IsContract() bool {
	switch k {
	case KindContractExecute, KindContractExecuteFunds, KindContractInstantiate:
		return true
	}
	return false
}

// PaymentType distinguishes core-team recipients from everyone else.
type PaymentType string

const (
	PaymentCoreTeam PaymentType = "Core Team"
	PaymentRegular  PaymentType = "Regular"
)

// RecipientType is a shape-based classification of the recipient address.
type RecipientType string

const (
	RecipientContract RecipientType = "Smart Contract"
	RecipientWallet   RecipientType = "Wallet Address"
	RecipientOther    RecipientType = "Other Address"
	RecipientUnknown  RecipientType = "Unknown"
)

// CategoryStaking marks amounts bonded to a contract rather than paid out.
const CategoryStaking = "staking"

// RawPayment is one payment-like action detected inside a proposal message.
type RawPayment struct {
	ProposalID      string      `json:"proposal_id"`
	ProposalTitle   string      `json:"proposal_title"`
	ProposalText    string      `json:"proposal_text"`
	ProposalDate    string      `json:"proposal_date"`
	SubunitName     string      `json:"subunit_name"`
	SubunitAddress  string      `json:"subunit_address"`
	Recipient       string      `json:"recipient"`
	RawAmount       *big.Int    `json:"raw_amount"`
	Denom           string      `json:"denom"`
	Kind            MessageKind `json:"message_kind"`
	ContractAddress string      `json:"contract_address,omitempty"`
	ContractMethod  string      `json:"contract_method,omitempty"`
	ContractTitle   string      `json:"contract_title,omitempty"`
	ContractOwner   string      `json:"contract_owner,omitempty"`
	Category        string      `json:"category,omitempty"`
}

// Transaction is the normalized ledger row.
type Transaction struct {
	RawPayment

	AdjustedAmount      float64       `json:"adjusted_amount"`
	DisplaySymbol       string        `json:"display_symbol"`
	PaymentType         PaymentType   `json:"payment_type"`
	RecipientType       RecipientType `json:"recipient_type"`
	TransactionCategory string        `json:"transaction_category"`
	AmountCategory      string        `json:"amount_category"`
	Tags                []string      `json:"tags"`
	USD                 USD           `json:"usd_value"`
}

// TagString renders the tags the way reports display them.
func (t Transaction) TagString() string {
	if len(t.Tags) == 0 {
		return "Standard"
	}
	return strings.Join(t.Tags, " | ")
}

// IsCoreTeam reports whether the recipient belongs to the core team.
func (t Transaction) IsCoreTeam() bool {
	return t.PaymentType == PaymentCoreTeam
}
