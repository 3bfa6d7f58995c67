// Package seeder generates synthetic DAO proposal batches covering every
// message shape the extractor understands.
package seeder

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/PageDAO/DAO-Tools/internal/proposal"
)

// Kind names a generated message shape.
type Kind string

const (
	KindBank         Kind = "bank"
	KindWasmTransfer Kind = "wasm_transfer"
	KindWasmPayroll  Kind = "wasm_payroll"
	KindWasmStake    Kind = "wasm_stake"
	KindWasmNested   Kind = "wasm_nested"
	KindWasmFunds    Kind = "wasm_funds"
	KindStargate     Kind = "stargate"
	KindTypedSend    Kind = "typed_send"
	KindTypedExecute Kind = "typed_execute"
	KindOther        Kind = "other"
	KindMalformed    Kind = "malformed"
)

// AllKinds lists every well-formed message kind.
func AllKinds() []Kind {
	return []Kind{
		KindBank, KindWasmTransfer, KindWasmPayroll, KindWasmStake, KindWasmNested,
		KindWasmFunds, KindStargate, KindTypedSend, KindTypedExecute, KindOther,
	}
}

// ParseKinds converts names to kinds, rejecting unknown names.
func ParseKinds(names []string) ([]Kind, error) {
	known := make(map[Kind]bool)
	for _, k := range append(AllKinds(), KindMalformed) {
		known[k] = true
	}
	out := make([]Kind, 0, len(names))
	for _, n := range names {
		k := Kind(strings.TrimSpace(n))
		if !known[k] {
			return nil, fmt.Errorf("unknown message kind %q", n)
		}
		out = append(out, k)
	}
	return out, nil
}

const bech32Charset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

// Config controls corpus size and shape.
type Config struct {
	Seed                int64
	Subunits            int
	ProposalsPerSubunit int
	MaxMessages         int
	AddressPrefix       string
	Denoms              []string
	Kinds               []Kind
	// SelfPaymentRate is the chance that a bank send pays the sub-unit
	// itself.
	SelfPaymentRate float64
	Start           time.Time
	End             time.Time
}

// DefaultConfig returns a small Osmosis-flavoured corpus.
func DefaultConfig() Config {
	end := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return Config{
		Seed:                1,
		Subunits:            3,
		ProposalsPerSubunit: 10,
		MaxMessages:         3,
		AddressPrefix:       "osmo",
		Denoms:              []string{"uosmo", "uion", "ibc/27394FB092D2ECCD56123C74F36E4C1F926001CEADA9CA97EA622B25F41E5EB2"},
		Kinds:               AllKinds(),
		SelfPaymentRate:     0.1,
		Start:               end.AddDate(-2, 0, 0),
		End:                 end,
	}
}

// Generator produces proposal batches from a seeded faker, so equal
// configs give equal output.
type Generator struct {
	cfg   Config
	faker *gofakeit.Faker
	seq   int
}

// New creates a generator, filling zero fields from DefaultConfig.
func New(cfg Config) *Generator {
	def := DefaultConfig()
	if cfg.Subunits <= 0 {
		cfg.Subunits = def.Subunits
	}
	if cfg.ProposalsPerSubunit < 0 {
		cfg.ProposalsPerSubunit = 0
	}
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = def.MaxMessages
	}
	if cfg.AddressPrefix == "" {
		cfg.AddressPrefix = def.AddressPrefix
	}
	if len(cfg.Denoms) == 0 {
		cfg.Denoms = def.Denoms
	}
	if len(cfg.Kinds) == 0 {
		cfg.Kinds = def.Kinds
	}
	if cfg.End.IsZero() {
		cfg.End = def.End
	}
	if cfg.Start.IsZero() || !cfg.Start.Before(cfg.End) {
		cfg.Start = cfg.End.AddDate(-2, 0, 0)
	}
	return &Generator{cfg: cfg, faker: gofakeit.New(cfg.Seed)}
}

// Address returns a random wallet address.
func (g *Generator) Address() string {
	return g.address(38)
}

// ContractAddress returns a random contract address.
func (g *Generator) ContractAddress() string {
	return g.address(58)
}

func (g *Generator) address(n int) string {
	var b strings.Builder
	b.WriteString(g.cfg.AddressPrefix)
	b.WriteByte('1')
	for i := 0; i < n; i++ {
		b.WriteByte(bech32Charset[g.faker.Number(0, len(bech32Charset)-1)])
	}
	return b.String()
}

// Subunits generates the configured number of sub-units. The first is
// named "Main DAO".
func (g *Generator) Subunits() []proposal.Subunit {
	out := make([]proposal.Subunit, 0, g.cfg.Subunits)
	for i := 0; i < g.cfg.Subunits; i++ {
		name := "Main DAO"
		if i > 0 {
			name = g.faker.Company() + " SubDAO"
		}
		su := proposal.Subunit{Name: name, Address: g.ContractAddress()}
		for j := 0; j < g.cfg.ProposalsPerSubunit; j++ {
			su.Proposals = append(su.Proposals, g.Proposal(su.Address))
		}
		out = append(out, su)
	}
	return out
}

// Proposal generates one passed proposal issued by the DAO at self.
func (g *Generator) Proposal(self string) proposal.Tree {
	g.seq++
	n := g.faker.Number(1, g.cfg.MaxMessages)
	msgs := make([]any, 0, n)
	for i := 0; i < n; i++ {
		kind := g.cfg.Kinds[g.faker.Number(0, len(g.cfg.Kinds)-1)]
		msgs = append(msgs, g.Message(kind, self))
	}

	created := g.faker.DateRange(g.cfg.Start, g.cfg.End).UTC()
	return proposal.Tree{
		"id": fmt.Sprint(g.seq),
		"proposal": map[string]any{
			"title":       strings.TrimSuffix(g.faker.Sentence(5), "."),
			"description": g.faker.Paragraph(1, 3, 12, " "),
			"status":      "executed",
			"msgs":        msgs,
		},
		"created_at": created.Format(time.RFC3339),
	}
}

// Message generates one message of the given kind.
func (g *Generator) Message(kind Kind, self string) map[string]any {
	switch kind {
	case KindBank:
		to := g.Address()
		if g.cfg.SelfPaymentRate > 0 && g.faker.Float64Range(0, 1) < g.cfg.SelfPaymentRate {
			to = self
		}
		return map[string]any{"bank": map[string]any{"send": map[string]any{
			"to_address": to,
			"amount":     g.coins(g.faker.Number(1, 2)),
		}}}

	case KindWasmTransfer:
		return g.execute(g.ContractAddress(), map[string]any{"transfer": map[string]any{
			"recipient": g.Address(),
			"amount":    g.amount(),
		}}, nil)

	case KindWasmPayroll:
		return g.execute(g.ContractAddress(), map[string]any{"instantiate_native_payroll_contract": map[string]any{
			"instantiate_msg": map[string]any{
				"recipient": g.Address(),
				"owner":     self,
				"title":     g.faker.JobTitle() + " vesting",
				"total":     g.amount(),
				"denom":     map[string]any{"native": g.denom()},
			},
		}}, nil)

	case KindWasmStake:
		return g.execute(g.ContractAddress(), map[string]any{"stake": map[string]any{"amount": g.amount()}}, nil)

	case KindWasmNested:
		payouts := make([]any, 0, 3)
		for i := g.faker.Number(1, 3); i > 0; i-- {
			payouts = append(payouts, map[string]any{"recipient": g.Address(), "amount": g.amount(), "denom": g.denom()})
		}
		return g.execute(g.ContractAddress(), map[string]any{"distribute": map[string]any{"payouts": payouts}}, nil)

	case KindWasmFunds:
		return g.execute(g.ContractAddress(), map[string]any{"deposit": map[string]any{}}, g.coins(1))

	case KindStargate:
		// Loosely protobuf-shaped: from, to, then the coin.
		denom := g.cfg.Denoms[0]
		value := "\n" + self + "\x12" + g.Address() + "\x1a\x10\n\x05" + denom + "\x12" + g.amount() + denom
		return map[string]any{"stargate": map[string]any{
			"type_url": "/cosmos.bank.v1beta1.MsgSend",
			"value":    base64.StdEncoding.EncodeToString([]byte(value)),
		}}

	case KindTypedSend:
		return map[string]any{
			"@type":        "/cosmos.bank.v1beta1.MsgSend",
			"from_address": self,
			"to_address":   g.Address(),
			"amount":       g.coins(1),
		}

	case KindTypedExecute:
		return map[string]any{
			"@type":    "/cosmwasm.wasm.v1.MsgExecuteContract",
			"sender":   self,
			"contract": g.ContractAddress(),
			"msg":      map[string]any{"transfer": map[string]any{"recipient": g.Address(), "amount": g.amount()}},
			"funds":    []any{},
		}

	case KindMalformed:
		return map[string]any{"wasm": map[string]any{"execute": map[string]any{
			"contract_addr": g.ContractAddress(),
			"msg":           "%%" + g.faker.LetterN(12) + "%%",
			"funds":         []any{},
		}}}

	default:
		return map[string]any{"custom": map[string]any{
			"memo": fmt.Sprintf("grant %s%s to %s", g.amount(), g.cfg.Denoms[0], g.Address()),
		}}
	}
}

func (g *Generator) execute(contract string, msg map[string]any, funds []any) map[string]any {
	raw, _ := json.Marshal(msg)
	if funds == nil {
		funds = []any{}
	}
	return map[string]any{"wasm": map[string]any{"execute": map[string]any{
		"contract_addr": contract,
		"msg":           base64.StdEncoding.EncodeToString(raw),
		"funds":         funds,
	}}}
}

func (g *Generator) denom() string {
	return g.cfg.Denoms[g.faker.Number(0, len(g.cfg.Denoms)-1)]
}

// amount returns a base-unit amount between 0.001 and 100k of a
// six-decimal token.
func (g *Generator) amount() string {
	return fmt.Sprint(g.faker.Number(1_000, 100_000_000_000))
}

func (g *Generator) coins(n int) []any {
	out := make([]any, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, map[string]any{"denom": g.denom(), "amount": g.amount()})
	}
	return out
}
