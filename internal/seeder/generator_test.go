package seeder_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PageDAO/DAO-Tools/internal/extractor"
	"github.com/PageDAO/DAO-Tools/internal/logging"
	"github.com/PageDAO/DAO-Tools/internal/pipeline"
	"github.com/PageDAO/DAO-Tools/internal/proposal"
	"github.com/PageDAO/DAO-Tools/internal/registry"
	"github.com/PageDAO/DAO-Tools/internal/seeder"
	"github.com/PageDAO/DAO-Tools/internal/valuation"
)

func TestGenerator_Deterministic(t *testing.T) {
	cfg := seeder.DefaultConfig()
	cfg.Seed = 42

	var a, b bytes.Buffer
	require.NoError(t, proposal.WriteInput(&a, proposal.FormatJSON, seeder.New(cfg).Subunits()))
	require.NoError(t, proposal.WriteInput(&b, proposal.FormatJSON, seeder.New(cfg).Subunits()))
	assert.Equal(t, a.String(), b.String())

	cfg.Seed = 43
	var c bytes.Buffer
	require.NoError(t, proposal.WriteInput(&c, proposal.FormatJSON, seeder.New(cfg).Subunits()))
	assert.NotEqual(t, a.String(), c.String())
}

func TestGenerator_Shape(t *testing.T) {
	cfg := seeder.DefaultConfig()
	cfg.Subunits = 4
	cfg.ProposalsPerSubunit = 5
	subunits := seeder.New(cfg).Subunits()

	require.Len(t, subunits, 4)
	assert.Equal(t, "Main DAO", subunits[0].Name)
	ids := make(map[string]bool)
	for _, su := range subunits {
		assert.Len(t, su.Address, len("osmo1")+58)
		require.Len(t, su.Proposals, 5)
		for _, p := range su.Proposals {
			assert.False(t, ids[p.ID()], "proposal ids are unique")
			ids[p.ID()] = true
			assert.NotEmpty(t, p.Title())
			assert.NotEmpty(t, p.Messages())
			_, ok := proposal.ParseDate(p.Date(cfg.End))
			assert.True(t, ok)
		}
	}
}

func TestGenerator_EveryKindYieldsPayments(t *testing.T) {
	g := seeder.New(seeder.Config{Seed: 7, SelfPaymentRate: -1})
	ext := extractor.New(nil, extractor.WithLogger(logging.Discard()))
	self := g.ContractAddress()

	for _, kind := range seeder.AllKinds() {
		t.Run(string(kind), func(t *testing.T) {
			p := proposal.Tree{"id": "1", "created_at": "2024-05-01", "msgs": []any{g.Message(kind, self)}}
			res, err := ext.Extract(context.Background(), p, "Main DAO", self)
			require.NoError(t, err)
			require.NotEmpty(t, res.Payments)
			for _, pay := range res.Payments {
				assert.NotEqual(t, self, pay.Recipient)
			}
		})
	}
}

func TestGenerator_MalformedIsCounted(t *testing.T) {
	g := seeder.New(seeder.Config{Seed: 7})
	ext := extractor.New(nil, extractor.WithLogger(logging.Discard()))
	self := g.ContractAddress()

	p := proposal.Tree{"id": "1", "msgs": []any{g.Message(seeder.KindMalformed, self)}}
	res, err := ext.Extract(context.Background(), p, "Main DAO", self)
	require.NoError(t, err)
	assert.Equal(t, 1, res.DecodeFailures)
	assert.Empty(t, res.Payments)
}

// Self-payments and payments between sub-units of the same batch never
// surface as transactions, whatever the corpus.
func TestPipeline_NoSelfPaymentsInGeneratedCorpora(t *testing.T) {
	for seed := int64(1); seed <= 5; seed++ {
		cfg := seeder.DefaultConfig()
		cfg.Seed = seed
		cfg.SelfPaymentRate = 0.5
		subunits := seeder.New(cfg).Subunits()

		reg := registry.New(registry.Token{Denom: "uosmo", Symbol: "OSMO", Decimals: 6})
		p := pipeline.New(nil, reg, valuation.New(nil), pipeline.WithLogger(logging.Discard()), pipeline.WithWorkers(4))
		txs, diag := p.ProcessAll(context.Background(), subunits, nil)

		own := make(map[string]bool)
		for _, su := range subunits {
			own[su.Address] = true
		}
		require.NotEmpty(t, txs)
		for _, tx := range txs {
			assert.False(t, own[tx.Recipient], "seed %d: %s paid itself", seed, tx.SubunitName)
		}
		assert.Empty(t, diag.ProposalErrors)
	}
}

func TestParseKinds(t *testing.T) {
	got, err := seeder.ParseKinds([]string{"bank", " stargate", "malformed"})
	require.NoError(t, err)
	assert.Equal(t, []seeder.Kind{seeder.KindBank, seeder.KindStargate, seeder.KindMalformed}, got)

	_, err = seeder.ParseKinds([]string{"ibc"})
	assert.Error(t, err)
}
