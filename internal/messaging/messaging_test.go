package messaging_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PageDAO/DAO-Tools/internal/logging"
	"github.com/PageDAO/DAO-Tools/internal/messaging"
	"github.com/PageDAO/DAO-Tools/internal/report"
	"github.com/PageDAO/DAO-Tools/pkg/ledger"
)

type published struct {
	subject string
	data    []byte
	headers map[string]string
}

type recorder struct {
	msgs []published
	err  error
}

func (r *recorder) PublishMsg(_ context.Context, subject string, data []byte, headers map[string]string) error {
	if r.err != nil {
		return r.err
	}
	r.msgs = append(r.msgs, published{subject, data, headers})
	return nil
}

func TestNotifier_PublishesRunEvent(t *testing.T) {
	rec := &recorder{}
	n := messaging.NewNotifier(rec, "", logging.Discard())

	diag := ledger.Diagnostics{
		RunID:     "run-7",
		StartedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Subunits: []ledger.SubunitStats{
			{Name: "Main DAO"},
			{Name: "Broken", Error: "timeout"},
		},
		ProposalErrors: []ledger.ProposalError{{ProposalID: "3"}},
		DecodeFailures: 2,
	}
	ev := messaging.NewRunCompleted(diag, report.Summary{Transactions: 12, TotalUSD: 100, CoreTeamUSD: 25, CoreTeamPercent: 25})
	require.NoError(t, n.Notify(context.Background(), ev))

	require.Len(t, rec.msgs, 1)
	msg := rec.msgs[0]
	assert.Equal(t, messaging.SubjectRunsCompleted, msg.subject)
	assert.Equal(t, "run-7", msg.headers[messaging.HeaderMsgID])

	var got messaging.RunCompleted
	require.NoError(t, json.Unmarshal(msg.data, &got))
	assert.Equal(t, 12, got.Transactions)
	assert.Equal(t, 2, got.Subunits)
	assert.Equal(t, 1, got.ProposalErrors)
	assert.Equal(t, 2, got.DecodeFailures)
	assert.Equal(t, []messaging.FailedSubunit{{Name: "Broken", Error: "timeout"}}, got.FailedSubunits)
	assert.InDelta(t, 25.0, got.CoreTeamPercent, 1e-9)
}

func TestNotifier_WrapsPublishError(t *testing.T) {
	boom := errors.New("no responders")
	n := messaging.NewNotifier(&recorder{err: boom}, "custom.subject", logging.Discard())

	err := n.Notify(context.Background(), messaging.RunCompleted{RunID: "r"})
	assert.ErrorIs(t, err, boom)
}

func TestNewNATSClient_ConnectFailure(t *testing.T) {
	cfg := messaging.DefaultNATSConfig()
	cfg.URL = "nats://127.0.0.1:1"
	cfg.MaxReconnects = 0
	cfg.Timeout = 200 * time.Millisecond

	_, err := messaging.NewNATSClient(cfg, logging.Discard())
	assert.Error(t, err)
}
