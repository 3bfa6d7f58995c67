// Package messaging announces completed ledger runs on a message bus.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/PageDAO/DAO-Tools/internal/logging"
	"github.com/PageDAO/DAO-Tools/internal/report"
	"github.com/PageDAO/DAO-Tools/pkg/ledger"
)

// SubjectRunsCompleted is the default subject for run events.
// Follows {domain}.{resource}.{action}.
const SubjectRunsCompleted = "daoledger.runs.completed"

// HeaderMsgID carries the run ID so the broker can drop duplicates.
const HeaderMsgID = "Nats-Msg-Id"

// Publisher sends raw payloads with headers.
type Publisher interface {
	PublishMsg(ctx context.Context, subject string, data []byte, headers map[string]string) error
}

// FailedSubunit names a sub-unit skipped because of a fetch error.
type FailedSubunit struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

// RunCompleted is published once per finished run.
type RunCompleted struct {
	RunID           string          `json:"run_id"`
	StartedAt       time.Time       `json:"started_at"`
	FinishedAt      time.Time       `json:"finished_at"`
	Transactions    int             `json:"transactions"`
	Unresolved      int             `json:"unresolved"`
	TotalUSD        float64         `json:"total_usd"`
	CoreTeamUSD     float64         `json:"core_team_usd"`
	CoreTeamPercent float64         `json:"core_team_percent"`
	Subunits        int             `json:"subunits"`
	FailedSubunits  []FailedSubunit `json:"failed_subunits,omitempty"`
	ProposalErrors  int             `json:"proposal_errors"`
	DecodeFailures  int             `json:"decode_failures"`
}

// NewRunCompleted builds the event for a run.
func NewRunCompleted(diag ledger.Diagnostics, s report.Summary) RunCompleted {
	ev := RunCompleted{
		RunID:           diag.RunID,
		StartedAt:       diag.StartedAt,
		FinishedAt:      diag.FinishedAt,
		Transactions:    s.Transactions,
		Unresolved:      s.Unresolved,
		TotalUSD:        s.TotalUSD,
		CoreTeamUSD:     s.CoreTeamUSD,
		CoreTeamPercent: s.CoreTeamPercent,
		Subunits:        len(diag.Subunits),
		ProposalErrors:  len(diag.ProposalErrors),
		DecodeFailures:  diag.DecodeFailures,
	}
	for _, f := range diag.FailedSubunits() {
		ev.FailedSubunits = append(ev.FailedSubunits, FailedSubunit{Name: f.Name, Error: f.Error})
	}
	return ev
}

// Notifier publishes run events to one subject.
type Notifier struct {
	pub     Publisher
	subject string
	logger  *logging.Logger
}

// NewNotifier creates a Notifier. An empty subject uses SubjectRunsCompleted.
func NewNotifier(pub Publisher, subject string, logger *logging.Logger) *Notifier {
	if subject == "" {
		subject = SubjectRunsCompleted
	}
	return &Notifier{
		pub:     pub,
		subject: subject,
		logger:  logging.OrDefault(logger).With(logging.Component("messaging")),
	}
}

// Notify publishes ev.
func (n *Notifier) Notify(ctx context.Context, ev RunCompleted) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal run event: %w", err)
	}
	headers := map[string]string{HeaderMsgID: ev.RunID}
	if err := n.pub.PublishMsg(ctx, n.subject, data, headers); err != nil {
		return fmt.Errorf("publish run event: %w", err)
	}
	n.logger.InfoContext(ctx, "published run event", "subject", n.subject, logging.Count(ev.Transactions))
	return nil
}
