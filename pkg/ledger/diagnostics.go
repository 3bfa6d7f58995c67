package ledger

import "time"

// SubunitStats records per sub-unit extraction counts. DecodeFailures counts
// messages that could not be decoded and yielded no payments of their own.
// Error carries a fetch error verbatim when the sub-unit was skipped.
type SubunitStats struct {
	Name           string `json:"name"`
	Address        string `json:"address"`
	Proposals      int    `json:"proposals"`
	Payments       int    `json:"payments"`
	DecodeFailures int    `json:"decode_failures,omitempty"`
	Error          string `json:"error,omitempty"`
}

// ProposalError records a proposal that failed extraction.
type ProposalError struct {
	Subunit    string `json:"subunit"`
	ProposalID string `json:"proposal_id"`
	Error      string `json:"error"`
}

// Diagnostics summarizes a single batch run.
type Diagnostics struct {
	RunID             string          `json:"run_id"`
	StartedAt         time.Time       `json:"started_at"`
	FinishedAt        time.Time       `json:"finished_at"`
	MessagesScanned   int             `json:"messages_scanned"`
	PaymentsExtracted int             `json:"payments_extracted"`
	DecodeFailures    int             `json:"decode_failures"`
	Subunits          []SubunitStats  `json:"subunits"`
	ProposalErrors    []ProposalError `json:"proposal_errors,omitempty"`
}

// Subunit returns the stats for the named sub-unit.
func (d *Diagnostics) Subunit(name string) (SubunitStats, bool) {
	for _, s := range d.Subunits {
		if s.Name == name {
			return s, true
		}
	}
	return SubunitStats{}, false
}

// FailedSubunits returns the sub-units that were skipped because of a fetch error.
func (d *Diagnostics) FailedSubunits() []SubunitStats {
	var out []SubunitStats
	for _, s := range d.Subunits {
		if s.Error != "" {
			out = append(out, s)
		}
	}
	return out
}
