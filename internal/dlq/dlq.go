// Package dlq keeps proposals whose extraction failed, one JSON file per
// entry, so they can be inspected and replayed after a run.
package dlq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/PageDAO/DAO-Tools/internal/logging"
	"github.com/PageDAO/DAO-Tools/internal/proposal"
)

// ErrDisabled is returned by read operations on a nil queue.
var ErrDisabled = errors.New("dlq not enabled")

// ErrNotFound is returned when Delete matches no entry.
var ErrNotFound = errors.New("dlq entry not found")

// FailedProposal captures an extraction failure with the raw proposal.
type FailedProposal struct {
	ID         string        `json:"id"`
	Timestamp  time.Time     `json:"timestamp"`
	RunID      string        `json:"run_id,omitempty"`
	Subunit    string        `json:"subunit"`
	Address    string        `json:"address"`
	ProposalID string        `json:"proposal_id"`
	Proposal   proposal.Tree `json:"proposal"`
	Error      string        `json:"error"`
	Reason     string        `json:"reason"`
}

// Stats describes queue state.
type Stats struct {
	Enabled      bool   `json:"enabled"`
	Written      uint64 `json:"written"`
	PendingFiles int    `json:"pending_files"`
	BasePath     string `json:"base_path,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Queue writes failed proposals to a directory. A nil *Queue accepts
// writes and drops them.
type Queue struct {
	basePath string
	logger   *logging.Logger
	now      func() time.Time

	mu      sync.Mutex
	written uint64
}

// NewQueue creates a queue rooted at basePath, creating the directory.
func NewQueue(basePath string, logger *logging.Logger) (*Queue, error) {
	if basePath == "" {
		basePath = filepath.Join(os.TempDir(), "daoledger", "dlq")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create dlq directory: %w", err)
	}
	return &Queue{
		basePath: basePath,
		logger:   logging.OrDefault(logger).With(logging.Component("dlq")),
		now:      time.Now,
	}, nil
}

// Write records a failed proposal.
func (q *Queue) Write(ctx context.Context, subunit, address string, p proposal.Tree, cause error, reason string) error {
	if q == nil {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	ts := q.now().UTC()
	id := fmt.Sprintf("failed_%d_%d", ts.UnixNano(), q.written)
	entry := FailedProposal{
		ID:         id,
		Timestamp:  ts,
		RunID:      logging.RunIDFromContext(ctx),
		Subunit:    subunit,
		Address:    address,
		ProposalID: p.ID(),
		Proposal:   p,
		Reason:     reason,
	}
	if cause != nil {
		entry.Error = cause.Error()
	}

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal dlq entry: %w", err)
	}
	path := filepath.Join(q.basePath, id+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write dlq entry: %w", err)
	}
	q.written++

	q.logger.WarnContext(ctx, "proposal sent to dlq",
		logging.Path(path), logging.Subunit(subunit), logging.ProposalID(entry.ProposalID), "reason", reason)
	return nil
}

// Stats returns queue counters.
func (q *Queue) Stats() Stats {
	if q == nil {
		return Stats{}
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	s := Stats{Enabled: true, Written: q.written, BasePath: q.basePath}
	names, err := q.entryNames()
	if err != nil {
		s.Error = err.Error()
		return s
	}
	s.PendingFiles = len(names)
	return s
}

// List returns up to limit entries, oldest first. limit <= 0 means all.
func (q *Queue) List(ctx context.Context, limit int) ([]FailedProposal, error) {
	if q == nil {
		return nil, ErrDisabled
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	names, err := q.entryNames()
	if err != nil {
		return nil, err
	}

	var out []FailedProposal
	for _, name := range names {
		if limit > 0 && len(out) >= limit {
			break
		}
		data, err := os.ReadFile(filepath.Join(q.basePath, name))
		if err != nil {
			q.logger.ErrorContext(ctx, "failed to read dlq file", logging.Path(name), logging.Error(err))
			continue
		}
		var fp FailedProposal
		if err := json.Unmarshal(data, &fp); err != nil {
			q.logger.ErrorContext(ctx, "failed to parse dlq file", logging.Path(name), logging.Error(err))
			continue
		}
		out = append(out, fp)
	}
	return out, nil
}

// Delete removes the entry with the given ID.
func (q *Queue) Delete(ctx context.Context, id string) error {
	if q == nil {
		return ErrDisabled
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	id = strings.TrimSuffix(filepath.Base(id), ".json")
	path := filepath.Join(q.basePath, id+".json")
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("delete dlq file: %w", err)
	}
	q.logger.InfoContext(ctx, "dlq entry deleted", logging.Path(path))
	return nil
}

// Purge removes every entry and returns how many were deleted.
func (q *Queue) Purge(ctx context.Context) (int, error) {
	if q == nil {
		return 0, ErrDisabled
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	names, err := q.entryNames()
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, name := range names {
		if err := os.Remove(filepath.Join(q.basePath, name)); err != nil {
			q.logger.ErrorContext(ctx, "failed to delete dlq file", logging.Path(name), logging.Error(err))
			continue
		}
		deleted++
	}
	q.logger.InfoContext(ctx, "dlq purged", logging.Count(deleted))
	return deleted, nil
}

// entryNames lists entry files in write order. Caller holds q.mu.
func (q *Queue) entryNames() ([]string, error) {
	files, err := os.ReadDir(q.basePath)
	if err != nil {
		return nil, fmt.Errorf("read dlq directory: %w", err)
	}
	type named struct {
		name    string
		ts, seq int64
	}
	var entries []named
	for _, f := range files {
		if f.IsDir() || !strings.HasPrefix(f.Name(), "failed_") || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		var n named
		n.name = f.Name()
		_, _ = fmt.Sscanf(f.Name(), "failed_%d_%d.json", &n.ts, &n.seq)
		entries = append(entries, n)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].ts != entries[j].ts {
			return entries[i].ts < entries[j].ts
		}
		return entries[i].seq < entries[j].seq
	})
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.name
	}
	return names, nil
}
