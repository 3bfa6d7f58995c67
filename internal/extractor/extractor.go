// Package extractor decodes proposal messages into raw payments.
//
// Messages are matched against an ordered Registry of decoders; the first
// decoder that supports a message handles it and a catch-all pattern
// scanner sits at the end of the default chain.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/PageDAO/DAO-Tools/internal/logging"
	"github.com/PageDAO/DAO-Tools/internal/proposal"
	"github.com/PageDAO/DAO-Tools/pkg/ledger"
)

// ErrPayloadDecode marks a message payload that could not be decoded.
// The message still contributes whatever could be recovered around it
// (attached funds, for instance) and the proposal is not failed.
var ErrPayloadDecode = errors.New("payload decode failed")

// Decoder turns one message into zero or more payments.
type Decoder interface {
	Supports(msg proposal.Tree) bool
	Decode(ctx context.Context, msg proposal.Tree, src Source) ([]ledger.RawPayment, error)
}

// Registry holds ordered decoders and finds a match for a given message.
type Registry struct {
	items []Decoder
}

// NewRegistry constructs a registry with provided decoders.
func NewRegistry(items ...Decoder) *Registry {
	return &Registry{items: items}
}

// Find returns the first decoder that supports the message.
func (r *Registry) Find(msg proposal.Tree) Decoder {
	if r == nil {
		return nil
	}
	for _, d := range r.items {
		if d.Supports(msg) {
			return d
		}
	}
	return nil
}

// Options tune address and denom assumptions for the target chain.
type Options struct {
	// AddressPrefix is the bech32 human-readable prefix, e.g. "osmo".
	AddressPrefix string
	// DefaultDenom is used when a payload names an amount without a denom.
	DefaultDenom string
}

// DefaultOptions targets Osmosis.
func DefaultOptions() Options {
	return Options{AddressPrefix: "osmo", DefaultDenom: "uosmo"}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.AddressPrefix == "" {
		o.AddressPrefix = def.AddressPrefix
	}
	if o.DefaultDenom == "" {
		o.DefaultDenom = def.DefaultDenom
	}
	return o
}

// DefaultRegistry returns the standard decoder chain: protocol messages,
// bank sends, wasm calls, SDK-typed messages, then the pattern fallback.
func DefaultRegistry(opts Options) *Registry {
	opts = opts.withDefaults()
	return NewRegistry(
		NewStargateDecoder(opts),
		BankDecoder{},
		NewWasmDecoder(opts),
		NewTypedDecoder(opts),
		NewFallbackDecoder(opts),
	)
}

// Source carries proposal provenance copied into every payment.
type Source struct {
	ProposalID     string
	ProposalTitle  string
	ProposalText   string
	ProposalDate   string
	SubunitName    string
	SubunitAddress string
}

func (s Source) payment(kind ledger.MessageKind, recipient string, amount *big.Int, denom string) ledger.RawPayment {
	return ledger.RawPayment{
		ProposalID:     s.ProposalID,
		ProposalTitle:  s.ProposalTitle,
		ProposalText:   s.ProposalText,
		ProposalDate:   s.ProposalDate,
		SubunitName:    s.SubunitName,
		SubunitAddress: s.SubunitAddress,
		Recipient:      recipient,
		RawAmount:      amount,
		Denom:          denom,
		Kind:           kind,
	}
}

// Result is the outcome of scanning one proposal. DecodeFailures counts
// messages whose decoder gave up; they yield no payments of their own but
// do not fail the proposal.
type Result struct {
	Payments       []ledger.RawPayment
	Messages       int
	DecodeFailures int
}

// Error reports a proposal whose scan could not complete: a message that is
// not an object, a panic, or cancellation. Payments recovered before or
// around the failure are still returned alongside it.
type Error struct {
	ProposalID string
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("proposal %s: %v", e.ProposalID, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Extractor applies a decoder registry to whole proposals.
type Extractor struct {
	registry *Registry
	logger   *logging.Logger
	now      func() time.Time
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithClock sets the reference time used when a proposal carries no date.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) { e.now = now }
}

// WithLogger sets the extractor's logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Extractor) { e.logger = l }
}

// New creates an Extractor. A nil registry uses DefaultRegistry.
func New(registry *Registry, opts ...Option) *Extractor {
	if registry == nil {
		registry = DefaultRegistry(DefaultOptions())
	}
	e := &Extractor{registry: registry, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.OrDefault(e.logger).With(logging.Component("extractor"))
	return e
}

// Extract scans every message of p. Self-payments to subunitAddress are
// dropped. Decoder errors are counted in Result.DecodeFailures. A message
// that is not an object or a panic while decoding is reported as *Error
// without discarding payments already collected.
func (e *Extractor) Extract(ctx context.Context, p proposal.Tree, subunitName, subunitAddress string) (res Result, err error) {
	src := Source{
		ProposalID:     p.ID(),
		ProposalTitle:  p.Title(),
		ProposalText:   p.Text(),
		ProposalDate:   p.Date(e.now()),
		SubunitName:    subunitName,
		SubunitAddress: subunitAddress,
	}

	defer func() {
		if r := recover(); r != nil {
			err = &Error{ProposalID: src.ProposalID, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	var errs []error
	for i, raw := range p.Messages() {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, &Error{ProposalID: src.ProposalID, Err: ctxErr}
		}
		res.Messages++

		msg, ok := proposal.AsTree(raw)
		if !ok {
			errs = append(errs, fmt.Errorf("message %d: expected object, got %T", i, raw))
			continue
		}
		d := e.registry.Find(msg)
		if d == nil {
			continue
		}

		payments, decodeErr := d.Decode(ctx, msg, src)
		if decodeErr != nil {
			res.DecodeFailures++
			e.logger.DebugContext(ctx, "message decode incomplete",
				logging.ProposalID(src.ProposalID), logging.Subunit(subunitName),
				"message", i, logging.Error(decodeErr))
		}
		for _, pay := range payments {
			if pay.Recipient == subunitAddress {
				continue
			}
			res.Payments = append(res.Payments, pay)
		}
	}

	if len(errs) > 0 {
		return res, &Error{ProposalID: src.ProposalID, Err: errors.Join(errs...)}
	}
	return res, nil
}
