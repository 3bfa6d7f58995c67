// Package pricing holds historical unit prices indexed by symbol and date.
package pricing

import (
	"sort"
	"strings"
	"time"

	"github.com/PageDAO/DAO-Tools/internal/proposal"
)

// Entry is one price record as it appears in price history files.
type Entry struct {
	Token string  `json:"token"`
	Date  string  `json:"date"`
	Price float64 `json:"price"`
}

// Quote is the result of a table lookup.
type Quote struct {
	Symbol string
	Date   string
	Price  float64
	Exact  bool
}

type series struct {
	prices map[string]float64
	dates  []time.Time
}

// Table is an immutable symbol -> date -> price index. Symbols are stored
// uppercased. Safe for concurrent readers.
type Table struct {
	series map[string]*series
}

// Builder accumulates entries from one or more sources. Later entries for
// the same symbol and date overwrite earlier ones.
type Builder struct {
	prices  map[string]map[string]float64
	skipped int
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{prices: make(map[string]map[string]float64)}
}

// Add records a price. Entries with an empty symbol or an unparsable date
// are counted as skipped.
func (b *Builder) Add(symbol, date string, price float64) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	d, ok := proposal.ParseDate(date)
	if symbol == "" || !ok {
		b.skipped++
		return
	}
	byDate, ok := b.prices[symbol]
	if !ok {
		byDate = make(map[string]float64)
		b.prices[symbol] = byDate
	}
	byDate[d.Format(proposal.DateLayout)] = price
}

// AddEntries records every entry in order.
func (b *Builder) AddEntries(entries ...Entry) {
	for _, e := range entries {
		b.Add(e.Token, e.Date, e.Price)
	}
}

// Skipped returns how many entries were rejected.
func (b *Builder) Skipped() int {
	return b.skipped
}

// Build freezes the accumulated prices into a Table.
func (b *Builder) Build() *Table {
	t := &Table{series: make(map[string]*series, len(b.prices))}
	for symbol, byDate := range b.prices {
		s := &series{prices: make(map[string]float64, len(byDate))}
		for date, price := range byDate {
			s.prices[date] = price
			d, _ := proposal.ParseDate(date)
			s.dates = append(s.dates, d)
		}
		sort.Slice(s.dates, func(i, j int) bool { return s.dates[i].Before(s.dates[j]) })
		t.series[symbol] = s
	}
	return t
}

// NewTable builds a table directly from entries.
func NewTable(entries ...Entry) *Table {
	b := NewBuilder()
	b.AddEntries(entries...)
	return b.Build()
}

// Has reports whether symbol has any prices. The lookup is exact: callers
// normalize case before asking.
func (t *Table) Has(symbol string) bool {
	if t == nil {
		return false
	}
	s, ok := t.series[symbol]
	return ok && len(s.dates) > 0
}

// Len returns the number of symbols.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.series)
}

// Symbols returns the sorted symbol list.
func (t *Table) Symbols() []string {
	if t == nil {
		return nil
	}
	out := make([]string, 0, len(t.series))
	for s := range t.series {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Lookup returns the price for symbol on date, falling back to the closest
// known date by absolute day distance. Ties resolve to the earlier date.
func (t *Table) Lookup(symbol, date string) (Quote, bool) {
	if !t.Has(symbol) {
		return Quote{}, false
	}
	s := t.series[symbol]

	target, ok := proposal.ParseDate(date)
	if !ok {
		return Quote{}, false
	}
	key := target.Format(proposal.DateLayout)
	if price, ok := s.prices[key]; ok {
		return Quote{Symbol: symbol, Date: key, Price: price, Exact: true}, true
	}

	nearest := s.nearest(target)
	key = nearest.Format(proposal.DateLayout)
	return Quote{Symbol: symbol, Date: key, Price: s.prices[key]}, true
}

func (s *series) nearest(target time.Time) time.Time {
	i := sort.Search(len(s.dates), func(i int) bool { return !s.dates[i].Before(target) })
	switch {
	case i == 0:
		return s.dates[0]
	case i == len(s.dates):
		return s.dates[len(s.dates)-1]
	}
	before, after := s.dates[i-1], s.dates[i]
	if after.Sub(target) < target.Sub(before) {
		return after
	}
	return before
}

// Entries returns every price sorted by symbol then date.
func (t *Table) Entries() []Entry {
	var out []Entry
	for _, symbol := range t.Symbols() {
		s := t.series[symbol]
		for _, d := range s.dates {
			key := d.Format(proposal.DateLayout)
			out = append(out, Entry{Token: symbol, Date: key, Price: s.prices[key]})
		}
	}
	return out
}
