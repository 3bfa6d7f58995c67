package pricing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-gota/gota/dataframe"
	gotaseries "github.com/go-gota/gota/series"
	"github.com/shopspring/decimal"

	"github.com/PageDAO/DAO-Tools/internal/logging"
)

// ErrUnsupportedFormat is returned for price files that are neither JSON nor CSV.
var ErrUnsupportedFormat = errors.New("unsupported price file format")

// recordJSON accepts the field spellings seen in price exports.
type recordJSON struct {
	Token  string          `json:"token"`
	Symbol string          `json:"symbol"`
	Date   string          `json:"date"`
	Price  json.RawMessage `json:"price"`
	USD    json.RawMessage `json:"price_usd"`
}

// ParseJSON decodes either a record array ([{token, date, price}]) or a
// nested object ({symbol: {date: price}}).
func ParseJSON(data []byte) ([]Entry, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	if data[0] == '[' {
		var records []recordJSON
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("parse price records: %w", err)
		}
		entries := make([]Entry, 0, len(records))
		for _, r := range records {
			token := r.Token
			if token == "" {
				token = r.Symbol
			}
			raw := r.Price
			if len(raw) == 0 {
				raw = r.USD
			}
			price, err := parsePrice(string(bytes.Trim(raw, `"`)))
			if err != nil {
				continue
			}
			entries = append(entries, Entry{Token: token, Date: r.Date, Price: price})
		}
		return entries, nil
	}

	var nested map[string]map[string]json.Number
	if err := json.Unmarshal(data, &nested); err != nil {
		return nil, fmt.Errorf("parse price map: %w", err)
	}
	// Tokens differing only in case collapse to one symbol, so entries are
	// emitted in key order for a stable last-writer-wins merge.
	tokens := make([]string, 0, len(nested))
	for token := range nested {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)

	var entries []Entry
	for _, token := range tokens {
		byDate := nested[token]
		dates := make([]string, 0, len(byDate))
		for date := range byDate {
			dates = append(dates, date)
		}
		sort.Strings(dates)
		for _, date := range dates {
			price, err := parsePrice(byDate[date].String())
			if err != nil {
				continue
			}
			entries = append(entries, Entry{Token: token, Date: date, Price: price})
		}
	}
	return entries, nil
}

// ParseCSV decodes a CSV file with a header naming token (or symbol), date
// (or day) and price (or price_usd, close) columns. Rows whose price does not
// parse are dropped.
func ParseCSV(r io.Reader) ([]Entry, error) {
	df := dataframe.ReadCSV(r,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(gotaseries.String),
	)
	if df.Err != nil {
		return nil, fmt.Errorf("read price csv: %w", df.Err)
	}

	tokens, err := csvColumn(df, "token", "symbol")
	if err != nil {
		return nil, err
	}
	dates, err := csvColumn(df, "date", "day")
	if err != nil {
		return nil, err
	}
	prices, err := csvColumn(df, "price", "price_usd", "close")
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, df.Nrow())
	for i := range prices {
		price, err := parsePrice(prices[i])
		if err != nil {
			continue
		}
		entries = append(entries, Entry{
			Token: strings.TrimSpace(tokens[i]),
			Date:  strings.TrimSpace(dates[i]),
			Price: price,
		})
	}
	return entries, nil
}

// csvColumn returns the values of the first column whose header matches one
// of names, ignoring case and surrounding space.
func csvColumn(df dataframe.DataFrame, names ...string) ([]string, error) {
	headers := make(map[string]string, df.Ncol())
	for _, h := range df.Names() {
		key := strings.ToLower(strings.TrimSpace(h))
		if _, dup := headers[key]; !dup {
			headers[key] = h
		}
	}
	for _, n := range names {
		if h, ok := headers[n]; ok {
			return df.Col(h).Records(), nil
		}
	}
	return nil, fmt.Errorf("csv header missing %s column", names[0])
}

func parsePrice(s string) (float64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("negative price %s", s)
	}
	return d.InexactFloat64(), nil
}

// ReadFile parses a price file by extension.
func ReadFile(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return ParseJSON(data)
	case ".csv":
		return ParseCSV(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}
}

// LoadFiles merges the given price files in order, last writer wins.
// Missing files contribute nothing; malformed files are logged and skipped.
func LoadFiles(ctx context.Context, logger *logging.Logger, paths ...string) *Table {
	logger = logging.OrDefault(logger)
	b := NewBuilder()
	for _, path := range paths {
		if strings.TrimSpace(path) == "" {
			continue
		}
		entries, err := ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			logger.DebugContext(ctx, "price file not found", logging.Path(path))
			continue
		}
		if err != nil {
			logger.WarnContext(ctx, "price file skipped", logging.Path(path), logging.Error(err))
			continue
		}
		b.AddEntries(entries...)
		logger.DebugContext(ctx, "price file loaded", logging.Path(path), logging.Count(len(entries)))
	}
	table := b.Build()
	if b.Skipped() > 0 {
		logger.WarnContext(ctx, "price entries rejected", logging.Count(b.Skipped()))
	}
	logger.InfoContext(ctx, "price table built", logging.Count(table.Len()))
	return table
}

// WriteJSON writes the table as a sorted record array.
func WriteJSON(w io.Writer, t *Table) error {
	entries := t.Entries()
	if entries == nil {
		entries = []Entry{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}
