package logging

import "log/slog"

// Common field names for consistent logging across components.
const (
	FieldComponent  = "component"
	FieldRunID      = "run_id"
	FieldSubunit    = "subunit"
	FieldAddress    = "address"
	FieldProposalID = "proposal_id"
	FieldKind       = "message_kind"
	FieldSymbol     = "symbol"
	FieldDate       = "date"
	FieldCount      = "count"
	FieldDuration   = "duration_ms"
	FieldError      = "error"
	FieldPath       = "path"
	FieldURL        = "url"
)

// Component returns a slog attribute for the component name.
func Component(name string) slog.Attr {
	return slog.String(FieldComponent, name)
}

// Subunit returns a slog attribute for a sub-unit name.
func Subunit(name string) slog.Attr {
	return slog.String(FieldSubunit, name)
}

// Address returns a slog attribute for a chain address.
func Address(addr string) slog.Attr {
	return slog.String(FieldAddress, addr)
}

// ProposalID returns a slog attribute for a proposal ID.
func ProposalID(id string) slog.Attr {
	return slog.String(FieldProposalID, id)
}

// Symbol returns a slog attribute for a token symbol.
func Symbol(symbol string) slog.Attr {
	return slog.String(FieldSymbol, symbol)
}

// Date returns a slog attribute for a YYYY-MM-DD date.
func Date(date string) slog.Attr {
	return slog.String(FieldDate, date)
}

// Count returns a slog attribute for a count.
func Count(n int) slog.Attr {
	return slog.Int(FieldCount, n)
}

// Duration returns a slog attribute for duration in milliseconds.
func Duration(ms int64) slog.Attr {
	return slog.Int64(FieldDuration, ms)
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}

// Path returns a slog attribute for a file path.
func Path(path string) slog.Attr {
	return slog.String(FieldPath, path)
}

// URL returns a slog attribute for a URL.
func URL(url string) slog.Attr {
	return slog.String(FieldURL, url)
}
