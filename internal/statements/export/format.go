package export

import (
	"log"
	"mime"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/buildledger/statements/internal/ledger"
)

const dateLayout = "2006-01-02"

// DefaultPlaces is the currency precision used when none is configured.
const DefaultPlaces int32 = 2

// Options controls rendering of exported documents.
type Options struct {
	Locale string
	Places int32
}

// Formatter renders amounts for human-facing documents.
type Formatter struct {
	printer *message.Printer
	places  int32
}

// NewFormatter builds a formatter for the locale, falling back to English.
func NewFormatter(opts Options) Formatter {
	tag, err := language.Parse(strings.TrimSpace(opts.Locale))
	if err != nil || opts.Locale == "" {
		tag = language.English
	}
	places := opts.Places
	if places <= 0 {
		places = DefaultPlaces
	}
	return Formatter{printer: message.NewPrinter(tag), places: places}
}

// Amount formats d with locale grouping at the configured precision.
func (f Formatter) Amount(d decimal.Decimal) string {
	rounded := d.Round(f.places)
	return f.printer.Sprint(number.Decimal(rounded.InexactFloat64(), number.Scale(int(f.places))))
}

// Plain formats d without grouping, for machine-readable outputs.
func (f Formatter) Plain(d decimal.Decimal) string {
	return d.StringFixed(f.places)
}

// Places returns the configured precision.
func (f Formatter) Places() int32 {
	return f.places
}

func formatDate(e ledger.Entry) string {
	if e.Date.IsZero() {
		return ""
	}
	return e.Date.Format(dateLayout)
}

func periodLabel(p ledger.Period) string {
	from, to := "beginning", "today"
	if !p.From.IsZero() {
		from = p.From.Format(dateLayout)
	}
	if !p.To.IsZero() {
		to = p.To.Format(dateLayout)
	}
	return from + " to " + to
}

func partyLabel(p ledger.Party) string {
	if p.Name != "" {
		return p.Name + " (" + string(p.Type) + " " + p.ID + ")"
	}
	return string(p.Type) + " " + p.ID
}

func categoryTitle(c ledger.Category) string {
	s := strings.ReplaceAll(string(c), "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

var contentTypes = map[string]string{
	".csv":  "text/csv; charset=utf-8",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".pdf":  "application/pdf",
}

func init() {
	for ext, typ := range contentTypes {
		if mime.TypeByExtension(ext) == "" {
			if err := mime.AddExtensionType(ext, typ); err != nil {
				log.Printf("export: failed to register MIME type for %s: %v", ext, err)
			}
		}
	}
}

// ContentType returns the media type for an export format such as "xlsx".
func ContentType(format string) string {
	if typ, ok := contentTypes["."+format]; ok {
		return typ
	}
	if typ := mime.TypeByExtension("." + format); typ != "" {
		return typ
	}
	return "application/octet-stream"
}
