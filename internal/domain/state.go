package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Fields is one physical page of a form: line identifier to value. Values are
// decimal.Decimal, bool or string.
type Fields map[string]any

// Decimal reads a numeric field; absent or non-numeric fields read as zero.
func (f Fields) Decimal(key string) decimal.Decimal {
	switch v := f[key].(type) {
	case decimal.Decimal:
		return v
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		if err != nil {
			return decimal.Zero
		}
		return d
	default:
		return decimal.Zero
	}
}

func (f Fields) Bool(key string) bool {
	v, _ := f[key].(bool)
	return v
}

func (f Fields) Text(key string) string {
	v, _ := f[key].(string)
	return v
}

func (f Fields) Has(key string) bool {
	_, ok := f[key]
	return ok
}

// Keys returns the field names in sorted order.
func (f Fields) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MarshalJSON writes decimals as bare JSON numbers so they read back as
// numbers rather than text.
func (f Fields) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(f))
	for k, v := range f {
		switch val := v.(type) {
		case decimal.Decimal:
			out[k] = json.RawMessage(val.String())
		default:
			b, err := json.Marshal(val)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", k, err)
			}
			out[k] = b
		}
	}
	return json.Marshal(out)
}

func (f *Fields) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	out := make(Fields, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case json.Number:
			d, err := decimal.NewFromString(val.String())
			if err != nil {
				return fmt.Errorf("field %s: %w", k, err)
			}
			out[k] = d
		case bool, string:
			out[k] = val
		default:
			return fmt.Errorf("field %s: unsupported value %T", k, v)
		}
	}
	*f = out
	return nil
}

// Form is the filled content of one form: a single page, or an ordered
// sequence of pages for forms that repeat.
type Form struct {
	pages []Fields
}

func SinglePage(f Fields) *Form { return &Form{pages: []Fields{f}} }

func Paginated(pages []Fields) *Form { return &Form{pages: pages} }

// Fields returns the first page, or nil for an empty form.
func (f *Form) Fields() Fields {
	if f == nil || len(f.pages) == 0 {
		return nil
	}
	return f.pages[0]
}

func (f *Form) Pages() []Fields {
	if f == nil {
		return nil
	}
	return f.pages
}

func (f *Form) Paginated() bool { return f != nil && len(f.pages) > 1 }

func (f *Form) MarshalJSON() ([]byte, error) {
	if f.Paginated() {
		return json.Marshal(f.pages)
	}
	return json.Marshal(f.Fields())
}

func (f *Form) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var pages []Fields
		if err := json.Unmarshal(data, &pages); err != nil {
			return err
		}
		f.pages = pages
		return nil
	}
	var page Fields
	if err := json.Unmarshal(data, &page); err != nil {
		return err
	}
	f.pages = []Fields{page}
	return nil
}

// FormState maps form identifiers to filled forms. A missing key means the
// form is not filed.
type FormState map[string]*Form

// Fields returns the first page of a form; absent forms read as empty.
func (s FormState) Fields(key string) Fields {
	return s[key].Fields()
}

func (s FormState) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// Keys returns the filed form identifiers in sorted order.
func (s FormState) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Worksheet is a 1-based table of line values; index 0 is unused.
type Worksheet []decimal.Decimal

func NewWorksheet(lines int) Worksheet {
	w := make(Worksheet, lines+1)
	for i := range w {
		w[i] = decimal.Zero
	}
	return w
}

// Line returns line i, or zero when the worksheet does not have it.
func (w Worksheet) Line(i int) decimal.Decimal {
	if i <= 0 || i >= len(w) {
		return decimal.Zero
	}
	return w[i]
}

type WorksheetState map[string]Worksheet

// Return is the output of one filing run.
type Return struct {
	TaxYear     int            `json:"tax_year"`
	Forms       FormState      `json:"forms"`
	Worksheets  WorksheetState `json:"worksheets"`
	Warnings    []string       `json:"warnings,omitempty"`
	Unsupported bool           `json:"unsupported,omitempty"`
}

// ReturnRecord is a computed return kept in the local store.
type ReturnRecord struct {
	ID        string `json:"id"`
	TaxYear   int    `json:"tax_year"`
	SSN       string `json:"ssn"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at" format:"date-time"`
	Return    Return `json:"return"`
}

// ReturnSummary lists a stored return without its forms.
type ReturnSummary struct {
	ID          string `json:"id"`
	TaxYear     int    `json:"tax_year"`
	SSN         string `json:"ssn"`
	Name        string `json:"name"`
	Warnings    int    `json:"warnings"`
	Unsupported bool   `json:"unsupported,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

// Event is one entry of the audit log.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload"`
}
