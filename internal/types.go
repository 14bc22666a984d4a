package internal

import "strings"

type Header struct {
	Name  string
	Value string
}

// Message is a mailbox message as returned by a connector. Connectors build it
// once per fetch; nothing downstream mutates it.
type Message struct {
	ID      string
	Headers []Header
	Parts   []Part
}

// Header returns the first header value whose name matches case-insensitively.
func (m *Message) Header(name string) string {
	for _, h := range m.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

type Part struct {
	PartID       string
	Filename     string
	MimeType     string
	AttachmentID string
	Parts        []Part
}

type ProductRow struct {
	Number   float64
	SheetRow int
	Cells    map[string]string
}

// Cell returns the raw value of a named column and whether the column exists
// in the row at all.
func (r ProductRow) Cell(column string) (string, bool) {
	v, ok := r.Cells[column]
	return v, ok
}

type SkippedRow struct {
	SheetRow int    `json:"sheetRow"`
	Raw      string `json:"raw"`
	Reason   string `json:"reason"`
}

type ProductRecord struct {
	Number      float64 `json:"number"`
	Name        string  `json:"name"`
	Code        string  `json:"code"`
	Price       float64 `json:"price"`
	Description string  `json:"description"`
	Unit        string  `json:"unit"`
}

type CreatedProduct struct {
	ID     int64   `json:"id"`
	Number float64 `json:"number"`
	Name   string  `json:"name"`
	Code   string  `json:"code"`
}

type ScanResult struct {
	MessageID       string           `json:"messageId"`
	HeaderCode      string           `json:"ddeCode"`
	ProductsCreated int              `json:"productsCreated"`
	Products        []CreatedProduct `json:"products"`
	SkippedRows     []SkippedRow     `json:"skippedRows,omitempty"`
}

// RunRecord is one trigger invocation as kept in the run journal.
type RunRecord struct {
	ID              int64            `json:"id"`
	TraceID         string           `json:"traceId"`
	Trigger         string           `json:"trigger"`
	Success         bool             `json:"success"`
	MessageID       string           `json:"messageId,omitempty"`
	HeaderCode      string           `json:"ddeCode,omitempty"`
	ProductsCreated int              `json:"productsCreated"`
	SkippedRows     int              `json:"skippedRows"`
	Error           string           `json:"error,omitempty"`
	DurationMs      int64            `json:"durationMs"`
	Products        []CreatedProduct `json:"products,omitempty"`
	CreatedAt       string           `json:"createdAt"`
}
