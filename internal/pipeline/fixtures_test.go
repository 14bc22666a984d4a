package pipeline

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/xuri/excelize/v2"

	"mailcrm/internal"
	"mailcrm/internal/connectors"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mkXLSX(rows [][]any) []byte {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for r, row := range rows {
		for c, v := range row {
			if v == nil {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}
	buf := bytes.NewBuffer(nil)
	_, _ = f.WriteTo(buf)
	return buf.Bytes()
}

// quoteSheet lays out a supplier quote: ten preamble rows with the batch code
// in the second one, then the product table.
func quoteSheet(code any, header []any, data ...[]any) []byte {
	rows := make([][]any, 0, 11+len(data))
	rows = append(rows, []any{"PROFORMA INVOICE"})
	rows = append(rows, []any{"Batch", code})
	for i := 2; i < 10; i++ {
		rows = append(rows, []any{fmt.Sprintf("info %d", i)})
	}
	rows = append(rows, header)
	rows = append(rows, data...)
	return mkXLSX(rows)
}

var quoteHeader = []any{"NO.", "Product description", " Price quoted USD", "QTY"}

type fakeMailbox struct {
	ids         []string
	messages    map[string]*internal.Message
	attachments map[string][]byte
	searchErr   error
	fetchErr    error

	queries  []connectors.Query
	fetched  []string
	attCalls []string
}

func newFakeMailbox() *fakeMailbox {
	return &fakeMailbox{messages: map[string]*internal.Message{}, attachments: map[string][]byte{}}
}

func (m *fakeMailbox) add(msg *internal.Message) {
	m.ids = append(m.ids, msg.ID)
	m.messages[msg.ID] = msg
}

func (m *fakeMailbox) Search(_ context.Context, q connectors.Query) ([]string, error) {
	m.queries = append(m.queries, q)
	return m.ids, m.searchErr
}

func (m *fakeMailbox) GetMessage(_ context.Context, id string) (*internal.Message, error) {
	m.fetched = append(m.fetched, id)
	msg, ok := m.messages[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return msg, nil
}

func (m *fakeMailbox) GetAttachment(_ context.Context, messageID, attachmentID string) (string, error) {
	m.attCalls = append(m.attCalls, messageID+"/"+attachmentID)
	if m.fetchErr != nil {
		return "", m.fetchErr
	}
	data, ok := m.attachments[attachmentID]
	if !ok {
		return "", errors.New("no such attachment")
	}
	return base64.URLEncoding.EncodeToString(data), nil
}

func (m *fakeMailbox) Close() error { return nil }

type fakeCreator struct {
	nextID  int64
	records []internal.ProductRecord
	failAt  int
	err     error
}

func (c *fakeCreator) CreateProduct(_ context.Context, record internal.ProductRecord) (int64, error) {
	if c.err != nil && len(c.records) == c.failAt {
		return 0, c.err
	}
	c.records = append(c.records, record)
	c.nextID++
	return 1000 + c.nextID, nil
}

func attachmentMessage(id, date, filename, attachmentID string) *internal.Message {
	msg := &internal.Message{
		ID: id,
		Parts: []internal.Part{
			{PartID: "0", MimeType: "text/plain"},
			{PartID: "1", Filename: filename, AttachmentID: attachmentID},
		},
	}
	if date != "" {
		msg.Headers = []internal.Header{{Name: "Date", Value: date}}
	}
	return msg
}

func writeFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}
