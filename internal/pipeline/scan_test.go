package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailcrm/internal"
)

var scanNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func dateAgo(d time.Duration) string {
	return scanNow.Add(-d).Format(time.RFC1123Z)
}

func threeProductSheet() []byte {
	return quoteSheet("KF2026-031", quoteHeader,
		[]any{3, "Valve C", "30", 1},
		[]any{1, "Valve A", "10", 1},
		[]any{2, "Valve B", "€1.234,56", 1},
		[]any{2, "Valve B again", "0", 1},
	)
}

func scanOptions() Options {
	opts := DefaultOptions()
	opts.Senders = []string{"supplier@example.com"}
	return opts
}

func TestScanEndToEnd(t *testing.T) {
	mb := newFakeMailbox()
	mb.add(attachmentMessage("m1", dateAgo(30*time.Second), "DDE_0302.xlsx", "att-1"))
	mb.attachments["att-1"] = threeProductSheet()
	creator := &fakeCreator{}

	res, err := NewScanner(mb, creator, scanOptions(), quietLogger()).Scan(context.Background(), scanNow)
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, "m1", res.MessageID)
	assert.Equal(t, "KF2026-031", res.HeaderCode)
	assert.Equal(t, 3, res.ProductsCreated)
	require.Len(t, res.Products, 3)
	assert.Equal(t, []int64{1001, 1002, 1003}, []int64{res.Products[0].ID, res.Products[1].ID, res.Products[2].ID})
	assert.Equal(t, []float64{1, 2, 3}, []float64{res.Products[0].Number, res.Products[1].Number, res.Products[2].Number})

	require.Len(t, creator.records, 3)
	assert.Equal(t, "Valve A", creator.records[0].Name)
	assert.Equal(t, 1234.56, creator.records[1].Price)
	assert.Equal(t, "KF2026-031", creator.records[2].Code)

	require.Len(t, mb.queries, 1)
	q := mb.queries[0]
	assert.Equal(t, []string{"supplier@example.com"}, q.Senders)
	assert.True(t, q.HasAttachment)
	assert.Equal(t, "xlsx", q.FilenameExt)
	assert.Equal(t, 10, q.MaxResults)
	assert.Equal(t, scanNow.Add(-2*time.Minute), q.Since)
}

func TestScanNothingReturned(t *testing.T) {
	res, err := NewScanner(newFakeMailbox(), &fakeCreator{}, scanOptions(), quietLogger()).Scan(context.Background(), scanNow)
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestScanSkipsIneligibleMessages(t *testing.T) {
	mb := newFakeMailbox()
	mb.add(attachmentMessage("no-date", "", "DDE.xlsx", "att"))
	mb.add(attachmentMessage("bad-date", "yesterday-ish", "DDE.xlsx", "att"))
	mb.add(attachmentMessage("stale", dateAgo(2*time.Minute+time.Second), "DDE.xlsx", "att"))
	mb.add(attachmentMessage("future", dateAgo(-time.Minute), "DDE.xlsx", "att"))
	mb.attachments["att"] = threeProductSheet()
	creator := &fakeCreator{}

	res, err := NewScanner(mb, creator, scanOptions(), quietLogger()).Scan(context.Background(), scanNow)
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Empty(t, mb.attCalls)
	assert.Empty(t, creator.records)
	assert.Equal(t, []string{"no-date", "bad-date", "stale", "future"}, mb.fetched)
}

func TestScanWindowIsInclusive(t *testing.T) {
	mb := newFakeMailbox()
	mb.add(attachmentMessage("edge", dateAgo(2*time.Minute), "DDE.xlsx", "att"))
	mb.attachments["att"] = threeProductSheet()

	res, err := NewScanner(mb, &fakeCreator{}, scanOptions(), quietLogger()).Scan(context.Background(), scanNow)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "edge", res.MessageID)
}

func TestScanFirstEligibleWins(t *testing.T) {
	mb := newFakeMailbox()
	mb.add(attachmentMessage("no-attachment", dateAgo(10*time.Second), "notes.txt", "txt"))
	mb.add(attachmentMessage("first", dateAgo(20*time.Second), "DDE_1.xlsx", "att-1"))
	mb.add(attachmentMessage("second", dateAgo(5*time.Second), "DDE_2.xlsx", "att-2"))
	mb.attachments["att-1"] = threeProductSheet()
	mb.attachments["att-2"] = threeProductSheet()

	res, err := NewScanner(mb, &fakeCreator{}, scanOptions(), quietLogger()).Scan(context.Background(), scanNow)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "first", res.MessageID)
	assert.Equal(t, []string{"no-attachment", "first"}, mb.fetched)
	assert.Equal(t, []string{"first/att-1"}, mb.attCalls)
}

func TestScanMissingKeyColumnFails(t *testing.T) {
	mb := newFakeMailbox()
	mb.add(attachmentMessage("m1", dateAgo(time.Second), "DDE.xlsx", "att"))
	mb.add(attachmentMessage("m2", dateAgo(time.Second), "DDE.xlsx", "good"))
	mb.attachments["att"] = quoteSheet("KF1", []any{"Number", "Product description"}, []any{1, "x"})
	mb.attachments["good"] = threeProductSheet()

	_, err := NewScanner(mb, &fakeCreator{}, scanOptions(), quietLogger()).Scan(context.Background(), scanNow)
	var schemaErr *SchemaError
	require.True(t, errors.As(err, &schemaErr), "got %v", err)
	assert.Equal(t, []string{"m1"}, mb.fetched)
}

func TestScanCreatorErrorAborts(t *testing.T) {
	mb := newFakeMailbox()
	mb.add(attachmentMessage("m1", dateAgo(time.Second), "DDE.xlsx", "att"))
	mb.attachments["att"] = threeProductSheet()
	boom := errors.New("crm unavailable")
	creator := &fakeCreator{failAt: 1, err: boom}

	res, err := NewScanner(mb, creator, scanOptions(), quietLogger()).Scan(context.Background(), scanNow)
	require.ErrorIs(t, err, boom)
	require.NotNil(t, res)
	assert.Equal(t, "m1", res.MessageID)
	assert.Equal(t, "KF2026-031", res.HeaderCode)
	assert.Equal(t, 1, res.ProductsCreated)
	require.Len(t, res.Products, 1)
	assert.Equal(t, int64(1001), res.Products[0].ID)
	assert.Len(t, creator.records, 1)
}

func TestScanRequiresSenders(t *testing.T) {
	for _, senders := range [][]string{nil, {}, {" ", ""}} {
		mb := newFakeMailbox()
		mb.add(attachmentMessage("m1", dateAgo(time.Second), "DDE.xlsx", "att"))
		mb.attachments["att"] = threeProductSheet()
		creator := &fakeCreator{}
		opts := DefaultOptions()
		opts.Senders = senders

		res, err := NewScanner(mb, creator, opts, quietLogger()).Scan(context.Background(), scanNow)
		require.ErrorIs(t, err, ErrNoSenders)
		assert.Nil(t, res)
		assert.Empty(t, mb.queries)
		assert.Empty(t, creator.records)
	}
}

func TestScanSearchError(t *testing.T) {
	mb := newFakeMailbox()
	mb.searchErr = errors.New("quota")

	_, err := NewScanner(mb, &fakeCreator{}, scanOptions(), quietLogger()).Scan(context.Background(), scanNow)
	assert.Error(t, err)
}

func TestParseMessageDate(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{in: "Mon, 02 Mar 2026 10:00:00 +0100", want: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), ok: true},
		{in: "2 Mar 2026 10:00:00 -0000", want: scanNow, ok: true},
		{in: "Mon, 02 Mar 2026 10:00:00 +0000 (UTC)", want: scanNow, ok: true},
		{in: "", ok: false},
		{in: "not a date", ok: false},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseMessageDate(tc.in)
			if !tc.ok {
				var parseErr *ParseError
				assert.True(t, errors.As(err, &parseErr))
				return
			}
			require.NoError(t, err)
			assert.True(t, tc.want.Equal(got), "got %v", got)
		})
	}
}

func TestPreviewFile(t *testing.T) {
	path := t.TempDir() + "/DDE_0302.xlsx"
	require.NoError(t, writeFile(path, threeProductSheet()))

	ex, records, err := PreviewFile(context.Background(), path, DefaultOptions(), quietLogger())
	require.NoError(t, err)
	assert.Equal(t, "KF2026-031", ex.HeaderCode)
	require.Len(t, records, 3)
	assert.Equal(t, []internal.ProductRecord{
		{Number: 1, Name: "Valve A", Code: "KF2026-031", Price: 10, Description: "Valve A", Unit: "pz"},
		{Number: 2, Name: "Valve B", Code: "KF2026-031", Price: 1234.56, Description: "Valve B", Unit: "pz"},
		{Number: 3, Name: "Valve C", Code: "KF2026-031", Price: 30, Description: "Valve C", Unit: "pz"},
	}, records)

	out := t.TempDir() + "/preview/records.xlsx"
	require.NoError(t, ExportRecordsToXLSX(records, out))
	assert.FileExists(t, out)
}
