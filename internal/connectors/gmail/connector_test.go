package gmail

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"mailcrm/internal/connectors"
)

func TestBuildQuery(t *testing.T) {
	cases := []struct {
		name string
		q    connectors.Query
		want string
	}{
		{
			name: "several senders",
			q:    connectors.Query{Senders: []string{"a@example.com", "b@example.com"}, HasAttachment: true, FilenameExt: "xlsx"},
			want: "(from:a@example.com OR from:b@example.com) has:attachment filename:xlsx",
		},
		{
			name: "single sender dotted ext",
			q:    connectors.Query{Senders: []string{" a@example.com "}, FilenameExt: ".xlsx"},
			want: "from:a@example.com filename:xlsx",
		},
		{
			name: "since widens a day",
			q:    connectors.Query{HasAttachment: true, Since: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)},
			want: "has:attachment after:2026/03/01",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, BuildQuery(tc.q))
		})
	}
}

func TestToMessage(t *testing.T) {
	msg := &gmail.Message{
		Id: "m1",
		Payload: &gmail.MessagePart{
			Headers: []*gmail.MessagePartHeader{{Name: "Date", Value: "Mon, 02 Mar 2026 10:00:00 +0000"}},
			Parts: []*gmail.MessagePart{
				{PartId: "0", MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: "aGVsbG8"}},
				{
					PartId:   "1",
					MimeType: "multipart/mixed",
					Parts: []*gmail.MessagePart{
						{PartId: "1.0", Filename: "DDE1.xlsx", Body: &gmail.MessagePartBody{AttachmentId: "att-1"}},
					},
				},
			},
		},
	}

	out := toMessage(msg)
	assert.Equal(t, "m1", out.ID)
	assert.Equal(t, "Mon, 02 Mar 2026 10:00:00 +0000", out.Header("date"))
	require.Len(t, out.Parts, 2)
	assert.Equal(t, "text/plain", out.Parts[0].MimeType)
	assert.Empty(t, out.Parts[0].AttachmentID)
	require.Len(t, out.Parts[1].Parts, 1)
	assert.Equal(t, "DDE1.xlsx", out.Parts[1].Parts[0].Filename)
	assert.Equal(t, "att-1", out.Parts[1].Parts[0].AttachmentID)
}

func TestConnectorAgainstFakeAPI(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/users/me/messages"):
			gotQuery = r.URL.Query().Get("q")
			_ = json.NewEncoder(w).Encode(map[string]any{"messages": []map[string]any{{"id": "m2"}, {"id": "m1"}}})
		case strings.HasSuffix(r.URL.Path, "/users/me/messages/m1/attachments/att-1"):
			_ = json.NewEncoder(w).Encode(map[string]any{"data": "eHlz", "size": 3})
		case strings.HasSuffix(r.URL.Path, "/users/me/messages/m1"):
			_ = json.NewEncoder(w).Encode(map[string]any{"id": "m1", "payload": map[string]any{"headers": []map[string]any{{"name": "Date", "value": "x"}}}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	svc, err := gmail.NewService(context.Background(),
		option.WithoutAuthentication(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	conn := NewWithService(svc, "")

	ids, err := conn.Search(context.Background(), connectors.Query{Senders: []string{"a@example.com"}, HasAttachment: true, MaxResults: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"m2", "m1"}, ids)
	assert.Equal(t, "from:a@example.com has:attachment", gotQuery)

	msg, err := conn.GetMessage(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, "x", msg.Header("Date"))

	data, err := conn.GetAttachment(context.Background(), "m1", "att-1")
	require.NoError(t, err)
	assert.Equal(t, "eHlz", data)
}
