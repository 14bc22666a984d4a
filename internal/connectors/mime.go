package connectors

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/jhillyerd/enmime"

	"mailcrm/internal"
)

// ParseMIME reads a raw RFC 5322 message into the connector-neutral part tree.
// Parts carrying a filename get a synthetic attachment id (their tree path) and
// their decoded content is returned in the attachments map under that id.
func ParseMIME(id string, raw []byte) (*internal.Message, map[string][]byte, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, nil, fmt.Errorf("parse mime message %s: %w", id, err)
	}

	msg := &internal.Message{ID: id}
	attachments := map[string][]byte{}
	if env.Root == nil {
		return msg, attachments, nil
	}

	keys := make([]string, 0, len(env.Root.Header))
	for k := range env.Root.Header {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		msg.Headers = append(msg.Headers, internal.Header{Name: k, Value: env.GetHeader(k)})
	}

	if env.Root.FirstChild == nil {
		msg.Parts = []internal.Part{convertPart(env.Root, "0", attachments)}
		return msg, attachments, nil
	}
	msg.Parts = convertChildren(env.Root, "", attachments)
	return msg, attachments, nil
}

func convertChildren(parent *enmime.Part, prefix string, attachments map[string][]byte) []internal.Part {
	var out []internal.Part
	i := 0
	for child := parent.FirstChild; child != nil; child = child.NextSibling {
		path := strconv.Itoa(i)
		if prefix != "" {
			path = prefix + "." + path
		}
		out = append(out, convertPart(child, path, attachments))
		i++
	}
	return out
}

func convertPart(p *enmime.Part, path string, attachments map[string][]byte) internal.Part {
	part := internal.Part{
		PartID:   path,
		Filename: p.FileName,
		MimeType: p.ContentType,
	}
	if p.FirstChild != nil {
		part.Parts = convertChildren(p, path, attachments)
		return part
	}
	if strings.TrimSpace(p.FileName) != "" {
		part.AttachmentID = "part-" + path
		attachments[part.AttachmentID] = p.Content
	}
	return part
}

// FileMailbox serves a single message parsed from an .eml file. It backs the
// offline parse command.
type FileMailbox struct {
	msg         *internal.Message
	attachments map[string][]byte
}

func OpenEML(path string) (*FileMailbox, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	msg, attachments, err := ParseMIME(path, raw)
	if err != nil {
		return nil, err
	}
	return &FileMailbox{msg: msg, attachments: attachments}, nil
}

func (m *FileMailbox) Message() *internal.Message {
	return m.msg
}

func (m *FileMailbox) Search(_ context.Context, _ Query) ([]string, error) {
	return []string{m.msg.ID}, nil
}

func (m *FileMailbox) GetMessage(_ context.Context, id string) (*internal.Message, error) {
	if id != m.msg.ID {
		return nil, fmt.Errorf("message %s not found", id)
	}
	return m.msg, nil
}

func (m *FileMailbox) GetAttachment(_ context.Context, messageID, attachmentID string) (string, error) {
	return EncodeAttachment(m.attachments, messageID, attachmentID)
}

func (m *FileMailbox) Close() error {
	return nil
}

// EncodeAttachment serves an in-memory attachment body in the base64url form
// Mailbox.GetAttachment promises.
func EncodeAttachment(attachments map[string][]byte, messageID, attachmentID string) (string, error) {
	content, ok := attachments[attachmentID]
	if !ok {
		return "", fmt.Errorf("attachment %s not found in message %s", attachmentID, messageID)
	}
	return base64.URLEncoding.EncodeToString(content), nil
}
