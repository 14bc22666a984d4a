package pipeline

import (
	"errors"
	"fmt"
)

// ErrNoSenders is returned by a scan configured without a sender allow-list.
var ErrNoSenders = errors.New("sender allow-list is empty (set SCAN_SENDERS)")

// ParseError reports input that could not be read at all: a message date or a
// workbook.
type ParseError struct {
	Stage string
	Input string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Input != "" {
		return fmt.Sprintf("parse %s %q: %v", e.Stage, e.Input, e.Err)
	}
	return fmt.Sprintf("parse %s: %v", e.Stage, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// SchemaError means the workbook opened but its data table lacks a required
// column.
type SchemaError struct {
	Column    string
	HeaderRow int
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("column %q not found in header row %d", e.Column, e.HeaderRow)
}

type AttachmentFetchError struct {
	MessageID    string
	AttachmentID string
	Err          error
}

func (e *AttachmentFetchError) Error() string {
	return fmt.Sprintf("fetch attachment %s of message %s: %v", e.AttachmentID, e.MessageID, e.Err)
}

func (e *AttachmentFetchError) Unwrap() error { return e.Err }
