package bridge

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"extranef/internal/attachment"
	"extranef/internal/nef"
)

// Response is the envelope of every bridge reply.
type Response struct {
	Success       bool            `json:"success"`
	Data          json.RawMessage `json:"data,omitempty"`
	Error         string          `json:"error,omitempty"`
	Code          string          `json:"code,omitempty"`
	NotConfigured bool            `json:"notConfigured,omitempty"`
}

// Error codes carried in Response.Code so clients can restore sentinel errors.
const (
	CodeUnknownTable   = "unknown_table"
	CodeInvalidDump    = "invalid_dump"
	CodeInvalidPayload = "invalid_payload"
	CodeNotConfigured  = "not_configured"
	CodeBadRequest     = "bad_request"
	CodeInternal       = "internal"
)

var errBadRequest = errors.New("bad request")

var codeErrors = map[string]error{
	CodeUnknownTable:   nef.ErrUnknownTable,
	CodeInvalidDump:    nef.ErrInvalidDump,
	CodeInvalidPayload: attachment.ErrInvalidPayload,
	CodeNotConfigured:  nef.ErrNotConfigured,
	CodeBadRequest:     errBadRequest,
}

// classify maps an error to its HTTP status and code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, nef.ErrUnknownTable):
		return http.StatusNotFound, CodeUnknownTable
	case errors.Is(err, nef.ErrInvalidDump):
		return http.StatusBadRequest, CodeInvalidDump
	case errors.Is(err, attachment.ErrInvalidPayload):
		return http.StatusBadRequest, CodeInvalidPayload
	case errors.Is(err, nef.ErrNotConfigured):
		return http.StatusConflict, CodeNotConfigured
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, CodeBadRequest
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// OutcomeDTO is the wire form of a nef.Outcome.
type OutcomeDTO struct {
	Operation string    `json:"operation"`
	Target    string    `json:"target,omitempty"`
	Status    string    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// NewOutcomeDTO converts o.
func NewOutcomeDTO(o nef.Outcome) OutcomeDTO {
	return OutcomeDTO{
		Operation: o.Operation,
		Target:    o.Target,
		Status:    o.Status,
		Detail:    o.Detail,
		Error:     o.ErrorMessage(),
		At:        o.At,
	}
}

// Outcome converts the DTO back.
func (d OutcomeDTO) Outcome() nef.Outcome {
	o := nef.Outcome{
		Operation: d.Operation,
		Target:    d.Target,
		Status:    d.Status,
		Detail:    d.Detail,
		At:        d.At,
	}
	if d.Error != "" {
		o.Err = errors.New(d.Error)
	}
	return o
}

// ReadyResult answers GET /db/ready.
type ReadyResult struct {
	Ready bool `json:"ready"`
}

// BackupDirRequest is the body of POST /backup/dir.
type BackupDirRequest struct {
	Path string `json:"path"`
}

// BackupDirResult answers POST /backup/dir.
type BackupDirResult struct {
	Path   string     `json:"path"`
	Backup OutcomeDTO `json:"backup"`
}

// BackupRunResult answers POST /backup/run.
type BackupRunResult struct {
	Path          string `json:"path,omitempty"`
	NotConfigured bool   `json:"notConfigured,omitempty"`
}

// GoogleStatus answers the gdrive status and login routes.
type GoogleStatus struct {
	State string `json:"state"`
}
