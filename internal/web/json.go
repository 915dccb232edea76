package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sweeney/lightpanel/internal/eventlog"
	"github.com/sweeney/lightpanel/internal/panel"
	"github.com/sweeney/lightpanel/internal/sheet"
)

// maxBody bounds request bodies, CSV uploads included.
const maxBody = 1 << 20

// OperationJSON answers a request that queued an operation.
type OperationJSON struct {
	Status string `json:"status"`
	ID     uint64 `json:"id,omitempty"`
	Name   string `json:"name,omitempty"`
}

// ErrorJSON is the body of every failed request.
type ErrorJSON struct {
	Error string `json:"error"`
}

// LogJSON is the body of GET /log.
type LogJSON struct {
	Entries []eventlog.Entry `json:"entries"`
	LastSeq uint64           `json:"last_seq"`
}

// PlayRequest is the body of POST /play. A missing level is read from the
// sheet cell.
type PlayRequest struct {
	Channel int  `json:"channel"`
	Scene   int  `json:"scene"`
	Level   *int `json:"level,omitempty"`
}

// ProgramRequest is the body of POST /program.
type ProgramRequest struct {
	Scene int `json:"scene"`
	Zone  int `json:"zone"`
}

// AllocateRequest is the body of POST /allocate.
type AllocateRequest struct {
	Zone int `json:"zone"`
}

// ResizeRequest is the body of POST /sheet/resize.
type ResizeRequest struct {
	Channels int `json:"channels"`
}

// SiteRequest is the body of PUT /sheet/site.
type SiteRequest struct {
	SiteName string `json:"site_name"`
	Date     string `json:"date"`
}

// DebugRequest is the body of PUT /debug.
type DebugRequest struct {
	Enabled bool `json:"enabled"`
}

// HoldRequest is the body of PUT /hold.
type HoldRequest struct {
	HoldMs int64 `json:"hold_ms"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: body: %v", panel.ErrInvalidInput, err)
	}
	return nil
}

func writeAccepted(w http.ResponseWriter, op *panel.Operation) {
	writeJSON(w, http.StatusAccepted, OperationJSON{Status: "accepted", ID: op.ID(), Name: op.Name()})
}

// writeError maps panel and sheet sentinels onto status codes. A declined
// confirmation is not a failure.
func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, panel.ErrDeclined):
		writeJSON(w, http.StatusOK, OperationJSON{Status: "declined"})
		return
	case errors.Is(err, panel.ErrInvalidInput),
		errors.Is(err, sheet.ErrMalformed),
		errors.Is(err, sheet.ErrInvalidCount),
		errors.Is(err, sheet.ErrInvalidRow):
		code = http.StatusBadRequest
	case errors.Is(err, panel.ErrBusy), errors.Is(err, panel.ErrQueueFull):
		code = http.StatusConflict
	case errors.Is(err, panel.ErrNotReady), errors.Is(err, panel.ErrClosed):
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, ErrorJSON{Error: err.Error()})
}
