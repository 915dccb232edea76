// Package web provides the HTTP control and status surface of the
// lightpanel daemon.
package web

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/julienschmidt/httprouter"

	"github.com/sweeney/lightpanel/internal/eventlog"
	"github.com/sweeney/lightpanel/internal/panel"
	"github.com/sweeney/lightpanel/internal/sheet"
	"github.com/sweeney/lightpanel/internal/status"
)

// Deps are the components the handlers drive.
type Deps struct {
	Panel   *panel.Panel
	Tracker *status.Tracker
	Events  *eventlog.Log
	Table   *sheet.Table
	Logger  *log.Logger
}

// Server serves the control page and API over HTTP.
type Server struct {
	httpServer *http.Server
	router     *httprouter.Router
	Deps
}

// New creates a Server listening on addr.
func New(addr string, d Deps) *Server {
	if d.Logger == nil {
		d.Logger = log.Default()
	}
	d.Logger = d.Logger.WithPrefix("web")
	s := &Server{Deps: d}

	r := httprouter.New()
	r.GET("/", s.handleIndex)
	r.GET("/index.html", s.handleIndex)
	r.GET("/index.json", s.handleJSON)

	r.GET("/log", s.handleLog)
	r.DELETE("/log", s.handleClearLog)

	r.GET("/sheet", s.handleSheet)
	r.GET("/sheet.csv", s.handleSheetCSV)
	r.PUT("/sheet.csv", s.handleSheetUpload)
	r.POST("/sheet/resize", s.handleResize)
	r.PUT("/sheet/site", s.handleSite)
	r.PUT("/sheet/rows/:channel", s.handleRow)

	r.POST("/relays/:index", s.handleRelay)
	r.POST("/relays/:index/pulse", s.handlePulse)
	r.POST("/sequences/:name", s.handleSequence)
	r.POST("/modes/:name", s.handleMode)
	r.POST("/quick/:name", s.handleQuick)
	r.POST("/play", s.handlePlay)
	r.POST("/program", s.handleProgram)
	r.POST("/allocate", s.handleAllocate)
	r.POST("/cancel", s.handleCancel)

	r.PUT("/debug", s.handleDebug)
	r.POST("/debug/advance", s.handleAdvance)
	r.PUT("/hold", s.handleHold)

	s.router = r
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routing handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, s.pageData()); err != nil {
		s.Logger.Warn("render index", "err", err)
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(s.Tracker.Snapshot()))
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var since uint64
	if v := r.URL.Query().Get("since"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, fmt.Errorf("%w: since %q", panel.ErrInvalidInput, v))
			return
		}
		since = n
	}
	entries := s.Events.Since(since)
	if entries == nil {
		entries = []eventlog.Entry{}
	}
	writeJSON(w, http.StatusOK, LogJSON{Entries: entries, LastSeq: s.Events.LastSeq()})
}

func (s *Server) handleClearLog(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.Events.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSheet(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, s.Table.Sheet())
}

func (s *Server) handleSite(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req SiteRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.Table.SetSite(req.SiteName, req.Date)
	writeJSON(w, http.StatusOK, req)
}

// handleRow replaces one channel row. The channel number is its position
// in the sheet and is not part of the body.
func (s *Server) handleRow(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	channel, err := strconv.Atoi(ps.ByName("channel"))
	if err != nil {
		writeError(w, fmt.Errorf("%w: channel %q", panel.ErrInvalidInput, ps.ByName("channel")))
		return
	}
	var row sheet.Row
	if err := readJSON(r, &row); err != nil {
		writeError(w, err)
		return
	}
	if err := s.Table.SetRow(channel, row); err != nil {
		writeError(w, err)
		return
	}
	s.Logger.Info("channel edited", "channel", channel, "zone", row.Zone)
	writeJSON(w, http.StatusOK, row)
}

func (s *Server) handleSheetCSV(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="levels.csv"`)
	if err := sheet.Write(w, s.Table.Sheet()); err != nil {
		s.Logger.Warn("write sheet csv", "err", err)
	}
}

func (s *Server) handleSheetUpload(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	sh, err := sheet.Parse(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		writeError(w, err)
		return
	}
	s.Table.Replace(sh)
	s.Logger.Info("sheet imported", "channels", len(sh.Rows))
	writeJSON(w, http.StatusOK, ResizeRequest{Channels: len(sh.Rows)})
}

func (s *Server) handleResize(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req ResizeRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.Table.Resize(req.Channels); err != nil {
		writeError(w, fmt.Errorf("%w: %w", panel.ErrInvalidInput, err))
		return
	}
	writeJSON(w, http.StatusOK, ResizeRequest{Channels: s.Table.Len()})
}

// handleRelay serves POST /relays/all-off; other names are not routes.
func (s *Server) handleRelay(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if ps.ByName("index") != "all-off" {
		http.NotFound(w, r)
		return
	}
	if err := s.Panel.AllOff(); err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorJSON{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, OperationJSON{Status: "ok"})
}

func (s *Server) handlePulse(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	idx, err := strconv.Atoi(ps.ByName("index"))
	if err != nil {
		writeError(w, fmt.Errorf("%w: relay %q", panel.ErrInvalidInput, ps.ByName("index")))
		return
	}
	s.respond(w)(s.Panel.ToggleRelay(idx))
}

func (s *Server) handleSequence(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	respond := s.respond(w)
	switch name := ps.ByName("name"); name {
	case "test-all":
		respond(s.Panel.TestAllRelays())
	case "program-mode":
		respond(s.Panel.EnterProgrammingMode())
	case "exit-program-mode":
		respond(s.Panel.ExitProgrammingMode())
	case "reset":
		respond(s.Panel.Reset(confirmer(r)))
	default:
		writeError(w, fmt.Errorf("%w: unknown sequence %q", panel.ErrInvalidInput, name))
	}
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	s.respond(w)(s.Panel.Mode(ps.ByName("name")))
}

func (s *Server) handleQuick(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	s.respond(w)(s.Panel.Quick(ps.ByName("name")))
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req PlayRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	level, err := s.levelFor(req)
	if err != nil {
		writeError(w, err)
		return
	}
	s.respond(w)(s.Panel.PlayChannelScene(req.Channel, req.Scene, level))
}

// levelFor returns the requested level or, when none is given, the level
// in the sheet cell for the channel and scene.
func (s *Server) levelFor(req PlayRequest) (int, error) {
	if req.Level != nil {
		return *req.Level, nil
	}
	rows := s.Table.Snapshot()
	if req.Channel < 1 || req.Channel > len(rows) {
		return 0, fmt.Errorf("%w: channel %d not in sheet", panel.ErrInvalidInput, req.Channel)
	}
	level, err := rows[req.Channel-1].Level(req.Scene)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", panel.ErrInvalidInput, err)
	}
	return level, nil
}

func (s *Server) handleProgram(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req ProgramRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.respond(w)(s.Panel.ProgramSceneForZone(req.Scene, req.Zone, confirmer(r)))
}

func (s *Server) handleAllocate(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req AllocateRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.respond(w)(s.Panel.AllocateToZone(req.Zone, confirmer(r)))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": s.Panel.Cancel()})
}

func (s *Server) handleDebug(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req DebugRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.Panel.SetDebug(req.Enabled)
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]bool{"advanced": s.Panel.Advance()})
}

func (s *Server) handleHold(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req HoldRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.Panel.SetHold(time.Duration(req.HoldMs) * time.Millisecond); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// respond writes the outcome of a panel command.
func (s *Server) respond(w http.ResponseWriter) func(*panel.Operation, error) {
	return func(op *panel.Operation, err error) {
		if err != nil {
			writeError(w, err)
			return
		}
		writeAccepted(w, op)
	}
}

// confirmer answers the panel's question from the confirm query parameter.
// Without it every confirmation is declined.
func confirmer(r *http.Request) panel.Confirmer {
	ok, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))
	if ok {
		return panel.Confirmed
	}
	return panel.Declined
}
