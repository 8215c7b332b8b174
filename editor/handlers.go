// ABOUTME: HTTP handler methods for all editor API endpoints
// ABOUTME: Covers session lifecycle, topology mutations, canvas control, settings, validation, and collaborators

package editor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/2389-research/clusterdesigner/layout"
	"github.com/2389-research/clusterdesigner/topology"
	"github.com/2389-research/clusterdesigner/topology/validator"
)

// maxBodySize caps request bodies; designs are small.
const maxBodySize = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

type statusResponse struct {
	Status string `json:"status"`
	View   View   `json:"session"`
}

type createSessionRequest struct {
	Name string `json:"name"`
}

type addNodeRequest struct {
	Kind topology.Kind `json:"kind"`
	X    float64       `json:"x"`
	Y    float64       `json:"y"`
}

type renameRequest struct {
	Name string `json:"name"`
}

type moveRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type moveResponse struct {
	Reverted bool `json:"reverted"`
	View     View `json:"session"`
}

type edgeRequest struct {
	Source int `json:"source"`
	Target int `json:"target"`
}

type panRequest struct {
	StepsX int `json:"dx"`
	StepsY int `json:"dy"`
}

type zoomRequest struct {
	Direction string `json:"direction"`
}

type validateResponse struct {
	OK          bool                   `json:"ok"`
	Diagnostics []validator.Diagnostic `json:"diagnostics"`
}

type organizeResponse struct {
	Layout layout.Result `json:"layout"`
	View   View          `json:"session"`
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": s.store.Len()})
}

// handleCatalog lists the class variants of every kind.
func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Catalog.Entries())
}

// handleCreateSession opens an empty design. The body is optional.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !s.decodeOptional(w, r, &req) {
		return
	}
	sess := s.store.Create(req.Name, s.svc)
	s.svc.logger().Info("session created", "session", sess.ID, "name", sess.Name)
	writeJSON(w, http.StatusCreated, sess.View())
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.List())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.View())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.store.Delete(id) {
		s.fail(w, fmt.Errorf("session %s: %w", id, ErrSessionNotFound), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAddNode places a new agent.
func (s *Server) handleAddNode(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req addNodeRequest
	if !s.decode(w, r, &req) {
		return
	}
	view, err := sess.PlaceAgent(req.Kind, topology.Point{X: req.X, Y: req.Y})
	if err != nil {
		s.fail(w, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) handleDeleteNode(w http.ResponseWriter, r *http.Request) {
	s.mutateNode(w, r, func(sess *Session, id int) error {
		return sess.Remove(id)
	})
}

func (s *Server) handleRenameNode(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	s.mutateNodeWithBody(w, r, &req, func(sess *Session, id int) error {
		return sess.Rename(id, req.Name)
	})
}

func (s *Server) handleCycleVariant(w http.ResponseWriter, r *http.Request) {
	s.mutateNode(w, r, func(sess *Session, id int) error {
		_, err := sess.CycleVariant(id)
		return err
	})
}

func (s *Server) handleDisconnectNode(w http.ResponseWriter, r *http.Request) {
	s.mutateNode(w, r, func(sess *Session, id int) error {
		return sess.Disconnect(id)
	})
}

// handleMoveNode drops an agent at a new position; the response says
// whether the drop was reverted because of an overlap.
func (s *Server) handleMoveNode(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	id, ok := s.nodeID(w, r)
	if !ok {
		return
	}
	var req moveRequest
	if !s.decode(w, r, &req) {
		return
	}
	reverted, err := sess.Move(id, topology.Point{X: req.X, Y: req.Y})
	if err != nil {
		s.fail(w, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, moveResponse{Reverted: reverted, View: sess.View()})
}

// handleAddEdge binds source under target.
func (s *Server) handleAddEdge(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req edgeRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := sess.Connect(req.Source, req.Target); err != nil {
		s.fail(w, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, sess.View())
}

func (s *Server) handleOrganize(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	res := sess.Organize()
	writeJSON(w, http.StatusOK, organizeResponse{Layout: res, View: sess.View()})
}

func (s *Server) handlePan(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req panRequest
	if !s.decode(w, r, &req) {
		return
	}
	sess.Pan(req.StepsX, req.StepsY)
	writeJSON(w, http.StatusOK, sess.View())
}

func (s *Server) handleZoom(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req zoomRequest
	if !s.decode(w, r, &req) {
		return
	}
	switch req.Direction {
	case "in":
		sess.Zoom(true)
	case "out":
		sess.Zoom(false)
	default:
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error: fmt.Sprintf("zoom direction must be \"in\" or \"out\", got %q", req.Direction),
		})
		return
	}
	writeJSON(w, http.StatusOK, sess.View())
}

// handlePreview renders the topology as SVG at its canvas positions.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if s.preview == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "previews are disabled"})
		return
	}
	svg, err := s.preview.RenderDOTSource(r.Context(), sess.PreviewDOT(), "svg")
	if err != nil {
		s.svc.logger().Error("preview failed", "session", sess.ID, "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(svg)
}

// handleUpdateSettings merges loosely typed settings. Numeric fields accept
// numbers or numeric strings; empty strings clear a field.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	raw := map[string]any{}
	if !s.decode(w, r, &raw) {
		return
	}
	settings, err := sess.UpdateSettings(raw)
	if err != nil {
		s.fail(w, fmt.Errorf("update settings: %w", err), http.StatusUnprocessableEntity)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// handleValidate runs the export lint without exporting.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	diags := sess.Lint()
	if diags == nil {
		diags = []validator.Diagnostic{}
	}
	writeJSON(w, http.StatusOK, validateResponse{OK: !validator.HasErrors(diags), Diagnostics: diags})
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	s.collaborate(w, r, (*Session).Save)
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	s.collaborate(w, r, (*Session).Load)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	s.collaborate(w, r, (*Session).Export)
}

// collaborate runs a save, load, or export and reports its status message.
// Failures of the collaborator itself map to 502.
func (s *Server) collaborate(w http.ResponseWriter, r *http.Request, call func(*Session, context.Context) (string, error)) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	status, err := call(sess, r.Context())
	if err != nil {
		s.fail(w, err, http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: status, View: sess.View()})
}

// mutateNode resolves the session and node id and applies fn.
func (s *Server) mutateNode(w http.ResponseWriter, r *http.Request, fn func(*Session, int) error) {
	s.mutateNodeWithBody(w, r, nil, fn)
}

func (s *Server) mutateNodeWithBody(w http.ResponseWriter, r *http.Request, body any, fn func(*Session, int) error) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	id, ok := s.nodeID(w, r)
	if !ok {
		return
	}
	if body != nil && !s.decode(w, r, body) {
		return
	}
	if err := fn(sess, id); err != nil {
		s.fail(w, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, sess.View())
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	id := chi.URLParam(r, "id")
	sess, ok := s.store.Get(id)
	if !ok {
		s.fail(w, fmt.Errorf("session %s: %w", id, ErrSessionNotFound), http.StatusInternalServerError)
		return nil, false
	}
	return sess, true
}

func (s *Server) nodeID(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := chi.URLParam(r, "nodeId")
	id, err := strconv.Atoi(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid agent id %q", raw)})
		return 0, false
	}
	return id, true
}

// decode reads a required JSON body. It writes the error response itself
// and reports whether the handler should continue.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	return s.decodeBody(w, r, v, false)
}

// decodeOptional is decode for endpoints where an empty body is fine.
func (s *Server) decodeOptional(w http.ResponseWriter, r *http.Request, v any) bool {
	return s.decodeBody(w, r, v, true)
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	err := json.NewDecoder(r.Body).Decode(v)
	var tooLarge *http.MaxBytesError
	switch {
	case err == nil:
		return true
	case errors.Is(err, io.EOF) && optional:
		return true
	case errors.As(err, &tooLarge):
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large (max 1MB)"})
	case errors.Is(err, topology.ErrInvalidKind):
		s.fail(w, err, http.StatusUnprocessableEntity)
	default:
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid request body: %v", err)})
	}
	return false
}

// fail maps an error to an HTTP status. Validation rejections are 422,
// unknown sessions and agents 404, concurrent collaborator requests 409, and
// missing collaborators 503. Anything else gets the fallback status.
func (s *Server) fail(w http.ResponseWriter, err error, fallback int) {
	status := statusFor(err, fallback)
	if status >= http.StatusInternalServerError {
		s.svc.logger().Error("request failed", "status", status, "err", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func statusFor(err error, fallback int) int {
	var ce *validator.ConnectionError
	var pe *validator.PlacementError
	var fe *validator.PreflightError
	switch {
	case errors.As(err, &ce), errors.As(err, &pe), errors.As(err, &fe):
		return http.StatusUnprocessableEntity
	case errors.Is(err, topology.ErrInvalidKind):
		return http.StatusUnprocessableEntity
	case errors.Is(err, topology.ErrNodeNotFound), errors.Is(err, ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrRequestInFlight):
		return http.StatusConflict
	case errors.Is(err, ErrNoBackend), errors.Is(err, ErrNoExporter):
		return http.StatusServiceUnavailable
	default:
		return fallback
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
