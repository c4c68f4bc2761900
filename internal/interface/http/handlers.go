// Package http implements the kiosk's local REST API.
package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/dojo-hub/dojo-attendance-hub/internal/application/command"
	"github.com/dojo-hub/dojo-attendance-hub/internal/application/query"
	"github.com/dojo-hub/dojo-attendance-hub/internal/domain/member"
	"github.com/dojo-hub/dojo-attendance-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves the root endpoint with basic API information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeJSONError(w, http.StatusNotFound, "not_found", "Endpoint not found")
		return
	}

	info := map[string]interface{}{
		"name":    "Dojo Attendance Kiosk API",
		"version": "v1",
		"endpoints": map[string]string{
			"health":    "/health",
			"check_in":  "/api/v1/check-ins",
			"status":    "/api/v1/members/{code}/status",
			"promotion": "/api/v1/members/{code}/stripes",
		},
	}

	writeJSON(w, http.StatusOK, info)
}

// handleHealth reports liveness plus the offline backlog depth, so a glance
// at the probe tells whether the kiosk is draining or piling up.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status": "ok",
		"uptime": s.Uptime().String(),
	}

	if s.deps.Queue != nil {
		if depth, err := s.deps.Queue.CountPending(r.Context()); err == nil {
			health["queue_depth"] = depth
		}
	}

	if s.deps.Backend != nil {
		health["backend_reachable"] = s.deps.Backend.Healthy(r.Context())
	}

	writeJSON(w, http.StatusOK, health)
}

// handleReady reports readiness. The kiosk is ready as long as it can accept
// check-ins, which it can even with the backend down - the queue absorbs them.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// ══════════════════════════════════════════════════════════════════════════════
// CHECK-IN HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// checkInRequest is the POST /api/v1/check-ins body.
type checkInRequest struct {
	Code           string `json:"code"`
	Source         string `json:"source,omitempty"`
	BypassCooldown bool   `json:"bypass_cooldown,omitempty"`
}

// checkInResponse is the accepted check-in view.
type checkInResponse struct {
	CheckInID  string      `json:"check_in_id"`
	Code       string      `json:"code"`
	Pending    bool        `json:"pending"`
	RecordedAt time.Time   `json:"recorded_at"`
	Member     *memberView `json:"member,omitempty"`
}

// handleCheckIn accepts a check-in attempt from the kiosk tablet.
//
// Responses:
//   - 201: recorded at the backend
//   - 202: backend unreachable, queued locally
//   - 404: unknown code
//   - 409: cooldown active (remaining minutes in details)
//   - 429: attempt throttled
func (s *Server) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	var req checkInRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	cmd := command.RegisterCheckInCommand{
		Code:           req.Code,
		Source:         command.CheckInSource(req.Source),
		BypassCooldown: req.BypassCooldown,
	}

	result, err := s.deps.RegisterCheckIn.Handle(r.Context(), cmd)
	if err != nil {
		s.writeCommandError(w, err)
		return
	}

	resp := checkInResponse{
		CheckInID:  result.CheckInID,
		Code:       result.Code,
		Pending:    result.Pending,
		RecordedAt: result.RecordedAt,
		Member:     toMemberView(result.Member),
	}

	status := http.StatusCreated
	if result.Pending {
		status = http.StatusAccepted
	}
	writeJSON(w, status, resp)
}

// ══════════════════════════════════════════════════════════════════════════════
// MEMBER STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// memberView is the JSON shape of a member.
type memberView struct {
	ID            string     `json:"id"`
	Code          string     `json:"code"`
	DisplayName   string     `json:"display_name"`
	Belt          string     `json:"belt"`
	Stripes       int        `json:"stripes"`
	LastCheckInAt *time.Time `json:"last_check_in_at,omitempty"`
}

// statusResponse is the GET /api/v1/members/{code}/status view.
type statusResponse struct {
	Member        *memberView `json:"member"`
	Flag          string      `json:"flag"`
	StreakDays    int         `json:"streak_days"`
	StreakActive  bool        `json:"streak_active"`
	LastCheckInAt *time.Time  `json:"last_check_in_at,omitempty"`
	TotalVisits   int         `json:"total_visits"`
}

// handleMemberStatus returns the member's churn flag, streak, and visit count.
func (s *Server) handleMemberStatus(w http.ResponseWriter, r *http.Request) {
	q := query.MemberStatusQuery{
		Code:        r.PathValue("code"),
		HistoryDays: getQueryParamInt(r, "history_days", 0),
	}

	result, err := s.deps.MemberStatus.Handle(r.Context(), q)
	if err != nil {
		s.writeCommandError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Member:        toMemberView(result.Member),
		Flag:          string(result.Flag),
		StreakDays:    result.Streak.Count,
		StreakActive:  result.Streak.Active,
		LastCheckInAt: result.LastCheckInAt,
		TotalVisits:   result.TotalVisits,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// PROMOTION HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// stripeResponse is the promotion result view.
type stripeResponse struct {
	MemberID        string `json:"member_id"`
	PreviousBelt    string `json:"previous_belt"`
	PreviousStripes int    `json:"previous_stripes"`
	Belt            string `json:"belt"`
	Stripes         int    `json:"stripes"`
	Promoted        bool   `json:"promoted"`
}

// handleGrantStripe promotes a member one step on the belt ladder.
func (s *Server) handleGrantStripe(w http.ResponseWriter, r *http.Request) {
	cmd := command.GrantStripeCommand{Code: r.PathValue("code")}

	result, err := s.deps.GrantStripe.Handle(r.Context(), cmd)
	if err != nil {
		s.writeCommandError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stripeResponse{
		MemberID:        result.MemberID,
		PreviousBelt:    result.PreviousBelt.String(),
		PreviousStripes: result.PreviousStripes,
		Belt:            result.Belt.String(),
		Stripes:         result.Stripes,
		Promoted:        result.Promoted,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// writeCommandError maps domain errors onto HTTP statuses.
func (s *Server) writeCommandError(w http.ResponseWriter, err error) {
	var validationErr *shared.ValidationError
	var cooldownErr *shared.CooldownError
	var limitedErr *shared.RateLimitedError

	switch {
	case errors.As(err, &validationErr):
		writeJSONError(w, http.StatusBadRequest, "invalid_request", validationErr.Error())

	case errors.As(err, &cooldownErr):
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"code":              "cooldown_active",
			"remaining_minutes": cooldownErr.RemainingMinutes,
		})

	case errors.Is(err, shared.ErrRateLimited):
		if errors.As(err, &limitedErr) {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(limitedErr.RetryAfter)))
		}
		writeJSONError(w, http.StatusTooManyRequests, "too_many_attempts", "Attempt budget exhausted, try again later")

	case errors.Is(err, shared.ErrMemberNotFound):
		writeJSONError(w, http.StatusNotFound, "member_not_found", "No member matches this code")

	case errors.Is(err, shared.ErrAmbiguousCode):
		writeJSONError(w, http.StatusConflict, "ambiguous_code", "Code matches more than one member")

	case shared.IsTransport(err):
		writeJSONError(w, http.StatusServiceUnavailable, "backend_unavailable", "Membership backend is unreachable")

	default:
		s.logger.Error("unhandled command error", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal_server_error", "An unexpected error occurred")
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// retryAfterSeconds rounds the remaining block time up to whole seconds.
func retryAfterSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// decodeBody decodes a JSON request body, bounded at 64 KiB.
func decodeBody(r *http.Request, dst interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		return errors.New("failed to read request body")
	}
	if len(body) == 0 {
		return errors.New("request body is required")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return errors.New("malformed JSON body")
	}
	return nil
}

// toMemberView converts a domain member to its JSON view.
func toMemberView(m *member.Member) *memberView {
	if m == nil {
		return nil
	}
	return &memberView{
		ID:            m.ID,
		Code:          m.Code.String(),
		DisplayName:   m.DisplayName,
		Belt:          m.Belt.String(),
		Stripes:       m.Stripes,
		LastCheckInAt: m.LastCheckInAt,
	}
}
