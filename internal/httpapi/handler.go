// Package httpapi exposes the lifecycle engine as a REST API. Every route
// except health and metrics requires a bearer token; the token's user id is
// the caller identity services authorize against.
package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/quickgig/quickgig/internal/app"
	"github.com/quickgig/quickgig/internal/errors"
	"github.com/quickgig/quickgig/internal/metrics"
	"github.com/quickgig/quickgig/internal/services/jobs"
	"github.com/quickgig/quickgig/pkg/logger"
)

type handler struct {
	app *app.Application
	log *logger.Logger
}

// NewHandler returns the router with authentication and metrics wired in.
func NewHandler(application *app.Application, authSecret []byte, log *logger.Logger) http.Handler {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	h := &handler{app: application, log: log}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/users/me", h.ensureUser).Methods(http.MethodPut)
	r.HandleFunc("/users/me/device-token", h.setDeviceToken).Methods(http.MethodPut)
	r.HandleFunc("/users/{id}", h.getUser).Methods(http.MethodGet)

	r.HandleFunc("/jobs", h.createJob).Methods(http.MethodPost)
	r.HandleFunc("/jobs", h.listOpenJobs).Methods(http.MethodGet)
	r.HandleFunc("/jobs/mine", h.listMyJobs).Methods(http.MethodGet)
	r.HandleFunc("/jobs/{id}", h.getJob).Methods(http.MethodGet)
	r.HandleFunc("/jobs/{id}/close", h.closeJob).Methods(http.MethodPost)
	r.HandleFunc("/jobs/{id}/cancel", h.cancelJob).Methods(http.MethodPost)
	r.HandleFunc("/jobs/{id}/applications", h.apply).Methods(http.MethodPost)
	r.HandleFunc("/jobs/{id}/applications", h.listJobApplications).Methods(http.MethodGet)
	r.HandleFunc("/jobs/{id}/engagement", h.getJobEngagement).Methods(http.MethodGet)

	r.HandleFunc("/applications/mine", h.listMyApplications).Methods(http.MethodGet)
	r.HandleFunc("/applications/{id}/withdraw", h.withdraw).Methods(http.MethodPost)
	r.HandleFunc("/applications/{id}/accept", h.accept).Methods(http.MethodPost)
	r.HandleFunc("/applications/{id}/reject", h.reject).Methods(http.MethodPost)

	r.HandleFunc("/engagements/{id}", h.getEngagement).Methods(http.MethodGet)
	r.HandleFunc("/engagements/{id}/complete", h.complete).Methods(http.MethodPost)
	r.HandleFunc("/engagements/{id}/rate", h.rate).Methods(http.MethodPost)

	r.HandleFunc("/notifications", h.listNotifications).Methods(http.MethodGet)
	r.HandleFunc("/notifications/{id}/read", h.markNotificationRead).Methods(http.MethodPost)

	auth := NewAuthMiddleware(authSecret, log, []string{"/healthz", "/metrics"})
	return metrics.InstrumentHandler(auth.Handler(r))
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// users ----------------------------------------------------------------------

func (h *handler) ensureUser(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		DisplayName string `json:"display_name"`
		Phone       string `json:"phone"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, errors.Invalid(err.Error()))
		return
	}
	u, err := h.app.Users.Ensure(r.Context(), GetUserID(r.Context()), payload.DisplayName, payload.Phone)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *handler) setDeviceToken(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		DeviceToken string `json:"device_token"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, errors.Invalid(err.Error()))
		return
	}
	u, err := h.app.Users.SetDeviceToken(r.Context(), GetUserID(r.Context()), payload.DeviceToken)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *handler) getUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.app.Users.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// jobs -----------------------------------------------------------------------

func (h *handler) createJob(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Title          string   `json:"title"`
		Description    string   `json:"description"`
		Payment        string   `json:"payment"`
		Location       string   `json:"location"`
		RequiredSkills []string `json:"required_skills"`
		MaxWorkers     int      `json:"max_workers"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, errors.Invalid(err.Error()))
		return
	}
	j, err := h.app.Jobs.Create(r.Context(), GetUserID(r.Context()), jobs.CreateInput{
		Title:          payload.Title,
		Description:    payload.Description,
		Payment:        payload.Payment,
		Location:       payload.Location,
		RequiredSkills: payload.RequiredSkills,
		MaxWorkers:     payload.MaxWorkers,
	})
	metrics.RecordTransition("job", "create", err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, j)
}

func (h *handler) listOpenJobs(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Jobs.ListOpen(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) listMyJobs(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Jobs.ListByOwner(r.Context(), GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) getJob(w http.ResponseWriter, r *http.Request) {
	j, err := h.app.Jobs.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (h *handler) closeJob(w http.ResponseWriter, r *http.Request) {
	j, err := h.app.Jobs.Close(r.Context(), mux.Vars(r)["id"], GetUserID(r.Context()))
	metrics.RecordTransition("job", "close", err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (h *handler) cancelJob(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Reason string `json:"reason"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, errors.Invalid(err.Error()))
		return
	}
	j, err := h.app.Engagements.CancelByJob(r.Context(), mux.Vars(r)["id"], GetUserID(r.Context()), payload.Reason)
	metrics.RecordTransition("job", "cancel", err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

// applications ---------------------------------------------------------------

func (h *handler) apply(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Message string `json:"message"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, errors.Invalid(err.Error()))
		return
	}
	app, err := h.app.Applications.Apply(r.Context(), mux.Vars(r)["id"], GetUserID(r.Context()), payload.Message)
	metrics.RecordTransition("application", "apply", err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, app)
}

func (h *handler) listJobApplications(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Applications.ListByJob(r.Context(), mux.Vars(r)["id"], GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) listMyApplications(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Applications.ListMine(r.Context(), GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) withdraw(w http.ResponseWriter, r *http.Request) {
	app, err := h.app.Applications.Withdraw(r.Context(), mux.Vars(r)["id"], GetUserID(r.Context()))
	metrics.RecordTransition("application", "withdraw", err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

func (h *handler) accept(w http.ResponseWriter, r *http.Request) {
	accepted, eng, err := h.app.Applications.Accept(r.Context(), mux.Vars(r)["id"], GetUserID(r.Context()))
	metrics.RecordTransition("application", "accept", err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"application": accepted,
		"engagement":  eng,
	})
}

func (h *handler) reject(w http.ResponseWriter, r *http.Request) {
	app, err := h.app.Applications.Reject(r.Context(), mux.Vars(r)["id"], GetUserID(r.Context()))
	metrics.RecordTransition("application", "reject", err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

// engagements ----------------------------------------------------------------

func (h *handler) getEngagement(w http.ResponseWriter, r *http.Request) {
	eng, err := h.app.Engagements.Get(r.Context(), mux.Vars(r)["id"], GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, eng)
}

func (h *handler) getJobEngagement(w http.ResponseWriter, r *http.Request) {
	eng, err := h.app.Engagements.GetByJob(r.Context(), mux.Vars(r)["id"], GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, eng)
}

func (h *handler) complete(w http.ResponseWriter, r *http.Request) {
	eng, err := h.app.Engagements.Complete(r.Context(), mux.Vars(r)["id"], GetUserID(r.Context()))
	metrics.RecordTransition("engagement", "complete", err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, eng)
}

func (h *handler) rate(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Score  int    `json:"score"`
		Review string `json:"review"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, errors.Invalid(err.Error()))
		return
	}
	eng, err := h.app.Engagements.Rate(r.Context(), mux.Vars(r)["id"], GetUserID(r.Context()), payload.Score, payload.Review)
	metrics.RecordTransition("engagement", "rate", err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, eng)
}

// notifications --------------------------------------------------------------

func (h *handler) listNotifications(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Notifications.List(r.Context(), GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.app.Notifications.MarkRead(r.Context(), mux.Vars(r)["id"], GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// helpers --------------------------------------------------------------------

func decodeJSON(body io.Reader, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("invalid JSON payload: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	svcErr := errors.GetServiceError(err)
	if svcErr == nil {
		svcErr = errors.Internal("internal error", err)
	}
	body := map[string]interface{}{
		"error": map[string]interface{}{
			"code":    svcErr.Code,
			"message": svcErr.Message,
		},
	}
	if svcErr.Reason != "" {
		body["error"].(map[string]interface{})["reason"] = svcErr.Reason
	}
	if len(svcErr.Details) > 0 {
		body["error"].(map[string]interface{})["details"] = svcErr.Details
	}
	writeJSON(w, svcErr.HTTPStatus, body)
}
