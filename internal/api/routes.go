package api

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/stacklok/seatwatch/internal/api/common"
	"github.com/stacklok/seatwatch/internal/course"
	"github.com/stacklok/seatwatch/internal/monitor"
	"github.com/stacklok/seatwatch/internal/notify"
	"github.com/stacklok/seatwatch/internal/store"
	"github.com/stacklok/seatwatch/internal/tracking"
)

// HeaderTriggerToken carries the shared secret of the scheduler trigger
const HeaderTriggerToken = "X-Trigger-Token"

const cycleCompletedMessage = "Course check completed successfully"

type routes struct {
	monitor monitor.Service
	tracker Tracker
}

// triggerCycle runs a check-and-notify cycle on behalf of the scheduler
//
// @Summary		Run a monitoring cycle
// @Tags			monitor
// @Produce		json
// @Success		200	{object}	CycleResponse
// @Failure		401	{object}	common.ErrorResponse
// @Failure		500	{object}	common.ErrorResponse
// @Router			/check-courses [post]
func (rr *routes) triggerCycle(w http.ResponseWriter, r *http.Request) {
	summary, err := rr.monitor.RunCycle(r.Context())
	if err != nil {
		writeServiceError(w, r, "Monitoring cycle failed", err)
		return
	}
	common.WriteJSONResponse(w, CycleResponse{Message: cycleCompletedMessage, Summary: summary}, http.StatusOK)
}

// trackCourse adds a course to the caller's tracked courses
//
// @Summary		Track a course
// @Tags			courses
// @Accept			json
// @Produce		json
// @Param			course	body		TrackRequest	true	"Course to track"
// @Success		201		{object}	tracking.TrackResult
// @Failure		400		{object}	common.ErrorResponse
// @Router			/courses [post]
func (rr *routes) trackCourse(w http.ResponseWriter, r *http.Request) {
	p, _ := tracking.PrincipalFromContext(r.Context())

	var req TrackRequest
	if err := common.DecodeJSONBody(w, r, &req, false); err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	semester, err := course.ParseSemester(req.Semester)
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	key := course.Key{CRN: strings.TrimSpace(req.CRN), Year: req.Year, Semester: semester}
	result, err := rr.tracker.Track(r.Context(), p, key)
	if err != nil {
		writeServiceError(w, r, "Failed to add course", err)
		return
	}
	common.WriteJSONResponse(w, result, http.StatusCreated)
}

// listCourses returns the caller's tracked courses
//
// @Summary		List tracked courses
// @Tags			courses
// @Produce		json
// @Success		200	{array}	course.TrackedCourse
// @Router			/courses [get]
func (rr *routes) listCourses(w http.ResponseWriter, r *http.Request) {
	p, _ := tracking.PrincipalFromContext(r.Context())

	courses, err := rr.tracker.ListCourses(r.Context(), p.UserID)
	if err != nil {
		writeServiceError(w, r, "Failed to list courses", err)
		return
	}
	common.WriteJSONResponse(w, courses, http.StatusOK)
}

// checkAll checks every tracked course without notifying
//
// @Summary		Check all courses
// @Tags			courses
// @Produce		json
// @Success		200	{array}		monitor.CheckResult
// @Failure		403	{object}	common.ErrorResponse
// @Router			/courses/check [post]
func (rr *routes) checkAll(w http.ResponseWriter, r *http.Request) {
	results, err := rr.monitor.CheckAll(r.Context())
	if err != nil {
		writeServiceError(w, r, "Failed to check courses", err)
		return
	}
	if results == nil {
		results = []monitor.CheckResult{}
	}
	common.WriteJSONResponse(w, results, http.StatusOK)
}

// checkOne checks a single course
//
// @Summary		Check one course
// @Tags			courses
// @Produce		json
// @Param			courseID	path		string	true	"Course id, {crn}-{year}-{semester}"
// @Success		200			{object}	monitor.CheckResult
// @Failure		404			{object}	common.ErrorResponse
// @Router			/courses/{courseID}/check [post]
func (rr *routes) checkOne(w http.ResponseWriter, r *http.Request) {
	courseID, err := common.PathParam(r, "courseID")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := rr.monitor.CheckOne(r.Context(), courseID)
	if err != nil {
		writeServiceError(w, r, "Failed to check course", err)
		return
	}
	common.WriteJSONResponse(w, result, http.StatusOK)
}

// notifyUsers runs a check-and-notify cycle on behalf of an administrator
//
// @Summary		Notify users of opened courses
// @Tags			courses
// @Produce		json
// @Success		200	{object}	monitor.Summary
// @Failure		403	{object}	common.ErrorResponse
// @Router			/courses/notify [post]
func (rr *routes) notifyUsers(w http.ResponseWriter, r *http.Request) {
	summary, err := rr.monitor.RunCycle(r.Context())
	if err != nil {
		writeServiceError(w, r, "Monitoring cycle failed", err)
		return
	}
	common.WriteJSONResponse(w, summary, http.StatusOK)
}

// subscribe registers the caller's email, and optionally phone, for notifications
//
// @Summary		Subscribe to notifications
// @Tags			notifications
// @Accept			json
// @Produce		json
// @Param			subscription	body		SubscribeRequest	false	"Optional phone number"
// @Success		200				{object}	tracking.SubscribeResult
// @Failure		400				{object}	common.ErrorResponse
// @Router			/notifications/subscribe [post]
func (rr *routes) subscribe(w http.ResponseWriter, r *http.Request) {
	p, _ := tracking.PrincipalFromContext(r.Context())

	var req SubscribeRequest
	if err := common.DecodeJSONBody(w, r, &req, true); err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := rr.tracker.Subscribe(r.Context(), p, strings.TrimSpace(req.PhoneNumber))
	if err != nil {
		writeServiceError(w, r, "Failed to create subscriptions", err)
		return
	}
	common.WriteJSONResponse(w, result, http.StatusOK)
}

// requireTriggerToken checks the scheduler's shared secret when one is configured
func requireTriggerToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(HeaderTriggerToken)
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				common.WriteErrorResponse(w, "Invalid trigger token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeServiceError maps domain errors to HTTP statuses. Unclassified errors are
// store failures and are reported as 500 without their details.
func writeServiceError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		common.WriteErrorResponse(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, tracking.ErrInvalidCourse), errors.Is(err, tracking.ErrEmailRequired):
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, notify.ErrNotConfigured):
		common.WriteErrorResponse(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, notify.ErrTransportUnavailable):
		slog.ErrorContext(r.Context(), msg, "error", err)
		common.WriteErrorResponse(w, notify.ErrTransportUnavailable.Error(), http.StatusBadGateway)
	default:
		slog.ErrorContext(r.Context(), msg, "error", err)
		common.WriteErrorResponse(w, msg, http.StatusInternalServerError)
	}
}
