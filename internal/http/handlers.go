package http

import (
	"errors"
	"net/http"

	"custfin/internal/core"
	applog "custfin/internal/log"
	"custfin/internal/middleware/trace"
	"custfin/internal/services"
	"custfin/internal/store"
)

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	params, err := ParseViewParams(r.URL.Query())
	if err != nil {
		writeError(w, r, err, applog.OpList)
		return
	}

	view, err := s.overview.View(r.Context(), actor, params)
	if err != nil {
		writeError(w, r, err, applog.OpList)
		return
	}
	NewJSONResponse().Body(toOverviewDTO(view, s.overview.LoadedAt())).Write(w)
}

func (s *Server) handleCustomerDetail(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireActor(w, r); !ok {
		return
	}
	detail, err := s.service.LoadDetail(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err, applog.OpRead)
		return
	}
	NewJSONResponse().Body(toDetailDTO(detail)).Write(w)
}

// handleRecordTransaction accepts JSON or form fields kind, amount, reason
// and date. A revenue whose actual-revenue update failed is still reported as
// stored, with 207 and a warning.
func (s *Server) handleRecordTransaction(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("invalid request body").Write(w)
		return
	}

	result, err := s.service.RecordTransaction(r.Context(), services.RecordRequest{
		CustomerID: r.PathValue("id"),
		Kind:       p.Get("kind"),
		Amount:     p.Get("amount"),
		Reason:     p.Get("reason"),
		Date:       p.Get("date"),
		Actor:      actor,
	})
	status := http.StatusCreated
	body := recordDTO{}
	switch {
	case errors.Is(err, services.ErrRevenueNotApplied):
		status = http.StatusMultiStatus
		body.Warning = err.Error()
	case err != nil:
		writeError(w, r, err, applog.OpCreate)
		return
	}
	s.overview.Invalidate()

	t := result.Transaction
	applog.NewStructuredLogger(applog.FromContext(r.Context())).
		LogTransactionRecorded(r.Context(), t.ID, t.CustomerID, string(t.Kind), t.Amount.Dong, actor.ID)

	body.Transaction = toTransactionDTO(t, "")
	body.ActualRevenue = result.ActualRevenue.Dong
	NewJSONResponse().
		Status(status).
		Header("Location", "/api/finance/customers/"+t.CustomerID).
		Body(body).
		Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if !Confirmed(r) {
		PreconditionRequiredError("deleting a transaction requires confirm=true").Write(w)
		return
	}
	id := r.PathValue("id")
	if err := s.service.DeleteTransaction(r.Context(), id, actor); err != nil {
		writeError(w, r, err, applog.OpDelete)
		return
	}
	s.overview.RemoveTransaction(id)
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Transaction deleted",
		applog.FieldTransactionID, id, applog.FieldActorID, actor.ID)
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleMarkCompleted(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if !Confirmed(r) {
		PreconditionRequiredError("completing a customer requires confirm=true").Write(w)
		return
	}
	id := r.PathValue("id")
	if err := s.service.MarkFinanceCompleted(r.Context(), id, actor); err != nil {
		writeError(w, r, err, applog.OpComplete)
		return
	}
	s.overview.Invalidate()
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

// handleCreateReminder accepts date (YYYY-MM-DD), time (HH:MM, local) and content.
func (s *Server) handleCreateReminder(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("invalid request body").Write(w)
		return
	}
	reminder, err := s.service.CreateReminder(r.Context(), services.ReminderRequest{
		CustomerID: r.PathValue("id"),
		Date:       p.Get("date"),
		Time:       p.Get("time"),
		Content:    p.Get("content"),
		Actor:      actor,
	})
	if err != nil {
		writeError(w, r, err, applog.OpCreate)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(toReminderDTO(reminder)).Write(w)
}

func requireActor(w http.ResponseWriter, r *http.Request) (core.Actor, bool) {
	actor, err := ParseActor(r)
	if err != nil {
		UnauthorizedError(err.Error()).Write(w)
		return core.Actor{}, false
	}
	return actor, true
}

// writeError maps service errors onto statuses. Unexpected errors are logged
// and reported without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error, op string) {
	status, message := http.StatusInternalServerError, "internal error"
	switch {
	case errors.Is(err, core.ErrUnknownCustomer), errors.Is(err, store.ErrNotFound):
		status, message = http.StatusNotFound, err.Error()
	case errors.Is(err, core.ErrValidation):
		status, message = http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, services.ErrOverviewClosed), errors.Is(err, services.ErrLoadDiscarded):
		status, message = http.StatusServiceUnavailable, "overview unavailable, retry"
	default:
		applog.NewStructuredLogger(applog.FromContext(r.Context())).
			LogError(r.Context(), "Request failed", err, op, applog.NewFields().WithOperation(op))
	}
	ErrorResponse(status, message).
		Body(errorBody{Error: message, RequestID: trace.GetRequestID(r.Context())}).
		Write(w)
}
