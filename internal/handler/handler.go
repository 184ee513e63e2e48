// Package handler содержит HTTP-обработчики API и страниц сервиса учёта расходов.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/expense-system/internal/assistant"
	"github.com/mmeshcher/expense-system/internal/llm"
	"github.com/mmeshcher/expense-system/internal/middleware"
	"github.com/mmeshcher/expense-system/internal/model"
	"github.com/mmeshcher/expense-system/internal/service"
	"github.com/mmeshcher/expense-system/internal/validation"
)

// ExpenseService определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type ExpenseService interface {
	Status() service.Status
	ListExpenses(ctx context.Context, filter *model.ExpenseFilter) service.Result[[]model.Expense]
	ListPendingExpenses(ctx context.Context) service.Result[[]model.Expense]
	GetExpenseByID(ctx context.Context, id int64) service.Result[*model.Expense]
	ListCategories(ctx context.Context) service.Result[[]model.ExpenseCategory]
	ListStatuses(ctx context.Context) service.Result[[]model.ExpenseStatus]
	ListUsers(ctx context.Context) service.Result[[]model.User]
	ListRoles(ctx context.Context) service.Result[[]model.Role]
	CreateExpense(ctx context.Context, req model.CreateExpenseRequest) (int64, error)
	SubmitExpense(ctx context.Context, expenseID int64) service.Outcome
	ApproveExpense(ctx context.Context, req model.ReviewRequest) service.Outcome
	RejectExpense(ctx context.Context, req model.ReviewRequest) service.Outcome
}

// ChatService определяет контракт ассистента.
type ChatService interface {
	IsConfigured() bool
	SendMessage(ctx context.Context, req assistant.ChatRequest) assistant.ChatResponse
}

// Handler реализует HTTP-обработчики сервиса учёта расходов.
type Handler struct {
	expenses ExpenseService
	chat     ChatService
	logger   *zap.Logger
	actors   *middleware.ActorMiddleware
	defaults model.Actors
	pages    map[string]*template.Template
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(expenses ExpenseService, chat ChatService, logger *zap.Logger, actors *middleware.ActorMiddleware, defaults model.Actors) *Handler {
	return &Handler{
		expenses: expenses,
		chat:     chat,
		logger:   logger,
		actors:   actors,
		defaults: defaults,
		pages:    mustParsePages(),
	}
}

// Заголовки, которыми помечаются ответы с резервными данными.
const (
	headerDataSource = "X-Data-Source"
	headerDataError  = "X-Data-Error"
)

type errorResponse struct {
	Error  string                  `json:"error"`
	Kind   string                  `json:"kind,omitempty"`
	Fields []validation.FieldError `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	resp := errorResponse{Error: err.Error()}

	var verr *validation.Error
	if errors.As(err, &verr) {
		resp.Fields = verr.Fields
	}

	writeJSON(w, status, resp)
}

func writeDiagnostic(w http.ResponseWriter, status int, info *model.ErrorInfo) {
	resp := errorResponse{Error: info.Message, Kind: info.Kind}
	if info.Detail != "" {
		resp.Error += ": " + info.Detail
	}
	writeJSON(w, status, resp)
}

// diagnosticStatus отображает вид диагностики в код ответа: ошибки запроса дают 400,
// недоступность хранилища даёт 503.
func diagnosticStatus(info *model.ErrorInfo) int {
	switch info.Kind {
	case model.ErrorKindValidation, model.ErrorKindOperation:
		return http.StatusBadRequest
	default:
		return http.StatusServiceUnavailable
	}
}

func markDegraded(w http.ResponseWriter, degraded bool, info *model.ErrorInfo) {
	if !degraded {
		return
	}
	w.Header().Set(headerDataSource, "sample")
	if info != nil {
		w.Header().Set(headerDataError, info.Message)
	}
}

func writeResult[T any](w http.ResponseWriter, res service.Result[T]) {
	markDegraded(w, res.Degraded, res.Diagnostic)
	writeJSON(w, http.StatusOK, res.Data)
}

func parseID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, validation.NewError("id", "must be a positive integer")
	}
	return id, nil
}

func (h *Handler) submitterID(r *http.Request) (int64, bool) {
	if id, ok := middleware.ActorFromContext(r.Context()); ok {
		return id, true
	}
	return h.defaults.SubmitterID, h.defaults.SubmitterID > 0
}

func (h *Handler) reviewerID(r *http.Request) (int64, bool) {
	if id, ok := middleware.ActorFromContext(r.Context()); ok {
		return id, true
	}
	return h.defaults.ReviewerID, h.defaults.ReviewerID > 0
}

func filterFromQuery(r *http.Request) (*model.ExpenseFilter, error) {
	q := r.URL.Query()
	filter := &model.ExpenseFilter{
		Category:   q.Get("category"),
		Status:     q.Get("status"),
		SearchText: q.Get("search"),
	}

	verr := &validation.Error{}
	if v := q.Get("from"); v != "" {
		t, err := validation.ParseDate(v)
		if err != nil {
			verr.Add("from", err.Error())
		} else {
			filter.FromDate = &t
		}
	}
	if v := q.Get("to"); v != "" {
		t, err := validation.ParseDate(v)
		if err != nil {
			verr.Add("to", err.Error())
		} else {
			filter.ToDate = &t
		}
	}

	if len(verr.Fields) > 0 {
		return nil, verr
	}
	return filter, nil
}

// ListExpenses возвращает заявки с учётом фильтров из строки запроса.
func (h *Handler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	writeResult(w, h.expenses.ListExpenses(r.Context(), filter))
}

// ListPendingExpenses возвращает заявки, ожидающие рассмотрения.
func (h *Handler) ListPendingExpenses(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.expenses.ListPendingExpenses(r.Context()))
}

// GetExpense возвращает одну заявку.
func (h *Handler) GetExpense(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	res := h.expenses.GetExpenseByID(r.Context(), id)
	markDegraded(w, res.Degraded, res.Diagnostic)
	if res.Data == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("expense %d not found", id))
		return
	}

	writeJSON(w, http.StatusOK, res.Data)
}

type createExpenseRequest struct {
	CategoryID  int64           `json:"category_id"`
	Amount      decimal.Decimal `json:"amount"`
	ExpenseDate string          `json:"expense_date"`
	Description string          `json:"description"`
}

type createExpenseResponse struct {
	ExpenseID int64 `json:"expense_id"`
}

// CreateExpense создаёт черновик заявки от имени текущего пользователя.
func (h *Handler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.submitterID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, errors.New("no submitter identity: select a user via /api/session"))
		return
	}

	var req createExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	date, err := validation.ParseDate(req.ExpenseDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, validation.NewError("expense_date", err.Error()))
		return
	}

	id, err := h.expenses.CreateExpense(r.Context(), model.CreateExpenseRequest{
		UserID:      userID,
		CategoryID:  req.CategoryID,
		Amount:      req.Amount,
		ExpenseDate: date,
		Description: req.Description,
	})
	if err != nil {
		var derr *service.DiagnosticError
		var verr *validation.Error
		switch {
		case errors.As(err, &verr):
			writeError(w, http.StatusBadRequest, verr)
		case errors.As(err, &derr):
			writeDiagnostic(w, diagnosticStatus(derr.Info), derr.Info)
		default:
			writeError(w, http.StatusBadRequest, err)
		}
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/expenses/%d", id))
	writeJSON(w, http.StatusCreated, createExpenseResponse{ExpenseID: id})
}

type outcomeResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func writeOutcome(w http.ResponseWriter, out service.Outcome, okMessage string) {
	if !out.OK {
		if out.Diagnostic == nil {
			out.Diagnostic = &model.ErrorInfo{Kind: model.ErrorKindUnknown, Message: "Operation failed"}
		}
		writeDiagnostic(w, diagnosticStatus(out.Diagnostic), out.Diagnostic)
		return
	}
	writeJSON(w, http.StatusOK, outcomeResponse{Success: true, Message: okMessage})
}

// SubmitExpense отправляет черновик на рассмотрение.
func (h *Handler) SubmitExpense(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	writeOutcome(w, h.expenses.SubmitExpense(r.Context(), id), "Expense submitted")
}

// ApproveExpense одобряет заявку от имени текущего проверяющего.
func (h *Handler) ApproveExpense(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.expenses.ApproveExpense, "Expense approved")
}

// RejectExpense отклоняет заявку от имени текущего проверяющего.
func (h *Handler) RejectExpense(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.expenses.RejectExpense, "Expense rejected")
}

type reviewFunc func(context.Context, model.ReviewRequest) service.Outcome

func (h *Handler) review(w http.ResponseWriter, r *http.Request, op reviewFunc, okMessage string) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	reviewerID, ok := h.reviewerID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, errors.New("no reviewer identity: select a user via /api/session"))
		return
	}

	writeOutcome(w, op(r.Context(), model.ReviewRequest{ExpenseID: id, ReviewerID: reviewerID}), okMessage)
}

// ListCategories возвращает категории расходов.
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.expenses.ListCategories(r.Context()))
}

// ListStatuses возвращает статусы заявок.
func (h *Handler) ListStatuses(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.expenses.ListStatuses(r.Context()))
}

// ListUsers возвращает пользователей.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.expenses.ListUsers(r.Context()))
}

// ListRoles возвращает роли.
func (h *Handler) ListRoles(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.expenses.ListRoles(r.Context()))
}

// Health возвращает состояние доступа к данным.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.expenses.Status())
}

type sessionRequest struct {
	UserID int64 `json:"user_id"`
}

func (h *Handler) findUser(ctx context.Context, id int64) (*model.User, error) {
	res := h.expenses.ListUsers(ctx)
	for _, u := range res.Data {
		if u.UserID == id && u.IsActive {
			return &u, nil
		}
	}
	return nil, validation.NewError("user_id", "unknown or inactive user")
}

// StartSession выбирает пользователя, от имени которого выполняются запросы.
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	user, err := h.findUser(r.Context(), req.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	h.actors.SetActorCookie(w, user.UserID)
	writeJSON(w, http.StatusOK, user)
}

// EndSession сбрасывает выбранного пользователя.
func (h *Handler) EndSession(w http.ResponseWriter, r *http.Request) {
	h.actors.ClearActorCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

type chatRequest struct {
	Message string        `json:"message"`
	History []llm.Message `json:"history"`
}

// Chat передаёт сообщение ассистенту.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, validation.NewError("message", "is required"))
		return
	}

	actorID, _ := middleware.ActorFromContext(r.Context())
	resp := h.chat.SendMessage(r.Context(), assistant.ChatRequest{
		Message: req.Message,
		History: req.History,
		ActorID: actorID,
	})

	writeJSON(w, http.StatusOK, resp)
}

// ChatStatus сообщает, настроен ли ассистент.
func (h *Handler) ChatStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"configured": h.chat.IsConfigured()})
}
