package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/expense-system/internal/model"
	"github.com/mmeshcher/expense-system/internal/service"
	"github.com/mmeshcher/expense-system/internal/validation"
)

// ExpenseService описывает операции над заявками, доступные модели.
type ExpenseService interface {
	ListExpenses(ctx context.Context, filter *model.ExpenseFilter) service.Result[[]model.Expense]
	ListPendingExpenses(ctx context.Context) service.Result[[]model.Expense]
	ListCategories(ctx context.Context) service.Result[[]model.ExpenseCategory]
	CreateExpense(ctx context.Context, req model.CreateExpenseRequest) (int64, error)
	ApproveExpense(ctx context.Context, req model.ReviewRequest) service.Outcome
	RejectExpense(ctx context.Context, req model.ReviewRequest) service.Outcome
}

// Dispatcher выполняет вызовы функций, запрошенные моделью.
type Dispatcher struct {
	svc      ExpenseService
	defaults model.Actors
	logger   *zap.Logger
}

// NewDispatcher создаёт Dispatcher. defaults задают участников, если запрос пришёл без идентификатора.
func NewDispatcher(svc ExpenseService, defaults model.Actors, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{svc: svc, defaults: defaults, logger: logger}
}

type argError struct {
	name string
}

func (e *argError) Error() string {
	return "missing required argument: " + e.name
}

type arguments map[string]json.RawMessage

func parseArguments(raw string) (arguments, error) {
	args := arguments{}
	if strings.TrimSpace(raw) == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	return args, nil
}

func (a arguments) has(name string) bool {
	v, ok := a[name]
	return ok && string(v) != "null"
}

func (a arguments) string(name string) (string, error) {
	if !a.has(name) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(a[name], &s); err != nil {
		return "", fmt.Errorf("argument %s must be a string", name)
	}
	return s, nil
}

func (a arguments) requiredString(name string) (string, error) {
	if !a.has(name) {
		return "", &argError{name: name}
	}
	return a.string(name)
}

func (a arguments) requiredInt(name string) (int64, error) {
	if !a.has(name) {
		return 0, &argError{name: name}
	}

	var n int64
	if err := json.Unmarshal(a[name], &n); err == nil {
		return n, nil
	}

	var s string
	if err := json.Unmarshal(a[name], &s); err == nil {
		if n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, fmt.Errorf("argument %s must be an integer", name)
}

func (a arguments) requiredDecimal(name string) (decimal.Decimal, error) {
	if !a.has(name) {
		return decimal.Zero, &argError{name: name}
	}

	var d decimal.Decimal
	if err := d.UnmarshalJSON(a[name]); err != nil {
		return decimal.Zero, fmt.Errorf("argument %s must be a number", name)
	}
	return d, nil
}

type expenseView struct {
	ExpenseID    int64  `json:"expense_id"`
	UserName     string `json:"user_name"`
	CategoryName string `json:"category_name"`
	Amount       string `json:"amount"`
	AmountMinor  int64  `json:"amount_minor"`
	Currency     string `json:"currency"`
	Date         string `json:"date"`
	ExpenseDate  string `json:"expense_date"`
	StatusName   string `json:"status_name"`
	Description  string `json:"description,omitempty"`
}

func expenseViews(expenses []model.Expense) []expenseView {
	res := make([]expenseView, 0, len(expenses))
	for _, e := range expenses {
		res = append(res, expenseView{
			ExpenseID:    e.ExpenseID,
			UserName:     e.UserName,
			CategoryName: e.CategoryName,
			Amount:       e.FormattedAmount(),
			AmountMinor:  e.AmountMinor,
			Currency:     e.Currency,
			Date:         e.ExpenseDate.Format("02/01/2006"),
			ExpenseDate:  e.ExpenseDate.Format("2006-01-02"),
			StatusName:   e.StatusName,
			Description:  e.Description,
		})
	}
	return res
}

// Execute выполняет функцию name с аргументами в формате JSON и возвращает результат
// в виде JSON-объекта. Ошибки возвращаются внутри результата. actorID задаёт
// пользователя, от имени которого идёт диалог, 0 означает участника по умолчанию.
func (d *Dispatcher) Execute(ctx context.Context, name, rawArgs string, actorID int64) string {
	result, err := d.execute(ctx, name, rawArgs, actorID)
	if err != nil {
		d.logger.Warn("tool call failed", zap.String("function", name), zap.Error(err))
		return encode(map[string]any{"error": err.Error()})
	}
	return encode(result)
}

func (d *Dispatcher) execute(ctx context.Context, name, rawArgs string, actorID int64) (any, error) {
	args, err := parseArguments(rawArgs)
	if err != nil {
		return nil, err
	}

	switch name {
	case ToolGetExpenses:
		return d.getExpenses(ctx, args)
	case ToolGetPendingExpenses:
		res := d.svc.ListPendingExpenses(ctx)
		return map[string]any{"expenses": expenseViews(res.Data), "sample_data": res.Degraded}, nil
	case ToolGetCategories:
		res := d.svc.ListCategories(ctx)
		return map[string]any{"categories": res.Data, "sample_data": res.Degraded}, nil
	case ToolCreateExpense:
		return d.createExpense(ctx, args, actorID)
	case ToolApproveExpense:
		return d.review(ctx, args, actorID, d.svc.ApproveExpense, "Expense approved", "Failed to approve expense")
	case ToolRejectExpense:
		return d.review(ctx, args, actorID, d.svc.RejectExpense, "Expense rejected", "Failed to reject expense")
	default:
		d.logger.Warn("unknown tool requested", zap.String("function", name))
		return map[string]any{"error": "Unknown function: " + name}, nil
	}
}

func (d *Dispatcher) getExpenses(ctx context.Context, args arguments) (any, error) {
	category, err := args.string("category")
	if err != nil {
		return nil, err
	}
	status, err := args.string("status")
	if err != nil {
		return nil, err
	}

	res := d.svc.ListExpenses(ctx, &model.ExpenseFilter{Category: category, Status: status})
	return map[string]any{"expenses": expenseViews(res.Data), "sample_data": res.Degraded}, nil
}

func (d *Dispatcher) createExpense(ctx context.Context, args arguments, actorID int64) (any, error) {
	amount, err := args.requiredDecimal("amount")
	if err != nil {
		return nil, err
	}
	categoryID, err := args.requiredInt("category_id")
	if err != nil {
		return nil, err
	}
	rawDate, err := args.requiredString("expense_date")
	if err != nil {
		return nil, err
	}
	date, err := validation.ParseDate(rawDate)
	if err != nil {
		return nil, err
	}
	description, err := args.string("description")
	if err != nil {
		return nil, err
	}

	userID := actorID
	if userID == 0 {
		userID = d.defaults.SubmitterID
	}
	if userID == 0 {
		return nil, errors.New("no submitter identity available")
	}

	id, err := d.svc.CreateExpense(ctx, model.CreateExpenseRequest{
		UserID:      userID,
		CategoryID:  categoryID,
		Amount:      amount,
		ExpenseDate: date,
		Description: description,
	})
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"success":    true,
		"expense_id": id,
		"message":    fmt.Sprintf("Expense created with ID %d", id),
	}, nil
}

func (d *Dispatcher) review(
	ctx context.Context,
	args arguments,
	actorID int64,
	op func(context.Context, model.ReviewRequest) service.Outcome,
	okMessage, failMessage string,
) (any, error) {
	expenseID, err := args.requiredInt("expense_id")
	if err != nil {
		return nil, err
	}

	reviewerID := actorID
	if reviewerID == 0 {
		reviewerID = d.defaults.ReviewerID
	}
	if reviewerID == 0 {
		return nil, errors.New("no reviewer identity available")
	}

	out := op(ctx, model.ReviewRequest{ExpenseID: expenseID, ReviewerID: reviewerID})
	if !out.OK {
		msg := failMessage
		if out.Diagnostic != nil && out.Diagnostic.Detail != "" {
			msg += ": " + out.Diagnostic.Detail
		}
		return map[string]any{"success": false, "message": msg}, nil
	}
	return map[string]any{"success": true, "message": okMessage}, nil
}

func encode(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `{"error":"failed to encode result"}`
	}
	return string(b)
}
