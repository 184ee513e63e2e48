// Package service реализует бизнес-логику сервиса учёта расходов.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/expense-system/internal/model"
	"github.com/mmeshcher/expense-system/internal/repository"
	"github.com/mmeshcher/expense-system/internal/validation"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	GetExpenses(ctx context.Context, filter *model.ExpenseFilter) ([]model.Expense, error)
	GetPendingExpenses(ctx context.Context) ([]model.Expense, error)
	GetExpenseByID(ctx context.Context, id int64) (*model.Expense, error)
	GetCategories(ctx context.Context) ([]model.ExpenseCategory, error)
	GetStatuses(ctx context.Context) ([]model.ExpenseStatus, error)
	GetUsers(ctx context.Context) ([]model.User, error)
	GetRoles(ctx context.Context) ([]model.Role, error)
	CreateExpense(ctx context.Context, userID, categoryID, amountMinor int64, expenseDate time.Time, description string) (int64, error)
	SubmitExpense(ctx context.Context, expenseID int64) error
	ApproveExpense(ctx context.Context, expenseID, reviewerID int64) error
	RejectExpense(ctx context.Context, expenseID, reviewerID int64) error
}

type connectivity interface {
	IsConnected() bool
}

// Result содержит результат чтения. При Degraded в Data лежат резервные данные,
// а Diagnostic описывает причину.
type Result[T any] struct {
	Data       T
	Degraded   bool
	Diagnostic *model.ErrorInfo
}

// Outcome содержит результат изменения статуса заявки.
type Outcome struct {
	OK         bool
	Diagnostic *model.ErrorInfo
}

// DiagnosticError возвращается из CreateExpense и несёт диагностику для вызывающего.
type DiagnosticError struct {
	Info *model.ErrorInfo
	Err  error
}

func (e *DiagnosticError) Error() string {
	if e.Info.Detail != "" {
		return e.Info.Message + ": " + e.Info.Detail
	}
	return e.Info.Message
}

func (e *DiagnosticError) Unwrap() error {
	return e.Err
}

// Status описывает состояние доступа к данным на момент последней операции.
// Значения общие для всех запросов и перезаписываются последним из них.
type Status struct {
	Connected    bool             `json:"connected"`
	UseDummyData bool             `json:"using_sample_data"`
	LastError    *model.ErrorInfo `json:"last_error,omitempty"`
}

// ExpenseService содержит бизнес-логику работы с заявками.
type ExpenseService struct {
	repo   Repository
	logger *zap.Logger

	useDummy atomic.Bool
	lastErr  atomic.Pointer[model.ErrorInfo]
}

// NewExpenseService создаёт сервис поверх репозитория.
func NewExpenseService(repo Repository, logger *zap.Logger) *ExpenseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExpenseService{repo: repo, logger: logger}
}

// Status возвращает снимок состояния доступа к данным.
func (s *ExpenseService) Status() Status {
	st := Status{
		UseDummyData: s.useDummy.Load(),
		LastError:    s.lastErr.Load(),
	}
	if c, ok := s.repo.(connectivity); ok {
		st.Connected = c.IsConnected()
	}
	return st
}

// ListExpenses возвращает заявки, отобранные по фильтру. filter может быть nil.
func (s *ExpenseService) ListExpenses(ctx context.Context, filter *model.ExpenseFilter) Result[[]model.Expense] {
	return read(ctx, s, "ExpenseService.ListExpenses", func(ctx context.Context) ([]model.Expense, error) {
		return s.repo.GetExpenses(ctx, filter)
	}, sampleExpenses)
}

// ListPendingExpenses возвращает заявки, ожидающие рассмотрения.
func (s *ExpenseService) ListPendingExpenses(ctx context.Context) Result[[]model.Expense] {
	return read(ctx, s, "ExpenseService.ListPendingExpenses", s.repo.GetPendingExpenses, samplePendingExpenses)
}

// GetExpenseByID возвращает заявку или nil, если её нет.
func (s *ExpenseService) GetExpenseByID(ctx context.Context, id int64) Result[*model.Expense] {
	if id <= 0 {
		return Result[*model.Expense]{}
	}

	return read(ctx, s, "ExpenseService.GetExpenseByID", func(ctx context.Context) (*model.Expense, error) {
		e, err := s.repo.GetExpenseByID(ctx, id)
		if repository.IsNotFound(err) {
			return nil, nil
		}
		return e, err
	}, func() *model.Expense {
		return sampleExpenseByID(id)
	})
}

// ListCategories возвращает категории расходов.
func (s *ExpenseService) ListCategories(ctx context.Context) Result[[]model.ExpenseCategory] {
	return read(ctx, s, "ExpenseService.ListCategories", s.repo.GetCategories, sampleCategories)
}

// ListStatuses возвращает статусы заявок.
func (s *ExpenseService) ListStatuses(ctx context.Context) Result[[]model.ExpenseStatus] {
	return read(ctx, s, "ExpenseService.ListStatuses", s.repo.GetStatuses, sampleStatuses)
}

// ListUsers возвращает пользователей.
func (s *ExpenseService) ListUsers(ctx context.Context) Result[[]model.User] {
	return read(ctx, s, "ExpenseService.ListUsers", s.repo.GetUsers, sampleUsers)
}

// ListRoles возвращает роли пользователей.
func (s *ExpenseService) ListRoles(ctx context.Context) Result[[]model.Role] {
	return read(ctx, s, "ExpenseService.ListRoles", s.repo.GetRoles, sampleRoles)
}

// CreateExpense создаёт заявку и возвращает её идентификатор. Сумма переводится
// в минимальные единицы с округлением. Ошибка всегда имеет тип *DiagnosticError.
func (s *ExpenseService) CreateExpense(ctx context.Context, req model.CreateExpenseRequest) (int64, error) {
	const location = "ExpenseService.CreateExpense"

	amountMinor, err := validateCreate(req)
	if err != nil {
		return 0, &DiagnosticError{Info: diagnose(location, err), Err: err}
	}

	id, err := s.repo.CreateExpense(ctx, req.UserID, req.CategoryID, amountMinor, req.ExpenseDate, req.Description)
	if err != nil {
		return 0, &DiagnosticError{Info: s.fail(location, err), Err: err}
	}

	s.lastErr.Store(nil)
	s.logger.Info("expense created", zap.Int64("expense_id", id), zap.Int64("user_id", req.UserID))
	return id, nil
}

// validateCreate проверяет заявку и возвращает сумму в минимальных единицах.
func validateCreate(req model.CreateExpenseRequest) (int64, error) {
	err := validation.Struct(req)

	verr := &validation.Error{}
	if err != nil && !errors.As(err, &verr) {
		return 0, err
	}
	if req.ExpenseDate.IsZero() {
		verr.Add("expense_date", "is required")
	}

	var amountMinor int64
	if req.Amount.IsPositive() {
		amountMinor, err = model.ToMinor(req.Amount)
		switch {
		case errors.Is(err, model.ErrAmountOutOfRange):
			verr.Add("amount", "is too large")
		case amountMinor <= 0:
			verr.Add("amount", "must be at least 0.01")
		}
	}

	if len(verr.Fields) > 0 {
		return 0, verr
	}
	return amountMinor, nil
}

// SubmitExpense переводит черновик в статус Submitted.
func (s *ExpenseService) SubmitExpense(ctx context.Context, expenseID int64) Outcome {
	const location = "ExpenseService.SubmitExpense"

	if expenseID <= 0 {
		return Outcome{Diagnostic: diagnose(location, validation.NewError("expense_id", "must be greater than 0"))}
	}

	return s.mutate(ctx, location, func(ctx context.Context) error {
		return s.repo.SubmitExpense(ctx, expenseID)
	})
}

// ApproveExpense одобряет заявку от имени проверяющего.
func (s *ExpenseService) ApproveExpense(ctx context.Context, req model.ReviewRequest) Outcome {
	const location = "ExpenseService.ApproveExpense"

	if err := validation.Struct(req); err != nil {
		return Outcome{Diagnostic: diagnose(location, err)}
	}

	return s.mutate(ctx, location, func(ctx context.Context) error {
		return s.repo.ApproveExpense(ctx, req.ExpenseID, req.ReviewerID)
	})
}

// RejectExpense отклоняет заявку от имени проверяющего.
func (s *ExpenseService) RejectExpense(ctx context.Context, req model.ReviewRequest) Outcome {
	const location = "ExpenseService.RejectExpense"

	if err := validation.Struct(req); err != nil {
		return Outcome{Diagnostic: diagnose(location, err)}
	}

	return s.mutate(ctx, location, func(ctx context.Context) error {
		return s.repo.RejectExpense(ctx, req.ExpenseID, req.ReviewerID)
	})
}

func (s *ExpenseService) mutate(ctx context.Context, location string, fn func(ctx context.Context) error) Outcome {
	if err := fn(ctx); err != nil {
		return Outcome{Diagnostic: s.fail(location, err)}
	}
	s.lastErr.Store(nil)
	return Outcome{OK: true}
}

func read[T any](ctx context.Context, s *ExpenseService, location string, fetch func(context.Context) (T, error), fallback func() T) Result[T] {
	data, err := fetch(ctx)
	if err != nil {
		info := s.fail(location, err)
		s.useDummy.Store(true)
		return Result[T]{Data: fallback(), Degraded: true, Diagnostic: info}
	}

	s.useDummy.Store(false)
	s.lastErr.Store(nil)
	return Result[T]{Data: data}
}

func (s *ExpenseService) fail(location string, err error) *model.ErrorInfo {
	info := diagnose(location, err)
	s.lastErr.Store(info)
	s.logger.Error("expense operation failed",
		zap.String("location", location),
		zap.String("kind", info.Kind),
		zap.Error(err),
	)
	return info
}

func diagnose(location string, err error) *model.ErrorInfo {
	info := &model.ErrorInfo{
		Kind:     model.ErrorKindUnknown,
		Message:  "Unexpected error while accessing expense data",
		Detail:   err.Error(),
		Location: location,
	}

	var (
		connErr *repository.ConnectionError
		opErr   *repository.OperationError
		valErr  *validation.Error
	)

	switch {
	case errors.As(err, &valErr):
		info.Kind = model.ErrorKindValidation
		info.Message = "Invalid request"
		info.Detail = valErr.Error()
	case errors.As(err, &connErr):
		info.Kind = connErr.Kind
		info.Message = "Unable to connect to the database"
		info.Detail = connErr.Hint()
	case errors.As(err, &opErr):
		info.Kind = model.ErrorKindOperation
		info.Message = fmt.Sprintf("Database operation %s failed", opErr.Procedure)
		info.Detail = opErr.Reason()
	case repository.IsNotFound(err):
		info.Kind = model.ErrorKindOperation
		info.Message = "Expense not found"
		info.Detail = ""
	}

	return info
}
