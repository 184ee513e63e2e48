// Package model содержит доменные сущности сервиса учёта расходов.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Имена статусов заявки, используемые хранилищем и резервным набором данных.
const (
	StatusDraft     = "Draft"
	StatusSubmitted = "Submitted"
	StatusApproved  = "Approved"
	StatusRejected  = "Rejected"
)

// DefaultCurrency задаёт валюту, которую хранилище присваивает новым заявкам.
const DefaultCurrency = "GBP"

// Expense описывает заявку на возмещение расходов.
type Expense struct {
	ExpenseID    int64      `json:"expense_id"`
	UserID       int64      `json:"user_id"`
	UserName     string     `json:"user_name,omitempty"`
	CategoryID   int64      `json:"category_id"`
	CategoryName string     `json:"category_name,omitempty"`
	StatusID     int64      `json:"status_id"`
	StatusName   string     `json:"status_name,omitempty"`
	AmountMinor  int64      `json:"amount_minor"`
	Currency     string     `json:"currency"`
	ExpenseDate  time.Time  `json:"expense_date"`
	Description  string     `json:"description,omitempty"`
	ReceiptFile  string     `json:"receipt_file,omitempty"`
	SubmittedAt  *time.Time `json:"submitted_at,omitempty"`
	ReviewedBy   *int64     `json:"reviewed_by,omitempty"`
	ReviewerName string     `json:"reviewer_name,omitempty"`
	ReviewedAt   *time.Time `json:"reviewed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// IsReviewed сообщает, прошла ли заявка рассмотрение руководителем.
func (e Expense) IsReviewed() bool {
	return e.StatusName == StatusApproved || e.StatusName == StatusRejected
}

// ExpenseCategory описывает категорию расходов.
type ExpenseCategory struct {
	CategoryID   int64  `json:"category_id"`
	CategoryName string `json:"category_name"`
	IsActive     bool   `json:"is_active"`
}

// ExpenseStatus описывает статус заявки.
type ExpenseStatus struct {
	StatusID   int64  `json:"status_id"`
	StatusName string `json:"status_name"`
}

// User представляет сотрудника.
type User struct {
	UserID    int64  `json:"user_id"`
	UserName  string `json:"user_name"`
	Email     string `json:"email"`
	RoleID    int64  `json:"role_id"`
	RoleName  string `json:"role_name,omitempty"`
	ManagerID *int64 `json:"manager_id,omitempty"`
	IsActive  bool   `json:"is_active"`
}

// Role описывает роль пользователя.
type Role struct {
	RoleID      int64  `json:"role_id"`
	RoleName    string `json:"role_name"`
	Description string `json:"description,omitempty"`
}

// ExpenseFilter содержит параметры отбора заявок. Пустые поля не участвуют в отборе.
type ExpenseFilter struct {
	Category   string
	Status     string
	SearchText string
	FromDate   *time.Time
	ToDate     *time.Time
}

// CreateExpenseRequest содержит данные новой заявки. Amount задаётся в основных единицах валюты.
type CreateExpenseRequest struct {
	UserID      int64           `json:"user_id" validate:"gt=0"`
	CategoryID  int64           `json:"category_id" validate:"gt=0"`
	Amount      decimal.Decimal `json:"amount" validate:"gt=0"`
	ExpenseDate time.Time       `json:"expense_date"`
	Description string          `json:"description" validate:"max=1000"`
}

// ReviewRequest содержит данные для одобрения или отклонения заявки.
type ReviewRequest struct {
	ExpenseID  int64 `json:"expense_id" validate:"gt=0"`
	ReviewerID int64 `json:"reviewer_id" validate:"gt=0"`
}

// Виды диагностик.
const (
	ErrorKindAuthentication = "authentication"
	ErrorKindNetwork        = "network"
	ErrorKindIdentity       = "identity"
	ErrorKindConfiguration  = "configuration"
	ErrorKindOperation      = "operation"
	ErrorKindValidation     = "validation"
	ErrorKindUnknown        = "unknown"
)

// ErrorInfo содержит диагностический снимок неудачной операции доступа к данным.
type ErrorInfo struct {
	Kind     string `json:"kind"`
	Message  string `json:"message"`
	Detail   string `json:"detail,omitempty"`
	Location string `json:"location,omitempty"`
}

// Actors задаёт идентификаторы участников по умолчанию. Нулевое значение означает, что умолчание отключено.
type Actors struct {
	SubmitterID int64
	ReviewerID  int64
}
