// Package repository содержит доступ к хранимым функциям PostgreSQL сервиса учёта расходов.
package repository

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"

	"github.com/mmeshcher/expense-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Postgres объединяет пул pgx и построенный поверх него *sql.DB.
type Postgres struct {
	pool *pgxpool.Pool
	db   *sql.DB
}

// OpenPostgres создаёт пул соединений. Подключение к серверу не проверяется.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	return &Postgres{pool: pool, db: stdlib.OpenDBFromPool(pool)}, nil
}

// DB возвращает пул в виде *sql.DB.
func (p *Postgres) DB() *sql.DB {
	return p.db
}

// Ping проверяет доступность сервера.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close закрывает пул соединений с БД.
func (p *Postgres) Close() error {
	err := p.db.Close()
	p.pool.Close()
	return err
}

// Migrate применяет встроенные миграции: схему, справочники и хранимые функции.
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

const expenseColumns = `expense_id, user_id, user_name, category_id, category_name, status_id, status_name,
	amount_minor, currency, expense_date, description, receipt_file,
	submitted_at, reviewed_by, reviewer_name, reviewed_at, created_at`

const (
	queryGetExpenses        = `SELECT ` + expenseColumns + ` FROM get_expenses($1, $2, $3, $4, $5)`
	queryGetPendingExpenses = `SELECT ` + expenseColumns + ` FROM get_pending_expenses()`
	queryGetExpenseByID     = `SELECT ` + expenseColumns + ` FROM get_expense_by_id($1)`
	queryGetCategories      = `SELECT category_id, category_name, is_active FROM get_categories()`
	queryGetStatuses        = `SELECT status_id, status_name FROM get_statuses()`
	queryGetUsers           = `SELECT user_id, user_name, email, role_id, role_name, manager_id, is_active FROM get_users()`
	queryGetRoles           = `SELECT role_id, role_name, description FROM get_roles()`
	queryCreateExpense      = `SELECT create_expense($1, $2, $3, $4, $5)`
	querySubmitExpense      = `SELECT submit_expense($1)`
	queryApproveExpense     = `SELECT approve_expense($1, $2)`
	queryRejectExpense      = `SELECT reject_expense($1, $2)`
)

// ExpenseRepository вызывает хранимые функции и преобразует строки в доменные сущности.
type ExpenseRepository struct {
	conn    *Connector
	backoff func() retry.Backoff
}

// NewExpenseRepository создаёт репозиторий, получающий соединения через conn.
func NewExpenseRepository(conn *Connector) *ExpenseRepository {
	return &ExpenseRepository{
		conn: conn,
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(3, retry.NewExponential(100*time.Millisecond))
		},
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func queryAll[T any](ctx context.Context, r *ExpenseRepository, procedure, query string, scan func(rowScanner) (T, error), args ...any) ([]T, error) {
	conn, err := r.conn.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &OperationError{Procedure: procedure, Err: err}
	}
	defer rows.Close()

	res := make([]T, 0)
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, &OperationError{Procedure: procedure, Err: fmt.Errorf("scan row: %w", err)}
		}
		res = append(res, item)
	}

	if err := rows.Err(); err != nil {
		return nil, &OperationError{Procedure: procedure, Err: fmt.Errorf("rows error: %w", err)}
	}

	return res, nil
}

func (r *ExpenseRepository) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	return retry.Do(ctx, r.backoff(), func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && isRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (r *ExpenseRepository) exec(ctx context.Context, procedure, query string, args ...any) error {
	return r.withRetry(ctx, func(ctx context.Context) error {
		conn, err := r.conn.Acquire(ctx)
		if err != nil {
			return err
		}
		defer conn.Close()

		if _, err := conn.ExecContext(ctx, query, args...); err != nil {
			return &OperationError{Procedure: procedure, Err: err}
		}
		return nil
	})
}

// GetExpenses возвращает заявки, отобранные хранилищем по фильтру. filter может быть nil.
func (r *ExpenseRepository) GetExpenses(ctx context.Context, filter *model.ExpenseFilter) ([]model.Expense, error) {
	if filter == nil {
		filter = &model.ExpenseFilter{}
	}

	return queryAll(ctx, r, "get_expenses", queryGetExpenses, scanExpense,
		nullString(filter.Category),
		nullString(filter.Status),
		nullString(filter.SearchText),
		nullTime(filter.FromDate),
		nullTime(filter.ToDate),
	)
}

// GetPendingExpenses возвращает заявки в статусе Submitted.
func (r *ExpenseRepository) GetPendingExpenses(ctx context.Context) ([]model.Expense, error) {
	return queryAll(ctx, r, "get_pending_expenses", queryGetPendingExpenses, scanExpense)
}

// GetExpenseByID возвращает заявку по идентификатору.
func (r *ExpenseRepository) GetExpenseByID(ctx context.Context, id int64) (*model.Expense, error) {
	expenses, err := queryAll(ctx, r, "get_expense_by_id", queryGetExpenseByID, scanExpense, id)
	if err != nil {
		return nil, err
	}
	if len(expenses) == 0 {
		return nil, ErrExpenseNotFound
	}
	return &expenses[0], nil
}

// GetCategories возвращает категории расходов.
func (r *ExpenseRepository) GetCategories(ctx context.Context) ([]model.ExpenseCategory, error) {
	return queryAll(ctx, r, "get_categories", queryGetCategories, func(row rowScanner) (model.ExpenseCategory, error) {
		var c model.ExpenseCategory
		err := row.Scan(&c.CategoryID, &c.CategoryName, &c.IsActive)
		return c, err
	})
}

// GetStatuses возвращает статусы заявок.
func (r *ExpenseRepository) GetStatuses(ctx context.Context) ([]model.ExpenseStatus, error) {
	return queryAll(ctx, r, "get_statuses", queryGetStatuses, func(row rowScanner) (model.ExpenseStatus, error) {
		var s model.ExpenseStatus
		err := row.Scan(&s.StatusID, &s.StatusName)
		return s, err
	})
}

// GetUsers возвращает пользователей.
func (r *ExpenseRepository) GetUsers(ctx context.Context) ([]model.User, error) {
	return queryAll(ctx, r, "get_users", queryGetUsers, func(row rowScanner) (model.User, error) {
		var (
			u         model.User
			roleName  sql.NullString
			managerID sql.NullInt64
		)
		if err := row.Scan(&u.UserID, &u.UserName, &u.Email, &u.RoleID, &roleName, &managerID, &u.IsActive); err != nil {
			return u, err
		}
		u.RoleName = roleName.String
		u.ManagerID = int64Ptr(managerID)
		return u, nil
	})
}

// GetRoles возвращает роли пользователей.
func (r *ExpenseRepository) GetRoles(ctx context.Context) ([]model.Role, error) {
	return queryAll(ctx, r, "get_roles", queryGetRoles, func(row rowScanner) (model.Role, error) {
		var (
			role        model.Role
			description sql.NullString
		)
		err := row.Scan(&role.RoleID, &role.RoleName, &description)
		role.Description = description.String
		return role, err
	})
}

// CreateExpense создаёт заявку в статусе Draft и возвращает её идентификатор.
func (r *ExpenseRepository) CreateExpense(ctx context.Context, userID, categoryID, amountMinor int64, expenseDate time.Time, description string) (int64, error) {
	var id int64
	err := r.withRetry(ctx, func(ctx context.Context) error {
		conn, err := r.conn.Acquire(ctx)
		if err != nil {
			return err
		}
		defer conn.Close()

		err = conn.QueryRowContext(ctx, queryCreateExpense,
			userID, categoryID, amountMinor, expenseDate, nullString(description),
		).Scan(&id)
		if err != nil {
			return &OperationError{Procedure: "create_expense", Err: err}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// SubmitExpense переводит заявку из Draft в Submitted.
func (r *ExpenseRepository) SubmitExpense(ctx context.Context, expenseID int64) error {
	return r.exec(ctx, "submit_expense", querySubmitExpense, expenseID)
}

// ApproveExpense одобряет заявку в статусе Submitted.
func (r *ExpenseRepository) ApproveExpense(ctx context.Context, expenseID, reviewerID int64) error {
	return r.exec(ctx, "approve_expense", queryApproveExpense, expenseID, reviewerID)
}

// RejectExpense отклоняет заявку в статусе Submitted.
func (r *ExpenseRepository) RejectExpense(ctx context.Context, expenseID, reviewerID int64) error {
	return r.exec(ctx, "reject_expense", queryRejectExpense, expenseID, reviewerID)
}

func scanExpense(row rowScanner) (model.Expense, error) {
	var (
		e            model.Expense
		userName     sql.NullString
		categoryName sql.NullString
		statusName   sql.NullString
		description  sql.NullString
		receiptFile  sql.NullString
		reviewerName sql.NullString
		submittedAt  sql.NullTime
		reviewedAt   sql.NullTime
		reviewedBy   sql.NullInt64
	)

	err := row.Scan(
		&e.ExpenseID, &e.UserID, &userName, &e.CategoryID, &categoryName, &e.StatusID, &statusName,
		&e.AmountMinor, &e.Currency, &e.ExpenseDate, &description, &receiptFile,
		&submittedAt, &reviewedBy, &reviewerName, &reviewedAt, &e.CreatedAt,
	)
	if err != nil {
		return e, err
	}

	e.UserName = userName.String
	e.CategoryName = categoryName.String
	e.StatusName = statusName.String
	e.Description = description.String
	e.ReceiptFile = receiptFile.String
	e.ReviewerName = reviewerName.String
	e.SubmittedAt = timePtr(submittedAt)
	e.ReviewedAt = timePtr(reviewedAt)
	e.ReviewedBy = int64Ptr(reviewedBy)

	return e, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

// IsNotFound сообщает, что ошибка означает отсутствие заявки.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrExpenseNotFound)
}

// IsConnected сообщает, удалась ли последняя попытка подключения к БД.
func (r *ExpenseRepository) IsConnected() bool {
	return r.conn.IsConnected()
}
