package repository

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mmeshcher/expense-system/internal/model"
)

var (
	// ErrNoDatabase возвращается, если строка подключения к БД не задана.
	ErrNoDatabase = errors.New("database is not configured")
	// ErrExpenseNotFound возвращается, если заявка не найдена.
	ErrExpenseNotFound = errors.New("expense not found")
)

// ConnectionError описывает неудачную попытку получить соединение с БД.
type ConnectionError struct {
	Kind string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("database connection failed (%s): %v", e.Kind, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Hint возвращает подсказку по устранению ошибки подключения.
func (e *ConnectionError) Hint() string {
	switch e.Kind {
	case model.ErrorKindAuthentication:
		return "Authentication failed. Check the user and password in DATABASE_URI " +
			"and that the role has been granted CONNECT on the database and EXECUTE on the expense functions."
	case model.ErrorKindNetwork:
		return "Cannot reach the database server. Verify the host and port in DATABASE_URI " +
			"and that firewall rules allow connections from this host."
	case model.ErrorKindIdentity:
		return "Identity-based authentication failed. Ensure the workload identity is configured " +
			"and has been granted a database role."
	case model.ErrorKindConfiguration:
		return "DATABASE_URI is not set, the service is running on sample data."
	default:
		return e.Err.Error()
	}
}

// OperationError описывает ошибку вызова хранимой функции после получения соединения.
type OperationError struct {
	Procedure string
	Err       error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Procedure, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// Reason возвращает текст ошибки сервера без служебных префиксов.
func (e *OperationError) Reason() string {
	var pgErr *pgconn.PgError
	if errors.As(e.Err, &pgErr) && pgErr.Message != "" {
		return pgErr.Message
	}
	return e.Err.Error()
}

var (
	identityMarkers = []string{"managed identity", "workload identity", "access token", "credential"}
	authMarkers     = []string{"password authentication failed", "login failed", "authentication failed", "no pg_hba.conf entry"}
	networkMarkers  = []string{"connection refused", "no such host", "i/o timeout", "cannot open server",
		"network is unreachable", "no route to host", "connection reset by peer", "broken pipe"}
)

// classifyConnectionError определяет вид ошибки подключения. Коды Postgres и сетевые
// ошибки проверяются первыми, разбор текста сообщения используется в последнюю очередь.
func classifyConnectionError(err error) string {
	if errors.Is(err, ErrNoDatabase) {
		return model.ErrorKindConfiguration
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgerrcode.IsInvalidAuthorizationSpecification(pgErr.Code):
			return model.ErrorKindAuthentication
		case pgerrcode.IsConnectionException(pgErr.Code):
			return model.ErrorKindNetwork
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return model.ErrorKindNetwork
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, identityMarkers):
		return model.ErrorKindIdentity
	case containsAny(msg, authMarkers):
		return model.ErrorKindAuthentication
	case containsAny(msg, networkMarkers):
		return model.ErrorKindNetwork
	}

	return model.ErrorKindUnknown
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
}
