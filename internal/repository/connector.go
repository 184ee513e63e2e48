package repository

import (
	"context"
	"database/sql"
	"sync/atomic"

	"go.uber.org/zap"
)

// Connector выдаёт соединение с БД на время одной операции и хранит
// состояние последней попытки подключения.
type Connector struct {
	db     *sql.DB
	logger *zap.Logger

	connected atomic.Bool
	lastErr   atomic.Pointer[ConnectionError]
}

// NewConnector создаёт Connector поверх пула database/sql. При db == nil каждое
// обращение завершается ошибкой конфигурации.
func NewConnector(db *sql.DB, logger *zap.Logger) *Connector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Connector{db: db, logger: logger}
}

// Acquire открывает соединение. Вызывающий обязан закрыть его. Повторных попыток не делается.
func (c *Connector) Acquire(ctx context.Context) (*sql.Conn, error) {
	if c.db == nil {
		return nil, c.fail(ErrNoDatabase)
	}

	conn, err := c.db.Conn(ctx)
	if err != nil {
		return nil, c.fail(err)
	}

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, c.fail(err)
	}

	c.connected.Store(true)
	c.lastErr.Store(nil)
	return conn, nil
}

func (c *Connector) fail(err error) error {
	connErr := &ConnectionError{Kind: classifyConnectionError(err), Err: err}

	c.connected.Store(false)
	c.lastErr.Store(connErr)
	c.logger.Error("failed to connect to database", zap.String("kind", connErr.Kind), zap.Error(err))

	return connErr
}

// IsConnected сообщает, удалась ли последняя попытка подключения.
func (c *Connector) IsConnected() bool {
	return c.connected.Load()
}

// LastError возвращает ошибку последней неудачной попытки подключения или nil.
func (c *Connector) LastError() *ConnectionError {
	return c.lastErr.Load()
}
