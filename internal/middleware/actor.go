// Package middleware содержит HTTP middleware сервиса учёта расходов.
package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type contextKey string

const actorIDKey contextKey = "actorID"

const (
	actorCookieName = "expense_actor"
	actorCookieTTL  = 30 * 24 * time.Hour
)

// ActorMiddleware определяет пользователя запроса по подписанному cookie.
// Запросы без cookie или с неверной подписью пропускаются без пользователя.
type ActorMiddleware struct {
	secretKey []byte
}

// NewActorMiddleware создаёт ActorMiddleware. При пустом secret ключ генерируется случайно,
// и выданные ранее cookie перестают действовать после перезапуска.
func NewActorMiddleware(secret string) *ActorMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("default-secret-key")
		}
	}

	return &ActorMiddleware{secretKey: key}
}

// Middleware добавляет идентификатор пользователя в контекст запроса, если cookie действителен.
func (a *ActorMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(actorCookieName)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		actorID, ok := a.parse(cookie.Value)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actorID)))
	})
}

// SetActorCookie устанавливает подписанный cookie с идентификатором пользователя.
func (a *ActorMiddleware) SetActorCookie(w http.ResponseWriter, actorID int64) {
	http.SetCookie(w, &http.Cookie{
		Name:     actorCookieName,
		Value:    a.sign(strconv.FormatInt(actorID, 10)),
		Path:     "/",
		Expires:  time.Now().Add(actorCookieTTL),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearActorCookie удаляет cookie пользователя.
func (a *ActorMiddleware) ClearActorCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     actorCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *ActorMiddleware) sign(idStr string) string {
	mac := hmac.New(sha256.New, a.secretKey)
	mac.Write([]byte(idStr))
	return idStr + "." + hex.EncodeToString(mac.Sum(nil))
}

func (a *ActorMiddleware) parse(value string) (int64, bool) {
	idStr, signature, found := strings.Cut(value, ".")
	if !found {
		return 0, false
	}

	_, expected, _ := strings.Cut(a.sign(idStr), ".")
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return 0, false
	}

	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}

	return id, true
}

// WithActor возвращает контекст с идентификатором пользователя.
func WithActor(ctx context.Context, actorID int64) context.Context {
	return context.WithValue(ctx, actorIDKey, actorID)
}

// ActorFromContext извлекает идентификатор пользователя из контекста запроса.
func ActorFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(actorIDKey).(int64)
	return id, ok
}
