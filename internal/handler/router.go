package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	custommiddleware "github.com/mmeshcher/expense-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса учёта расходов.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))
	r.Use(h.crossOriginProtection().Handler)
	r.Use(h.actors.Middleware)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Route("/expenses", func(r chi.Router) {
			r.Get("/", h.ListExpenses)
			r.Post("/", h.CreateExpense)
			r.Get("/pending", h.ListPendingExpenses)
			r.Get("/{id}", h.GetExpense)
			r.Post("/{id}/submit", h.SubmitExpense)
			r.Post("/{id}/approve", h.ApproveExpense)
			r.Post("/{id}/reject", h.RejectExpense)
		})

		r.Get("/categories", h.ListCategories)
		r.Get("/statuses", h.ListStatuses)
		r.Get("/users", h.ListUsers)
		r.Get("/roles", h.ListRoles)

		r.Post("/chat", h.Chat)
		r.Get("/chat/status", h.ChatStatus)

		r.Post("/session", h.StartSession)
		r.Delete("/session", h.EndSession)
	})

	r.Get("/", h.IndexPage)
	r.Get("/expenses/new", h.NewExpensePage)
	r.Post("/expenses/new", h.CreateExpensePage)
	r.Post("/expenses/{id}/submit", h.SubmitExpensePage)
	r.Get("/approve", h.ApprovePage)
	r.Post("/approve/{id}", h.ApproveExpensePage)
	r.Post("/reject/{id}", h.RejectExpensePage)
	r.Get("/chat", h.ChatPage)
	r.Post("/chat", h.ChatFormPage)
	r.Post("/session", h.SessionFormPage)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}

// crossOriginProtection отклоняет изменяющие запросы, которые браузер отправил с другого сайта.
func (h *Handler) crossOriginProtection() *http.CrossOriginProtection {
	cop := http.NewCrossOriginProtection()
	cop.SetDenyHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.logger.Warn("cross-origin request rejected",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("origin", r.Header.Get("Origin")),
			zap.String("request_id", custommiddleware.RequestIDFromContext(r.Context())),
		)
		http.Error(w, "cross-origin request rejected", http.StatusForbidden)
	}))
	return cop
}
