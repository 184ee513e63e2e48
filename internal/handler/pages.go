package handler

import (
	"embed"
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/expense-system/internal/assistant"
	"github.com/mmeshcher/expense-system/internal/middleware"
	"github.com/mmeshcher/expense-system/internal/model"
	"github.com/mmeshcher/expense-system/internal/service"
	"github.com/mmeshcher/expense-system/internal/validation"
)

//go:embed templates/*.html
var templatesFS embed.FS

var pageNames = []string{"index", "new", "approve", "chat"}

func mustParsePages() map[string]*template.Template {
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		pages[name] = template.Must(template.ParseFS(templatesFS, "templates/layout.html", "templates/"+name+".html"))
	}
	return pages
}

// page содержит общие для всех страниц данные.
type page struct {
	Title      string
	Status     service.Status
	Users      []model.User
	ActorID    int64
	Notice     string
	Error      string
	Degraded   bool
	Diagnostic *model.ErrorInfo
}

func (h *Handler) basePage(r *http.Request, title string) page {
	p := page{
		Title:  title,
		Notice: r.URL.Query().Get("notice"),
		Error:  r.URL.Query().Get("error"),
	}

	users := h.expenses.ListUsers(r.Context())
	p.Users = users.Data
	p.degrade(users.Degraded, users.Diagnostic)

	if id, ok := middleware.ActorFromContext(r.Context()); ok {
		p.ActorID = id
	} else {
		p.ActorID = h.defaults.SubmitterID
	}
	return p
}

func (p *page) degrade(degraded bool, info *model.ErrorInfo) {
	if !degraded {
		return
	}
	p.Degraded = true
	if p.Diagnostic == nil {
		p.Diagnostic = info
	}
}

func (h *Handler) render(w http.ResponseWriter, status int, name string, data any) {
	tmpl, ok := h.pages[name]
	if !ok {
		h.logger.Error("unknown page", zap.String("page", name))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := tmpl.ExecuteTemplate(w, "layout", data); err != nil {
		h.logger.Error("render page", zap.String("page", name), zap.Error(err))
	}
}

func redirect(w http.ResponseWriter, r *http.Request, path, key, message string) {
	if message != "" {
		path += "?" + url.Values{key: {message}}.Encode()
	}
	http.Redirect(w, r, path, http.StatusSeeOther)
}

type indexPage struct {
	page
	Expenses   []model.Expense
	Categories []model.ExpenseCategory
	Statuses   []model.ExpenseStatus
	Category   string
	StatusName string
	Search     string
	From       string
	To         string
}

// IndexPage показывает список заявок с фильтрами.
func (h *Handler) IndexPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	data := indexPage{
		page:       h.basePage(r, "Expenses"),
		Category:   q.Get("category"),
		StatusName: q.Get("status"),
		Search:     q.Get("search"),
		From:       q.Get("from"),
		To:         q.Get("to"),
	}

	filter, err := filterFromQuery(r)
	if err != nil {
		data.Error = err.Error()
		filter = &model.ExpenseFilter{Category: data.Category, Status: data.StatusName, SearchText: data.Search}
	}

	expenses := h.expenses.ListExpenses(ctx, filter)
	data.Expenses = expenses.Data
	data.degrade(expenses.Degraded, expenses.Diagnostic)

	categories := h.expenses.ListCategories(ctx)
	data.Categories = categories.Data
	data.degrade(categories.Degraded, categories.Diagnostic)

	statuses := h.expenses.ListStatuses(ctx)
	data.Statuses = statuses.Data
	data.degrade(statuses.Degraded, statuses.Diagnostic)

	data.Status = h.expenses.Status()
	h.render(w, http.StatusOK, "index", data)
}

// SubmitExpensePage отправляет заявку на рассмотрение и возвращает к списку.
func (h *Handler) SubmitExpensePage(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		redirect(w, r, "/", "error", err.Error())
		return
	}

	out := h.expenses.SubmitExpense(r.Context(), id)
	if !out.OK {
		redirect(w, r, "/", "error", diagnosticText(out.Diagnostic))
		return
	}
	redirect(w, r, "/", "notice", "Expense "+strconv.FormatInt(id, 10)+" submitted for approval")
}

type newExpensePage struct {
	page
	Categories  []model.ExpenseCategory
	Fields      map[string]string
	Amount      string
	CategoryID  int64
	ExpenseDate string
	Description string
}

// NewExpensePage показывает форму новой заявки.
func (h *Handler) NewExpensePage(w http.ResponseWriter, r *http.Request) {
	data := h.newExpensePage(r)
	data.Status = h.expenses.Status()
	h.render(w, http.StatusOK, "new", data)
}

func (h *Handler) newExpensePage(r *http.Request) newExpensePage {
	data := newExpensePage{page: h.basePage(r, "Add expense"), Fields: map[string]string{}}

	categories := h.expenses.ListCategories(r.Context())
	for _, c := range categories.Data {
		if c.IsActive {
			data.Categories = append(data.Categories, c)
		}
	}
	data.degrade(categories.Degraded, categories.Diagnostic)
	return data
}

// CreateExpensePage создаёт заявку из данных формы.
func (h *Handler) CreateExpensePage(w http.ResponseWriter, r *http.Request) {
	data := h.newExpensePage(r)

	if err := r.ParseForm(); err != nil {
		data.Error = "Invalid form data"
		data.Status = h.expenses.Status()
		h.render(w, http.StatusBadRequest, "new", data)
		return
	}

	data.Amount = r.PostForm.Get("amount")
	data.ExpenseDate = r.PostForm.Get("expense_date")
	data.Description = r.PostForm.Get("description")

	verr := &validation.Error{}
	req := model.CreateExpenseRequest{Description: data.Description}

	amount, err := validation.ParseAmount(data.Amount)
	if err != nil {
		verr.Add("amount", err.Error())
	} else {
		req.Amount = amount
	}

	data.CategoryID, err = strconv.ParseInt(r.PostForm.Get("category_id"), 10, 64)
	if err != nil || data.CategoryID <= 0 {
		verr.Add("category_id", "please select a category")
	} else {
		req.CategoryID = data.CategoryID
	}

	date, err := validation.ParseDate(data.ExpenseDate)
	if err != nil {
		verr.Add("expense_date", err.Error())
	} else {
		req.ExpenseDate = date
	}

	userID, ok := h.submitterID(r)
	if !ok {
		data.Error = "Select a user before adding an expense"
		data.Status = h.expenses.Status()
		h.render(w, http.StatusUnauthorized, "new", data)
		return
	}
	req.UserID = userID

	if len(verr.Fields) == 0 {
		id, err := h.expenses.CreateExpense(r.Context(), req)
		if err == nil {
			redirect(w, r, "/", "notice", "Expense "+strconv.FormatInt(id, 10)+" created")
			return
		}

		var derr *service.DiagnosticError
		switch {
		case errors.As(err, &verr):
			// поля подсвечиваются ниже
		case errors.As(err, &derr):
			data.Error = diagnosticText(derr.Info)
		default:
			data.Error = err.Error()
		}
	}

	for _, f := range verr.Fields {
		data.Fields[f.Field] = f.Message
	}
	if data.Error == "" {
		data.Error = "Please correct the highlighted fields"
	}
	data.Status = h.expenses.Status()
	h.render(w, http.StatusBadRequest, "new", data)
}

type approvePage struct {
	page
	Expenses []model.Expense
	Search   string
}

// ApprovePage показывает заявки, ожидающие рассмотрения.
func (h *Handler) ApprovePage(w http.ResponseWriter, r *http.Request) {
	data := approvePage{
		page:   h.basePage(r, "Approve expenses"),
		Search: strings.TrimSpace(r.URL.Query().Get("search")),
	}

	pending := h.expenses.ListPendingExpenses(r.Context())
	data.Expenses = filterPending(pending.Data, data.Search)
	data.degrade(pending.Degraded, pending.Diagnostic)

	data.Status = h.expenses.Status()
	h.render(w, http.StatusOK, "approve", data)
}

// filterPending отбирает заявки, у которых описание, категория или автор содержат search без учёта регистра.
func filterPending(expenses []model.Expense, search string) []model.Expense {
	if search == "" {
		return expenses
	}

	needle := strings.ToLower(search)
	res := make([]model.Expense, 0, len(expenses))
	for _, e := range expenses {
		if strings.Contains(strings.ToLower(e.Description), needle) ||
			strings.Contains(strings.ToLower(e.CategoryName), needle) ||
			strings.Contains(strings.ToLower(e.UserName), needle) {
			res = append(res, e)
		}
	}
	return res
}

// ApproveExpensePage одобряет заявку из формы.
func (h *Handler) ApproveExpensePage(w http.ResponseWriter, r *http.Request) {
	h.reviewPage(w, r, h.expenses.ApproveExpense, "approved")
}

// RejectExpensePage отклоняет заявку из формы.
func (h *Handler) RejectExpensePage(w http.ResponseWriter, r *http.Request) {
	h.reviewPage(w, r, h.expenses.RejectExpense, "rejected")
}

func (h *Handler) reviewPage(w http.ResponseWriter, r *http.Request, op reviewFunc, verb string) {
	id, err := parseID(r)
	if err != nil {
		redirect(w, r, "/approve", "error", err.Error())
		return
	}

	reviewerID, ok := h.reviewerID(r)
	if !ok {
		redirect(w, r, "/approve", "error", "Select a reviewer before approving expenses")
		return
	}

	out := op(r.Context(), model.ReviewRequest{ExpenseID: id, ReviewerID: reviewerID})
	if !out.OK {
		redirect(w, r, "/approve", "error", diagnosticText(out.Diagnostic))
		return
	}
	redirect(w, r, "/approve", "notice", "Expense "+strconv.FormatInt(id, 10)+" "+verb)
}

type chatPage struct {
	page
	Configured bool
	Message    string
	Reply      *assistant.ChatResponse
}

// ChatPage показывает страницу ассистента.
func (h *Handler) ChatPage(w http.ResponseWriter, r *http.Request) {
	data := chatPage{page: h.basePage(r, "Assistant"), Configured: h.chat.IsConfigured()}
	data.Status = h.expenses.Status()
	h.render(w, http.StatusOK, "chat", data)
}

// ChatFormPage отправляет сообщение ассистенту из формы и показывает ответ.
func (h *Handler) ChatFormPage(w http.ResponseWriter, r *http.Request) {
	data := chatPage{page: h.basePage(r, "Assistant"), Configured: h.chat.IsConfigured()}

	if err := r.ParseForm(); err != nil || strings.TrimSpace(r.PostForm.Get("message")) == "" {
		data.Error = "Please enter a message"
		data.Status = h.expenses.Status()
		h.render(w, http.StatusBadRequest, "chat", data)
		return
	}

	data.Message = r.PostForm.Get("message")
	actorID, _ := middleware.ActorFromContext(r.Context())
	resp := h.chat.SendMessage(r.Context(), assistant.ChatRequest{Message: data.Message, ActorID: actorID})
	data.Reply = &resp

	data.Status = h.expenses.Status()
	h.render(w, http.StatusOK, "chat", data)
}

// pagePaths перечисляет страницы, на которые можно вернуться после выбора пользователя.
var pagePaths = map[string]bool{
	"/":             true,
	"/expenses/new": true,
	"/approve":      true,
	"/chat":         true,
}

// returnPath возвращает путь страницы из Referer, если это одна из страниц сервиса, иначе "/".
func returnPath(referer string) string {
	ref, err := url.Parse(referer)
	if err != nil || !pagePaths[ref.Path] {
		return "/"
	}
	return ref.Path
}

// SessionFormPage выбирает пользователя из формы и возвращает на исходную страницу.
func (h *Handler) SessionFormPage(w http.ResponseWriter, r *http.Request) {
	back := returnPath(r.Referer())

	if err := r.ParseForm(); err != nil {
		redirect(w, r, back, "error", "Invalid form data")
		return
	}

	id, _ := strconv.ParseInt(r.PostForm.Get("user_id"), 10, 64)
	user, err := h.findUser(r.Context(), id)
	if err != nil {
		redirect(w, r, back, "error", "Unknown user")
		return
	}

	h.actors.SetActorCookie(w, user.UserID)
	redirect(w, r, back, "notice", "Acting as "+user.UserName)
}

func diagnosticText(info *model.ErrorInfo) string {
	if info == nil {
		return "Operation failed"
	}
	if info.Detail != "" {
		return info.Message + ": " + info.Detail
	}
	return info.Message
}
