package assistant

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/expense-system/internal/llm"
)

//go:generate mockgen -source=chat.go -destination=mock_completer_test.go -package=assistant

// Completer отправляет диалог модели и возвращает её ответ.
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message, tools []llm.Tool) (*llm.Message, error)
}

// NotConfiguredMessage возвращается, когда модель не подключена.
const NotConfiguredMessage = "AI chat is not configured. Set OPENAI_ENDPOINT (and OPENAI_API_KEY if the endpoint " +
	"requires one) and restart the service to enable it. You can still use all other features of the " +
	"Expense Management System."

// ErrorMessage возвращается при ошибке обращения к модели.
const ErrorMessage = "An error occurred while processing your request."

// EmptyReplyMessage подставляется, если модель вернула пустой ответ.
const EmptyReplyMessage = "I processed your request but have no response to provide."

// TooManyRoundsMessage возвращается, когда модель исчерпала лимит раундов вызова функций.
const TooManyRoundsMessage = "I could not finish your request because it needed too many steps. " +
	"Please try a simpler request."

// ChatRequest содержит сообщение пользователя и предыдущие реплики диалога.
type ChatRequest struct {
	Message string        `json:"message"`
	History []llm.Message `json:"history,omitempty"`
	// ActorID задаёт пользователя, от имени которого выполняются функции. 0 означает участника по умолчанию.
	ActorID int64 `json:"-"`
}

// ChatResponse содержит ответ ассистента.
type ChatResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Error     string `json:"error,omitempty"`
	ToolCalls int    `json:"tool_calls,omitempty"`
}

// ChatOptions ограничивает цикл вызовов функций.
type ChatOptions struct {
	MaxRounds    int
	RoundTimeout time.Duration
}

// ChatService ведёт диалог с моделью и выполняет запрошенные ею функции.
type ChatService struct {
	model        Completer
	dispatcher   *Dispatcher
	tools        []llm.Tool
	maxRounds    int
	roundTimeout time.Duration
	logger       *zap.Logger
}

// NewChatService создаёт ChatService. При model == nil чат считается не настроенным.
func NewChatService(model Completer, dispatcher *Dispatcher, opts ChatOptions, logger *zap.Logger) *ChatService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = 5
	}
	if opts.RoundTimeout <= 0 {
		opts.RoundTimeout = 30 * time.Second
	}

	return &ChatService{
		model:        model,
		dispatcher:   dispatcher,
		tools:        Tools(),
		maxRounds:    opts.MaxRounds,
		roundTimeout: opts.RoundTimeout,
		logger:       logger,
	}
}

// IsConfigured сообщает, подключена ли модель.
func (s *ChatService) IsConfigured() bool {
	return s.model != nil
}

// SendMessage отправляет сообщение модели. Модель может запросить не более maxRounds
// раундов вызовов функций, после чего диалог прерывается.
func (s *ChatService) SendMessage(ctx context.Context, req ChatRequest) ChatResponse {
	if !s.IsConfigured() {
		return ChatResponse{Success: true, Message: NotConfiguredMessage}
	}

	messages := make([]llm.Message, 0, len(req.History)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	for _, m := range req.History {
		if m.Role == llm.RoleUser || m.Role == llm.RoleAssistant {
			messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
		}
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: req.Message})

	calls := 0
	for round := 0; ; round++ {
		reply, err := s.complete(ctx, messages)
		if err != nil {
			s.logger.Error("chat completion failed", zap.Int("round", round), zap.Error(err))
			return ChatResponse{Success: false, Message: ErrorMessage, Error: err.Error(), ToolCalls: calls}
		}

		if len(reply.ToolCalls) == 0 {
			content := strings.TrimSpace(reply.Content)
			if content == "" {
				content = EmptyReplyMessage
			}
			return ChatResponse{Success: true, Message: content, ToolCalls: calls}
		}

		if round >= s.maxRounds {
			s.logger.Warn("chat tool rounds exhausted", zap.Int("max_rounds", s.maxRounds))
			return ChatResponse{Success: false, Message: TooManyRoundsMessage, Error: "too many tool calls", ToolCalls: calls}
		}

		messages = append(messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   reply.Content,
			ToolCalls: reply.ToolCalls,
		})
		for _, call := range reply.ToolCalls {
			calls++
			s.logger.Debug("executing tool", zap.String("function", call.Function.Name), zap.String("call_id", call.ID))
			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				ToolCallID: call.ID,
				Content:    s.dispatcher.Execute(ctx, call.Function.Name, call.Function.Arguments, req.ActorID),
			})
		}
	}
}

func (s *ChatService) complete(ctx context.Context, messages []llm.Message) (*llm.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, s.roundTimeout)
	defer cancel()

	return s.model.Complete(ctx, messages, s.tools)
}
