package assistant

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/mmeshcher/expense-system/internal/llm"
	"github.com/mmeshcher/expense-system/internal/model"
)

func toolCall(id, name, args string) llm.ToolCall {
	return llm.ToolCall{ID: id, Type: "function", Function: llm.FunctionCall{Name: name, Arguments: args}}
}

func TestChatService_NotConfigured(t *testing.T) {
	svc := NewChatService(nil, newTestDispatcher(&memRepo{}, model.Actors{}), ChatOptions{}, nil)

	assert.False(t, svc.IsConfigured())

	resp := svc.SendMessage(context.Background(), ChatRequest{Message: "show my expenses"})
	assert.True(t, resp.Success)
	assert.Equal(t, NotConfiguredMessage, resp.Message)
}

func TestChatService_PlainReply(t *testing.T) {
	ctrl := gomock.NewController(t)
	completer := NewMockCompleter(ctrl)

	completer.EXPECT().
		Complete(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, messages []llm.Message, tools []llm.Tool) (*llm.Message, error) {
			require.Len(t, messages, 4)
			assert.Equal(t, llm.RoleSystem, messages[0].Role)
			assert.Equal(t, "earlier question", messages[1].Content)
			assert.Equal(t, "earlier answer", messages[2].Content)
			assert.Equal(t, "hello", messages[3].Content)
			assert.Len(t, tools, 6)

			_, hasDeadline := ctx.Deadline()
			assert.True(t, hasDeadline)

			return &llm.Message{Role: llm.RoleAssistant, Content: "Hi there"}, nil
		})

	svc := NewChatService(completer, newTestDispatcher(&memRepo{}, model.Actors{}), ChatOptions{MaxRounds: 3, RoundTimeout: time.Second}, nil)
	require.True(t, svc.IsConfigured())

	resp := svc.SendMessage(context.Background(), ChatRequest{
		Message: "hello",
		History: []llm.Message{
			{Role: llm.RoleUser, Content: "earlier question"},
			{Role: llm.RoleTool, Content: "dropped"},
			{Role: llm.RoleAssistant, Content: "earlier answer"},
		},
	})
	assert.True(t, resp.Success)
	assert.Equal(t, "Hi there", resp.Message)
	assert.Zero(t, resp.ToolCalls)
}

func TestChatService_ToolRoundTrip(t *testing.T) {
	ctrl := gomock.NewController(t)
	completer := NewMockCompleter(ctrl)
	repo := &memRepo{}

	gomock.InOrder(
		completer.EXPECT().
			Complete(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(&llm.Message{
				Role: llm.RoleAssistant,
				ToolCalls: []llm.ToolCall{
					toolCall("call_1", ToolCreateExpense, `{"amount": 12.5, "category_id": 1, "expense_date": "2024-02-10"}`),
				},
			}, nil),
		completer.EXPECT().
			Complete(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(ctx context.Context, messages []llm.Message, tools []llm.Tool) (*llm.Message, error) {
				last := messages[len(messages)-1]
				assert.Equal(t, llm.RoleTool, last.Role)
				assert.Equal(t, "call_1", last.ToolCallID)
				assert.Contains(t, last.Content, `"expense_id":1`)

				prev := messages[len(messages)-2]
				assert.Equal(t, llm.RoleAssistant, prev.Role)
				require.Len(t, prev.ToolCalls, 1)

				return &llm.Message{Role: llm.RoleAssistant, Content: "Created expense 1 for £12.50."}, nil
			}),
	)

	svc := NewChatService(completer, newTestDispatcher(repo, model.Actors{SubmitterID: 1}), ChatOptions{MaxRounds: 3}, nil)

	resp := svc.SendMessage(context.Background(), ChatRequest{Message: "add £12.50 travel on 10 Feb", ActorID: 5})
	assert.True(t, resp.Success)
	assert.Equal(t, "Created expense 1 for £12.50.", resp.Message)
	assert.Equal(t, 1, resp.ToolCalls)

	require.Len(t, repo.expenses, 1)
	assert.Equal(t, int64(5), repo.expenses[0].UserID)
	assert.Equal(t, int64(1250), repo.expenses[0].AmountMinor)
}

func TestChatService_StopsAfterMaxRounds(t *testing.T) {
	ctrl := gomock.NewController(t)
	completer := NewMockCompleter(ctrl)

	completer.EXPECT().
		Complete(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(&llm.Message{
			Role:      llm.RoleAssistant,
			ToolCalls: []llm.ToolCall{toolCall("call", ToolGetCategories, `{}`)},
		}, nil).
		Times(3)

	svc := NewChatService(completer, newTestDispatcher(&memRepo{}, model.Actors{}), ChatOptions{MaxRounds: 2}, nil)

	resp := svc.SendMessage(context.Background(), ChatRequest{Message: "loop forever"})
	assert.False(t, resp.Success)
	assert.Equal(t, TooManyRoundsMessage, resp.Message)
	assert.Equal(t, 2, resp.ToolCalls)
}

func TestChatService_ModelError(t *testing.T) {
	ctrl := gomock.NewController(t)
	completer := NewMockCompleter(ctrl)

	completer.EXPECT().
		Complete(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, errors.New("unexpected status: 500"))

	svc := NewChatService(completer, newTestDispatcher(&memRepo{}, model.Actors{}), ChatOptions{}, nil)

	resp := svc.SendMessage(context.Background(), ChatRequest{Message: "hi"})
	assert.False(t, resp.Success)
	assert.Equal(t, ErrorMessage, resp.Message)
	assert.Equal(t, "unexpected status: 500", resp.Error)
}

func TestChatService_EmptyReply(t *testing.T) {
	ctrl := gomock.NewController(t)
	completer := NewMockCompleter(ctrl)

	completer.EXPECT().
		Complete(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(&llm.Message{Role: llm.RoleAssistant, Content: "  "}, nil)

	svc := NewChatService(completer, newTestDispatcher(&memRepo{}, model.Actors{}), ChatOptions{}, nil)

	resp := svc.SendMessage(context.Background(), ChatRequest{Message: "hi"})
	assert.True(t, resp.Success)
	assert.Equal(t, EmptyReplyMessage, resp.Message)
}
