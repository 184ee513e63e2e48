// Package assistant связывает языковую модель с операциями над заявками.
package assistant

import "github.com/mmeshcher/expense-system/internal/llm"

// Имена функций, доступных модели.
const (
	ToolGetExpenses        = "get_expenses"
	ToolGetPendingExpenses = "get_pending_expenses"
	ToolGetCategories      = "get_categories"
	ToolCreateExpense      = "create_expense"
	ToolApproveExpense     = "approve_expense"
	ToolRejectExpense      = "reject_expense"
)

const systemPrompt = `You are an AI assistant for the Expense Management System. You can help users with:

1. **Viewing Expenses**: List all expenses, filter by category or status, or search for specific expenses.
2. **Creating Expenses**: Help users submit new expense claims with amount, date, category, and description.
3. **Approving/Rejecting Expenses**: Managers can approve or reject submitted expenses.
4. **Understanding the System**: Explain how expense management works, statuses, categories, etc.

Available functions:
- get_expenses: Retrieve list of expenses, optionally filtered by category or status
- get_pending_expenses: Get expenses awaiting approval
- get_categories: Get available expense categories
- create_expense: Create a new expense claim as a draft
- approve_expense: Approve a pending expense (managers only)
- reject_expense: Reject a pending expense (managers only)

If a function result contains "sample_data": true, tell the user the database is unavailable and the data shown is sample data.

When displaying lists of expenses, format them nicely with:
- Clear headers
- Amounts in GBP format (£X.XX)
- Dates in readable format
- Status clearly indicated

Be helpful, concise, and guide users through the expense management process.`

func object(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func prop(typ, description string) map[string]any {
	return map[string]any{"type": typ, "description": description}
}

func function(name, description string, parameters map[string]any) llm.Tool {
	return llm.Tool{
		Type: "function",
		Function: llm.FunctionDef{
			Name:        name,
			Description: description,
			Parameters:  parameters,
		},
	}
}

// Tools возвращает каталог функций для модели.
func Tools() []llm.Tool {
	return []llm.Tool{
		function(ToolGetExpenses, "Retrieves a list of expenses. Can be filtered by category or status.",
			object(map[string]any{
				"category": prop("string", "Filter by category name (e.g., Travel, Meals, Supplies)"),
				"status":   prop("string", "Filter by status (Draft, Submitted, Approved, Rejected)"),
			})),
		function(ToolGetPendingExpenses, "Retrieves all expenses that are pending approval (status = Submitted).",
			object(map[string]any{})),
		function(ToolGetCategories, "Retrieves all available expense categories.",
			object(map[string]any{})),
		function(ToolCreateExpense, "Creates a new expense claim.",
			object(map[string]any{
				"amount":       prop("number", "Amount in GBP (e.g., 25.50)"),
				"category_id":  prop("integer", "Category ID (1=Travel, 2=Meals, 3=Supplies, 4=Accommodation, 5=Other)"),
				"expense_date": prop("string", "Date of expense in YYYY-MM-DD format"),
				"description":  prop("string", "Description of the expense"),
			}, "amount", "category_id", "expense_date")),
		function(ToolApproveExpense, "Approves a pending expense. Only managers can approve expenses.",
			object(map[string]any{
				"expense_id": prop("integer", "ID of the expense to approve"),
			}, "expense_id")),
		function(ToolRejectExpense, "Rejects a pending expense. Only managers can reject expenses.",
			object(map[string]any{
				"expense_id": prop("integer", "ID of the expense to reject"),
			}, "expense_id")),
	}
}
