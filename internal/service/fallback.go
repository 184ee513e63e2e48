package service

import (
	"strings"
	"time"

	"github.com/mmeshcher/expense-system/internal/model"
)

// Резервный набор данных, который возвращается, когда хранилище недоступно.
// Каждый вызов строит новые значения, вызывающий может их изменять.

func sampleExpenses() []model.Expense {
	reviewer := int64(2)
	day := func(y int, m time.Month, d int) time.Time {
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	at := func(t time.Time) *time.Time { return &t }

	return []model.Expense{
		{
			ExpenseID: 1, UserID: 1, UserName: "Alice Example",
			CategoryID: 1, CategoryName: "Travel",
			StatusID: 2, StatusName: model.StatusSubmitted,
			AmountMinor: 12000, Currency: model.DefaultCurrency,
			ExpenseDate: day(2024, time.January, 15), Description: "Taxi to client site",
			SubmittedAt: at(day(2024, time.January, 16)),
			CreatedAt:   day(2024, time.January, 15),
		},
		{
			ExpenseID: 2, UserID: 1, UserName: "Alice Example",
			CategoryID: 2, CategoryName: "Meals",
			StatusID: 2, StatusName: model.StatusSubmitted,
			AmountMinor: 6900, Currency: model.DefaultCurrency,
			ExpenseDate: day(2023, time.October, 1), Description: "Client lunch",
			SubmittedAt: at(day(2023, time.October, 2)),
			CreatedAt:   day(2023, time.October, 1),
		},
		{
			ExpenseID: 3, UserID: 1, UserName: "Alice Example",
			CategoryID: 3, CategoryName: "Supplies",
			StatusID: 3, StatusName: model.StatusApproved,
			AmountMinor: 9950, Currency: model.DefaultCurrency,
			ExpenseDate: day(2023, time.December, 4), Description: "Office supplies",
			SubmittedAt: at(day(2023, time.December, 5)),
			ReviewedBy:  &reviewer, ReviewerName: "Bob Manager",
			ReviewedAt: at(day(2023, time.December, 6)),
			CreatedAt:  day(2023, time.December, 4),
		},
		{
			ExpenseID: 4, UserID: 1, UserName: "Alice Example",
			CategoryID: 1, CategoryName: "Travel",
			StatusID: 3, StatusName: model.StatusApproved,
			AmountMinor: 1920, Currency: model.DefaultCurrency,
			ExpenseDate: day(2023, time.January, 18), Description: "Transport to meeting",
			SubmittedAt: at(day(2023, time.January, 19)),
			ReviewedBy:  &reviewer, ReviewerName: "Bob Manager",
			ReviewedAt: at(day(2023, time.January, 20)),
			CreatedAt:  day(2023, time.January, 18),
		},
	}
}

func samplePendingExpenses() []model.Expense {
	all := sampleExpenses()
	res := make([]model.Expense, 0, len(all))
	for _, e := range all {
		if strings.EqualFold(e.StatusName, model.StatusSubmitted) {
			res = append(res, e)
		}
	}
	return res
}

func sampleExpenseByID(id int64) *model.Expense {
	for _, e := range sampleExpenses() {
		if e.ExpenseID == id {
			return &e
		}
	}
	return nil
}

func sampleCategories() []model.ExpenseCategory {
	return []model.ExpenseCategory{
		{CategoryID: 1, CategoryName: "Travel", IsActive: true},
		{CategoryID: 2, CategoryName: "Meals", IsActive: true},
		{CategoryID: 3, CategoryName: "Supplies", IsActive: true},
		{CategoryID: 4, CategoryName: "Accommodation", IsActive: true},
		{CategoryID: 5, CategoryName: "Other", IsActive: true},
	}
}

func sampleStatuses() []model.ExpenseStatus {
	return []model.ExpenseStatus{
		{StatusID: 1, StatusName: model.StatusDraft},
		{StatusID: 2, StatusName: model.StatusSubmitted},
		{StatusID: 3, StatusName: model.StatusApproved},
		{StatusID: 4, StatusName: model.StatusRejected},
	}
}

func sampleUsers() []model.User {
	manager := int64(2)
	return []model.User{
		{UserID: 1, UserName: "Alice Example", Email: "alice@example.co.uk", RoleID: 1, RoleName: "Employee", ManagerID: &manager, IsActive: true},
		{UserID: 2, UserName: "Bob Manager", Email: "bob.manager@example.co.uk", RoleID: 2, RoleName: "Manager", IsActive: true},
	}
}

func sampleRoles() []model.Role {
	return []model.Role{
		{RoleID: 1, RoleName: "Employee", Description: "Can submit expenses"},
		{RoleID: 2, RoleName: "Manager", Description: "Can approve or reject submitted expenses"},
	}
}
