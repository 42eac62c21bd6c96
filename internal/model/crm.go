package model

import "time"

type Client struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Company   string    `json:"company"`
	Status    string    `json:"status"` // active | inactive | pending
	CreatedAt time.Time `json:"created_at"`
}

type Lead struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Company   string    `json:"company"`
	Status    string    `json:"status"` // new | contacted | qualified | proposal | negotiation | won | lost
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Status      string    `json:"status"` // planning | active | on_hold | completed
	ClientID    string    `json:"client_id"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	Budget      float64   `json:"budget"`
	CreatedAt   time.Time `json:"created_at"`
}

type Task struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"`   // todo | in_progress | in_review | completed
	Priority    string    `json:"priority"` // low | medium | high | urgent
	AssignedTo  string    `json:"assigned_to"`
	CreatedBy   string    `json:"created_by"`
	DueDate     time.Time `json:"due_date"`
	ProjectID   string    `json:"project_id"`
	CreatedAt   time.Time `json:"created_at"`
}

type Ticket struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"`   // open | in_progress | pending | resolved | closed
	Priority    string    `json:"priority"` // low | medium | high | urgent
	CreatedBy   string    `json:"created_by"`
	AssignedTo  string    `json:"assigned_to"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Document struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	FileType  string    `json:"file_type"`
	FileSize  int64     `json:"file_size"`
	URL       string    `json:"url"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

type CalendarEvent struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	StartsAt    time.Time `json:"starts_at"`
	EndsAt      time.Time `json:"ends_at"`
	AllDay      bool      `json:"all_day"`
	UserID      string    `json:"user_id"`
	CreatedAt   time.Time `json:"created_at"`
}

type Intern struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone"`
	University string    `json:"university"`
	Department string    `json:"department"`
	StartDate  time.Time `json:"start_date"`
	EndDate    time.Time `json:"end_date"`
	Status     string    `json:"status"` // active | completed | terminated
	CreatedAt  time.Time `json:"created_at"`
}

type Attendance struct {
	ID       string     `json:"id"`
	UserID   string     `json:"user_id"`
	Date     time.Time  `json:"date"`
	CheckIn  time.Time  `json:"check_in"`
	CheckOut *time.Time `json:"check_out,omitempty"`
	Status   string     `json:"status"` // present | absent | late | half_day
}

// Transaction — финансовая операция (доход или расход).
type Transaction struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"` // income | expense
	Amount      float64   `json:"amount"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	ProjectID   string    `json:"project_id,omitempty"`
	CreatedBy   string    `json:"created_by"`
	OccurredAt  time.Time `json:"occurred_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// FinanceSummary — агрегат по операциям за период.
type FinanceSummary struct {
	Income  float64 `json:"income"`
	Expense float64 `json:"expense"`
	Balance float64 `json:"balance"`
}
