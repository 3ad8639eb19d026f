package billing

import (
	"io"
	"path"
	"strings"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/escola/core"
)

type Status string

// Statuses
const (
	StatusPending Status = "a_vencer"
	StatusPaid    Status = "pago"
	StatusOverdue Status = "vencido"
)

var Statuses = []Status{StatusPending, StatusPaid, StatusOverdue}

func (s Status) Valid() bool {
	for _, st := range Statuses {
		if s == st {
			return true
		}
	}
	return false
}

// Boleto is a tuition invoice of a guardian.
type Boleto struct {
	ID         string      `json:"id" db:"id"`
	GuardianID string      `json:"guardian_id" db:"guardian_id"`
	Amount     core.Money  `json:"amount" db:"amount_cents"`
	DueDate    core.Date   `json:"due_date" db:"due_date"`
	Status     Status      `json:"status" db:"status"`
	FilePath   null.String `json:"file_path" db:"file_path"`
	CreatedAt  time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at" db:"updated_at"`
}

func (b Boleto) HasAttachment() bool { return b.FilePath.Valid && b.FilePath.String != "" }

type NewBoleto struct {
	GuardianID string     `json:"guardian_id" form:"guardian_id" validate:"required"`
	Amount     core.Money `json:"amount" validate:"gt=0"`
	DueDate    core.Date  `json:"due_date"`
}

func (nb *NewBoleto) Clean() {
	nb.GuardianID = core.CleanString(nb.GuardianID)
}

// Attachment is the file of a boleto, as uploaded.
type Attachment struct {
	Filename    string
	ContentType string
	Size        int64
	Content     io.Reader
}

func (a Attachment) Ext() string {
	return strings.ToLower(path.Ext(a.Filename))
}

type Filter struct {
	GuardianID string `query:"guardian_id"`
	Status     Status `query:"status"`
	Year       int    `query:"year"`
	Month      int    `query:"month"`
	Orderings  []core.DBOrdering
}

func (f *Filter) Clean() {
	f.GuardianID = core.CleanString(f.GuardianID)
	f.Status = Status(core.CleanString(string(f.Status), true /* lower */))
}

// Matches reports whether `b` passes the filter, for stores that cannot query.
func (f Filter) Matches(b Boleto) bool {
	if f.GuardianID != "" && b.GuardianID != f.GuardianID {
		return false
	}
	if f.Status != "" && b.Status != f.Status {
		return false
	}
	if f.Year != 0 && b.DueDate.Year() != f.Year {
		return false
	}
	if f.Month != 0 && int(b.DueDate.Month()) != f.Month {
		return false
	}
	return true
}

// OrderFields are the columns a boleto list may be ordered by.
var OrderFields = map[string]bool{
	"due_date":   true,
	"amount":     true,
	"status":     true,
	"created_at": true,
}

var defaultOrdering = []core.DBOrdering{{Field: "due_date", Ascending: false}}

type BatchResult struct {
	Created int      `json:"created"`
	Skipped int      `json:"skipped"`
	Boletos []Boleto `json:"boletos"`
}

type SummaryRow struct {
	Status Status     `json:"status" db:"status"`
	Count  int        `json:"count" db:"count"`
	Total  core.Money `json:"total" db:"total_cents"`
}
