package sqlxrepos

import (
	"context"
	"strings"
	"time"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/billing"
)

type billingRepository struct {
	db core.DBExecutor
}

var _ billing.Repository = (*billingRepository)(nil)

func NewBillingRepository(db core.DBExecutor) billing.Repository {
	return &billingRepository{db: db}
}

// boletoColumns maps the orderable fields to their columns.
var boletoColumns = map[string]string{
	"due_date":   "due_date",
	"amount":     "amount_cents",
	"status":     "status",
	"created_at": "created_at",
}

func boletoWhere(filter billing.Filter) *where {
	w := new(where)
	if filter.GuardianID != "" {
		w.add("guardian_id = ?", filter.GuardianID)
	}
	if filter.Status != "" {
		w.add("status = ?", filter.Status)
	}
	if filter.Year != 0 {
		w.add("EXTRACT(YEAR FROM due_date) = ?", filter.Year)
	}
	if filter.Month != 0 {
		w.add("EXTRACT(MONTH FROM due_date) = ?", filter.Month)
	}
	return w
}

func boletoOrderBy(orderings []core.DBOrdering) string {
	terms := make([]string, 0, len(orderings)+1)
	for _, o := range orderings {
		col, ok := boletoColumns[o.Field]
		if !ok {
			continue
		}
		terms = append(terms, core.DBOrdering{Field: col, Ascending: o.Ascending}.String())
	}
	terms = append(terms, "id ASC")
	return " ORDER BY " + strings.Join(terms, ", ")
}

func (repo *billingRepository) QueryBoletos(ctx context.Context, filter billing.Filter) ([]billing.Boleto, error) {
	w := boletoWhere(filter)
	rows := make([]billing.Boleto, 0)
	q := "SELECT * FROM boletos" + w.String() + boletoOrderBy(filter.Orderings)
	err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), w.args...)
	return rows, wrap("query boletos", err)
}

func (repo *billingRepository) GetBoleto(ctx context.Context, id string) (billing.Boleto, error) {
	var b billing.Boleto
	err := get(ctx, repo.db, &b, "boleto", id, "SELECT * FROM boletos WHERE id = ?", id)
	return b, err
}

func (repo *billingRepository) CreateBoleto(ctx context.Context, b billing.Boleto) (billing.Boleto, error) {
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO boletos (id, guardian_id, amount_cents, due_date, status, file_path, created_at, updated_at)
		VALUES (:id, :guardian_id, :amount_cents, :due_date, :status, :file_path, :created_at, :updated_at)`, b)
	if err != nil {
		return billing.Boleto{}, wrap("insert boleto", err)
	}
	return b, nil
}

func (repo *billingRepository) UpdateBoletoStatus(ctx context.Context, id string, status billing.Status, updatedAt time.Time) (billing.Boleto, error) {
	var b billing.Boleto
	err := get(ctx, repo.db, &b, "boleto", id,
		"UPDATE boletos SET status = ?, updated_at = ? WHERE id = ? RETURNING *", status, updatedAt, id)
	return b, err
}

func (repo *billingRepository) DeleteBoleto(ctx context.Context, id string) error {
	return execOne(ctx, repo.db, "boleto", id, "DELETE FROM boletos WHERE id = ?", id)
}

func (repo *billingRepository) GuardiansBilledIn(ctx context.Context, year int, month time.Month) (map[string]bool, error) {
	from := core.NewDate(year, month, 1)
	to := core.DateOf(from.AddDate(0, 1, 0))
	var guardianIDs []string
	err := repo.db.SelectContext(ctx, &guardianIDs, repo.db.Rebind(`
		SELECT DISTINCT guardian_id FROM boletos WHERE due_date >= ? AND due_date < ?`), from, to)
	if err != nil {
		return nil, wrap("query billed guardians", err)
	}
	ids := make(map[string]bool, len(guardianIDs))
	for _, id := range guardianIDs {
		ids[id] = true
	}
	return ids, nil
}

func (repo *billingRepository) MarkOverdue(ctx context.Context, asOf core.Date, updatedAt time.Time) (int, error) {
	res, err := repo.db.ExecContext(ctx, repo.db.Rebind(`
		UPDATE boletos SET status = ?, updated_at = ? WHERE status = ? AND due_date < ?`),
		billing.StatusOverdue, updatedAt, billing.StatusPending, asOf)
	if err != nil {
		return 0, wrap("mark overdue boletos", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrap("mark overdue boletos", err)
	}
	return int(n), nil
}

func (repo *billingRepository) Summarize(ctx context.Context, filter billing.Filter) ([]billing.SummaryRow, error) {
	w := boletoWhere(filter)
	var rows []billing.SummaryRow
	q := `SELECT status, count(*) AS count, COALESCE(SUM(amount_cents), 0)::bigint AS total_cents
		FROM boletos` + w.String() + " GROUP BY status"
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), w.args...); err != nil {
		return nil, wrap("summarize boletos", err)
	}
	byStatus := make(map[billing.Status]billing.SummaryRow, len(rows))
	for _, row := range rows {
		byStatus[row.Status] = row
	}
	ordered := make([]billing.SummaryRow, 0, len(rows))
	for _, st := range billing.Statuses {
		if row, ok := byStatus[st]; ok {
			ordered = append(ordered, row)
		}
	}
	return ordered, nil
}
