package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/billing"
)

type billingRepository struct {
	db *DB
}

var _ billing.Repository = (*billingRepository)(nil)

func NewBillingRepository(db *DB) billing.Repository {
	return &billingRepository{db: db}
}

func (repo *billingRepository) QueryBoletos(_ context.Context, filter billing.Filter) ([]billing.Boleto, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	rows := make([]billing.Boleto, 0)
	for _, b := range repo.db.boletos {
		if filter.Matches(b) {
			rows = append(rows, b)
		}
	}
	sortBoletos(rows, filter.Orderings)
	return rows, nil
}

func sortBoletos(rows []billing.Boleto, orderings []core.DBOrdering) {
	less := func(a, b billing.Boleto, field string) (bool, bool) { // less, equal
		switch field {
		case "amount":
			return a.Amount < b.Amount, a.Amount == b.Amount
		case "status":
			return a.Status < b.Status, a.Status == b.Status
		case "created_at":
			return a.CreatedAt.Before(b.CreatedAt), a.CreatedAt.Equal(b.CreatedAt)
		default:
			return a.DueDate.Before(b.DueDate), a.DueDate.Equal(b.DueDate)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, o := range orderings {
			lt, eq := less(rows[i], rows[j], o.Field)
			if eq {
				continue
			}
			if o.Ascending {
				return lt
			}
			return !lt
		}
		return rows[i].ID < rows[j].ID
	})
}

func (repo *billingRepository) GetBoleto(_ context.Context, id string) (billing.Boleto, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	b, ok := repo.db.boletos[id]
	if !ok {
		return billing.Boleto{}, core.NewNotFoundError("boleto", id)
	}
	return b, nil
}

func (repo *billingRepository) CreateBoleto(_ context.Context, b billing.Boleto) (billing.Boleto, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	repo.db.boletos[b.ID] = b
	return b, nil
}

func (repo *billingRepository) UpdateBoletoStatus(_ context.Context, id string, status billing.Status, updatedAt time.Time) (billing.Boleto, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	b, ok := repo.db.boletos[id]
	if !ok {
		return billing.Boleto{}, core.NewNotFoundError("boleto", id)
	}
	b.Status = status
	b.UpdatedAt = updatedAt
	repo.db.boletos[id] = b
	return b, nil
}

func (repo *billingRepository) DeleteBoleto(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	if _, ok := repo.db.boletos[id]; !ok {
		return core.NewNotFoundError("boleto", id)
	}
	delete(repo.db.boletos, id)
	return nil
}

func (repo *billingRepository) GuardiansBilledIn(_ context.Context, year int, month time.Month) (map[string]bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	ids := make(map[string]bool)
	for _, b := range repo.db.boletos {
		if b.DueDate.Year() == year && b.DueDate.Month() == month {
			ids[b.GuardianID] = true
		}
	}
	return ids, nil
}

func (repo *billingRepository) MarkOverdue(_ context.Context, asOf core.Date, updatedAt time.Time) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	var n int
	for id, b := range repo.db.boletos {
		if b.Status == billing.StatusPending && b.DueDate.Before(asOf) {
			b.Status = billing.StatusOverdue
			b.UpdatedAt = updatedAt
			repo.db.boletos[id] = b
			n++
		}
	}
	return n, nil
}

func (repo *billingRepository) Summarize(_ context.Context, filter billing.Filter) ([]billing.SummaryRow, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	byStatus := make(map[billing.Status]*billing.SummaryRow)
	for _, b := range repo.db.boletos {
		if !filter.Matches(b) {
			continue
		}
		row, ok := byStatus[b.Status]
		if !ok {
			row = &billing.SummaryRow{Status: b.Status}
			byStatus[b.Status] = row
		}
		row.Count++
		row.Total += b.Amount
	}
	rows := make([]billing.SummaryRow, 0, len(byStatus))
	for _, st := range billing.Statuses {
		if row, ok := byStatus[st]; ok {
			rows = append(rows, *row)
		}
	}
	return rows, nil
}
