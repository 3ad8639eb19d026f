package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/auth"
	"github.com/trezcool/escola/core/directory"
)

// postgres error codes
const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

var (
	// uniqueErrors maps unique constraints to the error reported when they are violated.
	uniqueErrors = map[string]error{
		"guardians_email_key":  directory.ErrEmailExists,
		"teachers_email_key":   directory.ErrEmailExists,
		"classes_name_key":     directory.ErrNameExists,
		"disciplines_name_key": directory.ErrNameExists,
		"accounts_email_key":   auth.ErrEmailExists,
	}

	// foreignKeyFields maps foreign keys to the field they are set from.
	foreignKeyFields = map[string]string{
		"students_guardian_id_fkey":     "guardian_id",
		"grades_student_id_fkey":        "student_id",
		"grades_discipline_id_fkey":     "discipline_id",
		"boletos_guardian_id_fkey":      "guardian_id",
		"activities_class_id_fkey":      "class_id",
		"activities_discipline_id_fkey": "discipline_id",
		"sessions_account_id_fkey":      "account_id",
	}
)

// wrap converts a driver error into a core error.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case uniqueViolation:
			if uErr, ok := uniqueErrors[pqErr.Constraint]; ok {
				return uErr
			}
		case foreignKeyViolation:
			field, ok := foreignKeyFields[pqErr.Constraint]
			if !ok {
				field = "id"
			}
			return core.NewValidationError(err, core.FieldError{
				Field: field,
				Error: "the referenced record does not exist or is still in use",
			})
		}
	}
	return core.NewPersistenceError(op, err)
}

func get(ctx context.Context, db core.DBExecutor, dest interface{}, entity, id, query string, args ...interface{}) error {
	err := db.GetContext(ctx, dest, db.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return core.NewNotFoundError(entity, id)
	}
	return wrap("get "+entity, err)
}

// execOne runs a statement that must touch exactly one row.
func execOne(ctx context.Context, db core.DBExecutor, entity, id, query string, args ...interface{}) error {
	res, err := db.ExecContext(ctx, db.Rebind(query), args...)
	if err != nil {
		return wrap("exec "+entity, err)
	}
	return checkAffected(res, entity, id)
}

func namedExecOne(ctx context.Context, db core.DBExecutor, entity, id, query string, arg interface{}) error {
	res, err := db.NamedExecContext(ctx, query, arg)
	if err != nil {
		return wrap("exec "+entity, err)
	}
	return checkAffected(res, entity, id)
}

func checkAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return wrap("exec "+entity, err)
	}
	if n == 0 {
		return core.NewNotFoundError(entity, id)
	}
	return nil
}

// where collects the AND-ed conditions of a query. Conditions use `?` placeholders.
type where struct {
	conds []string
	args  []interface{}
}

func (w *where) add(cond string, arg interface{}) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, arg)
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}
