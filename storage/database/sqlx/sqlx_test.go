//go:build integration
// +build integration

package sqlxrepos_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/access"
	"github.com/trezcool/escola/core/auth"
	"github.com/trezcool/escola/core/billing"
	"github.com/trezcool/escola/core/directory"
	"github.com/trezcool/escola/core/feed"
	"github.com/trezcool/escola/core/grade"
	sqlxrepos "github.com/trezcool/escola/storage/database/sqlx"
	"github.com/trezcool/escola/storage/database/testdb"
)

var (
	handle *testdb.DBHandle
	now    = time.Date(2024, time.July, 1, 8, 0, 0, 0, time.UTC)
)

func TestMain(m *testing.M) {
	var err error
	handle, err = testdb.Start(context.Background())
	if err != nil {
		fmt.Println("starting test database:", err)
		os.Exit(1)
	}
	code := m.Run()
	handle.Close()
	os.Exit(code)
}

func reset(t *testing.T) context.Context {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, handle.Truncate(ctx))
	return ctx
}

func seedGuardian(t *testing.T, ctx context.Context, repo directory.Repository, email string, day int) directory.Guardian {
	t.Helper()
	g, err := repo.CreateGuardian(ctx, directory.Guardian{
		ID: uuid.NewString(), Name: email, Email: email, DueDateDay: day, CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)
	return g
}

func seedEntry(t *testing.T, ctx context.Context, repo directory.Repository, kind directory.Kind, name string) directory.Entry {
	t.Helper()
	e, err := repo.CreateEntry(ctx, kind, directory.Entry{ID: uuid.NewString(), Name: name, CreatedAt: now})
	require.NoError(t, err)
	return e
}

func TestDirectoryRepository(t *testing.T) {
	ctx := reset(t)
	repo := sqlxrepos.NewDirectoryRepository(handle.DB)

	ana := seedGuardian(t, ctx, repo, "ana@test.com", 10)
	_, err := repo.CreateGuardian(ctx, directory.Guardian{
		ID: uuid.NewString(), Name: "Other", Email: "ana@test.com", DueDateDay: 5, CreatedAt: now, UpdatedAt: now,
	})
	assert.Equal(t, directory.ErrEmailExists, err)

	leo, err := repo.CreateStudent(ctx, directory.Student{
		ID: uuid.NewString(), Name: "Leo", GuardianID: null.StringFrom(ana.ID), Class: "5A", CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)
	_, err = repo.CreateStudent(ctx, directory.Student{
		ID: uuid.NewString(), Name: "Orphan", Class: "6B", CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)

	students, err := repo.QueryStudents(ctx, directory.StudentFilter{GuardianID: ana.ID})
	require.NoError(t, err)
	require.Len(t, students, 1)
	assert.Equal(t, leo.ID, students[0].ID)

	deps, err := repo.GuardianDependents(ctx, ana.ID)
	require.NoError(t, err)
	assert.Equal(t, directory.Dependents{Students: 1}, deps)

	_, err = repo.CreateStudent(ctx, directory.Student{
		ID: uuid.NewString(), Name: "Ghost", GuardianID: null.StringFrom(uuid.NewString()), CreatedAt: now, UpdatedAt: now,
	})
	var vErr *core.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.FieldsMap(), "guardian_id")

	_, err = repo.GetStudent(ctx, uuid.NewString())
	assert.True(t, core.IsNotFound(err))

	require.NoError(t, repo.DeleteStudent(ctx, leo.ID))
	require.NoError(t, repo.DeleteGuardian(ctx, ana.ID))
	assert.True(t, core.IsNotFound(repo.DeleteGuardian(ctx, ana.ID)))
}

func TestDirectoryRepository_Teachers(t *testing.T) {
	ctx := reset(t)
	repo := sqlxrepos.NewDirectoryRepository(handle.DB)

	tc, err := repo.CreateTeacher(ctx, directory.Teacher{
		ID: uuid.NewString(), Name: "Carla", Email: "carla@test.com",
		Subjects: []string{"Math", "Physics"}, CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)

	got, err := repo.GetTeacher(ctx, tc.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Math", "Physics"}, got.Subjects)
	assert.Equal(t, []string{}, got.Classes)

	got.Classes = []string{"5A"}
	_, err = repo.UpdateTeacher(ctx, got)
	require.NoError(t, err)
	teachers, err := repo.QueryTeachers(ctx)
	require.NoError(t, err)
	require.Len(t, teachers, 1)
	assert.Equal(t, []string{"5A"}, teachers[0].Classes)
}

func TestDirectoryRepository_Catalog(t *testing.T) {
	ctx := reset(t)
	repo := sqlxrepos.NewDirectoryRepository(handle.DB)

	seedEntry(t, ctx, repo, directory.KindClass, "6B")
	a := seedEntry(t, ctx, repo, directory.KindClass, "5A")
	seedEntry(t, ctx, repo, directory.KindDiscipline, "5A")

	_, err := repo.CreateEntry(ctx, directory.KindClass, directory.Entry{ID: uuid.NewString(), Name: "5A", CreatedAt: now})
	assert.Equal(t, directory.ErrNameExists, err)

	classes, err := repo.QueryEntries(ctx, directory.KindClass)
	require.NoError(t, err)
	require.Len(t, classes, 2)
	assert.Equal(t, "5A", classes[0].Name)

	a.Name = "5C"
	_, err = repo.UpdateEntry(ctx, directory.KindClass, a)
	require.NoError(t, err)
	got, err := repo.GetEntry(ctx, directory.KindClass, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "5C", got.Name)

	_, err = repo.GetEntry(ctx, directory.KindDiscipline, a.ID)
	assert.True(t, core.IsNotFound(err))
}

func TestGradeRepository_Upsert(t *testing.T) {
	ctx := reset(t)
	dir := sqlxrepos.NewDirectoryRepository(handle.DB)
	repo := sqlxrepos.NewGradeRepository(handle.DB)

	math := seedEntry(t, ctx, dir, directory.KindDiscipline, "Math")
	leo, err := dir.CreateStudent(ctx, directory.Student{ID: uuid.NewString(), Name: "Leo", CreatedAt: now, UpdatedAt: now})
	require.NoError(t, err)

	first, err := repo.UpsertGrade(ctx, grade.Grade{
		ID: uuid.NewString(), StudentID: leo.ID, DisciplineID: math.ID, Unit: 1, Grade: null.Float64From(7.5), UpdatedAt: now,
	})
	require.NoError(t, err)
	second, err := repo.UpsertGrade(ctx, grade.Grade{
		ID: uuid.NewString(), StudentID: leo.ID, DisciplineID: math.ID, Unit: 1, UpdatedAt: now.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.False(t, second.Grade.Valid)

	_, err = repo.UpsertGrade(ctx, grade.Grade{
		ID: uuid.NewString(), StudentID: leo.ID, DisciplineID: math.ID, Unit: 2, Grade: null.Float64From(9), UpdatedAt: now,
	})
	require.NoError(t, err)

	grades, err := repo.QueryGrades(ctx, grade.Filter{StudentIDs: []string{leo.ID}})
	require.NoError(t, err)
	require.Len(t, grades, 2)
	assert.Equal(t, 1, grades[0].Unit)
	assert.Equal(t, 9.0, grades[1].Grade.Float64)

	got, err := repo.GetGrade(ctx, grade.Key{StudentID: leo.ID, DisciplineID: math.ID, Unit: 2})
	require.NoError(t, err)
	got.Grade = null.Float64From(10)
	_, err = repo.UpdateGrade(ctx, got)
	require.NoError(t, err)

	_, err = repo.GetGrade(ctx, grade.Key{StudentID: leo.ID, DisciplineID: math.ID, Unit: 3})
	assert.True(t, core.IsNotFound(err))
}

func TestBillingRepository(t *testing.T) {
	ctx := reset(t)
	dir := sqlxrepos.NewDirectoryRepository(handle.DB)
	repo := sqlxrepos.NewBillingRepository(handle.DB)

	ana := seedGuardian(t, ctx, dir, "ana@test.com", 10)
	bruno := seedGuardian(t, ctx, dir, "bruno@test.com", 15)
	boleto := func(g directory.Guardian, cents core.Money, due core.Date, st billing.Status) billing.Boleto {
		b, err := repo.CreateBoleto(ctx, billing.Boleto{
			ID: uuid.NewString(), GuardianID: g.ID, Amount: cents, DueDate: due, Status: st, CreatedAt: now, UpdatedAt: now,
		})
		require.NoError(t, err)
		return b
	}
	b1 := boleto(ana, 55000, core.NewDate(2024, time.June, 10), billing.StatusPending)
	boleto(ana, 55000, core.NewDate(2024, time.July, 10), billing.StatusPending)
	boleto(bruno, 30000, core.NewDate(2024, time.June, 15), billing.StatusPaid)

	rows, err := repo.QueryBoletos(ctx, billing.Filter{
		Year: 2024, Month: 6, Orderings: []core.DBOrdering{{Field: "amount", Ascending: true}},
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, core.Money(30000), rows[0].Amount)
	assert.Equal(t, "2024-06-10", rows[1].DueDate.String())

	billed, err := repo.GuardiansBilledIn(ctx, 2024, time.July)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{ana.ID: true}, billed)

	n, err := repo.MarkOverdue(ctx, core.NewDate(2024, time.July, 1), now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, err := repo.GetBoleto(ctx, b1.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.StatusOverdue, got.Status)

	summary, err := repo.Summarize(ctx, billing.Filter{})
	require.NoError(t, err)
	assert.Equal(t, []billing.SummaryRow{
		{Status: billing.StatusPending, Count: 1, Total: 55000},
		{Status: billing.StatusPaid, Count: 1, Total: 30000},
		{Status: billing.StatusOverdue, Count: 1, Total: 55000},
	}, summary)

	updated, err := repo.UpdateBoletoStatus(ctx, b1.ID, billing.StatusPaid, now)
	require.NoError(t, err)
	assert.Equal(t, billing.StatusPaid, updated.Status)
	_, err = repo.UpdateBoletoStatus(ctx, uuid.NewString(), billing.StatusPaid, now)
	assert.True(t, core.IsNotFound(err))

	deps, err := dir.GuardianDependents(ctx, ana.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, deps.Boletos)

	require.NoError(t, repo.DeleteBoleto(ctx, b1.ID))
	assert.True(t, core.IsNotFound(repo.DeleteBoleto(ctx, b1.ID)))
}

func TestFeedRepository(t *testing.T) {
	ctx := reset(t)
	dir := sqlxrepos.NewDirectoryRepository(handle.DB)
	repo := sqlxrepos.NewFeedRepository(handle.DB)

	c5a := seedEntry(t, ctx, dir, directory.KindClass, "5A")
	c6b := seedEntry(t, ctx, dir, directory.KindClass, "6B")
	math := seedEntry(t, ctx, dir, directory.KindDiscipline, "Math")

	for _, c := range []directory.Entry{c5a, c6b} {
		_, err := repo.CreateActivity(ctx, feed.Activity{
			ID: uuid.NewString(), ClassID: c.ID, DisciplineID: math.ID, Description: "Homework " + c.Name,
			DueDate: core.NewDate(2024, time.July, 5), CreatedAt: now, UpdatedAt: now,
		})
		require.NoError(t, err)
	}

	scoped, err := repo.QueryActivities(ctx, feed.ActivityFilter{ClassIDs: []string{c5a.ID}})
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, c5a.ID, scoped[0].ClassID)

	none, err := repo.QueryActivities(ctx, feed.ActivityFilter{ClassIDs: []string{}})
	require.NoError(t, err)
	assert.Empty(t, none)

	all, err := repo.QueryActivities(ctx, feed.ActivityFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = repo.CreateActivity(ctx, feed.Activity{
		ID: uuid.NewString(), ClassID: uuid.NewString(), DisciplineID: math.ID, Description: "x",
		DueDate: core.NewDate(2024, time.July, 5), CreatedAt: now, UpdatedAt: now,
	})
	var vErr *core.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.FieldsMap(), "class_id")

	for _, e := range []feed.CalendarEvent{
		{Title: "Exam", Date: core.NewDate(2024, time.July, 20), Type: feed.EventExam},
		{Title: "Holiday", Date: core.NewDate(2024, time.September, 7), Type: feed.EventHoliday},
	} {
		e.ID, e.CreatedAt, e.UpdatedAt = uuid.NewString(), now, now
		_, err := repo.CreateEvent(ctx, e)
		require.NoError(t, err)
	}
	events, err := repo.QueryEvents(ctx, feed.EventFilter{
		From: core.NewDate(2024, time.July, 1), To: core.NewDate(2024, time.July, 31),
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Exam", events[0].Title)
	assert.Equal(t, "2024-07-20", events[0].Date.String())
}

func TestAuthRepository(t *testing.T) {
	ctx := reset(t)
	repo := sqlxrepos.NewAuthRepository(handle.DB)

	acc := auth.Account{
		ID: uuid.NewString(), Email: "ana@test.com", Role: access.RoleGuardian, IsActive: true, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, acc.SetPassword("Str0ng!pass"))
	_, err := repo.CreateAccount(ctx, acc)
	require.NoError(t, err)

	dup := acc
	dup.ID = uuid.NewString()
	_, err = repo.CreateAccount(ctx, dup)
	assert.Equal(t, auth.ErrEmailExists, err)

	got, err := repo.GetAccountByEmail(ctx, "ana@test.com")
	require.NoError(t, err)
	assert.NoError(t, got.CheckPassword("Str0ng!pass"))
	assert.False(t, got.LastLogin.Valid)

	for i := 0; i < 2; i++ {
		require.NoError(t, repo.CreateSession(ctx, auth.SessionRecord{
			ID: fmt.Sprintf("00000000-0000-0000-0000-00000000000%d", i+1), AccountID: acc.ID,
			CreatedAt: now, ExpiresAt: now.Add(time.Hour), RefreshUntil: now.Add(24 * time.Hour),
		}))
	}
	require.NoError(t, repo.RevokeSession(ctx, "00000000-0000-0000-0000-000000000001", now))
	s1, err := repo.GetSession(ctx, "00000000-0000-0000-0000-000000000001")
	require.NoError(t, err)
	assert.True(t, s1.Revoked())

	require.NoError(t, repo.RevokeAccountSessions(ctx, acc.ID, now.Add(time.Minute)))
	s2, err := repo.GetSession(ctx, "00000000-0000-0000-0000-000000000002")
	require.NoError(t, err)
	assert.True(t, s2.Revoked())
	s1, err = repo.GetSession(ctx, "00000000-0000-0000-0000-000000000001")
	require.NoError(t, err)
	assert.True(t, s1.RevokedAt.Time.Equal(now))

	require.NoError(t, repo.DeleteAccount(ctx, acc.ID))
	_, err = repo.GetSession(ctx, "00000000-0000-0000-0000-000000000002")
	assert.True(t, core.IsNotFound(err))
}
