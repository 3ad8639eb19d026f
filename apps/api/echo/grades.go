package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/escola/core/grade"
)

type gradesApi struct {
	grades *grade.Service
}

func registerGradesAPI(admin, teacher, guardian *echo.Group, grades *grade.Service) {
	api := gradesApi{grades: grades}

	for _, g := range []*echo.Group{admin, teacher} {
		g.GET("/grades", api.list)
		g.PUT("/grades", api.upsert)
		g.GET("/students/:id/grades", api.listForStudent)
		g.GET("/students/:id/report", api.report)
	}

	guardian.GET("/grades", api.list)
	guardian.GET("/students/:id/report", api.report)
}

func (api *gradesApi) list(ctx echo.Context) error {
	var filter grade.Filter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to grade.Filter")
	}
	grades, err := api.grades.ListGrades(ctx.Request().Context(), viewerOf(ctx), filter)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, grades)
}

func (api *gradesApi) listForStudent(ctx echo.Context) error {
	grades, err := api.grades.GetGradesForStudent(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, grades)
}

func (api *gradesApi) report(ctx echo.Context) error {
	report, err := api.grades.Report(ctx.Request().Context(), viewerOf(ctx), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, report)
}

// upsert takes the edited cells of a grade sheet; an empty grade clears the stored one.
func (api *gradesApi) upsert(ctx echo.Context) error {
	var entries []grade.Entry
	if err := ctx.Bind(&entries); err != nil {
		return errors.Wrap(err, "binding to []grade.Entry")
	}
	grades, err := api.grades.UpsertGrades(ctx.Request().Context(), viewerOf(ctx), entries)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, grades)
}
