package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/directory"
)

type directoryApi struct {
	dir *directory.Service
}

func registerDirectoryAPI(admin, teacher, guardian *echo.Group, dir *directory.Service) {
	api := directoryApi{dir: dir}

	// admin: full registry
	admin.GET("/guardians", api.listGuardians)
	admin.POST("/guardians", api.createGuardian)
	admin.GET("/guardians/:id", api.retrieveGuardian)
	admin.PUT("/guardians/:id", api.updateGuardian)
	admin.DELETE("/guardians/:id", api.destroyGuardian)

	admin.GET("/students", api.listStudents)
	admin.POST("/students", api.createStudent)
	admin.GET("/students/:id", api.retrieveStudent)
	admin.PUT("/students/:id", api.updateStudent)
	admin.DELETE("/students/:id", api.destroyStudent)

	admin.GET("/teachers", api.listTeachers)
	admin.POST("/teachers", api.createTeacher)
	admin.GET("/teachers/:id", api.retrieveTeacher)
	admin.PUT("/teachers/:id", api.updateTeacher)
	admin.DELETE("/teachers/:id", api.destroyTeacher)

	for path, kind := range map[string]directory.Kind{"/classes": directory.KindClass, "/disciplines": directory.KindDiscipline} {
		admin.GET(path, api.listEntries(kind))
		admin.POST(path, api.createEntry(kind))
		admin.GET(path+"/:id", api.retrieveEntry(kind))
		admin.PUT(path+"/:id", api.updateEntry(kind))
		admin.DELETE(path+"/:id", api.destroyEntry(kind))

		teacher.GET(path, api.listEntries(kind))
		guardian.GET(path, api.listEntries(kind))
	}

	// teacher: read-only roster
	teacher.GET("/students", api.listStudents)
	teacher.GET("/students/:id", api.retrieveStudent)

	// guardian: own students only
	guardian.GET("/students", api.listOwnStudents)
	guardian.GET("/students/:id", api.retrieveOwnStudent)
}

// Guardians

func (api *directoryApi) listGuardians(ctx echo.Context) error {
	guardians, err := api.dir.ListGuardians(ctx.Request().Context())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, guardians)
}

func (api *directoryApi) retrieveGuardian(ctx echo.Context) error {
	g, err := api.dir.GetGuardian(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, g)
}

func (api *directoryApi) createGuardian(ctx echo.Context) error {
	var data directory.NewGuardian
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewGuardian")
	}
	g, err := api.dir.CreateGuardian(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, g)
}

func (api *directoryApi) updateGuardian(ctx echo.Context) error {
	var data directory.UpdateGuardian
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateGuardian")
	}
	g, err := api.dir.UpdateGuardian(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, g)
}

func (api *directoryApi) destroyGuardian(ctx echo.Context) error {
	if err := api.dir.DeleteGuardian(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Students

func (api *directoryApi) listStudents(ctx echo.Context) error {
	var filter directory.StudentFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to StudentFilter")
	}
	students, err := api.dir.ListStudents(ctx.Request().Context(), filter)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *directoryApi) listOwnStudents(ctx echo.Context) error {
	students, err := api.dir.ListStudents(
		ctx.Request().Context(),
		directory.StudentFilter{GuardianID: viewerOf(ctx).UserID},
	)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *directoryApi) retrieveStudent(ctx echo.Context) error {
	s, err := api.dir.GetStudent(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *directoryApi) retrieveOwnStudent(ctx echo.Context) error {
	id := ctx.Param("id")
	s, err := api.dir.GetStudent(ctx.Request().Context(), id)
	if err != nil {
		return err
	}
	if !s.GuardianID.Valid || s.GuardianID.String != viewerOf(ctx).UserID {
		return core.NewNotFoundError("student", id)
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *directoryApi) createStudent(ctx echo.Context) error {
	var data directory.NewStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}
	s, err := api.dir.CreateStudent(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, s)
}

func (api *directoryApi) updateStudent(ctx echo.Context) error {
	var data directory.UpdateStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStudent")
	}
	s, err := api.dir.UpdateStudent(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *directoryApi) destroyStudent(ctx echo.Context) error {
	if err := api.dir.DeleteStudent(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Teachers

func (api *directoryApi) listTeachers(ctx echo.Context) error {
	teachers, err := api.dir.ListTeachers(ctx.Request().Context())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, teachers)
}

func (api *directoryApi) retrieveTeacher(ctx echo.Context) error {
	t, err := api.dir.GetTeacher(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *directoryApi) createTeacher(ctx echo.Context) error {
	var data directory.NewTeacher
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTeacher")
	}
	t, err := api.dir.CreateTeacher(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, t)
}

func (api *directoryApi) updateTeacher(ctx echo.Context) error {
	var data directory.UpdateTeacher
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateTeacher")
	}
	t, err := api.dir.UpdateTeacher(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *directoryApi) destroyTeacher(ctx echo.Context) error {
	if err := api.dir.DeleteTeacher(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Catalog

func (api *directoryApi) listEntries(kind directory.Kind) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		entries, err := api.dir.ListEntries(ctx.Request().Context(), kind)
		if err != nil {
			return err
		}
		return ctx.JSON(http.StatusOK, entries)
	}
}

func (api *directoryApi) retrieveEntry(kind directory.Kind) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		e, err := api.dir.GetEntry(ctx.Request().Context(), kind, ctx.Param("id"))
		if err != nil {
			return err
		}
		return ctx.JSON(http.StatusOK, e)
	}
}

func (api *directoryApi) createEntry(kind directory.Kind) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		var data directory.EntryInput
		if err := ctx.Bind(&data); err != nil {
			return errors.Wrap(err, "binding to EntryInput")
		}
		e, err := api.dir.CreateEntry(ctx.Request().Context(), kind, data)
		if err != nil {
			return err
		}
		return ctx.JSON(http.StatusCreated, e)
	}
}

func (api *directoryApi) updateEntry(kind directory.Kind) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		var data directory.EntryInput
		if err := ctx.Bind(&data); err != nil {
			return errors.Wrap(err, "binding to EntryInput")
		}
		e, err := api.dir.UpdateEntry(ctx.Request().Context(), kind, ctx.Param("id"), data)
		if err != nil {
			return err
		}
		return ctx.JSON(http.StatusOK, e)
	}
}

func (api *directoryApi) destroyEntry(kind directory.Kind) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if err := api.dir.DeleteEntry(ctx.Request().Context(), kind, ctx.Param("id")); err != nil {
			return err
		}
		return ctx.NoContent(http.StatusNoContent)
	}
}
