package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/escola/core/auth"
)

type (
	accountsApi struct {
		auth *auth.Service
	}

	ActiveRequest struct {
		Active bool `json:"active"`
	}

	PasswordRequest struct {
		Password string `json:"password"`
	}
)

func registerAccountsAPI(admin *echo.Group, authSvc *auth.Service) {
	api := accountsApi{auth: authSvc}

	ag := admin.Group("/users")
	ag.GET("", api.list)
	ag.POST("/guardians", api.provisionGuardian)
	ag.POST("/teachers", api.provisionTeacher)
	ag.GET("/:id", api.retrieve)
	ag.PUT("/:id/active", api.setActive)
	ag.PUT("/:id/password", api.setPassword)
	ag.DELETE("/:id", api.destroy)
}

func (api *accountsApi) list(ctx echo.Context) error {
	accounts, err := api.auth.ListAccounts(ctx.Request().Context(), viewerOf(ctx))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, accounts)
}

func (api *accountsApi) retrieve(ctx echo.Context) error {
	acct, err := api.auth.GetAccount(ctx.Request().Context(), viewerOf(ctx), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, acct)
}

func (api *accountsApi) provisionGuardian(ctx echo.Context) error {
	var data auth.NewGuardianAccount
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewGuardianAccount")
	}
	res, err := api.auth.ProvisionGuardian(ctx.Request().Context(), viewerOf(ctx), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, res)
}

func (api *accountsApi) provisionTeacher(ctx echo.Context) error {
	var data auth.NewTeacherAccount
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTeacherAccount")
	}
	teacher, err := api.auth.ProvisionTeacher(ctx.Request().Context(), viewerOf(ctx), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, teacher)
}

func (api *accountsApi) setActive(ctx echo.Context) error {
	var data ActiveRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ActiveRequest")
	}
	acct, err := api.auth.SetActive(ctx.Request().Context(), viewerOf(ctx), ctx.Param("id"), data.Active)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, acct)
}

func (api *accountsApi) setPassword(ctx echo.Context) error {
	var data PasswordRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasswordRequest")
	}
	if err := api.auth.SetPassword(ctx.Request().Context(), viewerOf(ctx), ctx.Param("id"), data.Password); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *accountsApi) destroy(ctx echo.Context) error {
	if err := api.auth.DeleteAccount(ctx.Request().Context(), viewerOf(ctx), ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}
