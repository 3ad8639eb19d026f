package echoapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/access"
	"github.com/trezcool/escola/core/auth"
	"github.com/trezcool/escola/core/session"
)

type (
	sessionApi struct {
		auth *auth.Service
	}

	RoleRequest struct {
		Role access.Role `json:"role"`
	}

	LoginRequest struct {
		session.Credentials
		Role access.Role `json:"role"`
	}

	PasswordResetRequest struct {
		Email string `json:"email"`
	}

	SessionResponse struct {
		Status    string            `json:"status"`
		Role      access.Role       `json:"role"`
		Identity  *session.Identity `json:"identity,omitempty"`
		Home      string            `json:"home,omitempty"`
		Token     string            `json:"token,omitempty"`
		ExpiresAt *time.Time        `json:"expires_at,omitempty"`
	}
)

func registerSessionAPI(g *echo.Group, authSvc *auth.Service) {
	api := sessionApi{auth: authSvc}

	sg := g.Group("/session")
	sg.GET("", api.retrieve)
	sg.POST("/role", api.setRole)
	sg.POST("/login", api.login)
	sg.POST("/logout", api.logout)
	sg.POST("/refresh", api.refresh)
	sg.POST("/password-reset", api.requestPasswordReset)
	sg.POST("/password-reset/confirm", api.confirmPasswordReset)
}

func newSessionResponse(state session.State, withToken bool) SessionResponse {
	res := SessionResponse{Status: state.Status.String(), Role: state.Role}
	if state.IsAuthenticated() {
		identity := state.Identity
		res.Identity = &identity
		if area, ok := access.HomeArea(state.Role); ok {
			res.Home = "/v1" + area.Path
		}
		if !state.ExpiresAt.IsZero() {
			expires := state.ExpiresAt
			res.ExpiresAt = &expires
		}
		if withToken {
			res.Token = state.Token
		}
	}
	return res
}

func (api *sessionApi) retrieve(ctx echo.Context) error {
	store, ok := storeOf(ctx)
	if !ok {
		return errUnauthorized
	}
	return ctx.JSON(http.StatusOK, newSessionResponse(store.State(), false))
}

func (api *sessionApi) setRole(ctx echo.Context) error {
	store, ok := storeOf(ctx)
	if !ok {
		return errUnauthorized
	}
	var data RoleRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RoleRequest")
	}

	state, err := store.SetRole(ctx.Request().Context(), data.Role)
	if err != nil {
		return err
	}
	if !state.IsAuthenticated() {
		rolesOf(ctx).clearToken()
	}
	return ctx.JSON(http.StatusOK, newSessionResponse(state, false))
}

func (api *sessionApi) login(ctx echo.Context) error {
	store, ok := storeOf(ctx)
	if !ok {
		return errUnauthorized
	}
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}

	roles := rolesOf(ctx)
	roles.elevate = data.Role == access.RoleAdmin
	defer func() { roles.elevate = false }()

	state, err := store.Login(ctx.Request().Context(), data.Credentials, data.Role)
	if err != nil {
		return err
	}
	if state.Token != "" {
		roles.setToken(state.Token, state.ExpiresAt)
	}
	return ctx.JSON(http.StatusOK, newSessionResponse(state, true))
}

func (api *sessionApi) logout(ctx echo.Context) error {
	store, ok := storeOf(ctx)
	if !ok {
		return errUnauthorized
	}
	rolesOf(ctx).clearToken()
	if err := store.Logout(ctx.Request().Context()); err != nil {
		return errors.Wrap(err, "logging out")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *sessionApi) refresh(ctx echo.Context) error {
	token := tokenOf(ctx)
	if token == "" {
		return core.ErrSessionExpired
	}
	sess, err := api.auth.Refresh(ctx.Request().Context(), token)
	if err != nil {
		return err
	}
	rolesOf(ctx).setToken(sess.Token, sess.ExpiresAt)
	return ctx.JSON(http.StatusOK, newSessionResponse(session.State{
		Status:    session.Authenticated,
		Role:      sess.Role,
		Identity:  session.Identity{UserID: sess.UserID, Email: sess.Email},
		Token:     sess.Token,
		ExpiresAt: sess.ExpiresAt,
	}, true))
}

func (api *sessionApi) requestPasswordReset(ctx echo.Context) error {
	var data PasswordResetRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasswordResetRequest")
	}
	if err := api.auth.RequestPasswordReset(ctx.Request().Context(), data.Email); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusAccepted)
}

func (api *sessionApi) confirmPasswordReset(ctx echo.Context) error {
	var data auth.PasswordResetConfirm
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasswordResetConfirm")
	}
	if err := api.auth.ConfirmPasswordReset(ctx.Request().Context(), data); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}
