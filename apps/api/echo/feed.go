package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/escola/core/feed"
)

type feedApi struct {
	feed *feed.Service
}

func registerFeedAPI(admin, teacher, guardian *echo.Group, feedSvc *feed.Service) {
	api := feedApi{feed: feedSvc}

	for _, g := range []*echo.Group{admin, teacher} {
		g.POST("/events", api.createEvent)
		g.PUT("/events/:id", api.updateEvent)
		g.DELETE("/events/:id", api.destroyEvent)

		g.POST("/activities", api.createActivity)
		g.PUT("/activities/:id", api.updateActivity)
		g.DELETE("/activities/:id", api.destroyActivity)
	}

	for _, g := range []*echo.Group{admin, teacher, guardian} {
		g.GET("/events", api.listEvents)
		g.GET("/events/:id", api.retrieveEvent)
		g.GET("/activities", api.listActivities)
		g.GET("/activities/:id", api.retrieveActivity)
	}
}

// Calendar

func (api *feedApi) listEvents(ctx echo.Context) error {
	var filter feed.EventFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to EventFilter")
	}
	events, err := api.feed.ListEvents(ctx.Request().Context(), viewerOf(ctx), filter)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, events)
}

func (api *feedApi) retrieveEvent(ctx echo.Context) error {
	ev, err := api.feed.GetEvent(ctx.Request().Context(), viewerOf(ctx), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, ev)
}

func (api *feedApi) createEvent(ctx echo.Context) error {
	var data feed.NewEvent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewEvent")
	}
	ev, err := api.feed.CreateEvent(ctx.Request().Context(), viewerOf(ctx), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, ev)
}

func (api *feedApi) updateEvent(ctx echo.Context) error {
	var data feed.UpdateEvent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateEvent")
	}
	ev, err := api.feed.UpdateEvent(ctx.Request().Context(), viewerOf(ctx), ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, ev)
}

func (api *feedApi) destroyEvent(ctx echo.Context) error {
	if err := api.feed.DeleteEvent(ctx.Request().Context(), viewerOf(ctx), ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Activities

func (api *feedApi) listActivities(ctx echo.Context) error {
	var filter feed.ActivityFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to ActivityFilter")
	}
	activities, err := api.feed.ListActivities(ctx.Request().Context(), viewerOf(ctx), filter)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, activities)
}

func (api *feedApi) retrieveActivity(ctx echo.Context) error {
	a, err := api.feed.GetActivity(ctx.Request().Context(), viewerOf(ctx), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *feedApi) createActivity(ctx echo.Context) error {
	var data feed.NewActivity
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewActivity")
	}
	a, err := api.feed.CreateActivity(ctx.Request().Context(), viewerOf(ctx), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, a)
}

func (api *feedApi) updateActivity(ctx echo.Context) error {
	var data feed.UpdateActivity
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateActivity")
	}
	a, err := api.feed.UpdateActivity(ctx.Request().Context(), viewerOf(ctx), ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *feedApi) destroyActivity(ctx echo.Context) error {
	if err := api.feed.DeleteActivity(ctx.Request().Context(), viewerOf(ctx), ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}
