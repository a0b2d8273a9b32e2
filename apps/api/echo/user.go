package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/schoolgate/core/access"
	"github.com/trezcool/schoolgate/core/profile"
	"github.com/trezcool/schoolgate/core/session"
)

type userApi struct {
	srv *server
}

// registerUserAPI mounts the user management endpoints under a session group.
func registerUserAPI(g *echo.Group, srv *server) {
	api := userApi{srv: srv}

	ug := g.Group("/users", routeMiddleware(access.RouteManageUsers))
	ug.GET("", api.query)
	ug.PATCH("/:id", api.update)
}

// Handlers

func (api *userApi) query(ctx echo.Context) error {
	var filter profile.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}
	users, err := api.srv.opts.ProfileSvc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying profiles")
	}
	if users == nil {
		users = []profile.Profile{}
	}
	return ctx.JSON(http.StatusOK, users)
}

func (api *userApi) update(ctx echo.Context) error {
	var data PatchProfileRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PatchProfileRequest")
	}
	if err := data.Validate(api.srv.opts.Validate); err != nil {
		return err
	}

	var (
		svc    = api.srv.opts.ProfileSvc
		reqCtx = ctx.Request().Context()
		id     = ctx.Param("id")
		usr    profile.Profile
		err    error
	)
	if data.Role != nil {
		if usr, err = svc.SetRole(reqCtx, id, *data.Role); err != nil {
			return errors.Wrap(err, "setting role")
		}
	}
	if data.AccountStatus != nil {
		if usr, err = svc.SetStatus(reqCtx, id, *data.AccountStatus); err != nil {
			return errors.Wrap(err, "setting account status")
		}
	}

	// an admin editing themself sees the change right away
	entry := contextSession(ctx)
	if p := entry.machine.Session().Profile; p != nil && p.ID == id {
		entry.discardReaders()
		entry.machine.Dispatch(reqCtx, session.Refresh{})
	}
	return ctx.JSON(http.StatusOK, usr)
}
