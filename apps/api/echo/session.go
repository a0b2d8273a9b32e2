package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/schoolgate/core/access"
	"github.com/trezcool/schoolgate/core/paging"
	"github.com/trezcool/schoolgate/core/profile"
	"github.com/trezcool/schoolgate/core/session"
)

type sessionApi struct {
	srv *server
}

func registerSessionAPI(g *echo.Group, srv *server, jwt, signInLimit echo.MiddlewareFunc) {
	api := sessionApi{srv: srv}

	sg := g.Group("/sessions")
	sg.POST("", api.create)

	dg := sg.Group("/:sid", sessionMiddleware(srv.sessions))
	dg.GET("", api.retrieve)
	dg.POST("/sign-in", api.signIn, signInLimit, jwt)
	dg.POST("/sign-out", api.signOut)
	dg.POST("/refresh", api.refresh)
	dg.GET("/access", api.access)
	dg.POST("/setup-admin", api.setupAdmin)
	dg.GET("/collections/:collection", api.readCollection)

	registerUserAPI(dg, srv)
}

func (api *sessionApi) respond(ctx echo.Context, code int, entry *sessionEntry, s session.Session) error {
	resp := SessionResponse{ID: entry.id, Session: s}
	if s.Profile != nil && access.Decide(s, access.PathDashboard).Allow {
		resp.Routes = access.PermittedRoutes(s.Profile.Role)
	}
	return ctx.JSON(code, resp)
}

// Handlers

func (api *sessionApi) create(ctx echo.Context) error {
	var data NewSessionRequest
	if ctx.Request().ContentLength > 0 {
		if err := ctx.Bind(&data); err != nil {
			return errors.Wrap(err, "binding to NewSessionRequest")
		}
	}

	opts := api.srv.opts
	entry := api.srv.sessions.create(session.NewMachine(opts.ProfileSvc, opts.ProfileSvc, opts.Logger, opts.Metrics))

	s := entry.machine.Session()
	if data.SignedIn != nil && !*data.SignedIn {
		s = entry.machine.Dispatch(ctx.Request().Context(), session.SignedOut{})
	}
	return api.respond(ctx, http.StatusCreated, entry, s)
}

func (api *sessionApi) retrieve(ctx echo.Context) error {
	entry := contextSession(ctx)
	return api.respond(ctx, http.StatusOK, entry, entry.machine.Session())
}

func (api *sessionApi) signIn(ctx echo.Context) error {
	ident, err := contextIdentity(ctx, api.srv.opts.Conf.Identity)
	if err != nil {
		return err
	}
	entry := contextSession(ctx)
	entry.discardReaders()
	s := entry.machine.Dispatch(ctx.Request().Context(), session.SignedIn{Identity: ident})
	return api.respond(ctx, http.StatusOK, entry, s)
}

func (api *sessionApi) signOut(ctx echo.Context) error {
	entry := contextSession(ctx)
	entry.discardReaders()
	entry.machine.Dispatch(ctx.Request().Context(), session.SignedOut{})
	s := entry.machine.Dispatch(ctx.Request().Context(), session.SignOutCompleted{})
	return api.respond(ctx, http.StatusOK, entry, s)
}

func (api *sessionApi) refresh(ctx echo.Context) error {
	entry := contextSession(ctx)
	before := entry.machine.Session().Profile
	s := entry.machine.Dispatch(ctx.Request().Context(), session.Refresh{})
	if profileChanged(before, s.Profile) {
		entry.discardReaders()
	}
	return api.respond(ctx, http.StatusOK, entry, s)
}

func profileChanged(before, after *profile.Profile) bool {
	if before == nil || after == nil {
		return before != after
	}
	return before.ID != after.ID || before.Role != after.Role || before.AccountStatus != after.AccountStatus
}

func (api *sessionApi) access(ctx echo.Context) error {
	var data AccessRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AccessRequest")
	}
	if err := data.Validate(api.srv.opts.Validate); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, access.Decide(contextSession(ctx).machine.Session(), data.Path))
}

func (api *sessionApi) setupAdmin(ctx echo.Context) error {
	var data SetupAdminRequest
	if ctx.Request().ContentLength > 0 {
		if err := ctx.Bind(&data); err != nil {
			return errors.Wrap(err, "binding to SetupAdminRequest")
		}
	}

	entry := contextSession(ctx)
	s := entry.machine.Session()
	if s.Identity == nil {
		return errUnauthorized
	}
	if s.Phase != session.PhaseBootstrapRequired {
		return errNotBootstrapping
	}

	name := data.DisplayName
	if name == "" {
		name = s.Identity.DisplayName
	}
	reqCtx := ctx.Request().Context()
	if _, err := api.srv.opts.ProfileSvc.BootstrapAdmin(reqCtx, s.Identity.ID, profile.NewProfile{
		Email:       s.Identity.Email,
		DisplayName: name,
	}); err != nil {
		return errors.Wrap(err, "bootstrapping admin")
	}

	s = entry.machine.Dispatch(reqCtx, session.Refresh{})
	return api.respond(ctx, http.StatusCreated, entry, s)
}

func (api *sessionApi) readCollection(ctx echo.Context) error {
	collection := ctx.Param("collection")
	route, ok := access.CollectionRoute(collection)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown collection")
	}

	entry := contextSession(ctx)
	s := entry.machine.Session()
	if d := access.Decide(s, route.Path()); !d.Allow {
		return forbidden(d)
	}

	var data PageRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PageRequest")
	}
	opts := api.srv.opts
	if err := data.Validate(opts.Validate, opts.Conf.Paging); err != nil {
		return err
	}
	dir, err := paging.ParseDirection(data.Direction)
	if err != nil {
		return err
	}

	rdr, err := entry.reader(opts.Store, opts.Metrics, collection, *s.Profile, data.PageSize)
	if err != nil {
		return errors.Wrap(err, "creating reader")
	}
	res, err := rdr.Fetch(ctx.Request().Context(), dir)
	if err != nil {
		return errors.Wrapf(err, "fetching %s page of %s", dir, collection)
	}
	return ctx.JSON(http.StatusOK, PageResponse{Collection: collection, Result: res})
}
