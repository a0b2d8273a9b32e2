package echoapi

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/schoolgate/core"
	"github.com/trezcool/schoolgate/core/access"
	"github.com/trezcool/schoolgate/core/profile"
	"github.com/trezcool/schoolgate/core/session"
	"github.com/trezcool/schoolgate/tests"
)

var (
	amani  = session.Identity{ID: "uid-amani", Email: "amani@school.cd", DisplayName: "Amani"}
	baraka = session.Identity{ID: "uid-baraka", Email: "baraka@school.cd", DisplayName: "Baraka"}

	errMissingToken = httpErr{Error: "missing or malformed jwt"}
)

func seedAdmin(t *testing.T, app *testApp) session.Identity {
	t.Helper()
	testutil.CreateProfile(t, app.repo, "uid-admin", "admin@school.cd", "Admin", profile.RoleAdmin, "")
	return session.Identity{ID: "uid-admin", Email: "admin@school.cd", DisplayName: "Admin"}
}

func TestSessionNotFound(t *testing.T) {
	app := setup(t)
	rec := app.do(http.MethodGet, "/v1/sessions/unknown")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateSession(t *testing.T) {
	t.Run("initializing", func(t *testing.T) {
		app := setup(t)
		body := app.newSession(t, false)
		assert.NotEmpty(t, body.ID)
		assert.Equal(t, session.PhaseInitializing, body.Session.Phase)

		allow, to := app.decide(t, body.ID, "/dashboard")
		assert.False(t, allow)
		assert.Equal(t, access.LoadingPlaceholder, to)
	})

	t.Run("signed out", func(t *testing.T) {
		app := setup(t)
		seedAdmin(t, app)
		body := app.newSession(t, true)
		assert.Equal(t, session.PhaseSignedOut, body.Session.Phase)

		rec := app.do(http.MethodGet, "/v1/sessions/"+body.ID)
		assert.Equal(t, http.StatusOK, rec.Code)
		var got sessionBody
		decode(t, rec, &got)
		assert.Equal(t, body.ID, got.ID)
		assert.Equal(t, session.PhaseSignedOut, got.Session.Phase)

		allow, to := app.decide(t, body.ID, "/grades")
		assert.False(t, allow)
		assert.Equal(t, access.PathLogin, to)
		allow, _ = app.decide(t, body.ID, "/login")
		assert.True(t, allow)
	})

	t.Run("bootstrap required", func(t *testing.T) {
		app := setup(t)
		body := app.newSession(t, true)
		assert.Equal(t, session.PhaseBootstrapRequired, body.Session.Phase)
		assert.True(t, body.Session.BootstrapRequired)

		_, to := app.decide(t, body.ID, "/students")
		assert.Equal(t, access.PathSetupAdmin, to)
	})
}

func TestAccessRequiresPath(t *testing.T) {
	app := setup(t)
	sid := app.newSession(t, false).ID
	rec := app.do(http.MethodGet, "/v1/sessions/"+sid+"/access")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = app.do(http.MethodGet, "/v1/sessions/"+sid+"/access?path=%20%20")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "this field cannot be blank")
}

func TestSignIn(t *testing.T) {
	t.Run("provisions a pending student", func(t *testing.T) {
		app := setup(t)
		seedAdmin(t, app)
		sid := app.newSession(t, true).ID

		body := app.signIn(t, sid, amani)
		assert.Equal(t, session.PhaseReady, body.Session.Phase)
		if assert.NotNil(t, body.Session.Profile) {
			assert.Equal(t, amani.ID, body.Session.Profile.ID)
			assert.Equal(t, profile.RoleStudent, body.Session.Profile.Role)
			assert.Equal(t, profile.StatusPending, body.Session.Profile.AccountStatus)
		}
		assert.Empty(t, body.Routes)

		_, to := app.decide(t, sid, "/grades")
		assert.Equal(t, access.PathPending, to)
		allow, _ := app.decide(t, sid, "/pending")
		assert.True(t, allow)
	})

	t.Run("loads an existing profile", func(t *testing.T) {
		app := setup(t)
		admin := seedAdmin(t, app)
		sid := app.newSession(t, false).ID

		body := app.signIn(t, sid, admin)
		assert.Equal(t, session.PhaseReady, body.Session.Phase)
		if assert.NotNil(t, body.Session.Profile) {
			assert.Equal(t, profile.RoleAdmin, body.Session.Profile.Role)
		}
		assert.Equal(t, access.AllRoutes, body.Routes)
		allow, _ := app.decide(t, sid, "/manage-users")
		assert.True(t, allow)
	})

	t.Run("missing token", func(t *testing.T) {
		app := setup(t)
		sid := app.newSession(t, false).ID
		rec := app.do(http.MethodPost, "/v1/sessions/"+sid+"/sign-in")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		var got httpErr
		decode(t, rec, &got)
		assert.Equal(t, errMissingToken, got)
	})

	t.Run("bad signature", func(t *testing.T) {
		app := setup(t)
		sid := app.newSession(t, false).ID
		token, err := GenerateToken(NewClaims(amani, app.conf.Identity), "not-the-key")
		require.NoError(t, err)

		req, rec := newAuthRequest(http.MethodPost, "/v1/sessions/"+sid+"/sign-in", token)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("expired token", func(t *testing.T) {
		app := setup(t)
		sid := app.newSession(t, false).ID
		claims := NewClaims(amani, app.conf.Identity)
		claims.ExpiresAt = time.Now().Add(-time.Minute).Unix()
		token, err := GenerateToken(claims, app.conf.Identity.SigningKey)
		require.NoError(t, err)

		req, rec := newAuthRequest(http.MethodPost, "/v1/sessions/"+sid+"/sign-in", token)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		app := setup(t, func(conf *core.Config) { conf.Identity.Issuer = "https://id.school.cd" })
		sid := app.newSession(t, false).ID
		claims := NewClaims(amani, app.conf.Identity)
		claims.StandardClaims = jwt.StandardClaims{
			Issuer:    "https://elsewhere.example",
			Subject:   amani.ID,
			ExpiresAt: time.Now().Add(time.Hour).Unix(),
		}
		token, err := GenerateToken(claims, app.conf.Identity.SigningKey)
		require.NoError(t, err)

		req, rec := newAuthRequest(http.MethodPost, "/v1/sessions/"+sid+"/sign-in", token)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("rate limited", func(t *testing.T) {
		app := setup(t, func(conf *core.Config) {
			conf.Server.SignInRate = 0.001
			conf.Server.SignInBurst = 1
		})
		seedAdmin(t, app)
		sid := app.newSession(t, false).ID
		app.signIn(t, sid, amani)

		req, rec := newAuthRequest(http.MethodPost, "/v1/sessions/"+sid+"/sign-in", getToken(t, app.conf, amani))
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	})
}

func TestSetupAdmin(t *testing.T) {
	app := setup(t)
	sidA := app.newSession(t, true).ID
	sidB := app.newSession(t, true).ID
	assert.Equal(t, session.PhaseBootstrapRequired, app.signIn(t, sidA, amani).Session.Phase)
	assert.Equal(t, session.PhaseBootstrapRequired, app.signIn(t, sidB, baraka).Session.Phase)

	rec := app.do(http.MethodPost, "/v1/sessions/"+sidA+"/setup-admin", []byte(`{"display_name": "Head Teacher"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var body sessionBody
	decode(t, rec, &body)
	assert.Equal(t, session.PhaseReady, body.Session.Phase)
	if assert.NotNil(t, body.Session.Profile) {
		assert.Equal(t, profile.RoleAdmin, body.Session.Profile.Role)
		assert.Equal(t, "Head Teacher", body.Session.Profile.DisplayName)
		assert.Empty(t, body.Session.Profile.AccountStatus)
	}

	// the second session still believes no admin exists: the store refuses
	rec = app.do(http.MethodPost, "/v1/sessions/"+sidB+"/setup-admin")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = app.do(http.MethodPost, "/v1/sessions/"+sidB+"/refresh")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &body)
	assert.Equal(t, session.PhaseReady, body.Session.Phase)
	if assert.NotNil(t, body.Session.Profile) {
		assert.Equal(t, profile.RoleStudent, body.Session.Profile.Role)
	}

	t.Run("not bootstrapping", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/v1/sessions/"+sidB+"/setup-admin")
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("no identity", func(t *testing.T) {
		app := setup(t)
		sid := app.newSession(t, true).ID
		rec := app.do(http.MethodPost, "/v1/sessions/"+sid+"/setup-admin")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("identity already has a profile", func(t *testing.T) {
		app := setup(t)
		testutil.CreateProfile(t, app.repo, amani.ID, amani.Email, amani.DisplayName, profile.RoleStudent, profile.StatusActive)
		sid := app.newSession(t, true).ID
		require.Equal(t, session.PhaseBootstrapRequired, app.signIn(t, sid, amani).Session.Phase)

		rec := app.do(http.MethodPost, "/v1/sessions/"+sid+"/setup-admin")
		assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
		assert.Contains(t, rec.Body.String(), profile.ErrProfileExists.Error())
	})
}

func TestSignOut(t *testing.T) {
	app := setup(t)
	admin := seedAdmin(t, app)
	testutil.SeedCollection(t, app.store, core.CollectionStudents, 3, nil)
	sid := app.signedInSession(t, admin)

	rec := app.do(http.MethodGet, "/v1/sessions/"+sid+"/collections/students")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	entry, ok := app.sessions.get(sid)
	require.True(t, ok)
	assert.Len(t, entry.readers, 1)

	rec = app.do(http.MethodPost, "/v1/sessions/"+sid+"/sign-out")
	require.Equal(t, http.StatusOK, rec.Code)
	var body sessionBody
	decode(t, rec, &body)
	assert.Equal(t, session.PhaseSignedOut, body.Session.Phase)
	assert.Nil(t, body.Session.Identity)
	assert.Nil(t, body.Session.Profile)
	assert.Empty(t, entry.readers)

	rec = app.do(http.MethodGet, "/v1/sessions/"+sid+"/collections/students")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), `"redirect_to":"/login"`)
}

func TestReadCollection(t *testing.T) {
	testutil.TickClock(t)
	app := setup(t)
	admin := seedAdmin(t, app)
	ids := testutil.SeedCollection(t, app.store, core.CollectionStudents, 5, nil)
	sid := app.signedInSession(t, admin)
	path := "/v1/sessions/" + sid + "/collections/students?page_size=2&direction="

	read := func(dir string) pageBody {
		t.Helper()
		rec := app.do(http.MethodGet, path+dir)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var page pageBody
		decode(t, rec, &page)
		return page
	}
	rowIDs := func(page pageBody) []string {
		out := make([]string, 0, len(page.Rows))
		for _, row := range page.Rows {
			out = append(out, row.ID)
		}
		return out
	}

	page := read("first")
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, []string{ids[4], ids[3]}, rowIDs(page))
	assert.True(t, page.HasNext)
	assert.False(t, page.HasPrev)

	page = read("next")
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, []string{ids[2], ids[1]}, rowIDs(page))

	page = read("next")
	assert.Equal(t, 3, page.Page)
	assert.Equal(t, []string{ids[0]}, rowIDs(page))
	assert.False(t, page.HasNext)
	assert.True(t, page.HasPrev)

	page = read("prev")
	assert.Equal(t, 2, page.Page)
	page = read("next")
	assert.Equal(t, 3, page.Page)
	assert.Equal(t, 3, app.store.Queries(core.CollectionStudents), "prev and revisited pages come from the cache")

	page = read("first")
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 4, app.store.Queries(core.CollectionStudents))

	tests := []struct {
		name     string
		path     string
		wantCode int
	}{
		{"bad direction", "/v1/sessions/" + sid + "/collections/students?direction=sideways", http.StatusBadRequest},
		{"page size too large", "/v1/sessions/" + sid + "/collections/students?page_size=1000", http.StatusBadRequest},
		{"bad page size", "/v1/sessions/" + sid + "/collections/students?page_size=abc", http.StatusBadRequest},
		{"unknown collection", "/v1/sessions/" + sid + "/collections/lunches", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(http.MethodGet, tt.path)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
		})
	}
}

func TestReadCollectionAsStudent(t *testing.T) {
	testutil.TickClock(t)
	app := setup(t)
	seedAdmin(t, app)
	testutil.CreateProfile(t, app.repo, amani.ID, amani.Email, amani.DisplayName, profile.RoleStudent, profile.StatusActive)
	testutil.SeedCollection(t, app.store, core.CollectionGrades, 6, func(i int) map[string]interface{} {
		owner := baraka.ID
		if i%2 == 1 {
			owner = amani.ID
		}
		return map[string]interface{}{access.FieldStudentID: owner, "grade": fmt.Sprintf("%d/20", 10+i)}
	})
	sid := app.signedInSession(t, amani)

	rec := app.do(http.MethodGet, "/v1/sessions/"+sid+"/collections/grades?page_size=10")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var page pageBody
	decode(t, rec, &page)
	assert.Len(t, page.Rows, 3)
	for _, row := range page.Rows {
		assert.Equal(t, amani.ID, row.Field(access.FieldStudentID))
	}

	rec = app.do(http.MethodGet, "/v1/sessions/"+sid+"/collections/fees")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), `"redirect_to":"/dashboard"`)
}

func TestReadCollectionAfterRoleChange(t *testing.T) {
	testutil.TickClock(t)
	app := setup(t)
	seedAdmin(t, app)
	testutil.CreateProfile(t, app.repo, amani.ID, amani.Email, amani.DisplayName, profile.RoleTeacher, profile.StatusActive)
	testutil.SeedCollection(t, app.store, core.CollectionGrades, 6, func(i int) map[string]interface{} {
		owner := baraka.ID
		if i%2 == 1 {
			owner = amani.ID
		}
		return map[string]interface{}{access.FieldStudentID: owner}
	})
	sid := app.signedInSession(t, amani)
	path := "/v1/sessions/" + sid + "/collections/grades?page_size=2&direction="

	read := func(dir string) pageBody {
		t.Helper()
		rec := app.do(http.MethodGet, path+dir)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var page pageBody
		decode(t, rec, &page)
		return page
	}
	owners := func(page pageBody) map[string]bool {
		out := make(map[string]bool)
		for _, row := range page.Rows {
			out[row.Field(access.FieldStudentID)] = true
		}
		return out
	}

	// teachers see every grade
	page := read("first")
	assert.Len(t, page.Rows, 2)
	assert.True(t, page.HasNext)
	assert.True(t, owners(page)[baraka.ID])

	student := profile.RoleStudent
	_, err := app.repo.UpdateProfile(context.Background(), amani.ID, profile.UpdateProfile{Role: &student})
	require.NoError(t, err)

	rec := app.do(http.MethodPost, "/v1/sessions/"+sid+"/refresh")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body sessionBody
	decode(t, rec, &body)
	require.Equal(t, session.PhaseReady, body.Session.Phase)
	require.Equal(t, profile.RoleStudent, body.Session.Profile.Role)

	for _, dir := range []string{"next", "next", "first", "next"} {
		page = read(dir)
		for owner := range owners(page) {
			assert.Equal(t, amani.ID, owner, "%s page %d", dir, page.Page)
		}
	}
	assert.NotEmpty(t, read("first").Rows)
}

func TestReadCollectionDiscarded(t *testing.T) {
	app := setup(t)
	admin := seedAdmin(t, app)
	testutil.SeedCollection(t, app.store, core.CollectionStudents, 3, nil)
	sid := app.signedInSession(t, admin)
	entry, _ := app.sessions.get(sid)
	owner := *entry.machine.Session().Profile
	require.Equal(t, admin.ID, owner.ID)

	rdr, err := entry.reader(app.store, app.opts.Metrics, core.CollectionStudents, owner, 2)
	require.NoError(t, err)
	same, err := entry.reader(app.store, app.opts.Metrics, core.CollectionStudents, owner, 2)
	require.NoError(t, err)
	assert.Same(t, rdr, same)

	// another page size replaces the reader
	other, err := entry.reader(app.store, app.opts.Metrics, core.CollectionStudents, owner, 3)
	require.NoError(t, err)
	assert.NotSame(t, rdr, other)

	// so does another role
	demoted := owner
	demoted.Role = profile.RoleStudent
	filtered, err := entry.reader(app.store, app.opts.Metrics, core.CollectionStudents, demoted, 3)
	require.NoError(t, err)
	assert.NotSame(t, other, filtered)
	other = filtered

	app.sessions.flush()
	assert.Zero(t, app.sessions.len())
	assert.Empty(t, entry.readers)
	assert.Zero(t, other.CachedPages())

	_, ok := app.sessions.get(sid)
	assert.False(t, ok)
}

func TestRegistryIdleExpiry(t *testing.T) {
	reg := newRegistry(50 * time.Millisecond)
	entry := reg.create(session.NewMachine(nil, nil, nil, nil))

	time.Sleep(30 * time.Millisecond)
	_, ok := reg.get(entry.id) // touching resets the idle timer
	assert.True(t, ok)
	time.Sleep(30 * time.Millisecond)
	_, ok = reg.get(entry.id)
	assert.True(t, ok)

	time.Sleep(80 * time.Millisecond)
	_, ok = reg.get(entry.id)
	assert.False(t, ok)
}
