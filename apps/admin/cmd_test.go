package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/schoolgate/apps/api/echo"
	"github.com/trezcool/schoolgate/core"
	"github.com/trezcool/schoolgate/core/profile"
	"github.com/trezcool/schoolgate/tests"
)

var (
	profileRepo profile.Repository
	docStore    core.DocumentStore
)

func setup(t *testing.T) (*commandLine, *bytes.Buffer, *testutil.MailRecorder) {
	// set up DB & repos
	_, repo, store := testutil.OpenDB(t)
	profileRepo, docStore = repo, store
	mail := new(testutil.MailRecorder)
	svc := testutil.NewProfileService(repo, mail)

	// start CLI
	out := new(bytes.Buffer)
	return &commandLine{
		conf:       core.NewTestConfig(),
		out:        out,
		profileSvc: func() (*profile.Service, error) { return svc, nil },
		store:      func() (core.DocumentStore, error) { return store, nil },
	}, out, mail
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	wantOut    string
}

func runCLITests(t *testing.T, cli *commandLine, out *bytes.Buffer, tests []cliTest) {
	t.Helper()
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			out.Reset()
			err := cli.run(args)
			switch {
			case tt.wantErr != nil:
				assert.Equal(t, tt.wantErr, errors.Cause(err))
			case tt.wantErrStr != "":
				if assert.Error(t, err) {
					assert.Contains(t, err.Error(), tt.wantErrStr)
				}
			default:
				assert.NoError(t, err)
			}
			if tt.wantOut != "" {
				assert.Contains(t, out.String(), tt.wantOut)
			}
		})
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, out, _ := setup(t)

	var version uint
	migrateUpFunc = func(*core.Config) error { version++; return nil }
	migrateDownFunc = func(*core.Config) error {
		if version == 0 {
			return errors.New("no migration to roll back")
		}
		version--
		return nil
	}
	migrationVersionFunc = func(*core.Config) (uint, bool, error) { return version, false, nil }

	runCLITests(t, cli, out, []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: `"lol": no such command`},
		{name: "version", args: []string{"migrate", "version"}, wantOut: "version: 0 (dirty: false)"},
		{name: "up", args: []string{"migrate", "up"}, wantOut: "version: 1 (dirty: false)"},
		{name: "down", args: []string{"migrate", "down"}, wantOut: "version: 0 (dirty: false)"},
		{name: "down below zero", args: []string{"migrate", "down"}, wantErrStr: "no migration to roll back"},
	})
}

func Test_commandLine_profiles(t *testing.T) {
	cli, out, mail := setup(t)

	runCLITests(t, cli, out, []cliTest{
		{name: "no admin yet", args: []string{"adminstatus"}, wantOut: "no administrator yet"},
	})

	testutil.CreateProfile(t, profileRepo, "uid-1", "amani@school.cd", "Amani", profile.RoleStudent, profile.StatusPending)

	runCLITests(t, cli, out, []cliTest{
		{name: "promote: no args", args: []string{"promote"}, wantErr: errHelp},
		{name: "promote: no role", args: []string{"promote", "-id", "uid-1"}, wantErr: errHelp},
		{name: "promote: bad flag", args: []string{"promote", "-lol"}, wantErrStr: "flag provided but not defined"},
		{name: "promote: not found", args: []string{"promote", "-id", "uid-x", "-role", "teacher"}, wantErr: profile.ErrNotFound},
		{name: "promote: bad role", args: []string{"promote", "-id", "uid-1", "-role", "dean"}, wantErrStr: "role"},
		{name: "promote", args: []string{"promote", "-id", "uid-1", "-role", "admin"}, wantOut: "uid-1 is now Admin"},
		{name: "admin exists", args: []string{"adminstatus"}, wantOut: "an administrator exists"},
		{name: "setstatus: no args", args: []string{"setstatus", "-id", "uid-1"}, wantErr: errHelp},
		{name: "setstatus: admin", args: []string{"setstatus", "-id", "uid-1", "-status", "active"}, wantErrStr: "administrators have no account status"},
		{name: "demote: last admin", args: []string{"promote", "-id", "uid-1", "-role", "teacher"}, wantErr: core.ErrPermissionDenied},
		{name: "admin still exists", args: []string{"adminstatus"}, wantOut: "an administrator exists"},
	})

	testutil.CreateProfile(t, profileRepo, "uid-2", "baraka@school.cd", "Baraka", profile.RoleStudent, profile.StatusPending)

	runCLITests(t, cli, out, []cliTest{
		{name: "promote: second admin", args: []string{"promote", "-id", "uid-2", "-role", "admin"}, wantErr: core.ErrPermissionDenied},
		{name: "promote: teacher", args: []string{"promote", "-id", "uid-2", "-role", "teacher"}, wantOut: "uid-2 is now Teacher"},
		{name: "setstatus", args: []string{"setstatus", "-id", "uid-2", "-status", "inactive"}, wantOut: "uid-2 is now Inactive"},
	})

	admin, err := profileRepo.GetProfile(context.Background(), "uid-1")
	require.NoError(t, err)
	assert.True(t, admin.IsAdmin())

	usr, err := profileRepo.GetProfile(context.Background(), "uid-2")
	require.NoError(t, err)
	assert.Equal(t, profile.RoleTeacher, usr.Role)
	assert.Equal(t, profile.StatusInactive, usr.AccountStatus)
	assert.Len(t, mail.Messages(), 1)
}

func Test_commandLine_issueToken(t *testing.T) {
	cli, out, _ := setup(t)

	runCLITests(t, cli, out, []cliTest{
		{name: "no id", args: []string{"issuetoken"}, wantErr: errHelp},
		{name: "issue", args: []string{"issuetoken", "-id", "uid-1", "-email", "amani@school.cd", "-name", "Amani"}},
	})

	claims := new(echoapi.Claims)
	_, err := jwt.ParseWithClaims(strings.TrimSpace(out.String()), claims, func(*jwt.Token) (interface{}, error) {
		return []byte(cli.conf.Identity.SigningKey), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "uid-1", claims.Subject)
	assert.Equal(t, "amani@school.cd", claims.Email)
	assert.Equal(t, "Amani", claims.Name)
}

func Test_commandLine_docs(t *testing.T) {
	cli, out, _ := setup(t)
	ctx := context.Background()

	runCLITests(t, cli, out, []cliTest{
		{name: "no subcommand", args: []string{"docs"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"docs", "lol", "-collection", "grades"}, wantErr: errHelp},
		{name: "no collection", args: []string{"docs", "find"}, wantErr: errHelp},
		{name: "unknown collection", args: []string{"docs", "find", "-collection", "lunches"}, wantErr: errUnknownCollection},
		{name: "insert: no data", args: []string{"docs", "insert", "-collection", "grades"}, wantErr: errHelp},
		{name: "insert: bad data", args: []string{"docs", "insert", "-collection", "grades", "-data", "{"}, wantErrStr: "decoding -data"},
		{name: "bad where", args: []string{"docs", "find", "-collection", "grades", "-where", "grade"}, wantErrStr: "field op value"},
		{name: "get: not found", args: []string{"docs", "get", "-collection", "grades", "-id", "nope"}, wantErr: core.ErrDocumentNotFound},
	})

	for _, data := range []string{
		`{"studentId": "uid-1", "score": 14}`,
		`{"studentId": "uid-2", "score": 9}`,
	} {
		out.Reset()
		require.NoError(t, cli.run([]string{"admin", "docs", "insert", "-collection", "grades", "-data", data}))
	}
	id := strings.TrimSpace(out.String())
	doc, err := docStore.GetByID(ctx, core.CollectionGrades, id)
	require.NoError(t, err)
	assert.Equal(t, "uid-2", doc.Field("studentId"))

	runCLITests(t, cli, out, []cliTest{
		{name: "get", args: []string{"docs", "get", "-collection", "grades", "-id", id}, wantOut: `"studentId":"uid-2"`},
		{name: "find", args: []string{"docs", "find", "-collection", "grades", "-where", `studentId == "uid-1"`}, wantOut: `"studentId":"uid-1"`},
		{name: "patch", args: []string{"docs", "patch", "-collection", "grades", "-id", id, "-data", `{"score": 11}`}, wantOut: id + " patched"},
	})

	out.Reset()
	require.NoError(t, cli.run([]string{"admin", "docs", "find", "-collection", "grades", "-where", "score >= 10"}))
	assert.Equal(t, 2, strings.Count(out.String(), "\n"))

	runCLITests(t, cli, out, []cliTest{
		{name: "remove", args: []string{"docs", "remove", "-collection", "grades", "-id", id}, wantOut: id + " removed"},
		{name: "remove again", args: []string{"docs", "remove", "-collection", "grades", "-id", id}, wantErr: core.ErrDocumentNotFound},
	})
}
