package main

import (
	"context"
	"fmt"

	"github.com/trezcool/schoolgate/apps/api/echo"
	"github.com/trezcool/schoolgate/core/profile"
	"github.com/trezcool/schoolgate/core/session"
)

func (cli *commandLine) adminStatus() error {
	svc, err := cli.profileSvc()
	if err != nil {
		return err
	}
	exists, err := svc.ExistsAdmin(context.Background())
	if err != nil {
		return err
	}
	if exists {
		_, _ = fmt.Fprintln(cli.out, "an administrator exists")
	} else {
		_, _ = fmt.Fprintln(cli.out, "no administrator yet: the first user to sign in will be asked to set one up")
	}
	return nil
}

func (cli *commandLine) promote(id string, role profile.Role) error {
	svc, err := cli.profileSvc()
	if err != nil {
		return err
	}
	usr, err := svc.SetRole(context.Background(), id, role)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cli.out, "%s is now %s\n", usr.ID, usr.Role.Label())
	return nil
}

func (cli *commandLine) setStatus(id string, status profile.AccountStatus) error {
	svc, err := cli.profileSvc()
	if err != nil {
		return err
	}
	usr, err := svc.SetStatus(context.Background(), id, status)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cli.out, "%s is now %s\n", usr.ID, usr.AccountStatus.Label())
	return nil
}

func (cli *commandLine) issueToken(id, email, name string) error {
	ident := session.Identity{ID: id, Email: email, DisplayName: name}
	token, err := echoapi.GenerateToken(echoapi.NewClaims(ident, cli.conf.Identity), cli.conf.Identity.SigningKey)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cli.out, token)
	return nil
}
