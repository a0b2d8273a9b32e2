package main

import (
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/trezcool/schoolgate/core"
	"github.com/trezcool/schoolgate/core/profile"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	conf *core.Config
	out  io.Writer
	// profileSvc and store are resolved on first use, so migrations never need a migrated database.
	profileSvc func() (*profile.Service, error)
	store      func() (core.DocumentStore, error)
}

func (cli *commandLine) printUsage() {
	_, _ = fmt.Fprintln(cli.out, "Usage:")
	_, _ = fmt.Fprintln(cli.out, "  migrate up|down|version - apply, roll back or show the database migrations")
	_, _ = fmt.Fprintln(cli.out, "  adminstatus - tell whether an administrator exists")
	_, _ = fmt.Fprintln(cli.out, "  promote -id UID -role ROLE - change the role of a profile")
	_, _ = fmt.Fprintln(cli.out, "  setstatus -id UID -status STATUS - change the account status of a profile")
	_, _ = fmt.Fprintln(cli.out, "  issuetoken -id UID [-email EMAIL] [-name NAME] - sign a development identity token")
	_, _ = fmt.Fprintln(cli.out, "  docs get|remove -collection C -id ID - show or delete a document")
	_, _ = fmt.Fprintln(cli.out, "  docs insert|patch -collection C [-id ID] -data JSON - add or update a document")
	_, _ = fmt.Fprintln(cli.out, "  docs find -collection C [-where \"field op value\"]... - list matching documents")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	promoteCmd := flag.NewFlagSet("promote", flag.ContinueOnError)
	promoteID := promoteCmd.String("id", "", "The identity id of the profile.")
	promoteRole := promoteCmd.String("role", "", "The new role: admin, teacher or student.")

	setStatusCmd := flag.NewFlagSet("setstatus", flag.ContinueOnError)
	setStatusID := setStatusCmd.String("id", "", "The identity id of the profile.")
	setStatusValue := setStatusCmd.String("status", "", "The new status: pending, active, inactive or rejected.")

	issueTokenCmd := flag.NewFlagSet("issuetoken", flag.ContinueOnError)
	issueTokenID := issueTokenCmd.String("id", "", "The identity id (token subject).")
	issueTokenEmail := issueTokenCmd.String("email", "", "The identity email.")
	issueTokenName := issueTokenCmd.String("name", "", "The identity display name.")

	for _, fs := range []*flag.FlagSet{promoteCmd, setStatusCmd, issueTokenCmd} {
		fs.SetOutput(cli.out)
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2])

	case "adminstatus":
		return cli.adminStatus()

	case "promote":
		if err := promoteCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *promoteID == "" || *promoteRole == "" {
			promoteCmd.Usage()
			return errHelp
		}
		return cli.promote(*promoteID, profile.Role(*promoteRole))

	case "setstatus":
		if err := setStatusCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *setStatusID == "" || *setStatusValue == "" {
			setStatusCmd.Usage()
			return errHelp
		}
		return cli.setStatus(*setStatusID, profile.AccountStatus(*setStatusValue))

	case "issuetoken":
		if err := issueTokenCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *issueTokenID == "" {
			issueTokenCmd.Usage()
			return errHelp
		}
		return cli.issueToken(*issueTokenID, *issueTokenEmail, *issueTokenName)

	case "docs":
		return cli.docs(args[2:])

	default:
		cli.printUsage()
		return errHelp
	}
}
