package main

import (
	"os"

	"github.com/trezcool/schoolgate/apps/api/di/dig"
	"github.com/trezcool/schoolgate/core"
	"github.com/trezcool/schoolgate/core/profile"
)

func main() {
	c := dig_container.New(func() {})

	var (
		conf    *core.Config
		logger  core.Logger
		closeDB dig_container.DBCloser
	)
	if err := c.Invoke(func(cf *core.Config, l core.Logger) { conf, logger = cf, l }); err != nil {
		panic(err)
	}

	cli := commandLine{
		conf: conf,
		out:  os.Stdout,
		profileSvc: func() (svc *profile.Service, err error) {
			err = c.Invoke(func(s *profile.Service, closer dig_container.DBCloser) {
				svc, closeDB = s, closer
			})
			return svc, err
		},
		store: func() (store core.DocumentStore, err error) {
			err = c.Invoke(func(s core.DocumentStore, closer dig_container.DBCloser) {
				store, closeDB = s, closer
			})
			return store, err
		},
	}
	err := cli.run(os.Args)
	if closeDB != nil {
		if cerr := closeDB(); cerr != nil {
			logger.Error("closing database", cerr)
		}
	}
	if err != nil {
		if err != errHelp {
			logger.Error("admin command failed", err)
		}
		os.Exit(1)
	}
}
