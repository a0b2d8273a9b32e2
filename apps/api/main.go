package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/trezcool/schoolgate/apps/api/di/dig"
	"github.com/trezcool/schoolgate/apps/api/echo"
	"github.com/trezcool/schoolgate/core"
)

// give outstanding requests a deadline for completion
const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := dig_container.New(dig_container.ShutdownFunc(stop))
	err := c.Invoke(func(conf *core.Config, logger core.Logger, closeDB dig_container.DBCloser, server echoapi.Server) error {
		return run(ctx, conf, logger, closeDB, server)
	})
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func run(ctx context.Context, conf *core.Config, logger core.Logger, closeDB dig_container.DBCloser, server echoapi.Server) error {
	logger.Info(fmt.Sprintf("Application initializing : %s", conf))
	defer logger.Info("Application stopped")
	defer func() {
		if err := closeDB(); err != nil {
			logger.Error("closing database", err)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Start shutdown...")

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Stop(sctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)
			return err
		}
		return nil
	})
	return g.Wait()
}
