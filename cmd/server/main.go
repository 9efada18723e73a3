package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/energy-community-auth/internal/config"
	"github.com/jrsteele09/energy-community-auth/internal/logging"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("error running server")
	}
	log.Info().Msg("server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return err
	}
	logging.Init(logging.Config{Level: c.Log.Level, Pretty: c.Log.Pretty, App: c.GetAppName(), Env: c.GetEnv()})
	displayAppname(c.GetAppName())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := newApp(ctx, c)
	if err != nil {
		return err
	}
	defer app.close()

	go func() {
		if err := app.sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("sweeper stopped")
		}
	}()

	server := &http.Server{
		Addr:         c.GetPort(),
		Handler:      app.handler,
		ReadTimeout:  c.Server.ReadTimeout,
		WriteTimeout: c.Server.WriteTimeout,
		IdleTimeout:  c.Server.IdleTimeout,
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- listenAndServe(server)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(server, c.Server.GracefulTimeout)
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "server.ListenAndServe")
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "server.Shutdown")
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
