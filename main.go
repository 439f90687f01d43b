package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jfrog/build-promotion-go/cli"
	"github.com/jfrog/build-promotion-go/utils"
	clitool "github.com/urfave/cli/v2"
)

var logger utils.Log

func main() {
	logLevel := getCliLogLevel()
	utils.SetDefaultLogLevel(logLevel)
	logger = utils.NewDefaultLogger(logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	app := &clitool.App{
		Name:     "Build Promotion CLI",
		Usage:    "promote builds and publish releases",
		Flags:    cli.GetFlags(),
		Commands: cli.GetCommands(logger),
	}
	err := app.RunContext(ctx, os.Args)
	stop()
	if err != nil {
		logger.Error(err)
		os.Exit(1)
	}
}

func getCliLogLevel() utils.LevelType {
	switch os.Getenv("BUILD_PROMOTION_LOG_LEVEL") {
	case "ERROR":
		return utils.ERROR
	case "WARN":
		return utils.WARN
	case "DEBUG":
		return utils.DEBUG
	default:
		return utils.INFO
	}
}
