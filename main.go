package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/mdobak/go-xerrors"

	"github.com/AlfonsoCifuentes/riskmap-vision/utils"
)

func main() {
	err := utils.CreateFolder("storage")
	if err != nil {
		logger := utils.GetLogger()
		err := xerrors.New(err)
		ctx := context.Background()
		logger.ErrorContext(ctx, "Failed to create storage dir.", slog.Any("error", err))
	}

	if len(os.Args) < 2 {
		fmt.Println("Expected 'serve' subcommand")
		os.Exit(1)
	}
	_ = godotenv.Load()

	switch os.Args[1] {
	case "serve":
		serveCmd := flag.NewFlagSet("serve", flag.ExitOnError)
		protocol := serveCmd.String("proto", "http", "Protocol to use (http or https)")
		port := serveCmd.String("p", "", "Port to use (default from the config file)")
		configPath := serveCmd.String("config", "config.yaml", "Path to the YAML config file")
		serveCmd.Parse(os.Args[2:])
		serve(*protocol, *port, *configPath)
	default:
		fmt.Println("Expected 'serve' subcommand")
		os.Exit(1)
	}
}
