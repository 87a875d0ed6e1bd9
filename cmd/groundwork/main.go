// Command groundwork runs the retrieval-augmented query engine.
//
// Usage:
//
//	groundwork serve --config config.yaml
//	groundwork check --services services.yaml
//	groundwork validate --config config.yaml
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	groundwork "github.com/groundwork-ai/groundwork"
	"github.com/groundwork-ai/groundwork/pkg/config"
	"github.com/groundwork-ai/groundwork/pkg/logger"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Serve    ServeCmd    `cmd:"" help:"Start the query engine server."`
	Check    CheckCmd    `cmd:"" help:"Probe dependency health from a services file."`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration file."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple or verbose)." default:"simple"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println(groundwork.GetVersion())
	return nil
}

// ValidateCmd loads and validates a configuration file.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	if cli.Config == "" {
		return fmt.Errorf("validate requires --config")
	}
	if _, err := config.Load(cli.Config); err != nil {
		return err
	}
	fmt.Printf("%s: configuration valid\n", cli.Config)
	return nil
}

// loadConfig resolves the effective configuration: the given file, or
// the zero-config defaults when none is set.
func loadConfig(cli *CLI) (*config.Config, error) {
	if cli.Config == "" {
		return config.Default(), nil
	}
	return config.Load(cli.Config)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func main() {
	// A local .env is a convenience, not a requirement.
	_ = godotenv.Load()

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("groundwork"),
		kong.Description("Retrieval-augmented query engine."),
		kong.UsageOnError(),
	)

	output := os.Stderr
	if cli.LogFile != "" {
		file, closeFile, err := logger.OpenLogFile(cli.LogFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		defer closeFile()
		output = file
	}
	logger.Init(parseLevel(cli.LogLevel), output, cli.LogFormat)

	if err := ctx.Run(&cli); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
