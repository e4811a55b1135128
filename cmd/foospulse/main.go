// foospulse - live foosball scoring, Elo ratings and league stats
package main

import (
	"fmt"
	"log/slog"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/foospulse/foospulse/internal/config"
	"github.com/foospulse/foospulse/internal/logging"
)

var version = "dev"

const defaultConfigPath = "/etc/foospulse/config.yml"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		cmdServe(os.Args[2:])
	case "worker":
		cmdWorker(os.Args[2:])
	case "recompute":
		cmdRecompute(os.Args[2:])
	case "token":
		cmdToken(os.Args[2:])
	case "seed":
		cmdSeed(os.Args[2:])
	case "version":
		fmt.Printf("foospulse %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: foospulse <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                               Start the HTTP server, workers and outbox relay")
	fmt.Println("  worker                              Run rating and stats workers only")
	fmt.Println("  recompute --league ID [--season ID] Queue a rating rebuild and stats recompute")
	fmt.Println("  token --user ID [--admin]           Mint a user token")
	fmt.Println("  token --subject NAME --scope S...   Mint an operator token")
	fmt.Println("  seed [--players N]                  Create a demo league with players and members")
	fmt.Println("  version                             Show version")
	fmt.Println("  help                                Show this help")
	fmt.Println()
	fmt.Println("Global Options:")
	fmt.Println("  --config <path>    Path to configuration file (default /etc/foospulse/config.yml)")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  foospulse serve --config ./config.yml")
	fmt.Println("  foospulse token --subject ops --scope ratings:recompute --scope stats:recompute")
	fmt.Println("  foospulse recompute --league 6f1c...")
}

// configFlag registers the shared --config flag
func configFlag(fs *flag.FlagSet) *string {
	return fs.String("config", "", "path to configuration file")
}

// loadConfig reads the config file, falling back to the default path when
// it exists and to built-in defaults otherwise
func loadConfig(path string) *config.Config {
	if path == "" {
		if _, err := os.Stat(defaultConfigPath); err == nil {
			path = defaultConfigPath
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func newLogger(cfg *config.Config) *slog.Logger {
	return logging.NewLogger(logging.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Service: "foospulse",
		Version: version,
	})
}

// fatal logs err and exits
func fatal(logger *slog.Logger, msg string, err error) {
	logging.Error(logger, msg, err)
	os.Exit(1)
}
