package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	cli "github.com/urfave/cli/v3"

	"github.com/galaxy-co-ai/galaxyco-ai-v2-sub009/pkg/log"
	"github.com/galaxy-co-ai/galaxyco-ai-v2-sub009/services/integrations"
)

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:                  "galaxyflow",
		Usage:                 "Run and serve GalaxyCo workflows",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Server log format (json, text)",
				Value:   log.FormatJSON,
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			runCommand(),
			validateCommand(),
			tokenCommand(),
		},
	}
}

// setupCLILogging sends human-readable logs to stderr so that command output
// on stdout stays machine-readable.
func setupCLILogging(cmd *cli.Command) error {
	logger, err := log.New(os.Stderr, cmd.String("log-level"), log.FormatText)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	return nil
}

func output(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func integrationFlags() []cli.Flag {
	var flags []cli.Flag
	for _, name := range []string{"gmail", "slack", "hubspot"} {
		env := strings.ToUpper(name)
		flags = append(flags,
			&cli.StringFlag{
				Name:    name + "-token",
				Usage:   "Access token used for " + name + " when a workspace has not connected its own",
				Sources: cli.EnvVars(env + "_TOKEN"),
			},
			&cli.StringFlag{
				Name:    name + "-base-url",
				Usage:   "Override the " + name + " API base URL",
				Sources: cli.EnvVars(env + "_BASE_URL"),
			},
		)
	}
	return flags
}

func integrationConfig(cmd *cli.Command) integrations.Config {
	return integrations.Config{
		Gmail:   integrations.Options{BaseURL: cmd.String("gmail-base-url")},
		Slack:   integrations.Options{BaseURL: cmd.String("slack-base-url")},
		HubSpot: integrations.Options{BaseURL: cmd.String("hubspot-base-url")},
	}
}

func staticTokens(cmd *cli.Command) integrations.StaticTokens {
	return integrations.StaticTokens{
		"gmail":   cmd.String("gmail-token"),
		"slack":   cmd.String("slack-token"),
		"hubspot": cmd.String("hubspot-token"),
	}
}

// parseVars turns k=v pairs into variables. Values that parse as JSON keep
// their JSON type; anything else is a string.
func parseVars(pairs []string) (map[string]any, error) {
	vars := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid variable %q, want key=value", pair)
		}
		var parsed any
		if err := json.Unmarshal([]byte(v), &parsed); err == nil {
			vars[k] = parsed
		} else {
			vars[k] = v
		}
	}
	return vars, nil
}
