package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	cli "github.com/urfave/cli/v3"

	"github.com/galaxy-co-ai/galaxyco-ai-v2-sub009/services/actions"
	"github.com/galaxy-co-ai/galaxyco-ai-v2-sub009/services/flow"
	"github.com/galaxy-co-ai/galaxyco-ai-v2-sub009/services/integrations"
)

func runCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Execute a workflow definition file locally",
		ArgsUsage: "FILE",
		Flags: append([]cli.Flag{
			&cli.StringSliceFlag{
				Name:    "var",
				Aliases: []string{"v"},
				Usage:   "Set a variable as key=value (JSON values are decoded)",
			},
			&cli.StringFlag{
				Name:  "workspace",
				Usage: "Workspace the run belongs to",
				Value: "local",
			},
			&cli.StringFlag{
				Name:  "user",
				Usage: "User the run is attributed to",
				Value: os.Getenv("USER"),
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Abort the run after this long",
				Value: 5 * time.Minute,
			},
			&cli.IntFlag{
				Name:  "max-visits",
				Usage: "How many times the run may enter the same node",
				Value: flow.DefaultMaxVisits,
			},
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Run even if the graph has structural problems",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the execution report as JSON",
			},
		}, integrationFlags()...),
		Action: runWorkflow,
	}
}

func runWorkflow(ctx context.Context, cmd *cli.Command) error {
	if err := setupCLILogging(cmd); err != nil {
		return err
	}
	path := cmd.Args().First()
	if path == "" {
		return errors.New("missing workflow file")
	}

	def, err := flow.LoadDefinitionFile(path)
	if err != nil {
		return err
	}
	vars, err := parseVars(cmd.StringSlice("var"))
	if err != nil {
		return err
	}
	variables := maps.Clone(def.Variables)
	if variables == nil {
		variables = make(map[string]any, len(vars))
	}
	maps.Copy(variables, vars)

	g := def.Graph()
	w := output(cmd)
	if result := flow.Validate(g); !result.Valid {
		printViolations(w, result.Violations)
		if !cmd.Bool("force") {
			return fmt.Errorf("%s is not a valid workflow", path)
		}
		slog.Warn("Running invalid workflow", "violations", len(result.Violations))
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	executor := flow.NewExecutor(
		flow.WithActions(actions.NewRegistry(nil)),
		flow.WithIntegrations(integrations.NewDefaultRegistry(staticTokens(cmd), integrationConfig(cmd))),
		flow.WithMaxVisits(int(cmd.Int("max-visits"))),
		flow.WithTimeout(cmd.Duration("timeout")),
	)

	ec := flow.NewExecutionContext(cmd.String("workspace"), cmd.String("user"), variables)
	slog.Debug("Running workflow", "name", def.Name, "nodes", len(def.Nodes))
	report := executor.Execute(ctx, g, ec)

	if cmd.Bool("json") {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		printReport(w, def.Name, report)
	}

	if !report.Success() {
		return fmt.Errorf("workflow %s", report.Status())
	}
	return nil
}

func printReport(w io.Writer, name string, report *flow.ExecutionReport) {
	fmt.Fprintf(w, "%s %s\n", color.New(color.Bold).Sprint("Workflow:"), name)
	for _, step := range report.Steps() {
		mark := color.GreenString("✓")
		if step.Status == flow.StepFailed {
			mark = color.RedString("✗")
		}
		label := step.Label
		if label == "" {
			label = string(step.NodeID)
		}
		fmt.Fprintf(w, "  %s %2d. %-28s %s %s\n", mark, step.StepNumber, label,
			color.CyanString("%-11s", step.NodeType), color.New(color.Faint).Sprintf("%dms", step.Duration))
		if step.Error != "" {
			fmt.Fprintf(w, "        %s\n", color.RedString(step.Error))
		}
	}

	status := string(report.Status())
	switch report.Status() {
	case flow.StatusCompleted:
		status = color.GreenString(status)
	case flow.StatusFailed:
		status = color.RedString(status)
	default:
		status = color.YellowString(status)
	}
	fmt.Fprintf(w, "\nStatus: %s in %dms (%s)\n", status, report.DurationMillis(), report.ExecutionID())
	for _, nodeErr := range report.Errors() {
		fmt.Fprintf(w, "  %s %s: %s\n", color.RedString(string(nodeErr.Kind)), nodeErr.NodeID, nodeErr.Err)
	}
}

func printViolations(w io.Writer, violations []flow.Violation) {
	for _, v := range violations {
		where := string(v.NodeID)
		if v.EdgeID != "" {
			where = "edge " + string(v.EdgeID)
		}
		fmt.Fprintf(w, "  %s %s %s\n", color.RedString("✗"), color.YellowString(string(v.Kind)), v.Message)
		if where != "" {
			fmt.Fprintf(w, "      at %s\n", where)
		}
	}
}
