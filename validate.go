package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fatih/color"
	cli "github.com/urfave/cli/v3"

	"github.com/galaxy-co-ai/galaxyco-ai-v2-sub009/services/flow"
)

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Check a workflow definition file for structural problems",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the validation result as JSON",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			if path == "" {
				return errors.New("missing workflow file")
			}
			def, err := flow.LoadDefinitionFile(path)
			if err != nil {
				return err
			}

			result := flow.Validate(def.Graph())
			w := output(cmd)
			if cmd.Bool("json") {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				if err := enc.Encode(result); err != nil {
					return err
				}
			} else if result.Valid {
				fmt.Fprintf(w, "%s %s: %d nodes, %d edges\n", color.GreenString("✓"), def.Name, len(def.Nodes), len(def.Edges))
			} else {
				fmt.Fprintf(w, "%s has %d problem(s):\n", def.Name, len(result.Violations))
				printViolations(w, result.Violations)
			}

			if !result.Valid {
				return fmt.Errorf("%s is not a valid workflow", path)
			}
			return nil
		},
	}
}
