package main

import (
	"context"
	"fmt"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/galaxy-co-ai/galaxyco-ai-v2-sub009/services/workflow"
)

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Issue a bearer token for the API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "secret",
				Usage:    "HS256 signing secret, the same value the server runs with",
				Required: true,
				Sources:  cli.EnvVars("JWT_SECRET"),
			},
			&cli.StringFlag{
				Name:     "workspace",
				Aliases:  []string{"w"},
				Usage:    "Workspace the token grants access to",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "user",
				Aliases: []string{"u"},
				Usage:   "User id recorded on runs started with the token",
			},
			&cli.DurationFlag{
				Name:  "ttl",
				Usage: "Token lifetime",
				Value: 24 * time.Hour,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			auth := workflow.NewAuthenticator(cmd.String("secret"))
			token, err := auth.Issue(workflow.Principal{
				WorkspaceID: cmd.String("workspace"),
				UserID:      cmd.String("user"),
			}, cmd.Duration("ttl"))
			if err != nil {
				return err
			}
			fmt.Fprintln(output(cmd), token)
			return nil
		},
	}
}
