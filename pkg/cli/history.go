package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/dermalens/dermalens/pkg/model"
)

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Inspect and delete classification histories",
		Commands: []*cli.Command{
			historyListCommand(),
			historyDeleteCommand(),
			historyClearCommand(),
		},
	}
}

func historyListCommand() *cli.Command {
	var (
		cfg  config
		user string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "user",
			Aliases:     []string{"u"},
			Usage:       "User ID whose histories to list",
			Destination: &user,
			Required:    true,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "list",
		Usage: "List the classification histories of a user",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.loggingContext(ctx, c)

			repo, closer, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = closer() }()

			histories, err := repo.ListHistoriesByUser(ctx, model.UserID(user))
			if err != nil {
				return goerr.Wrap(err, "failed to list histories")
			}

			if len(histories) == 0 {
				fmt.Fprintf(c.Root().Writer, "No histories found for user %s\n", user)
				return nil
			}

			for _, h := range histories {
				fmt.Fprintf(c.Root().Writer, "%s\t%s\t%.4f\t%s\n",
					h.ID,
					h.PredictedClass,
					h.Confidence,
					h.CreatedAt.Format("2006-01-02 15:04:05"),
				)
			}
			return nil
		},
	}
}

func historyDeleteCommand() *cli.Command {
	var (
		cfg       config
		historyID string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "history-id",
			Aliases:     []string{"i"},
			Usage:       "History to delete together with its artifacts",
			Destination: &historyID,
			Required:    true,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "delete",
		Usage: "Delete one history and every artifact it owns",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.loggingContext(ctx, c)

			artifacts, closer, err := cfg.newArtifacts(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = closer() }()

			result, err := artifacts.DeleteHistory(ctx, model.HistoryID(historyID))
			if err != nil {
				return goerr.Wrap(err, "failed to delete history")
			}

			fmt.Fprintf(c.Root().Writer, "History %s deleted (%d blobs removed)\n", historyID, result.BlobsDeleted)
			if !result.Clean() {
				fmt.Fprintf(c.Root().Writer, "Warning: %d blobs could not be removed\n", result.BlobsFailed)
			}
			return nil
		},
	}
}

func historyClearCommand() *cli.Command {
	var (
		cfg  config
		user string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "user",
			Aliases:     []string{"u"},
			Usage:       "User whose histories to delete",
			Destination: &user,
			Required:    true,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "clear",
		Usage: "Delete every history of a user",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.loggingContext(ctx, c)

			artifacts, closer, err := cfg.newArtifacts(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = closer() }()

			result, err := artifacts.DeleteAllForUser(ctx, model.UserID(user))
			if err != nil {
				return goerr.Wrap(err, "failed to clear histories")
			}

			fmt.Fprintf(c.Root().Writer, "Removed %d histories", result.Removed)
			if result.Partial > 0 {
				fmt.Fprintf(c.Root().Writer, ", %d left blobs behind", result.Partial)
			}
			if result.Failed > 0 {
				fmt.Fprintf(c.Root().Writer, ", %d failed", result.Failed)
			}
			fmt.Fprintln(c.Root().Writer)
			return nil
		},
	}
}
