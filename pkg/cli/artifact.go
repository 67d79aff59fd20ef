package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func artifactCommand() *cli.Command {
	return &cli.Command{
		Name:  "artifact",
		Usage: "Inspect and maintain stored artifact blobs",
		Commands: []*cli.Command{
			artifactGetCommand(),
			artifactListCommand(),
			artifactPurgeCommand(),
		},
	}
}

func artifactGetCommand() *cli.Command {
	var (
		cfg        config
		blobID     string
		outputPath string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "blob-id",
			Aliases:     []string{"i"},
			Usage:       "Blob to retrieve",
			Destination: &blobID,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "output",
			Aliases:     []string{"o"},
			Usage:       "File to write the artifact to (stdout when omitted)",
			Destination: &outputPath,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "get",
		Usage: "Retrieve one artifact by blob ID",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.loggingContext(ctx, c)

			artifacts, closer, err := cfg.newArtifacts(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = closer() }()

			data, err := artifacts.GetArtifact(ctx, blobID)
			if err != nil {
				return goerr.Wrap(err, "failed to get artifact")
			}

			if outputPath == "" {
				_, err := c.Root().Writer.Write(data)
				return err
			}
			if err := os.WriteFile(outputPath, data, 0o644); err != nil {
				return goerr.Wrap(err, "failed to write artifact", goerr.V("path", outputPath))
			}
			fmt.Fprintf(c.Root().Writer, "Wrote %d bytes to %s\n", len(data), outputPath)
			return nil
		},
	}
}

func artifactListCommand() *cli.Command {
	var cfg config

	flags := globalFlags(&cfg)

	return &cli.Command{
		Name:  "list",
		Usage: "Enumerate all stored artifact blobs",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.loggingContext(ctx, c)

			artifacts, closer, err := cfg.newArtifacts(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = closer() }()

			infos, err := artifacts.ListArtifacts(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to list artifacts")
			}

			if len(infos) == 0 {
				fmt.Fprintln(c.Root().Writer, "No artifacts stored")
				return nil
			}
			for _, info := range infos {
				fmt.Fprintf(c.Root().Writer, "%s\t%d\t%s\t%s\n",
					info.ID, info.Size, info.Tag, info.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
}

func artifactPurgeCommand() *cli.Command {
	var (
		cfg   config
		force bool
	)

	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:        "force",
			Usage:       "Confirm removal of every blob regardless of references",
			Destination: &force,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "purge",
		Usage: "Remove every blob, bypassing metadata (unsafe)",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.loggingContext(ctx, c)

			if !force {
				return goerr.New("purge removes every blob and strands metadata references; pass --force to confirm")
			}

			artifacts, closer, err := cfg.newArtifacts(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = closer() }()

			removed, err := artifacts.PurgeAllBlobs(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to purge blobs")
			}

			fmt.Fprintf(c.Root().Writer, "Purged %d blobs\n", removed)
			return nil
		},
	}
}
