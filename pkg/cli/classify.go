package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/dermalens/dermalens/pkg/usecase/classify"
)

func classifyCommand() *cli.Command {
	var (
		cfg        config
		inputPath  string
		credential string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "input",
			Aliases:     []string{"i"},
			Usage:       "Path to the image file to classify",
			Sources:     cli.EnvVars("DERMALENS_INPUT"),
			Destination: &inputPath,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "credential",
			Aliases:     []string{"c"},
			Usage:       "Authentication token; omit for an anonymous request",
			Sources:     cli.EnvVars("DERMALENS_CREDENTIAL"),
			Destination: &credential,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, classifierFlags(&cfg)...)

	return &cli.Command{
		Name:  "classify",
		Usage: "Classify an image and record a history for authenticated users",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.loggingContext(ctx, c)

			image, err := os.ReadFile(inputPath)
			if err != nil {
				return goerr.Wrap(err, "failed to read input file", goerr.V("path", inputPath))
			}

			resolver, err := cfg.newIdentityResolver()
			if err != nil {
				return err
			}
			user, err := resolver.Resolve(ctx, credential)
			if err != nil {
				return goerr.Wrap(err, "failed to resolve identity")
			}

			repo, closer, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = closer() }()

			blobs, err := cfg.newBlobStore(ctx)
			if err != nil {
				return err
			}

			classifier, err := cfg.newClassifier()
			if err != nil {
				return err
			}

			uc := classify.New(repo, blobs, classifier, classify.WithThreshold(cfg.threshold))
			out, err := uc.Classify(ctx, classify.Input{
				Image:    image,
				Filename: filepath.Base(inputPath),
				User:     user,
			})
			if err != nil {
				return goerr.Wrap(err, "failed to classify image")
			}

			fmt.Fprintf(c.Root().Writer, "Predicted: %s (confidence %.4f)\n",
				out.Classification.PredictedClass, out.Classification.Confidence)
			for label, score := range out.Classification.Probabilities {
				fmt.Fprintf(c.Root().Writer, "  %s\t%.4f\n", label, score)
			}
			if out.HistoryID != "" {
				fmt.Fprintf(c.Root().Writer, "History created: %s\n", out.HistoryID)
			}
			return nil
		},
	}
}
