package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/dermalens/dermalens/pkg/model"
	"github.com/dermalens/dermalens/pkg/usecase/explain"
)

func explainCommand() *cli.Command {
	var (
		cfg        config
		inputPath  string
		method     string
		historyID  string
		credential string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "input",
			Aliases:     []string{"i"},
			Usage:       "Path to the image file to explain",
			Sources:     cli.EnvVars("DERMALENS_INPUT"),
			Destination: &inputPath,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "method",
			Aliases:     []string{"m"},
			Usage:       "Explanation method (gradcam, lime, shap, anchor, integrated_gradients)",
			Destination: &method,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "history-id",
			Usage:       "History to attach the artifact to (required when authenticated)",
			Destination: &historyID,
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
	flags = append(flags, methodFlags(&cfg)...)

	return &cli.Command{
		Name:  "explain",
		Usage: "Generate an explanation artifact for an image",
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

			registry, err := cfg.newRegistry()
			if err != nil {
				return err
			}

			artifacts, closer, err := cfg.newArtifacts(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = closer() }()

			uc := explain.New(artifacts, registry)
			out, err := uc.Explain(ctx, explain.Input{
				Image:     image,
				Method:    model.Method(method),
				HistoryID: model.HistoryID(historyID),
				User:      user,
			})
			if err != nil {
				return goerr.Wrap(err, "failed to explain image")
			}

			if out.Entry != nil {
				fmt.Fprintf(c.Root().Writer, "Stored %s overlay: %s\n", out.Method, out.Entry.OverlayID)
				if out.Entry.HeatmapID != "" {
					fmt.Fprintf(c.Root().Writer, "Stored %s heatmap: %s\n", out.Method, out.Entry.HeatmapID)
				}
				return nil
			}

			fmt.Fprintf(c.Root().Writer, "%s overlay (base64): %s\n", out.Method, out.OverlayBase64)
			if out.HeatmapBase64 != "" {
				fmt.Fprintf(c.Root().Writer, "%s heatmap (base64): %s\n", out.Method, out.HeatmapBase64)
			}
			return nil
		},
	}
}
