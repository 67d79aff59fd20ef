package cli

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/dermalens/dermalens/pkg/adapter"
	"github.com/dermalens/dermalens/pkg/repository"
	"github.com/dermalens/dermalens/pkg/usecase/artifact"
	"github.com/dermalens/dermalens/pkg/usecase/classify"
	"github.com/dermalens/dermalens/pkg/utils/logging"
)

// config holds configuration values
type config struct {
	// Metadata store
	metaBackend string // firestore | sqlite | memory
	project     string
	database    string
	sqlitePath  string

	// Blob store
	blobBackend string // gcs | local | memory
	bucket      string
	blobDir     string

	// Collaborators
	classifierEndpoint string
	methodsPath        string
	authTokens         string

	threshold float64
	logLevel  string
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "meta-backend",
			Usage:       "Metadata store backend (firestore, sqlite, memory)",
			Value:       "sqlite",
			Sources:     cli.EnvVars("DERMALENS_META_BACKEND"),
			Destination: &cfg.metaBackend,
		},
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Google Cloud project ID",
			Sources:     cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.project,
		},
		&cli.StringFlag{
			Name:        "database",
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("FIRESTORE_DATABASE_ID"),
			Destination: &cfg.database,
		},
		&cli.StringFlag{
			Name:        "sqlite-path",
			Usage:       "Path to the SQLite metadata database",
			Value:       "dermalens.db",
			Sources:     cli.EnvVars("DERMALENS_SQLITE_PATH"),
			Destination: &cfg.sqlitePath,
		},
		&cli.StringFlag{
			Name:        "blob-backend",
			Usage:       "Blob store backend (gcs, local, memory)",
			Value:       "local",
			Sources:     cli.EnvVars("DERMALENS_BLOB_BACKEND"),
			Destination: &cfg.blobBackend,
		},
		&cli.StringFlag{
			Name:        "bucket",
			Aliases:     []string{"b"},
			Usage:       "Cloud Storage bucket for artifact blobs",
			Sources:     cli.EnvVars("DERMALENS_BUCKET"),
			Destination: &cfg.bucket,
		},
		&cli.StringFlag{
			Name:        "blob-dir",
			Usage:       "Directory of the local blob store",
			Value:       "blobs",
			Sources:     cli.EnvVars("DERMALENS_BLOB_DIR"),
			Destination: &cfg.blobDir,
		},
		&cli.StringFlag{
			Name:        "auth-tokens",
			Usage:       "Comma-separated token=user pairs for authentication",
			Sources:     cli.EnvVars("DERMALENS_AUTH_TOKENS"),
			Destination: &cfg.authTokens,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("DERMALENS_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
	}
}

// classifierFlags returns flags for the classification collaborators
func classifierFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "classifier-endpoint",
			Usage:       "Inference endpoint of the image classifier",
			Sources:     cli.EnvVars("DERMALENS_CLASSIFIER_ENDPOINT"),
			Destination: &cfg.classifierEndpoint,
		},
		&cli.FloatFlag{
			Name:        "confidence-threshold",
			Usage:       "Minimum accepted classification confidence",
			Value:       classify.DefaultConfidenceThreshold,
			Sources:     cli.EnvVars("DERMALENS_CONFIDENCE_THRESHOLD"),
			Destination: &cfg.threshold,
		},
	}
}

// methodFlags returns flags for the explanation generators
func methodFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "methods-config",
			Usage:       "Path to the YAML file declaring explanation method endpoints",
			Value:       "methods.yml",
			Sources:     cli.EnvVars("DERMALENS_METHODS_CONFIG"),
			Destination: &cfg.methodsPath,
		},
	}
}

// loggingContext attaches a configured logger to the context
func (cfg *config) loggingContext(ctx context.Context, w *cli.Command) context.Context {
	return logging.With(ctx, logging.New(cfg.logLevel, w.Root().ErrWriter))
}

// newRepository creates the metadata store. The returned closer releases the
// underlying connection.
func (cfg *config) newRepository(ctx context.Context) (repository.Repository, func() error, error) {
	noop := func() error { return nil }

	switch cfg.metaBackend {
	case "firestore":
		if cfg.project == "" {
			return nil, nil, goerr.New("project is required for the firestore backend")
		}
		repo, err := repository.NewFirestore(ctx, cfg.project, cfg.database)
		if err != nil {
			return nil, nil, goerr.Wrap(err, "failed to create repository")
		}
		return repo, repo.Close, nil

	case "sqlite":
		repo, err := repository.OpenSQLite(cfg.sqlitePath)
		if err != nil {
			return nil, nil, goerr.Wrap(err, "failed to open repository")
		}
		return repo, repo.Close, nil

	case "memory":
		return repository.NewMemory(), noop, nil

	default:
		return nil, nil, goerr.New("unknown metadata backend", goerr.V("backend", cfg.metaBackend))
	}
}

// newBlobStore creates the blob store
func (cfg *config) newBlobStore(ctx context.Context) (adapter.BlobStore, error) {
	switch cfg.blobBackend {
	case "gcs":
		if cfg.bucket == "" {
			return nil, goerr.New("bucket is required for the gcs backend")
		}
		return adapter.NewStorage(ctx, cfg.bucket)

	case "local":
		return adapter.NewLocalBlobStore(cfg.blobDir)

	case "memory":
		return adapter.NewMemoryBlobStore(), nil

	default:
		return nil, goerr.New("unknown blob backend", goerr.V("backend", cfg.blobBackend))
	}
}

// newArtifacts creates the lifecycle manager over the configured stores
func (cfg *config) newArtifacts(ctx context.Context) (*artifact.UseCase, func() error, error) {
	repo, closer, err := cfg.newRepository(ctx)
	if err != nil {
		return nil, nil, err
	}
	blobs, err := cfg.newBlobStore(ctx)
	if err != nil {
		_ = closer()
		return nil, nil, err
	}
	return artifact.New(repo, blobs), closer, nil
}

// newClassifier creates the classifier client
func (cfg *config) newClassifier() (adapter.Classifier, error) {
	if cfg.classifierEndpoint == "" {
		return nil, goerr.New("classifier-endpoint is required")
	}
	return adapter.NewHTTPClassifier(cfg.classifierEndpoint), nil
}

// newRegistry loads the explanation generator registry
func (cfg *config) newRegistry() (*adapter.Registry, error) {
	registry, err := adapter.LoadRegistry(cfg.methodsPath)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load methods config")
	}
	return registry, nil
}

// newIdentityResolver creates the identity resolver
func (cfg *config) newIdentityResolver() (adapter.IdentityResolver, error) {
	tokens, err := adapter.ParseTokenMap(cfg.authTokens)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse auth tokens")
	}
	return adapter.NewStaticTokenResolver(tokens), nil
}
