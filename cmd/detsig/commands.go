package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/Layr-Labs/detsig-go/internal/aws"
	"github.com/Layr-Labs/detsig-go/internal/keyGenerator"
	"github.com/Layr-Labs/detsig-go/internal/keyGenerator/awsKms"
	"github.com/Layr-Labs/detsig-go/internal/keyGenerator/localKeyGenerator"
	"github.com/Layr-Labs/detsig-go/pkg/config"
	"github.com/Layr-Labs/detsig-go/pkg/logger"
	"github.com/Layr-Labs/detsig-go/pkg/metrics"
	"github.com/Layr-Labs/detsig-go/pkg/persistence"
	"github.com/Layr-Labs/detsig-go/pkg/persistence/badger"
	"github.com/Layr-Labs/detsig-go/pkg/persistence/redis"
	"github.com/Layr-Labs/detsig-go/pkg/signature"
	"github.com/Layr-Labs/detsig-go/pkg/signatureService"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// runtime holds everything one command invocation needs and must be closed
// before the command returns.
type runtime struct {
	config   *config.DetSigConfig
	logger   *zap.Logger
	registry *prometheus.Registry
	store    persistence.IArtifactStore
	service  *signatureService.SignatureService
}

func newRuntime(c *cli.Context) (*runtime, error) {
	cfg := parseConfig(c)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	// every command is its own process, so an in-memory store would never be read back
	if cfg.Store == config.StoreTypeMemory {
		return nil, fmt.Errorf("invalid configuration: store %q does not persist between commands, use %q or %q",
			config.StoreTypeMemory, config.StoreTypeBadger, config.StoreTypeRedis)
	}

	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Debug})
	if err != nil {
		return nil, err
	}

	kg, err := newKeyGenerator(c.Context, cfg, l)
	if err != nil {
		_ = l.Sync()
		return nil, err
	}

	store, err := newStore(cfg, l)
	if err != nil {
		_ = l.Sync()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	m, err := metrics.NewMetrics(registry)
	if err != nil {
		_ = closeStore(store)
		_ = l.Sync()
		return nil, err
	}

	service, err := signatureService.NewSignatureService(cfg, kg, store, m, l)
	if err != nil {
		_ = closeStore(store)
		_ = l.Sync()
		return nil, err
	}

	return &runtime{
		config:   cfg,
		logger:   l,
		registry: registry,
		store:    store,
		service:  service,
	}, nil
}

func (r *runtime) close() error {
	metrics.LogSummary(r.registry, r.logger)
	err := closeStore(r.store)
	_ = r.logger.Sync()
	return err
}

func closeStore(store persistence.IArtifactStore) error {
	if store == nil {
		return nil
	}
	return store.Close()
}

func newKeyGenerator(ctx context.Context, cfg *config.DetSigConfig, l *zap.Logger) (keyGenerator.IKeyGenerator, error) {
	switch cfg.KeyBackend {
	case config.KeyBackendAWSKMS:
		awsCfg, err := aws.LoadAWSConfig(ctx, cfg.AWSRegion)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		identity, err := aws.GetCallerIdentity(ctx, awsCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve AWS caller identity: %w", err)
		}
		l.Sugar().Infow("Using AWS KMS key backend",
			"account", awsSafe(identity.Account),
			"arn", awsSafe(identity.Arn),
			"region", awsCfg.Region,
		)
		return awsKms.NewAWSKMSKeyGenerator(awsCfg, cfg, l), nil
	default:
		return localKeyGenerator.NewLocalKeyGenerator(cfg.RSAKeyBits, l), nil
	}
}

func awsSafe(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func newStore(cfg *config.DetSigConfig, l *zap.Logger) (persistence.IArtifactStore, error) {
	switch cfg.Store {
	case config.StoreTypeBadger:
		return badger.NewBadgerPersistence(cfg.BadgerPath, l)
	case config.StoreTypeRedis:
		return redis.NewRedisPersistence(&redis.RedisConfig{
			Address:   cfg.RedisAddress,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.RedisKeyPrefix,
		}, l)
	default:
		return nil, nil
	}
}

// withRuntime runs fn against a fresh runtime and merges the close error into its result.
func withRuntime(c *cli.Context, fn func(r *runtime) error) (err error) {
	r, err := newRuntime(c)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, r.close())
	}()
	return fn(r)
}

func signCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: %s sign <datafile>", c.App.Name)
	}
	return withRuntime(c, func(r *runtime) error {
		outcome, err := r.service.SignFile(c.Context, c.Args().First(), c.String("output-dir"))
		if err != nil {
			return err
		}
		out := c.App.Writer
		fmt.Fprintf(out, "Scheme: %s\n", outcome.Scheme)
		fmt.Fprintf(out, "Public key written to: %s\n", outcome.PublicKeyPath)
		fmt.Fprintf(out, "Signature written to: %s\n", outcome.SignaturePath)
		fmt.Fprintf(out, "Bytes signed: %d\n", outcome.BytesSigned)
		if outcome.RecordId != "" {
			fmt.Fprintf(out, "Record id: %s\n", outcome.RecordId)
		}
		return nil
	})
}

func verifyCommand(c *cli.Context) error {
	if c.NArg() != 3 {
		return fmt.Errorf("usage: %s verify <publickeyfile> <signaturefile> <datafile>", c.App.Name)
	}
	return withRuntime(c, func(r *runtime) error {
		args := c.Args()
		valid, err := r.service.VerifyFiles(c.Context, args.Get(0), args.Get(1), args.Get(2))
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "Signature verified: %t\n", valid)
		return nil
	})
}

func verifyRecordCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: %s verify-record --id <record> <datafile>", c.App.Name)
	}
	return withRuntime(c, func(r *runtime) error {
		valid, err := r.service.VerifyRecord(c.Context, c.String("id"), c.Args().First())
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "Signature verified: %t\n", valid)
		return nil
	})
}

func listRecordsCommand(c *cli.Context) error {
	return withRuntime(c, func(r *runtime) error {
		records, err := r.service.ListRecords()
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Fprintln(c.App.Writer, "No signature records")
			return nil
		}

		w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCREATED\tSCHEME\tBACKEND\tMESSAGE\tBYTES")
		for _, record := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n",
				record.Id,
				time.Unix(record.CreatedAt, 0).UTC().Format(time.RFC3339),
				record.Scheme,
				record.KeyBackend,
				record.MessageName,
				record.MessageSize,
			)
		}
		return w.Flush()
	})
}

func deleteRecordCommand(c *cli.Context) error {
	return withRuntime(c, func(r *runtime) error {
		id := c.String("id")
		if err := r.service.DeleteRecord(id); err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "Deleted record: %s\n", id)
		return nil
	})
}

func schemesCommand(c *cli.Context) error {
	w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SCHEME\tKEY\tDIGEST\tBACKENDS\tDESCRIPTION")
	for _, scheme := range signature.SupportedSchemes() {
		backends := []string{string(config.KeyBackendLocal)}
		if awsKms.IsSchemeSupported(scheme.Name()) {
			backends = append(backends, string(config.KeyBackendAWSKMS))
		}
		marker := ""
		if scheme.Name() == config.DefaultScheme {
			marker = " (default)"
		}
		fmt.Fprintf(w, "%s%s\t%s\t%s\t%s\t%s\n",
			scheme.Name(), marker,
			scheme.KeyAlgorithm(),
			scheme.DigestName(),
			strings.Join(backends, ","),
			scheme.Description(),
		)
	}
	return w.Flush()
}

func exportKeyCommand(c *cli.Context) error {
	if config.KeyBackend(c.String("key-backend")) != config.KeyBackendAWSKMS {
		return fmt.Errorf("export-key requires --key-backend %s: local keys do not outlive the signing session", config.KeyBackendAWSKMS)
	}
	return withRuntime(c, func(r *runtime) error {
		path, err := r.service.ExportPublicKey(c.Context, c.String("key-id"), c.String("output-dir"))
		if err != nil {
			return err
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		fmt.Fprintf(c.App.Writer, "Public key written to: %s\n", abs)
		return nil
	})
}
