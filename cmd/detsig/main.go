package main

import (
	"fmt"
	"log"
	"os"

	"github.com/Layr-Labs/detsig-go/pkg/config"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "detsig",
		Usage: "Detached digital signatures over files of any size",
		Description: `Generates a fresh key pair per file, signs the file as a stream and writes
the encoded public key and the detached signature next to it.

The signature scheme is always explicit: a verifier must be given the same
--scheme the signer used.`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "scheme",
				Usage:   fmt.Sprintf("Signature scheme: %s", config.GetSupportedSchemesString()),
				Value:   string(config.DefaultScheme),
				EnvVars: []string{config.EnvDetSigScheme},
			},
			&cli.IntFlag{
				Name:    "rsa-key-bits",
				Usage:   "RSA modulus size for rsa-* schemes",
				Value:   config.DefaultRSAKeyBits,
				EnvVars: []string{config.EnvDetSigRSAKeyBits},
			},
			&cli.IntFlag{
				Name:    "chunk-size",
				Usage:   "Bytes read from the message per chunk",
				Value:   config.DefaultChunkSize,
				EnvVars: []string{config.EnvDetSigChunkSize},
			},
			&cli.StringFlag{
				Name:    "key-backend",
				Usage:   "Where private keys are created: local or aws-kms",
				Value:   string(config.KeyBackendLocal),
				EnvVars: []string{config.EnvDetSigKeyBackend},
			},
			&cli.StringFlag{
				Name:    "aws-region",
				Usage:   "AWS region override for the aws-kms backend",
				EnvVars: []string{config.EnvDetSigAWSRegion},
			},
			&cli.StringFlag{
				Name:    "kms-alias-prefix",
				Usage:   "Prefix for aliases of keys created in AWS KMS",
				Value:   config.DefaultKMSAliasPrefix,
				EnvVars: []string{config.EnvDetSigKMSAliasPrefix},
			},
			&cli.Float64Flag{
				Name:    "kms-requests-per-second",
				Usage:   "Rate limit for AWS KMS calls",
				Value:   config.DefaultKMSRequestsPerSec,
				EnvVars: []string{config.EnvDetSigKMSRequestsPerSec},
			},
			&cli.StringFlag{
				Name:    "store",
				Usage:   "Signature record store: none, badger or redis",
				Value:   string(config.StoreTypeNone),
				EnvVars: []string{config.EnvDetSigStore},
			},
			&cli.StringFlag{
				Name:    "badger-path",
				Usage:   "Data directory for the badger store",
				Value:   config.DefaultBadgerPath,
				EnvVars: []string{config.EnvDetSigBadgerPath},
			},
			&cli.StringFlag{
				Name:    "redis-address",
				Usage:   "host:port of the redis store",
				EnvVars: []string{config.EnvDetSigRedisAddress},
			},
			&cli.StringFlag{
				Name:    "redis-password",
				EnvVars: []string{config.EnvDetSigRedisPassword},
			},
			&cli.IntFlag{
				Name:    "redis-db",
				EnvVars: []string{config.EnvDetSigRedisDB},
			},
			&cli.StringFlag{
				Name:    "redis-key-prefix",
				EnvVars: []string{config.EnvDetSigRedisKeyPrefix},
			},
			&cli.StringFlag{
				Name:    "output-dir",
				Aliases: []string{"o"},
				Usage:   "Directory for the public key and signature files (default: next to the signed file)",
				EnvVars: []string{config.EnvDetSigOutputDir},
			},
			&cli.BoolFlag{
				Name:    "pem",
				Usage:   "Write the public key as PEM instead of DER",
				EnvVars: []string{config.EnvDetSigPEM},
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Usage:   "Enable verbose logging",
				EnvVars: []string{config.EnvDetSigVerbose},
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "sign",
				Usage:     "Sign a file with a freshly generated key pair",
				ArgsUsage: "<datafile>",
				Action:    signCommand,
			},
			{
				Name:      "verify",
				Usage:     "Verify a detached signature",
				ArgsUsage: "<publickeyfile> <signaturefile> <datafile>",
				Action:    verifyCommand,
			},
			{
				Name:      "verify-record",
				Usage:     "Verify a file against a stored signature record",
				ArgsUsage: "<datafile>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "id",
						Usage:    "Signature record id",
						Required: true,
					},
				},
				Action: verifyRecordCommand,
			},
			{
				Name:   "records",
				Usage:  "List stored signature records",
				Action: listRecordsCommand,
				Subcommands: []*cli.Command{
					{
						Name:  "delete",
						Usage: "Delete a stored signature record",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:     "id",
								Usage:    "Signature record id",
								Required: true,
							},
						},
						Action: deleteRecordCommand,
					},
				},
			},
			{
				Name:   "schemes",
				Usage:  "List the available signature schemes",
				Action: schemesCommand,
			},
			{
				Name:  "export-key",
				Usage: "Write the public key of an existing AWS KMS key",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "key-id",
						Usage:    "KMS key id, ARN or alias",
						Required: true,
					},
				},
				Action: exportKeyCommand,
			},
		},
	}
}

func parseConfig(c *cli.Context) *config.DetSigConfig {
	cfg := config.NewDefaultConfig()
	cfg.Scheme = config.SignatureScheme(c.String("scheme"))
	cfg.RSAKeyBits = c.Int("rsa-key-bits")
	cfg.ChunkSize = c.Int("chunk-size")
	cfg.KeyBackend = config.KeyBackend(c.String("key-backend"))
	cfg.AWSRegion = c.String("aws-region")
	cfg.KMSAliasPrefix = c.String("kms-alias-prefix")
	cfg.KMSRequestsPerSecond = c.Float64("kms-requests-per-second")
	cfg.Store = config.StoreType(c.String("store"))
	cfg.BadgerPath = c.String("badger-path")
	cfg.RedisAddress = c.String("redis-address")
	cfg.RedisPassword = c.String("redis-password")
	cfg.RedisDB = c.Int("redis-db")
	cfg.RedisKeyPrefix = c.String("redis-key-prefix")
	cfg.PEMOutput = c.Bool("pem")
	cfg.Debug = c.Bool("verbose")
	return cfg
}
