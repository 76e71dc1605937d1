package config

import (
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/util/validation/field"
)

// Environment variable names for detsig configuration
const (
	EnvDetSigScheme            = "DETSIG_SCHEME"
	EnvDetSigRSAKeyBits        = "DETSIG_RSA_KEY_BITS"
	EnvDetSigChunkSize         = "DETSIG_CHUNK_SIZE"
	EnvDetSigKeyBackend        = "DETSIG_KEY_BACKEND"
	EnvDetSigAWSRegion         = "DETSIG_AWS_REGION"
	EnvDetSigKMSAliasPrefix    = "DETSIG_KMS_ALIAS_PREFIX"
	EnvDetSigKMSRequestsPerSec = "DETSIG_KMS_REQUESTS_PER_SECOND"
	EnvDetSigStore             = "DETSIG_STORE"
	EnvDetSigBadgerPath        = "DETSIG_BADGER_PATH"
	EnvDetSigRedisAddress      = "DETSIG_REDIS_ADDRESS"
	EnvDetSigRedisPassword     = "DETSIG_REDIS_PASSWORD"
	EnvDetSigRedisDB           = "DETSIG_REDIS_DB"
	EnvDetSigRedisKeyPrefix    = "DETSIG_REDIS_KEY_PREFIX"
	EnvDetSigOutputDir         = "DETSIG_OUTPUT_DIR"
	EnvDetSigPEM               = "DETSIG_PEM"
	EnvDetSigVerbose           = "DETSIG_VERBOSE"
)

type SignatureScheme string

func (s SignatureScheme) String() string {
	return string(s)
}

const (
	SchemeECDSAP256SHA256    SignatureScheme = "ecdsa-p256-sha256"
	SchemeECDSAP384SHA384    SignatureScheme = "ecdsa-p384-sha384"
	SchemeEd25519phSHA512    SignatureScheme = "ed25519ph-sha512"
	SchemeRSAPSSSHA256       SignatureScheme = "rsa-pss-sha256"
	SchemeRSAPKCS1v15SHA256  SignatureScheme = "rsa-pkcs1v15-sha256"
	SchemeSecp256k1Keccak256 SignatureScheme = "secp256k1-keccak256"
)

// GetSupportedSchemes returns every scheme name the signature registry knows about
func GetSupportedSchemes() []SignatureScheme {
	return []SignatureScheme{
		SchemeECDSAP256SHA256,
		SchemeECDSAP384SHA384,
		SchemeEd25519phSHA512,
		SchemeRSAPSSSHA256,
		SchemeRSAPKCS1v15SHA256,
		SchemeSecp256k1Keccak256,
	}
}

// GetSupportedSchemesString returns supported schemes for CLI help
func GetSupportedSchemesString() string {
	names := make([]string, 0, len(GetSupportedSchemes()))
	for _, s := range GetSupportedSchemes() {
		names = append(names, s.String())
	}
	return strings.Join(names, ", ")
}

func IsSupportedScheme(s SignatureScheme) bool {
	for _, supported := range GetSupportedSchemes() {
		if s == supported {
			return true
		}
	}
	return false
}

// IsRSAScheme reports whether the scheme's strength is governed by RSAKeyBits
func IsRSAScheme(s SignatureScheme) bool {
	return s == SchemeRSAPSSSHA256 || s == SchemeRSAPKCS1v15SHA256
}

type KeyBackend string

const (
	KeyBackendLocal  KeyBackend = "local"
	KeyBackendAWSKMS KeyBackend = "aws-kms"
)

type StoreType string

const (
	StoreTypeNone   StoreType = "none"
	StoreTypeMemory StoreType = "memory"
	StoreTypeBadger StoreType = "badger"
	StoreTypeRedis  StoreType = "redis"
)

const (
	DefaultScheme            = SchemeECDSAP256SHA256
	DefaultRSAKeyBits        = 3072
	MinRSAKeyBits            = 2048
	MaxRSAKeyBits            = 8192
	DefaultChunkSize         = 1024
	MaxChunkSize             = 16 * 1024 * 1024
	DefaultPublicKeyFileName = "detsig.key.pub"
	DefaultSignatureSuffix   = ".sig"
	DefaultKMSAliasPrefix    = "detsig"
	DefaultKMSRequestsPerSec = 10.0
	DefaultBadgerPath        = "./detsig-data"
)

// DetSigConfig represents the complete configuration for the signing and verification tools
type DetSigConfig struct {
	// Cryptography
	Scheme     SignatureScheme `json:"scheme"`
	RSAKeyBits int             `json:"rsa_key_bits"`
	ChunkSize  int             `json:"chunk_size"`

	// Key backend
	KeyBackend           KeyBackend `json:"key_backend"`
	AWSRegion            string     `json:"aws_region"`
	KMSAliasPrefix       string     `json:"kms_alias_prefix"`
	KMSRequestsPerSecond float64    `json:"kms_requests_per_second"`

	// Artifact store
	Store          StoreType `json:"store"`
	BadgerPath     string    `json:"badger_path"`
	RedisAddress   string    `json:"redis_address"`
	RedisPassword  string    `json:"redis_password"`
	RedisDB        int       `json:"redis_db"`
	RedisKeyPrefix string    `json:"redis_key_prefix"`

	// Artifacts on disk
	PublicKeyFileName string `json:"public_key_file_name"`
	SignatureSuffix   string `json:"signature_suffix"`
	PEMOutput         bool   `json:"pem_output"`

	Debug bool `json:"debug"`
}

func NewDefaultConfig() *DetSigConfig {
	return &DetSigConfig{
		Scheme:               DefaultScheme,
		RSAKeyBits:           DefaultRSAKeyBits,
		ChunkSize:            DefaultChunkSize,
		KeyBackend:           KeyBackendLocal,
		KMSAliasPrefix:       DefaultKMSAliasPrefix,
		KMSRequestsPerSecond: DefaultKMSRequestsPerSec,
		Store:                StoreTypeNone,
		BadgerPath:           DefaultBadgerPath,
		PublicKeyFileName:    DefaultPublicKeyFileName,
		SignatureSuffix:      DefaultSignatureSuffix,
	}
}

// Validate validates the configuration and returns every problem found at once
func (c *DetSigConfig) Validate() error {
	var allErrors field.ErrorList

	if !IsSupportedScheme(c.Scheme) {
		allErrors = append(allErrors, field.NotSupported(field.NewPath("scheme"), c.Scheme, schemeNames()))
	}
	if IsRSAScheme(c.Scheme) && (c.RSAKeyBits < MinRSAKeyBits || c.RSAKeyBits > MaxRSAKeyBits) {
		allErrors = append(allErrors, field.Invalid(field.NewPath("rsaKeyBits"), c.RSAKeyBits,
			fmt.Sprintf("must be between %d and %d", MinRSAKeyBits, MaxRSAKeyBits)))
	}
	if c.ChunkSize < 1 || c.ChunkSize > MaxChunkSize {
		allErrors = append(allErrors, field.Invalid(field.NewPath("chunkSize"), c.ChunkSize,
			fmt.Sprintf("must be between 1 and %d", MaxChunkSize)))
	}

	switch c.KeyBackend {
	case KeyBackendLocal:
	case KeyBackendAWSKMS:
		if c.KMSRequestsPerSecond <= 0 {
			allErrors = append(allErrors, field.Invalid(field.NewPath("kmsRequestsPerSecond"), c.KMSRequestsPerSecond, "must be positive"))
		}
		if c.KMSAliasPrefix == "" {
			allErrors = append(allErrors, field.Required(field.NewPath("kmsAliasPrefix"), "kmsAliasPrefix is required for the aws-kms backend"))
		}
	default:
		allErrors = append(allErrors, field.NotSupported(field.NewPath("keyBackend"), c.KeyBackend,
			[]string{string(KeyBackendLocal), string(KeyBackendAWSKMS)}))
	}

	switch c.Store {
	case StoreTypeNone, StoreTypeMemory:
	case StoreTypeBadger:
		if c.BadgerPath == "" {
			allErrors = append(allErrors, field.Required(field.NewPath("badgerPath"), "badgerPath is required for the badger store"))
		}
	case StoreTypeRedis:
		if c.RedisAddress == "" {
			allErrors = append(allErrors, field.Required(field.NewPath("redisAddress"), "redisAddress is required for the redis store"))
		}
		if c.RedisDB < 0 || c.RedisDB > 15 {
			allErrors = append(allErrors, field.Invalid(field.NewPath("redisDB"), c.RedisDB, "must be between 0 and 15"))
		}
	default:
		allErrors = append(allErrors, field.NotSupported(field.NewPath("store"), c.Store,
			[]string{string(StoreTypeNone), string(StoreTypeMemory), string(StoreTypeBadger), string(StoreTypeRedis)}))
	}

	if c.PublicKeyFileName == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("publicKeyFileName"), "publicKeyFileName is required"))
	}
	if c.SignatureSuffix == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("signatureSuffix"), "signatureSuffix is required"))
	}

	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

func schemeNames() []string {
	names := make([]string, 0, len(GetSupportedSchemes()))
	for _, s := range GetSupportedSchemes() {
		names = append(names, s.String())
	}
	return names
}
