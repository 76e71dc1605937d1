package aws

import (
	"context"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

const (
	defaultProfile          = "default"
	serviceAccountTokenPath = "/var/run/secrets/kubernetes.io/serviceaccount/token"
)

// LoadAWSConfig loads the default credential chain for the KMS key backend.
// Outside Kubernetes the shared profile named by AWS_PROFILE is used; inside a
// pod the service account (IRSA) credentials are picked up instead.
func LoadAWSConfig(ctx context.Context, regionOverride string) (aws.Config, error) {
	return loadAWSConfig(ctx, regionOverride, serviceAccountTokenPath)
}

func loadAWSConfig(ctx context.Context, regionOverride string, tokenPath string) (aws.Config, error) {
	options := loadOptions(regionOverride, tokenPath)
	return config.LoadDefaultConfig(ctx, options...)
}

func loadOptions(regionOverride string, tokenPath string) []func(*config.LoadOptions) error {
	var options []func(*config.LoadOptions) error
	if !inKubernetes(tokenPath) {
		options = append(options, config.WithSharedConfigProfile(profileFromEnv()))
	}
	if regionOverride != "" {
		options = append(options, config.WithRegion(regionOverride))
	}
	return options
}

func inKubernetes(tokenPath string) bool {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return true
	}
	_, err := os.Stat(tokenPath)
	return err == nil
}

func profileFromEnv() string {
	if profile := os.Getenv("AWS_PROFILE"); profile != "" {
		return profile
	}
	return defaultProfile
}

// GetCallerIdentity reports which principal the KMS backend will act as.
func GetCallerIdentity(ctx context.Context, cfg aws.Config) (*sts.GetCallerIdentityOutput, error) {
	stsClient := sts.NewFromConfig(cfg)
	return stsClient.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
}
