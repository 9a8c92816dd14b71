package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	rdsauth "github.com/aws/aws-sdk-go-v2/feature/rds/auth"

	"github.com/stacklok/seatwatch/internal/config"
)

const (
	regionDetect = "detect"
	imdsTimeout  = 2 * time.Second
)

// rdsIAMIssuer builds RDS IAM tokens with the workload's AWS credentials
type rdsIAMIssuer struct {
	endpoint    string
	region      string
	credentials aws.CredentialsProvider
}

func newRDSIAMIssuer(ctx context.Context, cfg *config.DatabaseConfig) (*rdsIAMIssuer, error) {
	region, err := resolveRegion(ctx, cfg.DynamicAuth.AWSRDSIAM.Region)
	if err != nil {
		return nil, err
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &rdsIAMIssuer{
		endpoint:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		region:      region,
		credentials: awsCfg.Credentials,
	}, nil
}

func (i *rdsIAMIssuer) token(ctx context.Context, user string) (string, error) {
	token, err := rdsauth.BuildAuthToken(ctx, i.endpoint, i.region, user, i.credentials)
	if err != nil {
		return "", fmt.Errorf("failed to build authentication token: %w", err)
	}
	return token, nil
}

// resolveRegion returns region, reading it from instance metadata when it is "detect"
func resolveRegion(ctx context.Context, region string) (string, error) {
	switch region {
	case "":
		return "", fmt.Errorf("AWS RDS IAM region is not configured")
	case regionDetect:
		client := imds.New(imds.Options{
			HTTPClient: &http.Client{Timeout: imdsTimeout},
		})
		out, err := client.GetRegion(ctx, &imds.GetRegionInput{})
		if err != nil {
			return "", fmt.Errorf("failed to get region from IMDS: %w", err)
		}
		return out.Region, nil
	default:
		return region, nil
	}
}
