// Package credentials resolves the AWS credentials an instance signs
// CloudWatch requests with.
package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials/ec2rolecreds"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/sirupsen/logrus"
)

// RoleAny selects whatever role is attached to the instance profile.
const RoleAny = "any"

// securityCredentialsPath is relative to the metadata service's
// /latest/meta-data/ prefix.
const securityCredentialsPath = "iam/security-credentials/"

// MetadataAPI is the subset of the instance metadata client used here.
type MetadataAPI interface {
	GetMetadata(
		ctx context.Context,
		params *imds.GetMetadataInput,
		optFns ...func(*imds.Options),
	) (*imds.GetMetadataOutput, error)
}

// Resolve returns the credentials provider for role.
//
// An empty role returns a nil provider, leaving the SDK default chain in
// charge. For any other role the provider is returned even when the first
// retrieval fails; the error is reported alongside so the caller can run
// degraded while later retrievals retry.
func Resolve(
	ctx context.Context,
	log logrus.FieldLogger,
	role string,
	client MetadataAPI,
) (aws.CredentialsProvider, error) {
	log = log.WithField("component", "credentials")

	var provider aws.CredentialsProvider

	switch role {
	case "":
		return nil, nil
	case RoleAny:
		provider = aws.NewCredentialsCache(ec2rolecreds.New(func(o *ec2rolecreds.Options) {
			o.Client = client
		}))
	default:
		provider = aws.NewCredentialsCache(&RoleProvider{role: role, client: client})
	}

	creds, err := provider.Retrieve(ctx)
	if err != nil {
		log.WithError(err).WithField("iam_role", role).Error("Failed to retrieve instance credentials")

		return provider, fmt.Errorf("retrieving credentials for role %q: %w", role, err)
	}

	fields := logrus.Fields{
		"iam_role": role,
		"source":   creds.Source,
	}

	if creds.CanExpire {
		fields["expires"] = creds.Expires.Format(time.RFC3339)
	}

	log.WithFields(fields).Info("Resolved instance credentials")

	return provider, nil
}

// RoleProvider reads the credentials of one named instance role from the
// metadata service.
type RoleProvider struct {
	role   string
	client MetadataAPI
}

var _ aws.CredentialsProvider = (*RoleProvider)(nil)

// NewRoleProvider creates a provider for role.
func NewRoleProvider(role string, client MetadataAPI) *RoleProvider {
	return &RoleProvider{role: role, client: client}
}

// roleCredentials is the document served for a role.
type roleCredentials struct {
	Code            string    `json:"Code"`
	AccessKeyID     string    `json:"AccessKeyId"`
	SecretAccessKey string    `json:"SecretAccessKey"`
	Token           string    `json:"Token"`
	Expiration      time.Time `json:"Expiration"`
}

// Retrieve fetches and decodes the role's credentials document.
func (p *RoleProvider) Retrieve(ctx context.Context) (aws.Credentials, error) {
	out, err := p.client.GetMetadata(ctx, &imds.GetMetadataInput{
		Path: securityCredentialsPath + p.role,
	})
	if err != nil {
		return aws.Credentials{}, fmt.Errorf("fetching role credentials: %w", err)
	}
	defer out.Content.Close()

	body, err := io.ReadAll(out.Content)
	if err != nil {
		return aws.Credentials{}, fmt.Errorf("reading role credentials: %w", err)
	}

	var doc roleCredentials
	if err := json.Unmarshal(body, &doc); err != nil {
		return aws.Credentials{}, fmt.Errorf("decoding role credentials: %w", err)
	}

	if doc.Code != "" && doc.Code != "Success" {
		return aws.Credentials{}, fmt.Errorf("metadata service returned code %q", doc.Code)
	}

	if doc.AccessKeyID == "" || doc.SecretAccessKey == "" {
		return aws.Credentials{}, fmt.Errorf("role credentials are incomplete")
	}

	return aws.Credentials{
		AccessKeyID:     doc.AccessKeyID,
		SecretAccessKey: doc.SecretAccessKey,
		SessionToken:    doc.Token,
		Source:          "InstanceRole:" + p.role,
		CanExpire:       !doc.Expiration.IsZero(),
		Expires:         doc.Expiration,
	}, nil
}
