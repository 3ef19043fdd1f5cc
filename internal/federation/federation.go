// Package federation wraps the provider's federation APIs: the
// assertion-for-credentials exchange and the console sign-in URL.
package federation

import (
	"context"
	"errors"
	"fmt"

	"github.com/DevLabFoundry/aws-session-keeper/internal/credstore"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
	"github.com/sirupsen/logrus"
)

var ErrNoCredentials = errors.New("federation response missing credentials")

// STSAPI is the STS surface used for the assertion exchange.
type STSAPI interface {
	AssumeRoleWithSAML(ctx context.Context, params *sts.AssumeRoleWithSAMLInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleWithSAMLOutput, error)
}

type Exchanger struct {
	svc STSAPI
	log *logrus.Entry
}

func NewExchanger(svc STSAPI) *Exchanger {
	return &Exchanger{
		svc: svc,
		log: logrus.WithField("component", "federation"),
	}
}

// Exchange trades a captured assertion for temporary credentials. It
// fails explicitly when the response lacks any credential field or the
// expiry.
func (e *Exchanger) Exchange(ctx context.Context, roleArn, principalArn, assertion string, durationSeconds int32) (credstore.Credentials, error) {
	out, err := e.svc.AssumeRoleWithSAML(ctx, &sts.AssumeRoleWithSAMLInput{
		RoleArn:         aws.String(roleArn),
		PrincipalArn:    aws.String(principalArn),
		SAMLAssertion:   aws.String(assertion),
		DurationSeconds: aws.Int32(durationSeconds),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			return credstore.Credentials{}, fmt.Errorf("assume role with saml (%s): %s: %w", apiErr.ErrorCode(), apiErr.ErrorMessage(), err)
		}
		return credstore.Credentials{}, err
	}

	c := out.Credentials
	if c == nil || c.AccessKeyId == nil || c.SecretAccessKey == nil || c.SessionToken == nil || c.Expiration == nil {
		return credstore.Credentials{}, ErrNoCredentials
	}

	e.log.WithField("expiration", c.Expiration).Debug("assertion exchanged for temporary credentials")
	return credstore.Credentials{
		AccessKeyID:     *c.AccessKeyId,
		SecretAccessKey: *c.SecretAccessKey,
		SessionToken:    *c.SessionToken,
		Expiration:      *c.Expiration,
	}, nil
}
