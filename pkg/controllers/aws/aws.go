package aws

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/smithy-go/logging"
	"github.com/pkg/errors"
)

// SSMAPI is the subset of the SSM client used by the controller.
type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// SecretsManagerAPI is the subset of the Secrets Manager client used by the controller.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

type Controller struct {
	logger *slog.Logger

	config    *aws.Config
	ssmClient SSMAPI
	smClient  SecretsManagerAPI
}

type Option func(*Controller)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

func WithConfig(cfg aws.Config) Option {
	return func(c *Controller) {
		c.config = &cfg
	}
}

// WithClients replaces the service clients, e.g. with test doubles.
func WithClients(ssmClient SSMAPI, smClient SecretsManagerAPI) Option {
	return func(c *Controller) {
		c.ssmClient = ssmClient
		c.smClient = smClient
	}
}

func NewController(ctx context.Context, opts ...Option) (*Controller, error) {
	_inst := &Controller{}
	for _, opt := range opts {
		opt(_inst)
	}
	if _inst.logger == nil {
		_inst.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	_inst.logger = _inst.logger.With("controller", "AWSController")

	if _inst.ssmClient != nil && _inst.smClient != nil {
		return _inst, nil
	}

	if _inst.config == nil {
		_inst.logger.Debug("loading default AWSController configuration...")
		cfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "failed to load AWSController configuration")
		}
		cfg.Logger = newAWSLogger(_inst.logger)
		_inst.config = &cfg
	}

	if _inst.ssmClient == nil {
		_inst.ssmClient = ssm.NewFromConfig(*_inst.config)
	}
	if _inst.smClient == nil {
		_inst.smClient = secretsmanager.NewFromConfig(*_inst.config)
	}
	return _inst, nil
}

func (a *Controller) GetSystemsManagerSecret(ctx context.Context, path string, decrypt bool) (string, error) {
	a.logger.With("path", path).Debug("fetching SSM parameter...")
	ssmResponse, err := a.ssmClient.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(path),
		WithDecryption: aws.Bool(decrypt),
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to load SSM parameter")
	}
	if ssmResponse.Parameter == nil || ssmResponse.Parameter.Value == nil {
		return "", errors.Errorf("SSM parameter %s has no value", path)
	}
	return *ssmResponse.Parameter.Value, nil
}

func (a *Controller) GetSystemsManagerSecretKey(ctx context.Context, path, key string, decrypt bool) (any, error) {
	a.logger.With("path", path, "key", key, "decrypt", decrypt).Debug("fetching SSM parameter key...")
	value, err := a.GetSystemsManagerSecret(ctx, path, decrypt)
	if err != nil {
		return nil, err
	}
	return lookupJSONKey(value, key)
}

func (a *Controller) GetSecretManagerSecret(ctx context.Context, path string) (string, error) {
	a.logger.With("path", path).Debug("fetching Secrets Manager secret...")
	smResponse, err := a.smClient.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(path),
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to load Secrets Manager secret")
	}
	if smResponse.SecretString == nil {
		return "", errors.Errorf("Secrets Manager secret %s has no string value", path)
	}
	return *smResponse.SecretString, nil
}

func (a *Controller) GetSecretManagerSecretKey(ctx context.Context, path, key string) (any, error) {
	a.logger.With("path", path).With("key", key).Debug("fetching Secrets Manager secret key...")
	value, err := a.GetSecretManagerSecret(ctx, path)
	if err != nil {
		return nil, err
	}
	return lookupJSONKey(value, key)
}

func lookupJSONKey(document, key string) (any, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(document), &raw); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal secret")
	}
	if len(raw) == 0 {
		return nil, errors.New("empty secret")
	}
	value, ok := raw[key]
	if !ok {
		return nil, errors.Errorf("secret has no key %q", key)
	}
	return value, nil
}

type awsLogger struct {
	logger *slog.Logger
}

func newAWSLogger(logger *slog.Logger) *awsLogger {
	return &awsLogger{logger}
}

func (a *awsLogger) Logf(classification logging.Classification, format string, args ...any) {
	a.logger.Debug(fmt.Sprintf("[%v] %s", classification, fmt.Sprintf(format, args...)))
}
