// Package lambdaboot provides shared Lambda cold-start bootstrap logic.
//
// Each Lambda needs some subset of: AWS config, DynamoDB, EventBridge,
// SSM parameter fetch, and startup logging. This package extracts the
// common init patterns so each Lambda's init() is a short composition of
// helpers. Helpers fatal on misconfiguration; a Lambda that cannot reach
// its dependencies should fail its cold start, not limp along.
package lambdaboot

import (
	"context"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/replyflow/replyflow/internal/events"
	"github.com/replyflow/replyflow/internal/logging"
	"github.com/replyflow/replyflow/internal/secrets"
	"github.com/replyflow/replyflow/internal/store"
)

// AWSClients holds the core AWS SDK clients used across Lambdas.
type AWSClients struct {
	Config aws.Config
	SSM    *ssm.Client
}

// InitAWS loads the default AWS config and returns it along with common clients.
func InitAWS() AWSClients {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load AWS config")
	}
	log.Debug().Str("region", cfg.Region).Msg("AWS config loaded")
	return AWSClients{
		Config: cfg,
		SSM:    ssm.NewFromConfig(cfg),
	}
}

// InitDynamo creates the DynamoDB store from the given config and table
// name environment variable. Fatals if the env var is empty.
func InitDynamo(cfg aws.Config, tableEnvVar string) *store.DynamoStore {
	tableName := os.Getenv(tableEnvVar)
	if tableName == "" {
		log.Fatal().Str("envVar", tableEnvVar).Msg("DynamoDB table environment variable is required")
	}
	ddbClient := dynamodb.NewFromConfig(cfg)
	return store.NewDynamoStore(ddbClient, tableName)
}

// InitEventBridge creates an event publisher if the bus env var is set.
// Returns nil (with a warning) when not configured; redispatch is then
// disabled but the pipeline still records failed deliveries.
func InitEventBridge(cfg aws.Config, busEnvVar string) *events.Publisher {
	busName := os.Getenv(busEnvVar)
	if busName == "" {
		log.Warn().Str("envVar", busEnvVar).Msg("Event bus not set, delivery-failed events disabled")
		return nil
	}
	return events.NewPublisher(eventbridge.NewFromConfig(cfg), busName)
}

// LoadParam resolves a required config value: the environment variable
// wins when set, otherwise the named SSM parameter is fetched with
// decryption. Fatals when neither source yields a value.
func LoadParam(ssmClient *ssm.Client, envVar, paramName string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}

	ssmStart := time.Now()
	result, err := ssmClient.GetParameter(context.Background(), &ssm.GetParameterInput{
		Name:           &paramName,
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		log.Fatal().Err(err).Str("param", paramName).Msg("Failed to read parameter from SSM")
	}
	log.Debug().Str("param", paramName).Dur("elapsed", time.Since(ssmStart)).Msg("Parameter loaded from SSM")
	return *result.Parameter.Value
}

// LoadCipher builds the credential cipher from the base64 key stored at
// the given SSM parameter (or env var override). Fatals on a bad key.
func LoadCipher(ssmClient *ssm.Client, envVar, paramName string) *secrets.Cipher {
	encoded := LoadParam(ssmClient, envVar, paramName)
	key, err := secrets.ParseKey(encoded)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid credential encryption key")
	}
	cipher, err := secrets.NewCipher(key)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize credential cipher")
	}
	return cipher
}

// StartupLog is a convenience wrapper for the startup logger.
func StartupLog(name string, initStart time.Time) *logging.StartupLogger {
	return logging.NewStartupLogger(name).InitDuration(time.Since(initStart))
}
