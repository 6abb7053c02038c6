// Package main provides the Lambda entry point for the Instagram comment
// webhook.
//
// This Lambda handles:
//   - GET /webhook: Meta verification handshake
//   - POST /webhook: comment notifications with HMAC-SHA256 validation,
//     run through the comment-to-DM pipeline
//
// Credentials are loaded from SSM Parameter Store at cold start (env var
// overrides apply for local runs):
//   - /replyflow/prod/webhook-verify-token
//   - /replyflow/prod/app-secret
//   - /replyflow/prod/credential-key (base64 AES-256 key)
package main

import (
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/rs/zerolog/log"

	"github.com/replyflow/replyflow/internal/automation"
	"github.com/replyflow/replyflow/internal/lambdaboot"
	"github.com/replyflow/replyflow/internal/logging"
	"github.com/replyflow/replyflow/internal/messenger"
	"github.com/replyflow/replyflow/internal/webhook"
)

var webhookHandler *webhook.Handler

func init() {
	initStart := time.Now()
	logging.Init()

	aws := lambdaboot.InitAWS()
	dynamo := lambdaboot.InitDynamo(aws.Config, "REPLYFLOW_TABLE")
	bus := lambdaboot.InitEventBridge(aws.Config, "REPLYFLOW_EVENT_BUS")

	verifyTokenParam := logging.EnvOrDefault("SSM_WEBHOOK_VERIFY_TOKEN_PARAM", "/replyflow/prod/webhook-verify-token")
	appSecretParam := logging.EnvOrDefault("SSM_APP_SECRET_PARAM", "/replyflow/prod/app-secret")
	credentialKeyParam := logging.EnvOrDefault("SSM_CREDENTIAL_KEY_PARAM", "/replyflow/prod/credential-key")

	verifyToken := lambdaboot.LoadParam(aws.SSM, "WEBHOOK_VERIFY_TOKEN", verifyTokenParam)
	appSecret := lambdaboot.LoadParam(aws.SSM, "APP_SECRET", appSecretParam)
	cipher := lambdaboot.LoadCipher(aws.SSM, "CREDENTIAL_KEY", credentialKeyParam)

	var publisher automation.FailurePublisher
	if bus != nil {
		publisher = bus
	}
	pipeline := automation.NewPipeline(dynamo, messenger.NewClient(), cipher, publisher)
	webhookHandler = webhook.NewHandler(verifyToken, appSecret, pipeline)

	lambdaboot.StartupLog("webhook-lambda", initStart).
		DynamoTable("replyflow", os.Getenv("REPLYFLOW_TABLE")).
		SSMParam("verifyToken", verifyTokenParam).
		SSMParam("appSecret", appSecretParam).
		SSMParam("credentialKey", credentialKeyParam).
		EventBus("failures", os.Getenv("REPLYFLOW_EVENT_BUS")).
		Feature("failureEvents", bus != nil).
		Log()
	log.Info().Msg("Webhook handler initialized")
}

func main() {
	mux := http.NewServeMux()
	mux.Handle("/webhook", webhookHandler)

	adapter := httpadapter.NewV2(mux)
	lambda.Start(adapter.ProxyWithContext)
}
