// Package main provides the replyflow-admin CLI for managing connected
// accounts, campaigns, and keywords directly against the DynamoDB table.
//
// This is an operator tool; the webhook pipeline is the only runtime
// consumer of the data it writes. Access tokens are encrypted with the
// same credential key the dispatcher uses, loaded from SSM (or the
// CREDENTIAL_KEY env var for local runs).
//
// Examples:
//
//	replyflow-admin account add --account-id acc1 --user-id u1 --page-id p1 --ig-business-id ig1 --access-token EAAB...
//	replyflow-admin campaign add --media-id 17900001 --account-id acc1 --name "Launch post" --template "Oi {first_name}! Link: {link}"
//	replyflow-admin campaign toggle --media-id 17900001 --active=false
//	replyflow-admin campaign list
//	replyflow-admin keyword add --media-id 17900001 --word preco
//	replyflow-admin keyword remove --media-id 17900001 --keyword-id kw-abc
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/replyflow/replyflow/internal/automation"
	"github.com/replyflow/replyflow/internal/lambdaboot"
	"github.com/replyflow/replyflow/internal/logging"
	"github.com/replyflow/replyflow/internal/secrets"
	"github.com/replyflow/replyflow/internal/store"
)

// CLI flags
var (
	accountIDFlag    string
	userIDFlag       string
	pageIDFlag       string
	igBusinessIDFlag string
	accessTokenFlag  string

	mediaIDFlag   string
	nameFlag      string
	captionFlag   string
	templateFlag  string
	listenAllFlag bool
	activeFlag    bool

	wordFlag      string
	keywordIDFlag string
)

var rootCmd = &cobra.Command{
	Use:   "replyflow-admin",
	Short: "Manage ReplyFlow accounts, campaigns, and keywords",
}

var accountCmd = &cobra.Command{Use: "account", Short: "Manage connected accounts"}
var campaignCmd = &cobra.Command{Use: "campaign", Short: "Manage comment-to-DM campaigns"}
var keywordCmd = &cobra.Command{Use: "keyword", Short: "Manage campaign trigger keywords"}

var accountAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Connect an account, encrypting its access token",
	Run:   runAccountAdd,
}

var campaignAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create or replace the campaign for a media post",
	Run:   runCampaignAdd,
}

var campaignToggleCmd = &cobra.Command{
	Use:   "toggle",
	Short: "Activate or pause a campaign",
	Run:   runCampaignToggle,
}

var campaignListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all campaigns",
	Run:   runCampaignList,
}

var keywordAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a trigger keyword to a campaign",
	Run:   runKeywordAdd,
}

var keywordRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove a trigger keyword from a campaign",
	Run:   runKeywordRemove,
}

func init() {
	accountAddCmd.Flags().StringVar(&accountIDFlag, "account-id", "", "Account ID (generated when empty)")
	accountAddCmd.Flags().StringVar(&userIDFlag, "user-id", "", "Owning user ID")
	accountAddCmd.Flags().StringVar(&pageIDFlag, "page-id", "", "Facebook Page ID")
	accountAddCmd.Flags().StringVar(&igBusinessIDFlag, "ig-business-id", "", "Instagram Business account ID")
	accountAddCmd.Flags().StringVar(&accessTokenFlag, "access-token", "", "Page access token (encrypted at rest)")
	accountAddCmd.MarkFlagRequired("user-id")
	accountAddCmd.MarkFlagRequired("ig-business-id")
	accountAddCmd.MarkFlagRequired("access-token")

	campaignAddCmd.Flags().StringVar(&mediaIDFlag, "media-id", "", "Instagram media ID the campaign is bound to")
	campaignAddCmd.Flags().StringVar(&accountIDFlag, "account-id", "", "Owning account ID")
	campaignAddCmd.Flags().StringVar(&nameFlag, "name", "", "Campaign display name")
	campaignAddCmd.Flags().StringVar(&captionFlag, "caption", "", "Post caption snapshot (optional)")
	campaignAddCmd.Flags().StringVar(&templateFlag, "template", "", "DM template with {first_name} and {link} placeholders")
	campaignAddCmd.Flags().BoolVar(&listenAllFlag, "listen-all", false, "Match every non-empty comment instead of keywords only")
	campaignAddCmd.MarkFlagRequired("media-id")
	campaignAddCmd.MarkFlagRequired("account-id")
	campaignAddCmd.MarkFlagRequired("template")

	campaignToggleCmd.Flags().StringVar(&mediaIDFlag, "media-id", "", "Instagram media ID of the campaign")
	campaignToggleCmd.Flags().BoolVar(&activeFlag, "active", true, "Desired active state")
	campaignToggleCmd.MarkFlagRequired("media-id")

	keywordAddCmd.Flags().StringVar(&mediaIDFlag, "media-id", "", "Instagram media ID of the campaign")
	keywordAddCmd.Flags().StringVar(&wordFlag, "word", "", "Trigger word")
	keywordAddCmd.MarkFlagRequired("media-id")
	keywordAddCmd.MarkFlagRequired("word")

	keywordRemoveCmd.Flags().StringVar(&mediaIDFlag, "media-id", "", "Instagram media ID of the campaign")
	keywordRemoveCmd.Flags().StringVar(&keywordIDFlag, "keyword-id", "", "Keyword ID to remove")
	keywordRemoveCmd.MarkFlagRequired("media-id")
	keywordRemoveCmd.MarkFlagRequired("keyword-id")

	accountCmd.AddCommand(accountAddCmd)
	campaignCmd.AddCommand(campaignAddCmd, campaignToggleCmd, campaignListCmd)
	keywordCmd.AddCommand(keywordAddCmd, keywordRemoveCmd)
	rootCmd.AddCommand(accountCmd, campaignCmd, keywordCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// initStore sets up logging and the DynamoDB store shared by all commands.
func initStore() (context.Context, *store.DynamoStore) {
	logging.Init()
	aws := lambdaboot.InitAWS()
	return context.Background(), lambdaboot.InitDynamo(aws.Config, "REPLYFLOW_TABLE")
}

// initCipher loads the credential cipher used to encrypt access tokens.
func initCipher() *secrets.Cipher {
	aws := lambdaboot.InitAWS()
	param := logging.EnvOrDefault("SSM_CREDENTIAL_KEY_PARAM", "/replyflow/prod/credential-key")
	return lambdaboot.LoadCipher(aws.SSM, "CREDENTIAL_KEY", param)
}

func runAccountAdd(cmd *cobra.Command, args []string) {
	ctx, dataStore := initStore()
	cipher := initCipher()

	tokenEnc, err := cipher.Encrypt(accessTokenFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to encrypt access token")
	}

	accountID := accountIDFlag
	if accountID == "" {
		accountID = "acc-" + uuid.NewString()
	}

	account := &store.Account{
		ID:             accountID,
		UserID:         userIDFlag,
		PageID:         pageIDFlag,
		IGBusinessID:   igBusinessIDFlag,
		AccessTokenEnc: tokenEnc,
		ConnectedAt:    time.Now().Unix(),
	}
	if err := dataStore.PutAccount(ctx, account); err != nil {
		log.Fatal().Err(err).Str("accountId", accountID).Msg("Failed to store account")
	}

	fmt.Printf("Account connected: %s (IG business %s)\n", accountID, igBusinessIDFlag)
}

func runCampaignAdd(cmd *cobra.Command, args []string) {
	ctx, dataStore := initStore()

	campaign := &store.Campaign{
		ID:        "cmp-" + uuid.NewString(),
		MediaID:   mediaIDFlag,
		AccountID: accountIDFlag,
		Name:      nameFlag,
		Caption:   captionFlag,
		Template:  templateFlag,
		Active:    true,
		ListenAll: listenAllFlag,
	}
	if err := dataStore.PutCampaign(ctx, campaign); err != nil {
		log.Fatal().Err(err).Str("mediaId", mediaIDFlag).Msg("Failed to store campaign")
	}

	fmt.Printf("Campaign %s created for media %s\n", campaign.ID, mediaIDFlag)
}

func runCampaignToggle(cmd *cobra.Command, args []string) {
	ctx, dataStore := initStore()

	if err := dataStore.SetCampaignActive(ctx, mediaIDFlag, activeFlag); err != nil {
		log.Fatal().Err(err).Str("mediaId", mediaIDFlag).Msg("Failed to toggle campaign")
	}

	state := "active"
	if !activeFlag {
		state = "paused"
	}
	fmt.Printf("Campaign for media %s is now %s\n", mediaIDFlag, state)
}

func runCampaignList(cmd *cobra.Command, args []string) {
	ctx, dataStore := initStore()

	campaigns, err := dataStore.ListCampaigns(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list campaigns")
	}
	if len(campaigns) == 0 {
		fmt.Println("No campaigns found.")
		return
	}

	for _, c := range campaigns {
		state := "active"
		if !c.Active {
			state = "paused"
		}
		mode := "keywords"
		if c.ListenAll {
			mode = "listen-all"
		}
		fmt.Printf("%-40s media=%-20s %-7s %-10s %s\n", c.ID, c.MediaID, state, mode, c.Name)
	}
}

func runKeywordAdd(cmd *cobra.Command, args []string) {
	ctx, dataStore := initStore()

	word := automation.NormalizeText(wordFlag)
	if word == "" {
		log.Fatal().Str("word", wordFlag).Msg("Keyword normalizes to empty text")
	}

	keyword := &store.Keyword{
		ID:     "kw-" + uuid.NewString(),
		Word:   word,
		Active: true,
	}
	if err := dataStore.PutKeyword(ctx, mediaIDFlag, keyword); err != nil {
		log.Fatal().Err(err).Str("mediaId", mediaIDFlag).Msg("Failed to store keyword")
	}

	fmt.Printf("Keyword %s (%q) added to media %s\n", keyword.ID, keyword.Word, mediaIDFlag)
}

func runKeywordRemove(cmd *cobra.Command, args []string) {
	ctx, dataStore := initStore()

	if err := dataStore.DeleteKeyword(ctx, mediaIDFlag, keywordIDFlag); err != nil {
		log.Fatal().Err(err).Str("mediaId", mediaIDFlag).Str("keywordId", keywordIDFlag).Msg("Failed to delete keyword")
	}

	fmt.Printf("Keyword %s removed from media %s\n", keywordIDFlag, mediaIDFlag)
}
