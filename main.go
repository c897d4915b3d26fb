package main

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	settingsFlag string
	strategyFlag string
	metricsFlag  string
	debugFlag    bool
)

var rootCmd = &cobra.Command{
	Use:           "notepilot",
	Short:         "Daily AI article pipeline: propose ideas, generate the picked one, report weekly",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		SetDebugMode(debugFlag)
	},
}

var ideasCmd = &cobra.Command{
	Use:   "ideas",
	Short: "Propose today's article ideas and publish them for selection",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := loadRuntime()
		if err != nil {
			return err
		}
		if err := rt.secrets.requirePipeline(); err != nil {
			return err
		}

		ctx := context.Background()
		provider := NewProviderClient(rt.secrets.OpenAIKey, rt.settings.Provider.Model, rt.providerTimeout())
		store := NewArticleStore(NewGistStore(rt.secrets.GitHubToken), rt.settings)
		notifier := NewDiscordNotifier(rt.secrets.WebhookURL)

		job := NewIdeaProposalJob(provider, store, notifier, rt.settings, rt.strategy, time.Now())
		return job.Run(ctx)
	},
}

var articleCmd = &cobra.Command{
	Use:   "article",
	Short: "Generate the selected article, persist it and deliver it",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := loadRuntime()
		if err != nil {
			return err
		}
		if err := rt.secrets.requirePipeline(); err != nil {
			return err
		}

		ctx := context.Background()
		provider := NewProviderClient(rt.secrets.OpenAIKey, rt.settings.Provider.Model, rt.providerTimeout())
		store := NewArticleStore(NewGistStore(rt.secrets.GitHubToken), rt.settings)
		notifier := NewDiscordNotifier(rt.secrets.WebhookURL)

		var email *EmailSender
		if rt.secrets.emailConfigured() {
			email = NewEmailSender(rt.settings, rt.secrets)
		} else {
			logWarn("email credentials not set; skipping email delivery")
		}

		var uploader *DriveUploader
		if rt.secrets.GoogleCredentials != "" {
			uploader, err = NewDriveUploader(ctx, rt.secrets.GoogleCredentials, rt.settings.Drive.RootFolder, rt.secrets.theme(rt.settings))
			if err != nil {
				logWarn("drive setup failed, skipping drive delivery: %v", err)
				uploader = nil
			}
		} else {
			logWarn("GOOGLE_CREDENTIALS not set; skipping drive delivery")
		}

		job := NewArticleGenerationJob(provider, store, notifier, email, uploader, rt.settings, rt.strategy, time.Now())
		outcome, err := job.Run(ctx)
		if err != nil {
			return err
		}
		if outcome == OutcomeAwaitingSelection {
			logWarn("still awaiting selection; nothing was generated")
		}
		return nil
	},
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Post the weekly performance report",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := loadRuntime()
		if err != nil {
			return err
		}
		notifier := NewDiscordNotifier(rt.secrets.WebhookURL)
		job := NewWeeklyReportJob(notifier)
		return job.Run(metricsFlag)
	},
}

// runtime bundles everything the commands share after config loading.
type runtime struct {
	settings *Settings
	secrets  *Secrets
	strategy string
}

func (r *runtime) providerTimeout() time.Duration {
	return time.Duration(r.settings.Provider.TimeoutSeconds) * time.Second
}

func loadRuntime() (*runtime, error) {
	if err := ensureConfigExists(); err != nil {
		return nil, err
	}

	path := settingsFlag
	explicit := path != ""
	if !explicit {
		path = getConfigPath("settings.yaml")
	}
	settings, err := loadSettings(path, explicit)
	if err != nil {
		return nil, err
	}

	strategy, err := loadStrategy(strategyFlag)
	if err != nil {
		return nil, err
	}

	return &runtime{
		settings: settings,
		secrets:  loadSecrets(),
		strategy: strategy,
	}, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&settingsFlag, "settings", "", "path to settings YAML (default: .notepilot/settings.yaml)")
	rootCmd.PersistentFlags().StringVar(&strategyFlag, "strategy", "", "path to content strategy markdown (default: .notepilot/content_strategy.md)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")
	reportCmd.Flags().StringVar(&metricsFlag, "metrics", "weekly_metrics.yaml", "path to weekly metrics YAML")

	rootCmd.AddCommand(ideasCmd)
	rootCmd.AddCommand(articleCmd)
	rootCmd.AddCommand(reportCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logFail("%v", err)
		os.Exit(1)
	}
}
