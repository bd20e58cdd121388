// Command gopush sends notifications to Apple's legacy binary push
// gateway from the command line, and can drain the feedback service
// on demand.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mbillemont/gopush"
	"github.com/mbillemont/gopush/config"
)

var (
	cfgFile string
	verbose bool
	logger  *zap.Logger
	cfg     *config.Config
)

func setupLogger(verbose bool, logCfg config.LoggingConfig) (*zap.Logger, error) {
	var zapConfig zap.Config
	if verbose || logCfg.Development {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
	}
	if logCfg.Level != "" {
		if err := zapConfig.Level.UnmarshalText([]byte(logCfg.Level)); err != nil {
			return nil, fmt.Errorf("parsing log level: %w", err)
		}
	}
	return zapConfig.Build()
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "gopush",
		Short: "Send notifications through Apple's legacy push gateway",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				var err error
				logger, err = setupLogger(verbose, config.LoggingConfig{})
				return err
			}
			var err error
			cfg, err = config.Load(cfgFile)
			if err != nil {
				return err
			}
			logger, err = setupLogger(verbose, cfg.Logging)
			return err
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", os.Getenv("GOPUSH_CONFIG"), "config file path (or set GOPUSH_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(sendCmd())
	rootCmd.AddCommand(feedbackCmd())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func sendCmd() *cobra.Command {
	var tokenHex, payload string
	var expiresInSec int64

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send one notification and wait briefly for a rejection response",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildService()
			if err != nil {
				return err
			}

			rejected := make(chan apns.Response, 1)
			svc.SetResponseObserver(func(r apns.Response) { rejected <- r })
			svc.Start()
			defer svc.Stop()

			token, err := apns.ParseToken(tokenHex)
			if err != nil {
				return fmt.Errorf("parsing token: %w", err)
			}
			identifier, err := svc.Enqueue(token, []byte(payload), time.Now().Add(time.Duration(expiresInSec)*time.Second))
			if err != nil {
				return fmt.Errorf("enqueue: %w", err)
			}
			logger.Info("notification queued", zap.Uint32("identifier", identifier))

			select {
			case r := <-rejected:
				return fmt.Errorf("gateway rejected notification: %s (identifier %d)", r.Status, r.Identifier)
			case <-time.After(5 * time.Second):
				logger.Info("no rejection observed within grace period")
			case <-cmd.Context().Done():
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&tokenHex, "token", "", "64-character hex device token")
	cmd.Flags().StringVar(&payload, "payload", "", "JSON payload")
	cmd.Flags().Int64Var(&expiresInSec, "expires-in", 3600, "seconds until the notification expires")
	_ = cmd.MarkFlagRequired("token")
	_ = cmd.MarkFlagRequired("payload")
	return cmd
}

func feedbackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "feedback",
		Short: "Drain the feedback service and print unreachable tokens as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			identity, err := cfg.LoadIdentity()
			if err != nil {
				return err
			}
			trust, err := cfg.LoadTrustStore()
			if err != nil {
				return err
			}
			svc := apns.NewService(identity, trust, cfg.Endpoints(), cfg.Options(), logger)

			result, err := svc.FetchUnreachable(cmd.Context())
			if err != nil {
				return err
			}
			out := make(map[string]string, len(result))
			for token, seenAt := range result {
				out[token.String()] = seenAt.Format(time.RFC3339)
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
}

func buildService() (*apns.Service, error) {
	identity, err := cfg.LoadIdentity()
	if err != nil {
		return nil, err
	}
	trust, err := cfg.LoadTrustStore()
	if err != nil {
		return nil, err
	}
	return apns.NewService(identity, trust, cfg.Endpoints(), cfg.Options(), logger), nil
}
