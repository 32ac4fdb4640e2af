// Package cli is the padchat command line client. It runs the dispatcher in
// process against the configured storage.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/RichardoC/padchat/internal/app"
	"github.com/RichardoC/padchat/internal/config"
)

// AppFactory builds the application a command runs against.
type AppFactory func(ctx context.Context) (*app.App, error)

func defaultApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, logger)
}

type globalOptions struct {
	user       string
	outputType string
	newApp     AppFactory
}

// NewRootCmd builds the command tree. A nil factory loads configuration from
// the environment.
func NewRootCmd(newApp AppFactory) *cobra.Command {
	if newApp == nil {
		newApp = defaultApp
	}
	opts := &globalOptions{newApp: newApp}

	rootCmd := &cobra.Command{
		Use:           "padchat",
		Short:         "Chat with an LLM backend and browse conversation history",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&opts.user, "user", "u", "", "owner id the conversations belong to")
	rootCmd.PersistentFlags().StringVarP(&opts.outputType, "output", "o", "table", "output format: table or json")
	_ = rootCmd.MarkPersistentFlagRequired("user")

	rootCmd.AddCommand(
		newSendCmd(opts),
		newRetryCmd(opts),
		newShowCmd(opts),
		newHistoryCmd(opts),
	)
	return rootCmd
}

// withApp runs fn against a freshly built application and closes it after.
func (o *globalOptions) withApp(ctx context.Context, fn func(a *app.App) error) (err error) {
	a, err := o.newApp(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer func() {
		if cerr := a.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(a)
}

func Execute() {
	if err := NewRootCmd(nil).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
