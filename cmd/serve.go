package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spigell/hh-assistant/internal/bot"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler and the chat bot until interrupted",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		c, err := setup(ctx, setupOptions{chat: true})
		if err != nil {
			return err
		}
		defer c.Close()

		c.logger.Info("starting the hh-assistant", zap.String("version", version))

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return c.scheduler.Start(gctx) })

		if c.chat != nil {
			handler := bot.New(bot.Deps{
				Users:         c.store,
				Applications:  c.store,
				Notifications: c.store,
				Selection:     c.selection,
				Applier:       c.orchestrator,
				Composer:      c.composer,
				Dispatcher:    c.dispatcher,
				Chat:          c.chat,
				Logger:        c.logger.Named("bot"),
			})
			g.Go(func() error { return c.chat.Listen(gctx, handler.Handle) })
		} else {
			c.logger.Warn("chat bot is disabled", zap.String("reason", "telegram token is not set"))
		}

		err = g.Wait()
		c.logger.Info("stopped")
		return err
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
