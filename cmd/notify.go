package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethpandaops/partcache/pkg/catalog"
	"github.com/ethpandaops/partcache/pkg/invalidation"
	"github.com/ethpandaops/partcache/pkg/redis"
	"github.com/ethpandaops/partcache/pkg/session"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// ErrNothingToNotify is returned when neither relations nor a broad notification were requested
	ErrNothingToNotify = errors.New("pass relations, --all or --shutdown")
)

//nolint:gochecknoglobals // Command flags need to be global for cobra
var (
	notifyAll      bool
	notifyShutdown bool
)

// notifyCmd represents the notify command
//
//nolint:gochecknoglobals // Cobra commands are typically global
var notifyCmd = &cobra.Command{
	Use:   "notify [relation...]",
	Short: "Publish catalog change notifications",
	Long: `Notify publishes catalog change notifications on the configured Redis
channel so every watching session invalidates the affected metadata.

Examples:
  # A partition was attached to orders
  partcache notify orders

  # The partitioning extension was reloaded
  partcache notify --all`,
	RunE: runNotify,
}

func init() {
	rootCmd.AddCommand(notifyCmd)

	notifyCmd.Flags().BoolVar(&notifyAll, "all", false, "Invalidate every cached relation")
	notifyCmd.Flags().BoolVar(&notifyShutdown, "shutdown", false, "Announce that the partitioning configuration may be dropped")
}

func runNotify(cmd *cobra.Command, args []string) error {
	// Silence usage on error
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := cfg.Redis.Validate(); err != nil {
		return err
	}

	notifications, err := buildNotifications(ctx, cfg, args)
	if err != nil {
		return err
	}

	client, err := redis.NewClient(&cfg.Redis)
	if err != nil {
		return fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	defer func() {
		if closeErr := client.Close(); closeErr != nil {
			logger.WithError(closeErr).Error("Failed to close Redis client")
		}
	}()

	channel := cfg.Redis.ChannelName()

	for _, n := range notifications {
		if err := invalidation.Publish(ctx, client, channel, n); err != nil {
			return err
		}

		logger.WithFields(logrus.Fields{
			"id":      n.ID.String(),
			"kind":    n.Kind,
			"relid":   n.RelID,
			"channel": channel,
		}).Info("Published notification")
	}

	return nil
}

func buildNotifications(ctx context.Context, cfg *session.Config, args []string) ([]invalidation.Notification, error) {
	var out []invalidation.Notification

	if notifyShutdown {
		out = append(out, invalidation.NewNotification(invalidation.KindShutdown, 0))
	}

	if notifyAll {
		out = append(out, invalidation.NewNotification(invalidation.KindAll, 0))
	}

	if len(args) > 0 {
		relids, err := notifyRelations(ctx, cfg, args)
		if err != nil {
			return nil, err
		}

		for _, relid := range relids {
			out = append(out, invalidation.RelationChanged(relid))
		}
	}

	if len(out) == 0 {
		return nil, ErrNothingToNotify
	}

	return out, nil
}

// notifyRelations resolves names through the catalog only when a non-numeric reference is given
func notifyRelations(ctx context.Context, cfg *session.Config, args []string) ([]catalog.RelID, error) {
	numeric := &session.Backend{}

	relids, err := resolveRelations(ctx, numeric, args)
	if err == nil {
		return relids, nil
	}

	backend, err := session.OpenBackend(ctx, logger, &cfg.Catalog)
	if err != nil {
		return nil, err
	}
	defer backend.Close()

	return resolveRelations(ctx, backend, args)
}
