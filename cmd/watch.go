package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethpandaops/partcache/pkg/session"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Command flags need to be global for cobra
var (
	watchInterval time.Duration
	watchWarm     bool
)

// watchCmd represents the watch command
//
//nolint:gochecknoglobals // Cobra commands are typically global
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep a cache session alive and apply catalog change notifications",
	Long: `Watch starts a session with the metrics server and the Redis notification
listener, then reaches a safe point on every interval where queued and received
invalidations are applied.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().DurationVar(&watchInterval, "interval", time.Second, "How often queued invalidations are applied")
	watchCmd.Flags().BoolVar(&watchWarm, "warm", true, "Build every partitioned relation on startup")
}

func runWatch(cmd *cobra.Command, _ []string) error {
	// Silence usage on error
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	backend, err := session.OpenBackend(ctx, logger, &cfg.Catalog)
	if err != nil {
		return err
	}

	s, err := session.NewSession(logger, cfg, backend)
	if err != nil {
		backend.Close()

		return err
	}

	if err := s.Start(ctx); err != nil {
		_ = s.Stop()

		return err
	}

	if watchWarm {
		warm(ctx, s)
	}

	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Received shutdown signal")

			return s.Stop()
		case <-ticker.C:
			s.EndStatement(ctx)

			logger.WithFields(logrus.Fields{
				"descriptors":  s.Descriptors().Len(),
				"pinned_stale": s.Descriptors().PinnedStale(),
				"parents":      s.Parents().Len(),
				"bounds":       s.Bounds().Len(),
				"mode":         s.Coordinator().Mode().String(),
			}).Debug("Reached safe point")
		}
	}
}

func warm(ctx context.Context, s *session.Session) {
	relids, err := s.Backend().PartitionedRelations(ctx)
	if err != nil {
		logger.WithError(err).Warn("Failed to list partitioned relations")

		return
	}

	for _, d := range loadDescriptors(ctx, logger, s, relids) {
		s.Release(d)
	}

	logger.WithField("descriptors", s.Descriptors().Len()).Info("Warmed partition descriptors")
}
