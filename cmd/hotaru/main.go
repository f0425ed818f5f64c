// Command hotaru watches an activity-emission feed: it loads the snapshot,
// follows the push channel, and reports liveness and badge state for the
// configured scope.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/oshiro-ai/hotaru/internal/api"
	"github.com/oshiro-ai/hotaru/internal/clock"
	"github.com/oshiro-ai/hotaru/internal/config"
	"github.com/oshiro-ai/hotaru/internal/feed"
	"github.com/oshiro-ai/hotaru/internal/notify"
	"github.com/oshiro-ai/hotaru/internal/push"
	"github.com/oshiro-ai/hotaru/internal/telemetry"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	level := slog.LevelInfo
	if os.Getenv("HOTARU_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("hotaru starting", "version", version,
		"org", cfg.OrgID, "project", cfg.ProjectID, "issue", cfg.IssueID)

	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	client, err := api.NewClient(api.Config{
		BaseURL: cfg.BaseURL,
		Token:   cfg.Token,
		Timeout: cfg.HTTPTimeout,
	})
	if err != nil {
		return err
	}

	channel := push.New(cfg.PushURL, cfg.Token, logger)

	// The scoped store feeds the activity view; the wider org store feeds
	// the badge count and matches pushes independently.
	feedStore := feed.NewStore(client, feed.Filter{
		OrgID:     cfg.OrgID,
		ProjectID: cfg.ProjectID,
		IssueID:   cfg.IssueID,
		SourceID:  cfg.SourceID,
		Limit:     cfg.FeedLimit,
	}, logger)
	badgeStore := feed.NewStore(client, feed.Filter{
		OrgID: cfg.OrgID,
		Limit: cfg.BadgeLimit,
	}, logger)
	notifStore := notify.NewStore(client, logger)

	feedStore.Bind(ctx, channel)
	badgeStore.Bind(ctx, channel)
	notifStore.Bind(channel)
	defer func() {
		teardown, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		feedStore.Close(teardown)
		badgeStore.Close(teardown)
		notifStore.Close()
	}()

	// Initial snapshots. A failed one is logged and left to the next
	// explicit refresh; the push channel still delivers increments.
	if err := feedStore.Refresh(ctx); err != nil {
		logger.Warn("initial feed snapshot failed", "error", err)
	}
	if err := badgeStore.Refresh(ctx); err != nil {
		logger.Warn("initial badge snapshot failed", "error", err)
	}
	if err := notifStore.Load(ctx); err != nil {
		logger.Warn("initial notification snapshot failed", "error", err)
	}

	ticker := clock.New()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return channel.Run(gctx)
	})
	g.Go(func() error {
		reportBadge(gctx, ticker, notifStore, badgeStore, feedStore,
			int(cfg.LivenessWindow/time.Second), logger)
		return nil
	})

	return g.Wait()
}

// reportBadge logs the badge count and active-source tally whenever either
// changes, driven by the shared clock.
func reportBadge(ctx context.Context, ticker *clock.Service, notifStore *notify.Store,
	badgeStore, feedStore *feed.Store, windowSeconds int, logger *slog.Logger) {

	lastBadge, lastActive := -1, -1
	cancel := ticker.Subscribe(func(now time.Time) {
		badge := notify.Badge(notifStore.Notifications(), badgeStore.Emissions(), now)

		active := 0
		for _, e := range feedStore.Emissions() {
			if clock.IsActive(&e, windowSeconds, now) {
				active++
			}
		}

		if badge != lastBadge || active != lastActive {
			lastBadge, lastActive = badge, active
			logger.Info("feed state", "badge", badge, "active", active,
				"unread", notifStore.UnreadCount())
		}
	})
	defer cancel()

	<-ctx.Done()
}
