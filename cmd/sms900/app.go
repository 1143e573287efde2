package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/graaaaa/sms900/internal/appinfo"
	"github.com/graaaaa/sms900/internal/carrier"
	"github.com/graaaaa/sms900/internal/chat"
	"github.com/graaaaa/sms900/internal/config"
	"github.com/graaaaa/sms900/internal/core"
	"github.com/graaaaa/sms900/internal/event"
	"github.com/graaaaa/sms900/internal/irc"
	"github.com/graaaaa/sms900/internal/mms"
	"github.com/graaaaa/sms900/internal/singleinstance"
	"github.com/graaaaa/sms900/internal/store"
	"github.com/graaaaa/sms900/internal/webhook"
	"github.com/graaaaa/sms900/webembed"
)

const shutdownTimeout = 5 * time.Second

// run wires the components and blocks until ctx is cancelled or one of the
// long-running loops fails.
func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	release, err := singleinstance.AcquireLock(cfg.DatabasePath + appinfo.LockFileSuffix)
	if err != nil {
		return err
	}
	defer release()

	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if _, err := db.VacuumIfNeeded(ctx); err != nil {
		logger.Warn("vacuum failed", "error", err)
	}

	outbox := irc.NewOutbox()

	// The responder resubmits reminders to the core, which is built after it.
	var ec *core.Core
	submit := event.SubmitterFunc(func(e event.Event) { ec.Submit(e) })

	var session *irc.Session
	nick := func() string { return session.Nick() }

	coreOpts := []core.Option{
		core.WithNick(nick),
		core.WithLogger(logger.With("component", "core")),
	}

	if cfg.CarrierConfigured() {
		client := carrier.NewClient(cfg.TwilioAccountSID, cfg.TwilioAuthToken,
			carrier.WithLogger(logger.With("component", "carrier")),
		)
		coreOpts = append(coreOpts, core.WithCarrier(client, cfg.TwilioNumber))
	} else {
		logger.Warn("carrier credentials not configured, sending disabled")
	}

	mediaOpts, err := mediaOptions(cfg, logger)
	if err != nil {
		return err
	}
	coreOpts = append(coreOpts, mediaOpts...)

	var (
		responder    *chat.Responder
		history      *chat.History
		commandsOpts = []irc.CommandsOption{
			irc.WithQuickContact(cfg.QuickContact),
			irc.WithCommandsLogger(logger.With("component", "commands")),
		}
	)
	if cfg.ChatEnabled() {
		completer, err := chat.NewGenAICompleter(ctx, cfg.GenAIAPIKey)
		if err != nil {
			return err
		}
		history = chat.NewHistory(cfg.ChatHistorySize)
		responder = chat.NewResponder(completer, history, cfg.Channel, submit,
			chat.WithModel(cfg.ChatModel),
			chat.WithPrompt(cfg.ChatPrompt),
			chat.WithNick(nick),
			chat.WithLogger(logger.With("component", "chat")),
		)
		defer responder.Stop()
		coreOpts = append(coreOpts, core.WithResponder(responder))
		commandsOpts = append(commandsOpts, irc.WithChatControl(responder))
		logger.Info("chat responder enabled", "model", cfg.ChatModel)
	}

	ec = core.New(cfg.Channel, db, db, outbox, coreOpts...)

	sessionOpts := []irc.SessionOption{irc.WithLogger(logger.With("component", "irc"))}
	if history != nil {
		sessionOpts = append(sessionOpts, irc.WithHistory(history))
	}
	session = irc.NewSession(cfg.IRCAddr(), cfg.Nickname, cfg.Channel, outbox,
		irc.NewCommands(ec, commandsOpts...), sessionOpts...)

	serverOpts := []webhook.Option{
		webhook.WithLogger(logger.With("component", "webhook")),
		webhook.WithGitHubSecret(cfg.GitHubWebhookSecret),
	}
	if cfg.WebhookRateLimited() {
		serverOpts = append(serverOpts, webhook.WithRateLimit(webhook.RateLimiterConfig{
			Rate:            cfg.WebhookRate,
			Burst:           cfg.WebhookBurst,
			CleanupInterval: webhook.DefaultRateLimiterConfig().CleanupInterval,
		}))
	}
	server := webhook.NewServer(cfg.HTTPListen, ec, serverOpts...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ec.Run(gctx) })
	g.Go(func() error { return session.Run(gctx) })
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("webhook shutdown", "error", err)
		}
		return nil
	})

	err = g.Wait()
	logger.Info("sms900 stopped", "pending_events", ec.Pending())
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// mediaOptions enables MMS storage, indexing and, when a portal number is
// configured, fetching MMS announced by SMS.
func mediaOptions(cfg config.Config, logger *slog.Logger) ([]core.Option, error) {
	if err := os.MkdirAll(cfg.MMSSavePath, 0o755); err != nil {
		return nil, fmt.Errorf("create mms directory: %w", err)
	}

	templates, err := webembed.GetFS()
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}
	mmsLogger := logger.With("component", "mms")
	indexer, err := mms.NewIndexer(cfg.MMSSavePath, templates, mmsLogger)
	if err != nil {
		return nil, err
	}
	media := mms.NewStore(cfg.MMSSavePath, cfg.MediaBaseURL, mms.WithStoreLogger(mmsLogger))
	opts := []core.Option{core.WithMedia(media, indexer)}

	if cfg.MMSPortalMSISDN != "" {
		pattern, err := regexp.Compile(cfg.MMSNotificationPattern)
		if err != nil {
			return nil, fmt.Errorf("mms_notification_pattern: %w", err)
		}
		fetcher := mms.NewPortalFetcher(cfg.MMSPortalMSISDN, mms.WithPortalLogger(mmsLogger))
		opts = append(opts, core.WithMMSFetcher(fetcher, pattern))
	}
	return opts, nil
}
