package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/groupcast/groupcast/internal/bus"
	"github.com/groupcast/groupcast/internal/channels"
	"github.com/groupcast/groupcast/internal/channels/whatsapp"
	"github.com/groupcast/groupcast/internal/chat"
	"github.com/groupcast/groupcast/internal/command"
	"github.com/groupcast/groupcast/internal/config"
	"github.com/groupcast/groupcast/internal/delivery"
	"github.com/groupcast/groupcast/internal/tracing"
)

const shutdownTimeout = 5 * time.Second

func runBot() error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			slog.Warn("tracing shutdown failed", "error", err)
		}
	}()

	audit, err := openAuditStore(cfg)
	if err != nil {
		return err
	}
	defer audit.Close()

	msgBus := bus.New(bus.DefaultBuffer)

	wa, err := whatsapp.New(cfg.Bridge, msgBus)
	if err != nil {
		return err
	}

	limiter := channels.NewCommandLimiter(cfg.Commands.ThrottlePerMinute, cfg.Commands.ThrottleBurst)
	interp := command.New(wa, settingsFrom(cfg),
		command.WithThrottle(limiter),
		command.WithRecorder(audit),
	)

	slog.Info("groupcast starting",
		"version", Version,
		"bridge", cfg.Bridge.URL,
		"storage", cfg.Storage.Driver,
		"batch_size", cfg.Delivery.BatchSize,
		"group_policy", cfg.Bridge.GroupPolicy,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return wa.Start(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return wa.Stop(sctx)
	})
	g.Go(func() error {
		consumeInbound(gctx, msgBus, interp)
		return nil
	})
	g.Go(func() error {
		err := config.Watch(gctx, cfgPath, cfg, func(next *config.Config) {
			applyConfig(next, interp, limiter)
		})
		if err != nil {
			slog.Warn("config watcher unavailable", "path", cfgPath, "error", err)
		}
		return nil
	})

	err = g.Wait()
	slog.Info("groupcast stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// consumeInbound hands every inbound message to the interpreter on its own
// goroutine and waits for in-flight commands when ctx is done.
func consumeInbound(ctx context.Context, msgBus bus.MessageRouter, interp *command.Interpreter) {
	slog.Info("inbound message consumer started")

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		msg, ok := msgBus.ConsumeInbound(ctx)
		if !ok {
			slog.Info("inbound message consumer stopped")
			return
		}

		wg.Add(1)
		go func(m bus.InboundMessage) {
			defer wg.Done()
			interp.Handle(ctx, toChatMessage(m))
		}(msg)
	}
}

func toChatMessage(m bus.InboundMessage) chat.Message {
	return chat.Message{
		ID:       m.MessageID,
		ChatID:   m.ChatID,
		SenderID: m.SenderID,
		IsGroup:  m.IsGroup(),
		Body:     m.Content,
		Mentions: m.Mentions,
	}
}

func settingsFrom(cfg *config.Config) command.Settings {
	return command.Settings{
		BatchSize: cfg.Delivery.BatchSize,
		Pacing: delivery.Pacing{
			BatchDelay:    cfg.Delivery.BatchDelay.Std(),
			DirectDelay:   cfg.Delivery.DirectDelay.Std(),
			CooldownDelay: cfg.Delivery.CooldownDelay.Std(),
			CooldownEvery: cfg.Delivery.CooldownEvery,
			FailureDelay:  cfg.Delivery.FailureDelay.Std(),
		},
		AllowBroadcast: cfg.Commands.AllowBroadcast,
		RedirectReply:  cfg.Commands.RedirectReply,
	}
}

// applyConfig pushes reloadable settings into the running components.
// Bridge and storage changes take effect on restart.
func applyConfig(cfg *config.Config, interp *command.Interpreter, limiter *channels.CommandLimiter) {
	interp.SetSettings(settingsFrom(cfg))
	limiter.SetRate(cfg.Commands.ThrottlePerMinute, cfg.Commands.ThrottleBurst)
	slog.Info("config reloaded",
		"batch_size", cfg.Delivery.BatchSize,
		"allow_broadcast", cfg.Commands.AllowBroadcast,
		"throttle_per_minute", cfg.Commands.ThrottlePerMinute,
	)
}
