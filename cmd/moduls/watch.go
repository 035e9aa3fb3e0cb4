package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/layer-3/moduls/adapters/cache"
	"github.com/layer-3/moduls/adapters/events"
	"github.com/layer-3/moduls/service"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
)

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "follow new agents, webhook health and session events until interrupted",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "metrics-addr", Usage: "serve prometheus metrics on this address"},
		},
		Action: withRuntime(func(c *cli.Context, rt *runtime) error {
			ctx := c.Context
			out := c.App.Writer

			if err := rt.resume(ctx); err != nil {
				rt.log.WithError(err).Warn("watching without a session")
			}

			sessionEvents, err := rt.subscriber.Subscribe(ctx, events.SessionTopic)
			if err != nil {
				return fmt.Errorf("failed to subscribe to session events: %w", err)
			}
			go func() {
				for msg := range sessionEvents {
					event, err := events.DecodeSession(msg)
					msg.Ack()
					if err != nil {
						rt.log.WithError(err).Warn("skipping session event")
						continue
					}
					fmt.Fprintf(out, "%s session %s: %s -> %s (%s)\n",
						event.At.Local().Format(time.TimeOnly), event.Address, event.From, event.To, event.Reason)
				}
			}()

			if addr := c.String("metrics-addr"); addr != "" {
				serveMetrics(ctx, rt, addr)
			}

			poller := service.NewPoller(rt.log)
			if err := poller.Every("freshness", rt.cfg.FreshnessInterval, rt.session.CheckFreshness); err != nil {
				return err
			}
			if err := poller.Every("agents", rt.cfg.PollInterval, newAgentWatcher(rt, c).poll); err != nil {
				return err
			}
			if err := poller.Every("webhooks", rt.cfg.PollInterval, func(ctx context.Context) error {
				rt.catalog.Refresh(cache.Key("webhooks"))
				status, err := rt.catalog.WebhookStatus(ctx)
				if err != nil {
					return err
				}
				if !status.Healthy {
					fmt.Fprintf(out, "webhooks unhealthy, %d events pending\n", status.PendingEvents)
				}
				return nil
			}); err != nil {
				return err
			}

			poller.Start(ctx)
			fmt.Fprintf(c.App.ErrWriter, "watching %s, press Ctrl+C to stop\n", rt.cfg.APIURL)
			<-ctx.Done()
			poller.Stop()
			return nil
		}),
	}
}

// agentWatcher prints agents that appear between polls
type agentWatcher struct {
	rt   *runtime
	c    *cli.Context
	seen map[string]bool
}

func newAgentWatcher(rt *runtime, c *cli.Context) *agentWatcher {
	return &agentWatcher{rt: rt, c: c}
}

func (w *agentWatcher) poll(ctx context.Context) error {
	w.rt.catalog.RefreshAgents()
	page, err := w.rt.catalog.Agents(ctx, 1, 20)
	if err != nil {
		return err
	}

	first := w.seen == nil
	if first {
		w.seen = make(map[string]bool)
	}
	for i := len(page.Agents) - 1; i >= 0; i-- {
		agent := page.Agents[i]
		if w.seen[agent.ID] {
			continue
		}
		w.seen[agent.ID] = true
		if !first {
			fmt.Fprintf(w.c.App.Writer, "new agent %s (%s) at %s\n", agent.Symbol, agent.Name, agent.ContractAddress)
		}
	}
	return nil
}

func serveMetrics(ctx context.Context, rt *runtime, addr string) {
	server := &http.Server{
		Addr:              addr,
		Handler:           promhttp.HandlerFor(rt.registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.log.WithError(err).Error("metrics server failed")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
}
