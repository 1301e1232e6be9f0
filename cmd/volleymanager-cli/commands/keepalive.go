package commands

import (
	"log/slog"
	"time"
	"volleymanager-backend/lib/scrapers/volleymanager"
	"volleymanager-backend/lib/serviceutil"
	"volleymanager-backend/lib/sessioncache"

	"github.com/spf13/cobra"
)

var keepaliveInterval *time.Duration

func init() {
	keepaliveInterval = keepaliveCmd.Flags().Duration("interval", 5*time.Minute, "How often the session is checked.")
	rootCmd.AddCommand(keepaliveCmd)
}

var keepaliveCmd = &cobra.Command{
	Use:   "keepalive [--interval <duration>]",
	Short: "Keeps the session alive, logging in again whenever it expires.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		cfg := readConfig()
		store := openStore(cfg)
		defer store.Close()

		cache := sessioncache.New(1, 0, func() (*volleymanager.Client, error) {
			return newClient(cfg)
		})

		cookies, err := store.LoadCookies(ctx, cfg.Username)
		if err != nil {
			serviceutil.Fatal("failed to load session", err)
		}
		resumed, err := cache.Resume(ctx, cfg.Username, cookies)
		if err != nil {
			slog.Warn("failed to resume stored session", "err", err)
		}
		slog.Info("starting keepalive", "resumed", resumed)

		ticker := time.NewTicker(*keepaliveInterval)
		defer ticker.Stop()
		for {
			session, err := cache.Get(ctx, cfg.Username, cfg.Password)
			if kind, ok := volleymanager.KindOf(err); ok && kind == volleymanager.KIND_LOCKED {
				serviceutil.Fatal("account locked", err)
			}
			if err != nil {
				slog.Warn("failed to refresh session", "err", err)
			} else {
				_, err = store.Refresh(ctx, cfg.Username, session.Login.ActiveParty)
				if err == nil {
					err = store.SaveCookies(ctx, cfg.Username, session.Client.SessionCookies())
				}
				if err != nil {
					slog.Warn("failed to store session", "err", err)
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	},
}
