package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"volleymanager-backend/lib/scrapers/volleymanager"
	"volleymanager-backend/lib/serviceutil"
	"volleymanager-backend/lib/timezone"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(loginCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Logs in with the configured credentials and stores the session.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		cfg := readConfig()
		store := openStore(cfg)
		defer store.Close()
		client := mustClient(cfg)

		result, err := client.Login(ctx, cfg.Username, cfg.Password)
		var authErr *volleymanager.AuthError
		if errors.As(err, &authErr) && authErr.Kind == volleymanager.KIND_LOCKED && authErr.LockedUntil != nil {
			serviceutil.Fatal(
				fmt.Sprintf("account locked until %s", timezone.Format(*authErr.LockedUntil)),
				err,
			)
		}
		if err != nil {
			serviceutil.Fatal("failed to login", err)
		}
		if result.ActiveParty == nil {
			slog.Warn("dashboard carried no active party, occupations will be empty")
		}

		derived, err := store.Refresh(ctx, cfg.Username, result.ActiveParty)
		if err != nil {
			serviceutil.Fatal("failed to store account", err)
		}
		err = store.SaveCookies(ctx, cfg.Username, client.SessionCookies())
		if err != nil {
			serviceutil.Fatal("failed to store session", err)
		}

		renderUser(derived)
	},
}
