package commands

import (
	"fmt"
	"volleymanager-backend/lib/serviceutil"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(checkCmd)
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Checks whether the stored session is still alive.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		cfg := readConfig()
		store := openStore(cfg)
		defer store.Close()
		client := mustClient(cfg)

		cookies, err := store.LoadCookies(ctx, cfg.Username)
		if err != nil {
			serviceutil.Fatal("failed to load session", err)
		}
		if cookies == nil {
			fmt.Println("no stored session, run login first")
			return
		}
		client.RestoreSessionCookies(cookies)

		status, err := client.CheckSession(ctx)
		if err != nil {
			serviceutil.Fatal("failed to check session", err)
		}
		if !status.Valid {
			fmt.Println("session expired")
			return
		}
		fmt.Println("session valid")

		if status.ActiveParty != nil {
			derived, err := store.Refresh(ctx, cfg.Username, status.ActiveParty)
			if err != nil {
				serviceutil.Fatal("failed to store account", err)
			}
			renderUser(derived)
		}
	},
}
