package commands

import (
	"volleymanager-backend/lib/serviceutil"

	"github.com/spf13/cobra"
)

var forget *bool

func init() {
	forget = logoutCmd.Flags().Bool("forget", false, "Also removes the stored account state.")
	rootCmd.AddCommand(logoutCmd)
}

var logoutCmd = &cobra.Command{
	Use:   "logout [--forget]",
	Short: "Logs out the stored session.",
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
		if cookies != nil {
			client.RestoreSessionCookies(cookies)
			client.Logout(ctx)
		}

		err = store.ClearCookies(ctx, cfg.Username)
		if err != nil {
			serviceutil.Fatal("failed to clear session", err)
		}
		if *forget {
			err = store.Delete(ctx, cfg.Username)
			if err != nil {
				serviceutil.Fatal("failed to delete account state", err)
			}
		}
	},
}
