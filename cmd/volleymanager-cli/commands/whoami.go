package commands

import (
	"fmt"
	"volleymanager-backend/lib/accountstore"
	"volleymanager-backend/lib/scrapers/volleymanager"
	"volleymanager-backend/lib/serviceutil"
	"volleymanager-backend/lib/timezone"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(useCmd)
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Prints the stored user and its occupations without contacting the backend.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := readConfig()
		store := openStore(cfg)
		defer store.Close()

		state, err := store.Get(cmd.Context(), cfg.Username)
		if err != nil {
			serviceutil.Fatal("failed to read account", err)
		}
		if state == nil {
			fmt.Println("nothing stored yet, run login first")
			return
		}
		renderUser(volleymanager.DerivedUser{
			User:               state.User,
			ActiveOccupationId: state.ActiveOccupationId,
		})
		fmt.Println("updated", timezone.Format(state.UpdatedAt))
	},
}

var useCmd = &cobra.Command{
	Use:   "use <occupation_id | association_code>",
	Short: "Switches the active occupation.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		cfg := readConfig()
		store := openStore(cfg)
		defer store.Close()

		state, err := store.Get(ctx, cfg.Username)
		if err != nil {
			serviceutil.Fatal("failed to read account", err)
		}
		if state == nil {
			fmt.Println("nothing stored yet, run login first")
			return
		}
		occupation, err := accountstore.FindOccupation(state.User.Occupations, args[0])
		if err != nil {
			serviceutil.Fatal("failed to switch occupation", err)
		}
		err = store.SetActiveOccupation(ctx, cfg.Username, occupation.Id)
		if err != nil {
			serviceutil.Fatal("failed to switch occupation", err)
		}
		fmt.Printf("active occupation is now %s\n", occupation.Id)
	},
}
