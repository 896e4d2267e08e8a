package cli

import (
	"errors"
	"fmt"

	eventdomain "mailcal/internal/event/domain"
	"mailcal/internal/processed/domain"
	"mailcal/internal/processed/repository"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var processedCmd = &cobra.Command{
	Use:   "processed",
	Short: "Inspect or edit the set of processed mail ids",
}

var processedListCmd = &cobra.Command{
	Use:   "list",
	Short: "List processed mail ids",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withProcessedStore(cmd, func(store repository.ProcessedRepository, set domain.ProcessedSet) error {
			for _, id := range set.IDs() {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		})
	},
}

var processedForgetCmd = &cobra.Command{
	Use:   "forget <mail_id>...",
	Short: "Remove mail ids so the next cycle handles them again",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withProcessedStore(cmd, func(store repository.ProcessedRepository, set domain.ProcessedSet) error {
			removed := 0
			for _, id := range args {
				if set.Has(id) {
					set = set.Forget(id)
					removed++
				}
			}
			if err := store.Save(cmd.Context(), set); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Forgot %d of %d ids\n", removed, len(args))
			return nil
		})
	},
}

var processedResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear the processed set, also when it is corrupt",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := repository.NewProcessedRepository(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		set, err := store.Load(cmd.Context())
		var corrupt *eventdomain.StoreCorruptError
		switch {
		case errors.As(err, &corrupt):
			log.Warn().Err(err).Msg("processed: store is corrupt, overwriting")
		case err != nil:
			return err
		}

		if err := store.Save(cmd.Context(), domain.NewProcessedSet()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d ids\n", len(set))
		return nil
	},
}

func withProcessedStore(cmd *cobra.Command, fn func(repository.ProcessedRepository, domain.ProcessedSet) error) error {
	store, err := repository.NewProcessedRepository(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	set, err := store.Load(cmd.Context())
	if err != nil {
		return err
	}
	return fn(store, set)
}

func init() {
	processedCmd.AddCommand(processedListCmd)
	processedCmd.AddCommand(processedForgetCmd)
	processedCmd.AddCommand(processedResetCmd)
}
