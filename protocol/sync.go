package protocol

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/datazip-inc/gorgias-tap/constants"
	"github.com/datazip-inc/gorgias-tap/destination"
	"github.com/datazip-inc/gorgias-tap/utils"
	"github.com/datazip-inc/gorgias-tap/utils/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// syncCmd pulls every selected stream into the destination
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync command",
	Long:  `Sync command fetches the selected streams from the source, writes them to the destination and checkpoints bookmarks`,
	Example: `
// Base command, records go to stdout:
gorgias-tap sync --config path/to/config

// With streams selection, destination and state:
gorgias-tap sync --config path/to/config --streams path/to/streams --destination path/to/destination --state /path/to/state
`,
	PreRunE: func(_ *cobra.Command, _ []string) error {
		return utils.ErrExecSequential(
			loadSourceConfig,
			func() error { return loadCatalog(false) },
			loadState,
			loadDestinationConfig,
		)
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := connector.Setup(ctx); err != nil {
			return err
		}
		connector.SetupState(state)

		pool, err := destination.NewWriter(ctx, destinationConfig)
		if err != nil {
			return err
		}

		uploader, err := InitializePersister(ctx, persistenceConfigPath, utils.Ternary(statePath == "", viper.GetString(constants.StatePath), statePath))
		if err != nil {
			return err
		}

		_, readErr := connector.Read(ctx, pool, catalog)
		// writers are closed even when the run was cancelled
		closeErr := pool.Close(context.WithoutCancel(ctx))
		uploadErr := uploader.Stop()
		if uploadErr != nil {
			logger.Errorf("final state upload failed: %s", uploadErr)
		}

		state.LogState()
		return multierror.Append(readErr, closeErr).ErrorOrNil()
	},
}
