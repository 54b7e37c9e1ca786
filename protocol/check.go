package protocol

import (
	"fmt"

	"github.com/datazip-inc/gorgias-tap/destination"
	"github.com/datazip-inc/gorgias-tap/types"
	"github.com/datazip-inc/gorgias-tap/utils/logger"
	"github.com/spf13/cobra"
)

// checkCmd tests the source credentials, or the destination when only --destination is given
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "check command",
	PreRunE: func(_ *cobra.Command, _ []string) error {
		if destinationConfigPath == notSet && configPath == notSet {
			return fmt.Errorf("no connector config or destination config provided")
		}

		if configPath != notSet {
			return loadSourceConfig()
		}
		return loadDestinationConfig()
	},
	Run: func(cmd *cobra.Command, _ []string) {
		err := func() error {
			if configPath != notSet {
				return connector.Check(cmd.Context())
			}

			pool, err := destination.NewWriter(cmd.Context(), destinationConfig)
			if err != nil {
				return err
			}
			return pool.Close(cmd.Context())
		}()

		message := types.Message{
			Type: types.ConnectionStatusMessage,
			ConnectionStatus: &types.StatusRow{
				Status: types.ConnectionSucceed,
			},
		}
		if err != nil {
			message.ConnectionStatus.Message = err.Error()
			message.ConnectionStatus.Status = types.ConnectionFailed
		}
		logger.Info(message)
	},
}
