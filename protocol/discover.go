package protocol

import (
	"errors"

	"github.com/datazip-inc/gorgias-tap/types"
	"github.com/datazip-inc/gorgias-tap/utils/logger"
	"github.com/spf13/cobra"
)

// discoverCmd writes the catalog of every stream with its schema and sync modes
var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "discover command",
	PreRunE: func(_ *cobra.Command, _ []string) error {
		return loadSourceConfig()
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := connector.Setup(cmd.Context()); err != nil {
			return err
		}
		streams, err := connector.Discover(cmd.Context())
		if err != nil {
			return err
		}
		if len(streams) == 0 {
			return errors.New("no streams found in connector")
		}

		logger.LogCatalog(types.GetWrappedCatalog(streams))
		return nil
	},
}
