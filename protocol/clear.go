package protocol

import (
	"fmt"

	"github.com/datazip-inc/gorgias-tap/types"
	"github.com/datazip-inc/gorgias-tap/utils/logger"
	"github.com/spf13/cobra"
)

// clearCmd drops the bookmarks of the selected streams and of their children,
// so the next sync starts them from start_date.
var clearCmd = &cobra.Command{
	Use:   "clear-state",
	Short: "Clear bookmarks of selected streams",
	PreRunE: func(_ *cobra.Command, _ []string) error {
		if err := loadSourceConfig(); err != nil {
			return err
		}
		if err := loadCatalog(true); err != nil {
			return err
		}
		return loadState()
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := connector.Setup(cmd.Context()); err != nil {
			return err
		}

		var dropStreams []*types.ConfiguredStream
		for _, stream := range catalog.Streams {
			if catalog.Selected(stream.Namespace(), stream.Name()) {
				dropStreams = append(dropStreams, stream)
			}
		}
		if len(dropStreams) == 0 {
			logger.Infof("No streams selected for clearing")
			return nil
		}

		connector.SetupState(state)
		newState, err := connector.ClearState(dropStreams)
		if err != nil {
			return fmt.Errorf("error clearing state: %w", err)
		}
		if err := newState.Checkpoint(); err != nil {
			return fmt.Errorf("failed to persist cleared state: %w", err)
		}
		logger.Infof("State for %d selected streams cleared successfully.", len(dropStreams))
		newState.LogState()
		return nil
	},
}
