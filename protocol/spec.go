package protocol

import (
	"fmt"

	"github.com/datazip-inc/gorgias-tap/destination"
	"github.com/datazip-inc/gorgias-tap/jsonschema"
	"github.com/datazip-inc/gorgias-tap/types"
	"github.com/datazip-inc/gorgias-tap/utils/logger"
	"github.com/spf13/cobra"
)

// specCmd prints the JSON schema of the connector config, or of a writer config
// with --destination-type.
var specCmd = &cobra.Command{
	Use:   "spec",
	Short: "spec command",
	RunE: func(_ *cobra.Command, _ []string) error {
		var config any
		if destinationType == "" {
			config = connector.Spec()
		} else {
			newFunc, found := destination.RegisteredWriters[types.DestinationType(destinationType)]
			if !found {
				return fmt.Errorf("invalid destination type has been passed [%s]", destinationType)
			}
			config = newFunc().Spec()
		}

		schema, err := jsonschema.Reflect(config)
		if err != nil {
			return fmt.Errorf("failed to reflect config: %s", err)
		}

		message := types.Message{Type: types.SpecMessage, Spec: schema}
		if err := logger.FileLogger(message, "spec", ".json"); err != nil {
			logger.Warnf("failed to write spec file: %s", err)
		}
		logger.Info(message)
		return nil
	},
}
