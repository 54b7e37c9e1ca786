package protocol

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/datazip-inc/gorgias-tap/constants"
	"github.com/datazip-inc/gorgias-tap/drivers/abstract"
	"github.com/datazip-inc/gorgias-tap/types"
	"github.com/datazip-inc/gorgias-tap/utils"
	"github.com/datazip-inc/gorgias-tap/utils/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const notSet = "not-set"

var (
	configPath            string
	destinationConfigPath string
	destinationType       string
	statePath             string
	streamsPath           string
	persistenceConfigPath string
	encryptionKey         string
	logLevel              string
	batchSize             int
	noSave                bool

	catalog           *types.Catalog
	state             *types.State
	destinationConfig *types.WriterConfig

	commands  = []*cobra.Command{}
	connector *abstract.AbstractDriver
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "gorgias-tap",
	Short: "Incremental extraction of Gorgias helpdesk data",
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		viper.SetDefault(constants.ConfigFolder, os.TempDir())
		viper.SetDefault(constants.StatePath, filepath.Join(os.TempDir(), "state.json"))
		viper.SetDefault(constants.StreamsPath, filepath.Join(os.TempDir(), "streams.json"))
		if !noSave {
			configFolder := utils.Ternary(configPath == notSet, filepath.Dir(destinationConfigPath), filepath.Dir(configPath))
			if configPath == notSet && destinationConfigPath == notSet {
				configFolder = viper.GetString(constants.ConfigFolder)
			}
			viper.Set(constants.ConfigFolder, configFolder)
			viper.Set(constants.StatePath, utils.Ternary(statePath == "", filepath.Join(configFolder, "state.json"), statePath))
			viper.Set(constants.StreamsPath, utils.Ternary(streamsPath == "", filepath.Join(configFolder, "streams.json"), streamsPath))
		}
		viper.Set(constants.DisableLogFile, noSave)

		if encryptionKey != "" {
			viper.Set(constants.EncryptionKey, encryptionKey)
		}

		// logger uses CONFIG_FOLDER
		logger.Init()
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}

		if ok := utils.IsValidSubcommand(commands, args[0]); !ok {
			return fmt.Errorf("'%s' is an invalid command. Use 'gorgias-tap --help' to display usage guide", args[0])
		}
		return nil
	},
}

func CreateRootCommand(_ bool, driver abstract.DriverInterface) *cobra.Command {
	RootCmd.AddCommand(commands...)
	connector = abstract.NewAbstractDriver(RootCmd.Context(), driver)

	return RootCmd
}

// loadSourceConfig reads the connector config, decrypting it when a key is set.
func loadSourceConfig() error {
	if configPath == notSet {
		return fmt.Errorf("--config not passed")
	}
	return utils.UnmarshalFile(configPath, connector.GetConfigRef(), true)
}

// loadState reads --state, starting empty when the file does not exist yet.
func loadState() error {
	path := utils.Ternary(statePath == "", viper.GetString(constants.StatePath), statePath)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Infof("state file[%s] not found, starting without bookmarks", path)
		state = types.NewState()
		state.SetPath(path)
		return nil
	}

	loaded, err := types.LoadState(path)
	if err != nil {
		return err
	}
	state = loaded
	return nil
}

// loadCatalog reads --streams when given; without it every stream is synced.
func loadCatalog(required bool) error {
	if streamsPath == "" {
		if required {
			return fmt.Errorf("--streams not passed")
		}
		catalog = nil
		return nil
	}
	catalog = &types.Catalog{}
	return utils.UnmarshalFile(streamsPath, catalog, false)
}

func loadDestinationConfig() error {
	if destinationConfigPath == notSet {
		destinationConfig = types.DefaultWriterConfig()
		return nil
	}
	destinationConfig = &types.WriterConfig{}
	if err := utils.UnmarshalFile(destinationConfigPath, destinationConfig, true); err != nil {
		return err
	}
	if batchSize > 0 {
		destinationConfig.BatchSize = batchSize
	}
	return utils.Validate(destinationConfig)
}

func init() {
	commands = append(commands, specCmd, checkCmd, discoverCmd, syncCmd, clearCmd)
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "", notSet, "(Required) Config for connector")
	RootCmd.PersistentFlags().StringVarP(&destinationConfigPath, "destination", "", notSet, "(Optional) Destination config, records go to stdout when omitted")
	RootCmd.PersistentFlags().StringVarP(&destinationType, "destination-type", "", "", "Destination type for spec")
	RootCmd.PersistentFlags().StringVarP(&streamsPath, "catalog", "", "", "Path to the streams file for the connector")
	RootCmd.PersistentFlags().StringVarP(&streamsPath, "streams", "", "", "Path to the streams file for the connector")
	RootCmd.PersistentFlags().StringVarP(&statePath, "state", "", "", "(Optional) State for connector")
	RootCmd.PersistentFlags().IntVarP(&batchSize, "destination-buffer-size", "", 0, "(Optional) Batch size for destination")
	RootCmd.PersistentFlags().BoolVarP(&noSave, "no-save", "", false, "(Optional) Flag to skip logging artifacts in file")
	RootCmd.PersistentFlags().StringVarP(&encryptionKey, "encryption-key", "", "", "(Optional) Decryption key. Provide the ARN of a KMS key, a UUID, or a custom string based on your encryption configuration.")
	RootCmd.PersistentFlags().StringVarP(&persistenceConfigPath, "persistence-config", "", "", "(Optional) S3 config for uploading state.json during sync")
	RootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "", "info", "(Optional) Log level: debug, info, warn, error")
	_ = viper.BindPFlag(constants.LogLevel, RootCmd.PersistentFlags().Lookup("log-level"))
	viper.AutomaticEnv()

	// Disable Cobra CLI's built-in usage and error handling
	RootCmd.SilenceUsage = true
	RootCmd.SilenceErrors = true
}
