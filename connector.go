package tap

import (
	"os"

	"github.com/datazip-inc/gorgias-tap/drivers/abstract"
	"github.com/datazip-inc/gorgias-tap/protocol"
	"github.com/datazip-inc/gorgias-tap/utils/logger"
	"github.com/datazip-inc/gorgias-tap/utils/safego"
	_ "github.com/datazip-inc/gorgias-tap/writers/local"   // registering local jsonl writer
	_ "github.com/datazip-inc/gorgias-tap/writers/parquet" // registering local parquet writer
	_ "github.com/datazip-inc/gorgias-tap/writers/stdout"  // registering singer stdout writer
)

func RegisterDriver(driver abstract.DriverInterface) {
	defer safego.Recovery(true)

	// Execute the root command
	err := protocol.CreateRootCommand(true, driver).Execute()
	if err != nil {
		logger.Fatal(err)
	}

	os.Exit(0)
}
