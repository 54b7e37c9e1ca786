package driver

import (
	"context"
	"fmt"

	"github.com/datazip-inc/gorgias-tap/constants"
	"github.com/datazip-inc/gorgias-tap/drivers/abstract"
	"github.com/datazip-inc/gorgias-tap/pkg/rest"
	"github.com/datazip-inc/gorgias-tap/types"
	"github.com/datazip-inc/gorgias-tap/utils/logger"
)

const accountPath = "/api/account"

type Gorgias struct {
	config *Config
	client *rest.Client
}

func (g *Gorgias) GetConfigRef() abstract.Config {
	g.config = &Config{}
	return g.config
}

func (g *Gorgias) Spec() any {
	return Config{}
}

func (g *Gorgias) Type() string {
	return string(constants.Gorgias)
}

func (g *Gorgias) Setup(_ context.Context) error {
	if g.config == nil {
		return fmt.Errorf("config not loaded")
	}
	if err := g.config.Validate(); err != nil {
		return fmt.Errorf("failed to validate config: %s", err)
	}

	client, err := rest.NewClient(g.config.RESTConfig())
	if err != nil {
		return fmt.Errorf("failed to create client: %s", err)
	}
	g.client = client
	return nil
}

// Check authenticates against the account endpoint.
func (g *Gorgias) Check(ctx context.Context) error {
	if g.client == nil {
		if err := g.Setup(ctx); err != nil {
			return err
		}
	}

	response, err := g.client.Get(ctx, accountPath, nil)
	if err != nil {
		return fmt.Errorf("failed to reach account endpoint: %w", err)
	}
	if account, ok := response.Body.(map[string]any); ok {
		logger.Infof("connected to gorgias account[%v]", account["domain"])
	}
	return nil
}

func (g *Gorgias) MaxThreads() int {
	return g.config.MaxThreads
}

func (g *Gorgias) MaxChildThreads() int {
	if g.config.MaxChildThreads <= 0 {
		return constants.DefaultChildThreadCount
	}
	return g.config.MaxChildThreads
}

func (g *Gorgias) AbortOnError() bool {
	return g.config.AbortOnError
}

func (g *Gorgias) StartDate() string {
	return g.config.StartDate
}

func (g *Gorgias) Streams() []*types.StreamDefinition {
	return Streams()
}

func (g *Gorgias) Client() *rest.Client {
	return g.client
}
