package protocol

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/datazip-inc/gorgias-tap/utils"
	"github.com/datazip-inc/gorgias-tap/utils/logger"
	"github.com/datazip-inc/gorgias-tap/utils/safego"
)

const (
	defaultUploadInterval = 5 * time.Minute
	uploadTimeout         = 30 * time.Second
)

// PersistenceConfig is the --persistence-config file: an S3 location plus how
// often state.json is uploaded while a sync runs.
type PersistenceConfig struct {
	utils.S3ArtifactConfig
	Interval string `json:"interval,omitempty" validate:"duration"`
}

func (c *PersistenceConfig) interval() time.Duration {
	interval, err := time.ParseDuration(c.Interval)
	if err != nil || interval <= 0 {
		return defaultUploadInterval
	}
	return interval
}

type uploader interface {
	UploadFile(ctx context.Context, localPath, name string) error
}

// StateUploader copies the state file to S3 periodically and once more on Stop.
type StateUploader struct {
	persister uploader
	localPath string
	interval  time.Duration
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// InitializePersister loads the persistence config and starts the periodic upload.
// It returns nil when persistence is not configured.
func InitializePersister(ctx context.Context, configFile, localStatePath string) (*StateUploader, error) {
	if configFile == "" {
		return nil, nil
	}

	config := &PersistenceConfig{}
	if err := utils.UnmarshalFile(configFile, config, true); err != nil {
		return nil, fmt.Errorf("failed to load persistence config: %s", err)
	}
	if err := utils.Validate(config); err != nil {
		return nil, fmt.Errorf("invalid persistence config: %s", err)
	}

	persister, err := utils.NewArtifactPersister(ctx, config.S3ArtifactConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize artifact persister: %s", err)
	}

	stateUploader := newStateUploader(persister, localStatePath, config.interval())
	stateUploader.Start(ctx)
	logger.Infof("S3 artifact persistence enabled. Uploading state.json every %v", stateUploader.interval)
	return stateUploader, nil
}

func newStateUploader(persister uploader, localPath string, interval time.Duration) *StateUploader {
	return &StateUploader{persister: persister, localPath: localPath, interval: interval}
}

func (u *StateUploader) Start(ctx context.Context) {
	ctx, u.cancel = context.WithCancel(ctx)
	u.wg.Add(1)
	safego.Run(func() {
		defer u.wg.Done()
		ticker := time.NewTicker(u.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := u.upload(ctx); err != nil {
					logger.Warnf("periodic state upload failed: %s", err)
				}
			}
		}
	})
}

// Stop ends the periodic upload and uploads the final state.
func (u *StateUploader) Stop() error {
	if u == nil {
		return nil
	}
	if u.cancel != nil {
		u.cancel()
	}
	u.wg.Wait()
	return u.upload(context.Background())
}

func (u *StateUploader) upload(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()
	return u.persister.UploadFile(ctx, u.localPath, filepath.Base(u.localPath))
}
