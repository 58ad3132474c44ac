package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/himanishpuri/AcousticVerify/internal/config"
	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify"
	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/audio"
	"github.com/himanishpuri/AcousticVerify/pkg/logger"
	"github.com/himanishpuri/AcousticVerify/pkg/models"
)

const commandTimeout = 10 * time.Minute

type commandContext struct {
	configFlag *string
	dbFlag     *string
	driverFlag *string
	levelFlag  *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag, dbFlag, driverFlag, levelFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		dbFlag:     dbFlag,
		driverFlag: driverFlag,
		levelFlag:  levelFlag,
	}
}

// ensureConfig loads the file once and applies command-line overrides.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, resolved, _, err := config.Load(flagValue(c.configFlag))
		if err != nil {
			c.configErr = err
			return
		}
		if v := flagValue(c.driverFlag); v != "" {
			cfg.Storage.Driver = strings.ToLower(v)
		}
		if v := flagValue(c.dbFlag); v != "" {
			if cfg.Storage.Path, err = config.ExpandPath(v); err != nil {
				c.configErr = err
				return
			}
		}
		if v := flagValue(c.levelFlag); v != "" {
			cfg.Logging.Level = v
		}
		if err := cfg.Validate(); err != nil {
			c.configErr = err
			return
		}
		if lvl, ok := logger.ParseLevel(cfg.Logging.Level); ok {
			logger.SetLevel(lvl)
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

// withService opens the engine for the duration of fn.
func (c *commandContext) withService(fn func(context.Context, acousticverify.Service) error, extra ...acousticverify.Option) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}

	log := logger.GetLogger()
	opts := append(cfg.ServiceOptions(), acousticverify.WithLogger(log))
	opts = append(opts, extra...)
	svc, err := acousticverify.NewService(opts...)
	if err != nil {
		log.Errorf("Service initialization failed: %v", err)
		return fmt.Errorf("failed to create service: %w", err)
	}
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	return fn(ctx, svc)
}

// loadAudio decodes path at the fingerprint sample rate so digests of the
// same file agree across commands.
func (c *commandContext) loadAudio(ctx context.Context, path string) (models.AudioBuffer, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return models.AudioBuffer{}, err
	}
	buf, err := audio.Load(ctx, path, cfg.Features.SampleRate)
	if err != nil {
		return models.AudioBuffer{}, fmt.Errorf("load %s: %w", path, err)
	}
	return buf, nil
}

func flagValue(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

func formatDuration(ms int) string {
	sec := ms / 1000
	return fmt.Sprintf("%d:%02d", sec/60, sec%60)
}
