package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	c.Embedding.Provider = strings.ToLower(strings.TrimSpace(c.Embedding.Provider))
	c.Embedding.URL = strings.TrimRight(strings.TrimSpace(c.Embedding.URL), "/")
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))

	if c.Storage.Driver != "memory" && c.Storage.Path != "" {
		path, err := ExpandPath(c.Storage.Path)
		if err != nil {
			return fmt.Errorf("storage.path: %w", err)
		}
		c.Storage.Path = path
	}
	return nil
}
