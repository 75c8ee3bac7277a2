package feed

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

type ConfigCache struct {
	subscriptionsDir string
	cache            map[string]*Config
	mu               sync.RWMutex
}

func NewConfigCache(subscriptionsDir string) *ConfigCache {
	return &ConfigCache{
		subscriptionsDir: subscriptionsDir,
		cache:            make(map[string]*Config),
	}
}

// Run (re)loads every *.yml file in the subscriptions directory. Configs
// whose file disappeared are dropped from the cache.
func (cc *ConfigCache) Run() error {
	if _, err := os.Stat(cc.subscriptionsDir); os.IsNotExist(err) {
		cc.mu.Lock()
		cc.cache = make(map[string]*Config)
		cc.mu.Unlock()
		return nil
	}

	files, err := filepath.Glob(filepath.Join(cc.subscriptionsDir, "*.yml"))
	if err != nil {
		return fmt.Errorf("failed to find YML files: %w", err)
	}

	loaded := make(map[string]*Config, len(files))
	for _, file := range files {
		name := strings.TrimSuffix(filepath.Base(file), ".yml")

		config, err := cc.loadFile(name, file)
		if err != nil {
			return fmt.Errorf("error loading %s: %w", file, err)
		}
		loaded[name] = config

		slog.Debug("Configuration loaded", "subscription", name, "filters", len(config.Filters), "retention", config.Retention.Type)
	}

	cc.mu.Lock()
	cc.cache = loaded
	cc.mu.Unlock()

	return nil
}

func (cc *ConfigCache) LoadConfig(name string) (*Config, error) {
	config, err := cc.loadFile(name, cc.getConfigFilePath(name))
	if err != nil {
		return nil, err
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.cache[config.Name] = config

	return config, nil
}

func (cc *ConfigCache) GetConfig(name string) (*Config, error) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	config, ok := cc.cache[name]
	if !ok {
		return nil, fmt.Errorf("subscription config with name '%s' not found", name)
	}
	return config, nil
}

func (cc *ConfigCache) GetConfigs() map[string]*Config {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	configsCopy := make(map[string]*Config, len(cc.cache))
	for k, v := range cc.cache {
		configsCopy[k] = v
	}
	return configsCopy
}

func (cc *ConfigCache) GetConfigCount() int {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return len(cc.cache)
}

func (cc *ConfigCache) loadFile(name, configFile string) (*Config, error) {
	config, err := cc.parseConfig(configFile)
	if err != nil {
		return nil, err
	}

	config.Name = name
	if config.Title == "" {
		config.Title = name
	}

	if err := cc.validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configFile, err)
	}
	return config, nil
}

func (cc *ConfigCache) parseConfig(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	for i := range config.Filters {
		config.Filters[i].Type = strings.ToLower(strings.TrimSpace(config.Filters[i].Type))
		config.Filters[i].Operator = strings.TrimSpace(config.Filters[i].Operator)
	}
	config.Retention.Type = strings.ToLower(strings.TrimSpace(config.Retention.Type))

	return &config, nil
}

func (cc *ConfigCache) validateConfig(config *Config) error {
	if config == nil {
		return fmt.Errorf("config is nil")
	}

	requiredFields := map[string]string{
		"subscription name": config.Name,
		"url":               config.URL,
		"destination path":  config.Destination.Path,
	}

	for fieldName, fieldValue := range requiredFields {
		if fieldValue == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
	}

	if config.ResolvedFeedURL() == "" {
		return fmt.Errorf("feed_url or channel_id is required")
	}

	if config.Retention.Type == "" {
		return fmt.Errorf("retention policy is required")
	}

	// Filters and retention are checked by the same rules the store applies.
	if _, err := config.ToSubscription(); err != nil {
		return err
	}

	return nil
}

func (cc *ConfigCache) getConfigFilePath(name string) string {
	return filepath.Join(cc.subscriptionsDir, name+".yml")
}
