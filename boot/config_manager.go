package boot

import (
	"os"
	"sync"
)

// ConfigManager manages the application configuration path.
type ConfigManager struct {
	configPath string
	mu         sync.RWMutex
}

var (
	configManager *ConfigManager
	once          sync.Once
)

// GetConfigManager returns the singleton configuration manager.
func GetConfigManager() *ConfigManager {
	once.Do(func() {
		configManager = &ConfigManager{}
	})
	return configManager
}

func (cm *ConfigManager) SetConfigPath(path string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.configPath = path
}

// GetConfigPath returns the configured path, or the default when unset.
func (cm *ConfigManager) GetConfigPath() string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	if cm.configPath == "" {
		return cm.GetDefaultConfigPath()
	}
	return cm.configPath
}

// GetDefaultConfigPath prefers HIVE_CONFIG_PATH, then ./configs.
func (cm *ConfigManager) GetDefaultConfigPath() string {
	if envPath := os.Getenv("HIVE_CONFIG_PATH"); envPath != "" {
		return envPath
	}
	return "./configs"
}
