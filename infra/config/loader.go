package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/grand-thief-cash/yggdrasil/infra/consts"
)

// Loader reads the config file (yaml or json) into AppConfig and, when a
// project supplied a biz pointer, re-decodes the biz_config subtree into
// it. The double decode keeps defaults the project pre-set on its struct:
// yaml.v3 would otherwise replace the pointer with a bare map.
type Loader struct {
	env        string
	configPath string
	bizConfig  any
}

func NewLoader(env string, configPath string) *Loader {
	if env == "" {
		env = consts.ENV_DEVELOPMENT
	}
	if configPath == "" {
		configPath = consts.DEFAULT_CONFIG_PATH
	}
	return &Loader{env: env, configPath: configPath}
}

// SetBizConfig injects the project's config struct pointer (e.g.
// &MyBizConfig{}). Must be called before LoadConfig.
func (l *Loader) SetBizConfig(b any) {
	if b == nil {
		return
	}
	if reflect.TypeOf(b).Kind() != reflect.Ptr {
		panic("SetBizConfig expects a pointer, e.g. &MyBizConfig{}")
	}
	l.bizConfig = b
}

func (l *Loader) LoadConfig() (*AppConfig, error) {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	ext := strings.ToLower(filepath.Ext(l.configPath))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	if l.bizConfig != nil && cfg.BizConfig != nil {
		if err := l.decodeBizSection(ext, cfg.BizConfig, l.bizConfig); err != nil {
			return nil, fmt.Errorf("decode biz_config failed: %w", err)
		}
		cfg.BizConfig = l.bizConfig
	} else if l.bizConfig != nil && cfg.BizConfig == nil {
		// No biz_config in the file; keep the project's defaults.
		cfg.BizConfig = l.bizConfig
	}

	l.mergeEnvVars(&cfg)
	return &cfg, nil
}

// decodeBizSection round-trips the already parsed subtree through the
// original encoding into the project pointer.
func (l *Loader) decodeBizSection(ext string, raw any, target any) error {
	var (
		data []byte
		err  error
	)
	switch ext {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(raw)
	case ".json":
		data, err = json.Marshal(raw)
	default:
		return fmt.Errorf("unsupported format: %s", ext)
	}
	if err != nil {
		return fmt.Errorf("re-marshal biz_config failed: %w", err)
	}
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, target); err != nil {
			return fmt.Errorf("unmarshal biz_config into target failed: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, target); err != nil {
			return fmt.Errorf("unmarshal biz_config into target failed: %w", err)
		}
	}
	return nil
}

// mergeEnvVars applies the small set of environment overrides used by
// deploy tooling.
func (l *Loader) mergeEnvVars(cfg *AppConfig) {
	if v := os.Getenv("APP_ENV"); v != "" && cfg.APPInfo != nil {
		cfg.APPInfo.ENV = v
	}
	if v := os.Getenv("HTTP_SERVER_ADDR"); v != "" && cfg.HTTPServer != nil {
		cfg.HTTPServer.Address = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" && cfg.Logging != nil {
		cfg.Logging.Level = v
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}
