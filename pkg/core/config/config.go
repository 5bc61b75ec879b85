//
//  Copyright © Trustline Inc. All rights reserved.
//

// Package config provides configuration management for the decision engine
// using [Viper] for flexible configuration sources.
//
// Configuration can be provided via:
//   - YAML configuration files
//   - Environment variables with the AG_ prefix
//   - Programmatic defaults
//
// # Configuration File
//
// By default, the engine looks for authguard-config.yaml in the current
// directory. Override the location using environment variables:
//
//	AG_CONFIG_PATH=/etc/authguard
//	AG_CONFIG_FILENAME=production-config
//
// Example configuration file:
//
//	log:
//	  level: ".:info"
//	workers:
//	  max: 3
//	risk:
//	  model:
//	    path: /var/lib/authguard/model
//	audit:
//	  dir: /var/lib/authguard/audit
//	  queue:
//	    size: 1000
//
// # Environment Variables
//
// All configuration keys can be set via environment variables with the AG_
// prefix. Dots in key names become underscores:
//
//	AG_LOG_LEVEL=.:debug
//	AG_AUDIT_QUEUE_SIZE=2000
//
// [Viper]: https://github.com/spf13/viper
package config

import (
	"errors"
	"os"
	"strings"
	"sync"

	"github.com/spf13/viper"
	"github.com/trustline/authguard/internal/logging"
)

// Environment variable and default path constants for configuration loading.
const (
	// EnvVarPrefix is the prefix for all decision engine environment
	// variables. For example, the key "log.level" becomes AG_LOG_LEVEL.
	EnvVarPrefix string = "AG"

	// ConfigPathEnv is the environment variable that specifies the directory
	// containing the configuration file.
	ConfigPathEnv string = "AG_CONFIG_PATH"

	// ConfigFileNameEnv is the environment variable that specifies the
	// configuration file name (without extension).
	ConfigFileNameEnv string = "AG_CONFIG_FILENAME"

	// ConfigDefaultPath is the default directory to search for config files.
	ConfigDefaultPath string = "."

	// ConfigDefaultFilename is the default configuration file name (without extension).
	ConfigDefaultFilename string = "authguard-config"
)

// Configuration key constants for use with [VConfig].
const (
	logLevel string = "log.level"

	// MaxWorkers bounds the evaluator worker pool. The effective pool size
	// is min(NumCPU, MaxWorkers).
	//
	// Default: 3
	MaxWorkers string = "workers.max"

	// RiskModelPath is the directory containing a serialized risk model
	// artifact. When empty the deterministic heuristic scorer is used.
	// Scorer selection is sticky for the process lifetime.
	RiskModelPath string = "risk.model.path"

	// RiskModelFallback controls whether a model inference failure falls
	// back to the heuristic scorer instead of failing the evaluation.
	//
	// Default: true
	RiskModelFallback string = "risk.model.fallback"

	// BehaviorMinSessions is the number of profile updates required before
	// a behavioral profile is considered valid.
	//
	// Default: 5
	BehaviorMinSessions string = "behavior.minsessions"

	// BehaviorUpdateOnScore controls whether scoring a session also folds
	// it into the user's behavioral profile.
	//
	// Default: true
	BehaviorUpdateOnScore string = "behavior.updateonscore"

	// BehaviorRedisAddr enables the redis-backed profile store when
	// non-empty. The in-memory arena is the default.
	BehaviorRedisAddr string = "behavior.redis.addr"

	// NetworkContextPath is an optional JSON file for the static network
	// context provider, keyed by ip and device id.
	NetworkContextPath string = "network.context.path"

	// DriftWindow is the rolling window size of the escalation-rate drift
	// monitor.
	//
	// Default: 100
	DriftWindow string = "confidence.driftwindow"

	// PolicyPath is the path to the versioned policy configuration document.
	PolicyPath string = "policy.path"

	// AuditDir is the directory for audit ledger partitions.
	//
	// Default: "audit"
	AuditDir string = "audit.dir"

	// AuditQueueSize is the capacity of the bounded audit submission queue.
	//
	// Default: 1000
	AuditQueueSize string = "audit.queue.size"

	// AuditSubmitTimeout bounds how long a submission blocks on a full
	// queue before the overflow policy applies.
	//
	// Default: "250ms"
	AuditSubmitTimeout string = "audit.queue.timeout"

	// AuditOverflow selects the queue-full behavior after the submit
	// timeout: "sync" writes inline on the caller, "drop" discards the
	// entry and increments the drop counter.
	//
	// Default: "sync"
	AuditOverflow string = "audit.queue.overflow"

	// IndexRedisAddr enables the operational metadata index when non-empty.
	// The ledger remains canonical; index failures are logged and tolerated.
	IndexRedisAddr string = "index.redis.addr"
)

var (
	once     sync.Once
	loadOnce sync.Once
	loadErr  error

	// VConfig is the global Viper configuration instance for the engine.
	//
	// Use the configuration key constants ([MaxWorkers], [AuditDir], etc.)
	// to access specific settings:
	//
	//	size := config.VConfig.GetInt(config.AuditQueueSize)
	//
	// VConfig is initialized automatically when [Load] or [Init] is called.
	VConfig *viper.Viper

	logger = logging.GetLogger("authguard.config")
)

// Init initializes the configuration system without loading config files.
//
// Init sets up Viper with file paths, AG_ environment variable handling,
// and defaults for all configuration keys. It is safe to call multiple
// times; subsequent calls are no-ops.
func Init() {
	once.Do(doInitialize)
}

func getConfigPath() string {
	if p, ok := os.LookupEnv(ConfigPathEnv); ok {
		return p
	}
	return ConfigDefaultPath
}

func getConfigFileName() string {
	if n, ok := os.LookupEnv(ConfigFileNameEnv); ok {
		return n
	}
	return ConfigDefaultFilename
}

func doInitialize() {
	VConfig = viper.New()

	// config-file loading: default is './authguard-config.yaml' but can be
	// overridden with $(AG_CONFIG_PATH)/$(AG_CONFIG_FILENAME).yaml
	VConfig.AddConfigPath(getConfigPath())
	VConfig.SetConfigName(getConfigFileName())
	VConfig.SetConfigType("yaml")

	// envvar handling: keys such as 'log.level' become 'AG_LOG_LEVEL'
	VConfig.SetEnvPrefix(EnvVarPrefix)
	VConfig.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	VConfig.AutomaticEnv()

	VConfig.SetDefault(logLevel, ".:info")
	VConfig.SetDefault(MaxWorkers, 3)
	VConfig.SetDefault(RiskModelFallback, true)
	VConfig.SetDefault(BehaviorMinSessions, 5)
	VConfig.SetDefault(BehaviorUpdateOnScore, true)
	VConfig.SetDefault(DriftWindow, 100)
	VConfig.SetDefault(AuditDir, "audit")
	VConfig.SetDefault(AuditQueueSize, 1000)
	VConfig.SetDefault(AuditSubmitTimeout, "250ms")
	VConfig.SetDefault(AuditOverflow, "sync")
}

// Load initializes configuration and loads settings from files and the
// environment.
//
// Missing configuration files are not an error; defaults apply. Load is
// safe to call concurrently and subsequent calls after the first successful
// load are no-ops.
func Load() error {
	loadOnce.Do(func() {
		Init()

		// Early log level update from the environment allows debugging of
		// the config loading itself.
		if early := os.Getenv("AG_LOG_LEVEL"); early != "" {
			if err := logging.UpdateLogLevels(early); err != nil {
				logger.SysErrorf("Failed updating early log level %s: %+v", early, err)
				loadErr = err
				return
			}
		}

		logger.SysDebugf("Loading configuration from %s/%s.yaml", getConfigPath(), getConfigFileName())
		if err := VConfig.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				logger.SysWarnf("error reading config; using defaults: %+v", err)
			}
			logger.SysDebugf("No config file found at %s/%s.yaml", getConfigPath(), getConfigFileName())
		}

		level := VConfig.GetString(logLevel)
		if err := logging.UpdateLogLevels(level); err != nil {
			logger.SysErrorf("Failed updating log level %s: %+v", level, err)
			loadErr = err
			return
		}
	})

	return loadErr
}

// ResetConfig clears loaded state so that tests can reload with different
// environment settings.
func ResetConfig() {
	once = sync.Once{}
	loadOnce = sync.Once{}
	loadErr = nil
	VConfig = nil
}
