// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ava-labs/vmsync/database"
	"github.com/ava-labs/vmsync/database/corruptabledb"
	"github.com/ava-labs/vmsync/database/leveldb"
	"github.com/ava-labs/vmsync/database/memdb"
	"github.com/ava-labs/vmsync/database/meterdb"
	"github.com/ava-labs/vmsync/database/pebble"
	"github.com/ava-labs/vmsync/message"
	"github.com/ava-labs/vmsync/trace"
	"github.com/ava-labs/vmsync/utils/compression"
	"github.com/ava-labs/vmsync/utils/constants"
	"github.com/ava-labs/vmsync/utils/logging"
	"github.com/ava-labs/vmsync/version"
	"github.com/ava-labs/vmsync/vms/rpcchainvm"
	"github.com/ava-labs/vmsync/vms/rpcchainvm/runtime/subprocess"
	"github.com/ava-labs/vmsync/x/sync"
)

var (
	errInvalidMessageSize = errors.New("message size must be > 0")
	errInvalidThreshold   = errors.New("health failure threshold must be > 0")
	errInvalidBufferSize  = errors.New("notification buffer size must be > 0")
	errInvalidWorkLimit   = errors.New("simultaneous work limit must be > 0")
	errInvalidAttempts    = errors.New("max attempts must be > 0")
	errInvalidTimeout     = errors.New("timeout must be > 0")
	errNoVMPath           = errors.New("no vm path provided")
	errUnknownDBType      = errors.New("unknown database type")
)

// BuildViper parses [args] with [fs] and returns a viper instance reading, in
// order of precedence, the parsed flags, environment variables prefixed with
// [EnvPrefix], the config file named by [ConfigFileKey] and the flag
// defaults.
func BuildViper(fs *pflag.FlagSet, args []string) (*viper.Viper, error) {
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}

	if configFile := v.GetString(ConfigFileKey); configFile != "" {
		v.SetConfigFile(os.ExpandEnv(configFile))
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("couldn't read config file %q: %w", configFile, err)
		}
	}
	return v, nil
}

func GetLoggingConfig(v *viper.Viper) (logging.Config, error) {
	var (
		loggingConfig = logging.Config{}
		err           error
	)
	loggingConfig.Directory = os.ExpandEnv(v.GetString(LogsDirKey))
	loggingConfig.LogLevel, err = logging.ToLevel(v.GetString(LogLevelKey))
	if err != nil {
		return loggingConfig, err
	}

	logDisplayLevel := v.GetString(LogDisplayLevelKey)
	if logDisplayLevel == "" {
		logDisplayLevel = v.GetString(LogLevelKey)
	}
	loggingConfig.DisplayLevel, err = logging.ToLevel(logDisplayLevel)
	if err != nil {
		return loggingConfig, err
	}

	loggingConfig.LogFormat, err = logging.ToFormat(v.GetString(LogFormatKey))
	loggingConfig.DisableWriterDisplaying = v.GetBool(LogDisableDisplayKey)
	loggingConfig.MaxSize = int(v.GetUint(LogRotaterMaxSizeKey))
	loggingConfig.MaxFiles = int(v.GetUint(LogRotaterMaxFilesKey))
	loggingConfig.MaxAge = int(v.GetUint(LogRotaterMaxAgeKey))
	loggingConfig.Compress = v.GetBool(LogRotaterCompressEnabledKey)
	loggingConfig.LoggerName = constants.AppName
	return loggingConfig, err
}

func GetTraceConfig(v *viper.Viper) (trace.Config, error) {
	enabled := v.GetBool(TracingEnabledKey)
	if !enabled {
		return trace.Config{}, nil
	}

	exporterType, err := trace.ExporterTypeFromString(v.GetString(TracingExporterTypeKey))
	if err != nil {
		return trace.Config{}, err
	}

	return trace.Config{
		ExporterConfig: trace.ExporterConfig{
			Type:     exporterType,
			Endpoint: v.GetString(TracingEndpointKey),
			Insecure: v.GetBool(TracingInsecureKey),
			Headers:  v.GetStringMapString(TracingHeadersKey),
		},
		Enabled:         true,
		TraceSampleRate: v.GetFloat64(TracingSampleRateKey),
		AppName:         constants.AppName,
		Version:         version.Current.String(),
	}, nil
}

func GetMessageConfig(v *viper.Viper) (message.Config, error) {
	compressionType, err := compression.TypeFromString(v.GetString(MessageCompressionTypeKey))
	if err != nil {
		return message.Config{}, err
	}

	config := message.Config{
		MaxMessageSize:       v.GetInt(MessageMaxSizeKey),
		CompressionType:      compressionType,
		CompressionThreshold: v.GetInt(MessageCompressionThresholdKey),
	}
	if config.MaxMessageSize <= 0 {
		return message.Config{}, fmt.Errorf("%w: %d", errInvalidMessageSize, config.MaxMessageSize)
	}
	return config, nil
}

func GetSubprocessConfig(v *viper.Viper, log logging.Logger) (subprocess.Config, error) {
	config := subprocess.Config{
		Path:             os.ExpandEnv(v.GetString(VMPathKey)),
		Args:             v.GetStringSlice(VMArgsKey),
		HandshakeTimeout: v.GetDuration(VMHandshakeTimeoutKey),
		Log:              log,
	}
	switch {
	case config.Path == "":
		return subprocess.Config{}, errNoVMPath
	case config.HandshakeTimeout <= 0:
		return subprocess.Config{}, fmt.Errorf("%w: %s", errInvalidTimeout, VMHandshakeTimeoutKey)
	}
	return config, nil
}

// GetSessionConfig returns the session config set by [v]. The returned config
// logs to [log] and doesn't register metrics or trace requests. It serves no
// database to the VM until DB is set, e.g. to the result of NewDatabase.
func GetSessionConfig(v *viper.Viper, log logging.Logger) (rpcchainvm.Config, error) {
	messageConfig, err := GetMessageConfig(v)
	if err != nil {
		return rpcchainvm.Config{}, err
	}

	config := rpcchainvm.DefaultConfig(log)
	config.ProtocolRange = version.ProtocolRange{
		Min: v.GetUint32(SessionMinProtocolKey),
		Max: v.GetUint32(SessionMaxProtocolKey),
	}
	config.RequestTimeout = v.GetDuration(SessionRequestTimeoutKey)
	config.HealthInterval = v.GetDuration(SessionHealthIntervalKey)
	config.HealthTimeout = v.GetDuration(SessionHealthTimeoutKey)
	config.HealthFailureThreshold = v.GetInt(SessionHealthFailureThresholdKey)
	config.NotificationBufferSize = v.GetInt(SessionNotificationBufferSizeKey)
	config.Message = messageConfig

	switch {
	case config.RequestTimeout <= 0:
		return rpcchainvm.Config{}, fmt.Errorf("%w: %s", errInvalidTimeout, SessionRequestTimeoutKey)
	case config.HealthInterval <= 0:
		return rpcchainvm.Config{}, fmt.Errorf("%w: %s", errInvalidTimeout, SessionHealthIntervalKey)
	case config.HealthTimeout <= 0:
		return rpcchainvm.Config{}, fmt.Errorf("%w: %s", errInvalidTimeout, SessionHealthTimeoutKey)
	case config.HealthFailureThreshold <= 0:
		return rpcchainvm.Config{}, fmt.Errorf("%w: %d", errInvalidThreshold, config.HealthFailureThreshold)
	case config.NotificationBufferSize <= 0:
		return rpcchainvm.Config{}, fmt.Errorf("%w: %d", errInvalidBufferSize, config.NotificationBufferSize)
	}
	return config, config.ProtocolRange.Verify()
}

// GetSyncConfig returns the policy of a sync set by [v]. The database,
// clients, target and logger of the returned config are left for the caller.
func GetSyncConfig(v *viper.Viper) (sync.ManagerConfig, error) {
	config := sync.ManagerConfig{
		SimultaneousWorkLimit: v.GetInt(SyncSimultaneousWorkLimitKey),
		KeyLimit:              v.GetUint32(SyncKeyLimitKey),
		BytesLimit:            v.GetUint32(SyncBytesLimitKey),
		MaxAttempts:           v.GetInt(SyncMaxAttemptsKey),
		RequestTimeout:        v.GetDuration(SyncRequestTimeoutKey),
	}
	switch {
	case config.SimultaneousWorkLimit <= 0:
		return sync.ManagerConfig{}, fmt.Errorf("%w: %d", errInvalidWorkLimit, config.SimultaneousWorkLimit)
	case config.MaxAttempts <= 0:
		return sync.ManagerConfig{}, fmt.Errorf("%w: %d", errInvalidAttempts, config.MaxAttempts)
	case config.RequestTimeout <= 0:
		return sync.ManagerConfig{}, fmt.Errorf("%w: %s", errInvalidTimeout, SyncRequestTimeoutKey)
	}
	return config, nil
}

// NewDatabase opens the database set by [v]. Corruption errors are sticky and,
// if [reg] is non-nil, database calls are metered.
func NewDatabase(v *viper.Viper, log logging.Logger, reg prometheus.Registerer) (database.Database, error) {
	var (
		dbType = v.GetString(DBTypeKey)
		dbPath = filepath.Join(os.ExpandEnv(v.GetString(DBPathKey)), dbType)
		db     database.Database
		err    error
	)
	switch dbType {
	case memdb.Name:
		db = memdb.New()
	case leveldb.Name:
		db, err = leveldb.New(dbPath, leveldb.DefaultConfig, log)
	case pebble.Name:
		db, err = pebble.New(dbPath, pebble.DefaultConfig, log)
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownDBType, dbType)
	}
	if err != nil {
		return nil, fmt.Errorf("couldn't open %s database at %q: %w", dbType, dbPath, err)
	}

	db = corruptabledb.New(db)
	if reg == nil {
		return db, nil
	}
	meteredDB, err := meterdb.New(reg, db)
	if err != nil {
		return nil, err
	}
	return meteredDB, nil
}
