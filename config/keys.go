// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

// EnvPrefix is prepended to every key to form the name of the environment
// variable that sets it. Dashes become underscores, so [LogLevelKey] is set
// by VMSYNC_LOG_LEVEL.
const EnvPrefix = "vmsync"

// #nosec G101
const (
	ConfigFileKey = "config-file"

	// Logging
	LogsDirKey                   = "log-dir"
	LogLevelKey                  = "log-level"
	LogDisplayLevelKey           = "log-display-level"
	LogFormatKey                 = "log-format"
	LogDisableDisplayKey         = "log-disable-display"
	LogRotaterMaxSizeKey         = "log-rotater-max-size"
	LogRotaterMaxFilesKey        = "log-rotater-max-files"
	LogRotaterMaxAgeKey          = "log-rotater-max-age"
	LogRotaterCompressEnabledKey = "log-rotater-compress-enabled"

	// Tracing
	TracingEnabledKey      = "tracing-enabled"
	TracingExporterTypeKey = "tracing-exporter-type"
	TracingEndpointKey     = "tracing-endpoint"
	TracingInsecureKey     = "tracing-insecure"
	TracingSampleRateKey   = "tracing-sample-rate"
	TracingHeadersKey      = "tracing-headers"

	// Database
	DBTypeKey = "db-type"
	DBPathKey = "db-dir"

	// Wire codec
	MessageMaxSizeKey              = "message-max-size"
	MessageCompressionTypeKey      = "message-compression-type"
	MessageCompressionThresholdKey = "message-compression-threshold"

	// VM process
	VMPathKey             = "vm-path"
	VMArgsKey             = "vm-args"
	VMHandshakeTimeoutKey = "vm-handshake-timeout"

	// Plugin session
	SessionMinProtocolKey            = "session-min-protocol"
	SessionMaxProtocolKey            = "session-max-protocol"
	SessionRequestTimeoutKey         = "session-request-timeout"
	SessionHealthIntervalKey         = "session-health-interval"
	SessionHealthTimeoutKey          = "session-health-timeout"
	SessionHealthFailureThresholdKey = "session-health-failure-threshold"
	SessionNotificationBufferSizeKey = "session-notification-buffer-size"

	// State sync
	SyncSimultaneousWorkLimitKey = "sync-simultaneous-work-limit"
	SyncKeyLimitKey              = "sync-key-limit"
	SyncBytesLimitKey            = "sync-bytes-limit"
	SyncMaxAttemptsKey           = "sync-max-attempts"
	SyncRequestTimeoutKey        = "sync-request-timeout"
)
