// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/ava-labs/vmsync/database/leveldb"
	"github.com/ava-labs/vmsync/database/memdb"
	"github.com/ava-labs/vmsync/database/pebble"
	"github.com/ava-labs/vmsync/message"
	"github.com/ava-labs/vmsync/utils/compression"
	"github.com/ava-labs/vmsync/utils/constants"
	"github.com/ava-labs/vmsync/version"
	"github.com/ava-labs/vmsync/vms/rpcchainvm"
	"github.com/ava-labs/vmsync/vms/rpcchainvm/runtime/subprocess"
	"github.com/ava-labs/vmsync/x/sync"
)

const DefaultSimultaneousWorkLimit = 8

var (
	defaultDataDir = filepath.Join("$HOME", "."+constants.AppName)
	defaultDBDir   = filepath.Join(defaultDataDir, "db")
	defaultLogDir  = filepath.Join(defaultDataDir, "logs")
)

// BuildFlagSet returns the complete set of flags for a vmsync host.
func BuildFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet(constants.AppName, pflag.ContinueOnError)
	fs.String(ConfigFileKey, "", "Specifies a config file")

	addLoggingFlags(fs)
	addTracingFlags(fs)

	// Database
	fs.String(DBTypeKey, leveldb.Name, fmt.Sprintf("Database type to use. Must be one of {%s, %s, %s}", leveldb.Name, pebble.Name, memdb.Name))
	fs.String(DBPathKey, defaultDBDir, "Path to database directory")

	// Wire codec
	fs.Int(MessageMaxSizeKey, constants.DefaultMaxMessageSize, "Largest message, in bytes, that is sent or accepted over a plugin session")
	fs.String(MessageCompressionTypeKey, compression.TypeNone.String(), fmt.Sprintf("Compression applied to large frames. Must be one of {%s, %s, %s}", compression.TypeNone, compression.TypeGzip, compression.TypeZstd))
	fs.Int(MessageCompressionThresholdKey, constants.DefaultCompressionThreshold, "Frames with payloads of at least this many bytes are compressed")

	// VM process
	fs.String(VMPathKey, "", "Path to the VM plugin binary")
	fs.StringSlice(VMArgsKey, nil, "Arguments passed to the VM plugin binary")
	fs.Duration(VMHandshakeTimeoutKey, subprocess.DefaultHandshakeTimeout, "Time allowed for the VM process to start and complete the plugin handshake")

	// Plugin session
	fs.Uint32(SessionMinProtocolKey, version.MinRPCChainVMProtocol, "Lowest plugin protocol version accepted from a VM")
	fs.Uint32(SessionMaxProtocolKey, version.MaxRPCChainVMProtocol, "Highest plugin protocol version accepted from a VM")
	fs.Duration(SessionRequestTimeoutKey, rpcchainvm.DefaultRequestTimeout, "Maximum time to wait for a VM to answer a request")
	fs.Duration(SessionHealthIntervalKey, rpcchainvm.DefaultHealthInterval, "Time between health checks of a VM")
	fs.Duration(SessionHealthTimeoutKey, rpcchainvm.DefaultHealthTimeout, "Maximum time to wait for a VM to answer a health check")
	fs.Int(SessionHealthFailureThresholdKey, rpcchainvm.DefaultHealthFailureThreshold, "Number of consecutive failed health checks after which a VM is reported unhealthy")
	fs.Int(SessionNotificationBufferSizeKey, rpcchainvm.DefaultNotificationBufferSize, "Number of VM notifications buffered before new ones are dropped")

	// State sync
	fs.Int(SyncSimultaneousWorkLimitKey, DefaultSimultaneousWorkLimit, "Maximum number of ranges synced at once")
	fs.Uint32(SyncKeyLimitKey, message.DefaultKeyLimit, "Maximum number of keys requested in a single proof")
	fs.Uint32(SyncBytesLimitKey, message.DefaultBytesLimit, "Maximum size, in bytes, of a single proof")
	fs.Int(SyncMaxAttemptsKey, sync.DefaultMaxAttempts, "Number of attempts made to sync a range before the sync fails")
	fs.Duration(SyncRequestTimeoutKey, sync.DefaultRequestTimeout, "Maximum time to wait for a peer to answer a proof request")
	return fs
}

func addLoggingFlags(fs *pflag.FlagSet) {
	fs.String(LogsDirKey, defaultLogDir, "Logging directory")
	fs.String(LogLevelKey, "info", "The log level. Should be one of {verbo, debug, trace, info, warn, error, fatal, off}")
	fs.String(LogDisplayLevelKey, "", "The log display level. If left blank, will inherit the value of log-level. Otherwise, should be one of {verbo, debug, trace, info, warn, error, fatal, off}")
	fs.String(LogFormatKey, "plain", "The structure of log format. Should be one of {plain, colors, json}")
	fs.Bool(LogDisableDisplayKey, false, "If true, logs are only written to files")
	fs.Uint(LogRotaterMaxSizeKey, 8, "The maximum file size in megabytes of the log file before it gets rotated.")
	fs.Uint(LogRotaterMaxFilesKey, 7, "The maximum number of old log files to retain. 0 means retain all old log files.")
	fs.Uint(LogRotaterMaxAgeKey, 0, "The maximum number of days to retain old log files based on the timestamp encoded in their filename. 0 means retain all old log files.")
	fs.Bool(LogRotaterCompressEnabledKey, false, "Enables the compression of rotated log files through gzip.")
}

func addTracingFlags(fs *pflag.FlagSet) {
	fs.Bool(TracingEnabledKey, false, "If true, enable opentelemetry tracing")
	fs.String(TracingExporterTypeKey, "grpc", "Type of exporter to use for tracing. Options are [grpc, http]")
	fs.String(TracingEndpointKey, "", "The endpoint to send trace data to. If unspecified, the exporter's default endpoint is used")
	fs.Bool(TracingInsecureKey, true, "If true, don't use TLS when sending trace data")
	fs.Float64(TracingSampleRateKey, 0.1, "The fraction of traces to sample. If >= 1, always sample. If <= 0, never sample")
	fs.StringToString(TracingHeadersKey, map[string]string{}, "The headers to provide the trace indexer")
}
