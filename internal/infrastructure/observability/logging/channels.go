// Package logging provides structured logging channels for PerkCity operations.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Channel represents a logical logging channel for different system components
type Channel string

const (
	// System channels
	ChannelSystem   Channel = "system"
	ChannelStartup  Channel = "startup"
	ChannelShutdown Channel = "shutdown"

	// Business logic channels
	ChannelAuth         Channel = "auth"
	ChannelCatalog      Channel = "catalog"
	ChannelSubscription Channel = "subscription"
	ChannelCache        Channel = "cache"

	// Infrastructure channels
	ChannelDatabase Channel = "database"
	ChannelRealtime Channel = "realtime"
)

var allChannels = []Channel{
	ChannelSystem, ChannelStartup, ChannelShutdown,
	ChannelAuth, ChannelCatalog, ChannelSubscription, ChannelCache,
	ChannelDatabase, ChannelRealtime,
}

// ChanneledLogger provides structured logging with multiple channels
type ChanneledLogger struct {
	channels map[Channel]*slog.Logger
	config   *LoggerConfig
}

// LoggerConfig contains configuration options for the channeled logger
type LoggerConfig struct {
	Output        io.Writer              // Destination for log output; defaults to stdout
	JSONFormat    bool                   // Use JSON format for structured logging
	DefaultLevel  slog.Level             // Default log level
	ChannelLevels map[Channel]slog.Level // Per-channel log level overrides
}

// DefaultLoggerConfig returns a sensible default configuration
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{
		Output:        os.Stdout,
		JSONFormat:    false,
		DefaultLevel:  slog.LevelInfo,
		ChannelLevels: make(map[Channel]slog.Level),
	}
}

// ParseLevel converts a level name from configuration into a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "trace", "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
}

// NewChanneledLogger creates a new channeled logger with the given configuration
func NewChanneledLogger(config *LoggerConfig) *ChanneledLogger {
	if config == nil {
		config = DefaultLoggerConfig()
	}
	if config.Output == nil {
		config.Output = os.Stdout
	}

	logger := &ChanneledLogger{
		channels: make(map[Channel]*slog.Logger),
		config:   config,
	}

	for _, channel := range allChannels {
		logger.channels[channel] = logger.createChannelLogger(channel)
	}

	return logger
}

// createChannelLogger creates a slog.Logger for a specific channel
func (cl *ChanneledLogger) createChannelLogger(channel Channel) *slog.Logger {
	level := cl.config.DefaultLevel
	if channelLevel, exists := cl.config.ChannelLevels[channel]; exists {
		level = channelLevel
	}

	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cl.config.JSONFormat {
		handler = slog.NewJSONHandler(cl.config.Output, handlerOpts)
	} else {
		handler = slog.NewTextHandler(cl.config.Output, handlerOpts)
	}

	return slog.New(handler).With(slog.String("channel", string(channel)))
}

func (cl *ChanneledLogger) System() *slog.Logger       { return cl.channels[ChannelSystem] }
func (cl *ChanneledLogger) Startup() *slog.Logger      { return cl.channels[ChannelStartup] }
func (cl *ChanneledLogger) Shutdown() *slog.Logger     { return cl.channels[ChannelShutdown] }
func (cl *ChanneledLogger) Auth() *slog.Logger         { return cl.channels[ChannelAuth] }
func (cl *ChanneledLogger) Catalog() *slog.Logger      { return cl.channels[ChannelCatalog] }
func (cl *ChanneledLogger) Subscription() *slog.Logger { return cl.channels[ChannelSubscription] }
func (cl *ChanneledLogger) Cache() *slog.Logger        { return cl.channels[ChannelCache] }
func (cl *ChanneledLogger) Database() *slog.Logger     { return cl.channels[ChannelDatabase] }
func (cl *ChanneledLogger) Realtime() *slog.Logger     { return cl.channels[ChannelRealtime] }

// GetChannel returns a logger for a specific channel
func (cl *ChanneledLogger) GetChannel(channel Channel) *slog.Logger {
	if logger, exists := cl.channels[channel]; exists {
		return logger
	}
	return cl.channels[ChannelSystem]
}

// WithOperation returns a logger with operation context
func (cl *ChanneledLogger) WithOperation(channel Channel, operation string) *slog.Logger {
	return cl.GetChannel(channel).With(slog.String("operation", operation))
}
