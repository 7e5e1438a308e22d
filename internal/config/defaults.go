package config

const (
	defaultDataDir             = "~/.local/share/dcmrelay"
	defaultLogDir              = "~/.local/share/dcmrelay/logs"
	defaultAPIBind             = "127.0.0.1:7465"
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultLogRetentionDays    = 60
	defaultMaxStopAttempts     = 100
	defaultBufferSize          = 100
	defaultMinFileAgeSeconds   = 3
	defaultIdlePollSeconds     = 1
	defaultNotifyTimeout       = 10
	defaultDedupWindowSeconds  = 600
	defaultJournalRetentionDay = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Manager: Manager{
			MaxStopAttempts: defaultMaxStopAttempts,
		},
		Workers: Workers{
			BufferSize:        defaultBufferSize,
			MinFileAgeSeconds: defaultMinFileAgeSeconds,
			IdlePollSeconds:   defaultIdlePollSeconds,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		Notifications: Notifications{
			RequestTimeout:     defaultNotifyTimeout,
			Startup:            true,
			Shutdown:           true,
			DeliveryFailures:   true,
			DedupWindowSeconds: defaultDedupWindowSeconds,
		},
		Journal: Journal{
			Enabled:       true,
			RetentionDays: defaultJournalRetentionDay,
		},
	}
}
