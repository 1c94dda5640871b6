package config

const (
	defaultStateDir                = "~/.local/share/callpipe"
	defaultLogDir                  = "~/.local/share/callpipe/logs"
	defaultAPIBind                 = "127.0.0.1:7489"
	defaultStorageBaseURL          = "http://127.0.0.1:8000"
	defaultMaxConcurrentUploads    = 3
	defaultChunkSizeKiB            = 256
	defaultInitialDelaySeconds     = 2
	defaultPollIntervalSeconds     = 3
	defaultQueryTimeoutSeconds     = 10
	defaultMaxConsecutiveFailures  = 5
	defaultSubmitModel             = "default"
	defaultSubmitAutoProcess       = true
	defaultNotifyRequestTimeout    = 10
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
	storageTokenEnv                = "CALLPIPE_STORAGE_TOKEN"
	processingTokenEnv             = "CALLPIPE_PROCESSING_TOKEN"
	apiTokenEnv                    = "CALLPIPE_API_TOKEN"
	defaultConfigFileName          = "config.toml"
	projectConfigFileName          = "callpipe.toml"
	defaultConfigDir               = "~/.config/callpipe"
	defaultHistoryDatabaseFileName = "history.db"
	defaultDaemonLockFileName      = "callpipe.lock"
	defaultLogFileName             = "callpipe.log"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
			APIBind:  defaultAPIBind,
		},
		Storage: Storage{
			BaseURL:              defaultStorageBaseURL,
			MaxConcurrentUploads: defaultMaxConcurrentUploads,
			ChunkSizeKiB:         defaultChunkSizeKiB,
		},
		Processing: Processing{
			InitialDelaySeconds:    defaultInitialDelaySeconds,
			PollIntervalSeconds:    defaultPollIntervalSeconds,
			QueryTimeoutSeconds:    defaultQueryTimeoutSeconds,
			MaxConsecutiveFailures: defaultMaxConsecutiveFailures,
		},
		Defaults: SubmitDefaults{
			Model:       defaultSubmitModel,
			AutoProcess: defaultSubmitAutoProcess,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			TaskFailed:     true,
			BatchCompleted: true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
