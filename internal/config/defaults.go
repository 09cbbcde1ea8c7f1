package config

const (
	defaultBaseURL        = "http://localhost:8000"
	defaultTranscribePath = "/speech-to-text"
	defaultChunkedPath    = "/uploads/files/"
	defaultSizeThreshold  = "80MiB"
	defaultChunkSize      = "50MiB"
	defaultModel          = "large-v3"
	defaultDataDir        = "~/.local/share/whisperq"
	defaultLogDir         = "~/.local/share/whisperq/logs"
	defaultLogFormat      = "console"
	defaultLogLevel       = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Server: Server{
			BaseURL:        defaultBaseURL,
			TranscribePath: defaultTranscribePath,
			ChunkedPath:    defaultChunkedPath,
		},
		Upload: Upload{
			SizeThreshold: defaultSizeThreshold,
			ChunkSize:     defaultChunkSize,
		},
		Defaults: Defaults{
			Model: defaultModel,
		},
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
