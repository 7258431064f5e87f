package config

const (
	defaultDataDir               = "~/.local/share/grantfeed"
	defaultLogDir                = "~/.local/share/grantfeed/logs"
	defaultBDSSBaseURL           = "https://developer.uspto.gov/products/bdss/get/ajax"
	defaultBDSSProduct           = "PTGRDT"
	defaultBDSSRequestTimeout    = 30
	defaultUserAgent             = "grantfeed/0.1"
	defaultMinFreeGiB            = 2
	defaultVisibility            = "public"
	defaultCaptionLimit          = 500
	defaultPublishRequestTimeout = 60
	defaultNotifyRequestTimeout  = 10
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		BDSS: BDSS{
			BaseURL:        defaultBDSSBaseURL,
			Product:        defaultBDSSProduct,
			RequestTimeout: defaultBDSSRequestTimeout,
		},
		Download: Download{
			UserAgent:  defaultUserAgent,
			Progress:   true,
			MinFreeGiB: defaultMinFreeGiB,
		},
		Publish: Publish{
			Visibility:     defaultVisibility,
			CaptionLimit:   defaultCaptionLimit,
			RequestTimeout: defaultPublishRequestTimeout,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Fetch:          true,
			Extract:        true,
			Publish:        true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
