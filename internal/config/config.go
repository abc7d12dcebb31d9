package config

import "github.com/kelseyhightower/envconfig"

type FeedConfig struct {
	APIBaseURL string `envconfig:"API_BASE_URL" required:"true"`
	PushURL    string `envconfig:"PUSH_URL" required:"true"`

	Port      string `envconfig:"PORT" default:"8080"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	// credential lookup
	CookieFile   string `envconfig:"COOKIE_FILE" required:"true"`
	CookieName   string `envconfig:"COOKIE_NAME" default:"auth_token"`
	CookieDomain string `envconfig:"COOKIE_DOMAIN"`

	// push connection
	ReconnectDelayMs     int `envconfig:"RECONNECT_DELAY_MS" default:"3000"`
	MaxReconnectAttempts int `envconfig:"MAX_RECONNECT_ATTEMPTS" default:"5"`

	// backend call guards
	APIRPS         float64 `envconfig:"API_RPS" default:"10"`
	APIBurst       int     `envconfig:"API_BURST" default:"20"`
	BreakerEnabled bool    `envconfig:"BREAKER_ENABLED" default:"true"`

	// optional push-event export
	AWSRegion          string `envconfig:"AWS_REGION"`
	SQSQueueURL        string `envconfig:"SQS_QUEUE_URL"`
	LocalstackEndpoint string `envconfig:"LOCALSTACK_ENDPOINT"`
}

type MockBackendConfig struct {
	Port      string `envconfig:"PORT" default:"8081"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	Token string `envconfig:"MOCK_TOKEN" default:"mock_token"`

	// scripted push behaviour
	NotifyIntervalMs   int  `envconfig:"MOCK_NOTIFY_INTERVAL_MS" default:"5000"`
	CampaignIntervalMs int  `envconfig:"MOCK_CAMPAIGN_INTERVAL_MS" default:"2000"`
	DropAfterMs        int  `envconfig:"MOCK_DROP_AFTER_MS" default:"0"`
	SendMalformed      bool `envconfig:"MOCK_SEND_MALFORMED" default:"false"`
	CampaignCount      int  `envconfig:"MOCK_CAMPAIGN_COUNT" default:"3"`
}

func LoadFeed() FeedConfig {
	var cfg FeedConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}

func LoadMockBackend() MockBackendConfig {
	var cfg MockBackendConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}
