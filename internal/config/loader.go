package config

import (
	"errors"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load merges the YAML file at path over Defaults, then applies BOT_*
// overrides from the environment and an optional .env file. The result is
// not validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// an empty file keeps the defaults
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Exchange.APIKey, "BOT_API_KEY")
	setStr(&cfg.Exchange.APISecret, "BOT_API_SECRET")
	setBool(&cfg.Exchange.Testnet, "BOT_TESTNET")
	setStr(&cfg.Exchange.RESTEndpoint, "BOT_REST_ENDPOINT")
	setStr(&cfg.Exchange.WSEndpoint, "BOT_WS_ENDPOINT")

	setStringSlice(&cfg.Trading.Symbols, "BOT_SYMBOLS")
	setInt(&cfg.Trading.Leverage, "BOT_LEVERAGE")
	setFloat64(&cfg.Trading.InitialBalance, "BOT_INITIAL_BALANCE")
	setBool(&cfg.Trading.UseLiveBalance, "BOT_USE_LIVE_BALANCE")
	setDuration(&cfg.Trading.PollInterval, "BOT_POLL_INTERVAL")
	setStr(&cfg.Trading.Timezone, "BOT_TIMEZONE")

	setStr(&cfg.Notify.DiscordWebhookURL, "BOT_DISCORD_WEBHOOK_URL")
	setStr(&cfg.Notify.TelegramToken, "BOT_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "BOT_TELEGRAM_CHAT_ID")

	setInt(&cfg.Server.Port, "BOT_SERVER_PORT")
	setStr(&cfg.Journal.Path, "BOT_JOURNAL_PATH")

	setBool(&cfg.Redis.Enabled, "BOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "BOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "BOT_REDIS_PASSWORD")

	setStr(&cfg.Logging.Level, "BOT_LOG_LEVEL")
	setBool(&cfg.DryRun, "BOT_DRY_RUN")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) > 0 {
		*dst = out
	}
}
