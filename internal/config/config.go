package config

import "github.com/spf13/viper"

type Config struct {
	App struct {
		Env      string
		Timezone string
	} `mapstructure:"app"`

	Telegram struct {
		Token       string
		AdminChatID int64 `mapstructure:"admin_chat_id"`
	} `mapstructure:"telegram"`

	HTTP struct {
		Addr string
	} `mapstructure:"http"`

	Store struct {
		Path string
	} `mapstructure:"store"`

	Metrics struct {
		Enabled bool
	} `mapstructure:"metrics"`

	Notify struct {
		EnabledDefault    bool `mapstructure:"enabled_default"`
		LowStockThreshold int  `mapstructure:"low_stock_threshold"`
		IntervalMinutes   int  `mapstructure:"interval_minutes"`
	} `mapstructure:"notify"`
}

func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("APP")
	v.AutomaticEnv()

	v.SetDefault("store.path", "data/estoque")
	v.SetDefault("notify.enabled_default", true)
	v.SetDefault("notify.low_stock_threshold", 1)
	v.SetDefault("notify.interval_minutes", 60)

	var c Config
	if err := v.ReadInConfig(); err != nil {
		return c, err
	}
	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}
	return c, nil
}
