package main

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Postgres     Postgres `mapstructure:"postgres"`
	Kafka        Kafka    `mapstructure:"kafka"`
	Outbox       Outbox   `mapstructure:"outbox"`
	LoggingLevel string   `mapstructure:"logging-level"`
}

type Postgres struct {
	ConnString string `mapstructure:"conn_string"`
}

type Kafka struct {
	BootstrapServers      string `mapstructure:"bootstrap_servers"`
	GroupId               string `mapstructure:"group_id"`
	PaymentResponseTopic  string `mapstructure:"payment_response_topic"`
	ApprovalResponseTopic string `mapstructure:"approval_response_topic"`
}

type Outbox struct {
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	InitialDelay    time.Duration `mapstructure:"initial_delay"`
	CleanupSchedule string        `mapstructure:"cleanup_schedule"`
}

// NewConfig reads the service configuration from an optional config file
// and the environment. Environment variables win over file values.
func NewConfig() (Config, error) {
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.SetConfigName("ordersvc")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/ordersvc")

	viper.SetDefault("kafka.group_id", "ordersvc")
	viper.SetDefault("logging-level", "info")

	var conf Config
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return conf, err
		}
	}
	err := viper.Unmarshal(&conf)
	return conf, err
}
