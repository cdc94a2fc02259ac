package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aniladanir/hospital-messenger-service/internal/logging"
	"github.com/aniladanir/hospital-messenger-service/internal/queue"
	"gopkg.in/yaml.v2"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"

	QueuePool  = "pool"
	QueueKafka = "kafka"
)

type Config struct {
	HttpPort     int      `json:"http_port" yaml:"http_port"`
	AdminAPIKey  string   `json:"admin_api_key" yaml:"admin_api_key"`
	AllowOrigins []string `json:"allow_origins" yaml:"allow_origins"`
	Timezone     string   `json:"timezone" yaml:"timezone"`

	Storage       string `json:"storage" yaml:"storage"`
	DbConnString  string `json:"db_conn_string" yaml:"db_conn_string"`
	DbLogQueries  bool   `json:"db_log_queries" yaml:"db_log_queries"`
	RedisAddr     string `json:"redis_addr" yaml:"redis_addr"`
	RedisPassword string `json:"redis_password" yaml:"redis_password"`

	Queue       string            `json:"queue" yaml:"queue"`
	Workers     int               `json:"workers" yaml:"workers"`
	QueueBuffer int               `json:"queue_buffer" yaml:"queue_buffer"`
	Kafka       queue.KafkaConfig `json:"kafka" yaml:"kafka"`

	Log       logging.Config  `json:"log" yaml:"log"`
	WhatsApp  WhatsAppConfig  `json:"whatsapp" yaml:"whatsapp"`
	Dispatch  DispatchConfig  `json:"dispatch" yaml:"dispatch"`
	Reminders RemindersConfig `json:"reminders" yaml:"reminders"`
	Phone     PhoneConfig     `json:"phone" yaml:"phone"`
}

type WhatsAppConfig struct {
	BaseURL       string `json:"base_url" yaml:"base_url"`
	PhoneNumberID string `json:"phone_number_id" yaml:"phone_number_id"`
	AccessToken   string `json:"access_token" yaml:"access_token"`
	// DryRun logs messages instead of sending them
	DryRun bool `json:"dry_run" yaml:"dry_run"`
}

type DispatchConfig struct {
	RateLimitPerMinute int           `json:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
	MaxAttempts        int           `json:"max_attempts" yaml:"max_attempts"`
	MaxPerDay          int           `json:"max_per_day" yaml:"max_per_day"`
	SendTimeoutStr     string        `json:"send_timeout" yaml:"send_timeout"`
	SendTimeout        time.Duration `json:"-" yaml:"-"`
	ClaimTimeoutStr    string        `json:"claim_timeout" yaml:"claim_timeout"`
	ClaimTimeout       time.Duration `json:"-" yaml:"-"`
}

type RemindersConfig struct {
	IntervalStr          string        `json:"interval" yaml:"interval"`
	Interval             time.Duration `json:"-" yaml:"-"`
	ReconcileIntervalStr string        `json:"reconcile_interval" yaml:"reconcile_interval"`
	ReconcileInterval    time.Duration `json:"-" yaml:"-"`
	RunOnStart           bool          `json:"run_on_start" yaml:"run_on_start"`
	DaysAheadScheduled   int           `json:"days_ahead_scheduled" yaml:"days_ahead_scheduled"`
	DaysAheadManual      int           `json:"days_ahead_manual" yaml:"days_ahead_manual"`
	TemplateName         string        `json:"template_name" yaml:"template_name"`
	LanguageCode         string        `json:"language_code" yaml:"language_code"`
}

type PhoneConfig struct {
	DefaultCountryCode string `json:"default_country_code" yaml:"default_country_code"`
}

// ReadConfig reads the configuration file, json or yaml by extension, then applies environment
// overrides and defaults.
func ReadConfig(configFile string) (*Config, error) {
	content, err := os.ReadFile(configFile)
	if err != nil {
		return nil, err
	}

	cfg := new(Config)
	switch strings.ToLower(filepath.Ext(configFile)) {
	case ".yaml", ".yml":
		err = yaml.UnmarshalStrict(content, cfg)
	default:
		err = json.Unmarshal(content, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", configFile, err)
	}

	cfg.applyEnv(os.LookupEnv)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv lets secrets live outside the config file
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	for key, dst := range map[string]*string{
		"DB_CONN_STRING":           &c.DbConnString,
		"REDIS_ADDR":               &c.RedisAddr,
		"REDIS_PASSWORD":           &c.RedisPassword,
		"WHATSAPP_TOKEN":           &c.WhatsApp.AccessToken,
		"WHATSAPP_PHONE_NUMBER_ID": &c.WhatsApp.PhoneNumberID,
		"ADMIN_API_KEY":            &c.AdminAPIKey,
		"KAFKA_BROKERS":            &c.Kafka.Brokers,
	} {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
}

func parseDuration(name, raw string, def time.Duration) (time.Duration, error) {
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", name)
	}
	return d, nil
}

func defaultInt(v *int, def int) {
	if *v <= 0 {
		*v = def
	}
}

func defaultString(v *string, def string) {
	if *v == "" {
		*v = def
	}
}

func (c *Config) validate() error {
	defaultInt(&c.HttpPort, 6060)
	defaultString(&c.Timezone, "America/Bogota")
	defaultString(&c.Storage, StoragePostgres)
	defaultString(&c.Queue, QueuePool)
	defaultInt(&c.Workers, 5)
	defaultInt(&c.QueueBuffer, 1000)
	defaultInt(&c.Kafka.Workers, c.Workers)
	defaultString(&c.Kafka.GroupID, queue.DefaultGroupID)

	defaultInt(&c.Dispatch.RateLimitPerMinute, 20)
	defaultInt(&c.Dispatch.MaxAttempts, 3)
	defaultInt(&c.Dispatch.MaxPerDay, 500)
	defaultInt(&c.Reminders.DaysAheadScheduled, 2)
	defaultInt(&c.Reminders.DaysAheadManual, 1)
	defaultString(&c.Reminders.LanguageCode, "es")
	defaultString(&c.Phone.DefaultCountryCode, "57")

	var errs []error
	var err error
	if c.Dispatch.SendTimeout, err = parseDuration("send_timeout", c.Dispatch.SendTimeoutStr, 30*time.Second); err != nil {
		errs = append(errs, err)
	}
	if c.Dispatch.ClaimTimeout, err = parseDuration("claim_timeout", c.Dispatch.ClaimTimeoutStr, 15*time.Minute); err != nil {
		errs = append(errs, err)
	}
	if c.Reminders.Interval, err = parseDuration("reminders.interval", c.Reminders.IntervalStr, 24*time.Hour); err != nil {
		errs = append(errs, err)
	}
	if c.Reminders.ReconcileInterval, err = parseDuration("reminders.reconcile_interval", c.Reminders.ReconcileIntervalStr, time.Minute); err != nil {
		errs = append(errs, err)
	}

	switch c.Storage {
	case StoragePostgres:
		if c.DbConnString == "" {
			errs = append(errs, errors.New("db_conn_string is required for postgres storage"))
		}
	case StorageMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown storage %q", c.Storage))
	}

	switch c.Queue {
	case QueuePool:
	case QueueKafka:
		if c.Kafka.Brokers == "" || c.Kafka.Topic == "" {
			errs = append(errs, errors.New("kafka.brokers and kafka.topic are required for the kafka queue"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown queue %q", c.Queue))
	}

	if !c.WhatsApp.DryRun && (c.WhatsApp.AccessToken == "" || c.WhatsApp.PhoneNumberID == "") {
		errs = append(errs, errors.New("whatsapp access_token and phone_number_id are required unless dry_run is set"))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("invalid timezone: %w", err))
	}

	return errors.Join(errs...)
}
