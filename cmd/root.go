package cmd

import (
	"errors"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/radar-pilot/internal/matchapi"
	"github.com/spigell/radar-pilot/internal/pipeline"
	"github.com/spigell/radar-pilot/internal/policy"
)

const (
	app = "radar-pilot"
)

type Config struct {
	API      *APIConfig      `mapstructure:"api"`
	Pipeline *PipelineConfig `mapstructure:"pipeline"`
	Policy   *PolicyConfig   `mapstructure:"policy"`
	Notify   *NotifyConfig   `mapstructure:"notify"`
	AI       *AIConfig       `mapstructure:"ai"`
	Serve    *ServeConfig    `mapstructure:"serve"`
}

type APIConfig struct {
	URL       string        `mapstructure:"url"`
	Token     string        `mapstructure:"token"`
	TokenFile string        `mapstructure:"token-file"`
	UserAgent string        `mapstructure:"user-agent"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"rate-limit"`
	Burst     int           `mapstructure:"burst"`
}

type PipelineConfig struct {
	PollInterval  time.Duration `mapstructure:"poll-interval"`
	ReuseExisting bool          `mapstructure:"reuse-existing"`
	Concurrency   int           `mapstructure:"concurrency"`
	Exclude       []string      `mapstructure:"exclude"`
}

type PolicyConfig struct {
	Threshold  float64 `mapstructure:"threshold"`
	HighCutoff float64 `mapstructure:"high-cutoff"`
}

func (p *PolicyConfig) thresholds() policy.Thresholds {
	if p == nil {
		return policy.DefaultThresholds()
	}

	return policy.Thresholds{Qualify: p.Threshold, High: p.HighCutoff}.Normalize()
}

type NotifyConfig struct {
	To          string              `mapstructure:"to"`
	CC          []string            `mapstructure:"cc"`
	Subject     string              `mapstructure:"subject"`
	Kinds       pipeline.EmailKinds `mapstructure:"kinds"`
	AutoApprove bool                `mapstructure:"auto-approve"`
}

type AIConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Provider string        `mapstructure:"provider"`
	Gemini   *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKeyFile   string `mapstructure:"api-key-file"`
	Model        string `mapstructure:"model"`
	MaxLogLength int    `mapstructure:"max-log-length"`
}

type ServeConfig struct {
	Listen    string        `mapstructure:"listen"`
	Retention time.Duration `mapstructure:"retention"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "radar-pilot drives JD and resume matching on a remote matching service and notifies recruiters",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	for key, env := range map[string]string{
		"api.token":              "RADAR_TOKEN",
		"api.token-file":         "RADAR_TOKEN_FILE",
		"api.url":                "RADAR_API_URL",
		"notify.to":              "RADAR_NOTIFY_TO",
		"ai.gemini.api-key-file": "GEMINI_API_KEY_FILE",
	} {
		if err := viper.BindEnv(key, env); err != nil {
			log.Fatalf("binding %s environment variable: %v", env, err)
		}
	}

	viper.SetDefault("api.url", matchapi.DefaultURL)
	viper.SetDefault("api.timeout", "10s")
	viper.SetDefault("pipeline.poll-interval", "1s")
	viper.SetDefault("pipeline.reuse-existing", true)
	viper.SetDefault("pipeline.concurrency", 4)
	viper.SetDefault("policy.threshold", policy.DefaultQualify)
	viper.SetDefault("policy.high-cutoff", policy.DefaultHigh)
	viper.SetDefault("serve.listen", ":8080")
	viper.SetDefault("serve.retention", "10m")

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is radar-pilot.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	// Config needed only for run and serve. Version works without it.
	if runCmd.CalledAs() == "" && serveCmd.CalledAs() == "" {
		return
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("loading .env file: %v", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		// Without an explicit --config everything may come from env and defaults.
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	if config.API == nil {
		config.API = &APIConfig{URL: matchapi.DefaultURL}
	}
	if config.Pipeline == nil {
		config.Pipeline = &PipelineConfig{}
	}
	if config.Notify == nil {
		config.Notify = &NotifyConfig{}
	}
	if config.Serve == nil {
		config.Serve = &ServeConfig{}
	}

	return config, nil
}
