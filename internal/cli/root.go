package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kvollan/ridgeline/internal/cluster"
	"github.com/kvollan/ridgeline/internal/cluster/memstore"
	"github.com/kvollan/ridgeline/internal/cluster/sqlstore"
	"github.com/kvollan/ridgeline/internal/model"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "ridgeline",
	Short: "Ridgeline - mountain-incident extraction and clustering",
	Long: `Ridgeline turns news coverage of fatal mountain incidents in British
Columbia, Alberta and Washington into deduplicated incident records.

Articles are fetched politely, cleaned, run through deterministic
extraction rules with an optional LLM fallback for low-confidence
fields, clustered by URL, near-duplicate signature and spatio-temporal
proximity, validated, and routed to review when anything looks off.
Every extracted field carries a verbatim evidence quote anchored in the
source text.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("ridgeline v0.1.0")
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.ridgeline/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}
		viper.AddConfigPath(filepath.Join(home, ".ridgeline"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// Read in environment variables that match RIDGELINE_*
	viper.SetEnvPrefix("RIDGELINE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// baseConfig builds the configuration tree from defaults plus the settings
// the config file or environment override. Command flags layer on top.
func baseConfig() *model.Config {
	cfg := model.DefaultConfig()

	if v := viper.GetString("store.driver"); v != "" {
		cfg.Store.Driver = v
	}
	if v := viper.GetString("store.path"); v != "" {
		cfg.Store.Path = v
	}
	if v := viper.GetString("llm.provider"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := viper.GetString("llm.model"); v != "" {
		cfg.LLM.Model = v
	}
	if v := viper.GetString("http.user_agent"); v != "" {
		cfg.HTTP.UserAgent = v
	}
	if viper.IsSet("geo.enabled") {
		cfg.Geo.Enabled = viper.GetBool("geo.enabled")
	}
	if viper.IsSet("http.respect_robots") {
		cfg.HTTP.RespectRobots = viper.GetBool("http.respect_robots")
	}
	cfg.Output.Verbose = verbose
	return cfg
}

// pipelineConfig bundles a resolved config with its opened store.
type pipelineConfig struct {
	cfg   *model.Config
	store cluster.Store
	close func()
}

// openStore opens the configured persistence adapter. The returned func
// releases it.
func openStore(cfg *model.Config) (cluster.Store, func(), error) {
	switch cfg.Store.Driver {
	case "", "memory":
		return memstore.New(), func() {}, nil
	case "sqlite":
		path := cfg.Store.Path
		if path == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, nil, fmt.Errorf("find home directory: %w", err)
			}
			dir := filepath.Join(home, ".ridgeline")
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, fmt.Errorf("create %s: %w", dir, err)
			}
			path = filepath.Join(dir, "clusters.db")
		}
		s, err := sqlstore.Open(path)
		if err != nil {
			return nil, nil, fmt.Errorf("open store %s: %w", path, err)
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// resolveAPIKey fills the provider API key from the environment.
func resolveAPIKey(cfg *model.Config) error {
	switch cfg.LLM.Provider {
	case "":
		return nil
	case "openai":
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		if cfg.LLM.APIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
	case "anthropic", "claude":
		cfg.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		if cfg.LLM.APIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY environment variable not set")
		}
	case "ollama":
		if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
			cfg.LLM.BaseURL = baseURL
		}
	}
	return nil
}
