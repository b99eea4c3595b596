// Package config defines the command-line flags and resolves each one from
// the command line, the environment, a YAML file and built-in defaults, in
// that order.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"

	SessionsSQLite = "sqlite"
	SessionsJSONL  = "jsonl"

	EnvConfigPath = "COURSEMATE_CONFIG"
)

var defaultModels = map[string]string{
	ProviderAnthropic: "claude-sonnet-4-20250514",
	ProviderGemini:    "gemini-2.0-flash",
}

type Config struct {
	Provider *ProviderConfig
	Store    *StoreConfig
	RAG      *RAGConfig
	Server   *ServerConfig
	LogLevel slog.Level
}

type ProviderConfig struct {
	Name         string
	Model        string
	AnthropicKey string
	GeminiKey    string
	Timeout      time.Duration
	Breaker      bool
}

type StoreConfig struct {
	DBPath     string
	DocsDir    string
	Sessions   string
	SessionDir string
}

type RAGConfig struct {
	MaxResults    int
	MaxHistory    int
	ChunkSize     int
	ChunkOverlap  int
	MaxToolRounds int
}

type ServerConfig struct {
	Addr string
}

// YamlSource implements cli.ValueSource for a map loaded from YAML.
type YamlSource struct {
	data map[string]any
	key  string
}

func (y *YamlSource) Lookup() (string, bool) {
	v, ok := y.data[y.key]
	if !ok || v == nil {
		return "", false
	}
	if slice, ok := v.([]any); ok {
		strs := make([]string, 0, len(slice))
		for _, item := range slice {
			strs = append(strs, fmt.Sprintf("%v", item))
		}
		return strings.Join(strs, ","), true
	}
	return fmt.Sprintf("%v", v), true
}

func (y *YamlSource) String() string   { return "yaml" }
func (y *YamlSource) GoString() string { return "yaml" }

// LoadDotEnv loads a .env file from the working directory, if present.
// Variables already set in the environment win.
func LoadDotEnv() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: failed to load .env: %v\n", err)
	}
}

// Flags returns the global flags. args is the raw command line, used to
// find the config file before flag parsing.
func Flags(args []string) []cli.Flag {
	configData := loadYAML(ConfigPath(args))

	// Sources: EnvVar > YAML > Default
	src := func(key string, env ...string) cli.ValueSourceChain {
		chain := cli.ValueSourceChain{}
		for _, e := range env {
			chain.Chain = append(chain.Chain, cli.EnvVar(e))
		}
		if configData != nil {
			chain.Chain = append(chain.Chain, &YamlSource{data: configData, key: key})
		}
		return chain
	}

	return []cli.Flag{
		// Config file
		&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "use the named YAML configuration file", Sources: cli.EnvVars(EnvConfigPath)},

		// Model provider
		&cli.StringFlag{Name: "provider", Value: ProviderAnthropic, Usage: "model provider: anthropic or gemini", Sources: src("provider", "COURSEMATE_PROVIDER")},
		&cli.StringFlag{Name: "model", Usage: "model ID (defaults to the provider's default model)", Sources: src("model", "COURSEMATE_MODEL")},
		&cli.StringFlag{Name: "anthropickey", Usage: "Anthropic API key", Sources: src("anthropickey", "COURSEMATE_ANTHROPICKEY", "ANTHROPIC_API_KEY")},
		&cli.StringFlag{Name: "geminikey", Usage: "Google Gemini API key", Sources: src("geminikey", "COURSEMATE_GEMINIKEY", "GEMINI_API_KEY")},
		&cli.DurationFlag{Name: "apitimeout", Aliases: []string{"t"}, Value: 2 * time.Minute, Usage: "timeout for answering one question", Sources: src("apitimeout", "COURSEMATE_APITIMEOUT")},
		&cli.BoolFlag{Name: "breaker", Value: true, Usage: "fail fast while the model provider keeps failing", Sources: src("breaker", "COURSEMATE_BREAKER")},

		// Storage
		&cli.StringFlag{Name: "db", Value: "coursemate.db", Usage: "path to the SQLite database", Sources: src("db", "COURSEMATE_DB")},
		&cli.StringFlag{Name: "docs", Value: "docs", Usage: "directory of course documents loaded at startup", Sources: src("docs", "COURSEMATE_DOCS")},
		&cli.StringFlag{Name: "sessions", Value: SessionsSQLite, Usage: "session storage: sqlite or jsonl", Sources: src("sessions", "COURSEMATE_SESSIONS")},
		&cli.StringFlag{Name: "sessiondir", Value: "sessions", Usage: "directory of session files when sessions is jsonl", Sources: src("sessiondir", "COURSEMATE_SESSIONDIR")},

		// Retrieval
		&cli.IntFlag{Name: "maxresults", Value: 5, Usage: "maximum search hits returned to the model", Sources: src("maxresults", "COURSEMATE_MAXRESULTS")},
		&cli.IntFlag{Name: "maxhistory", Value: 2, Usage: "number of previous exchanges kept as context", Sources: src("maxhistory", "COURSEMATE_MAXHISTORY")},
		&cli.IntFlag{Name: "chunksize", Value: 800, Usage: "maximum characters per content chunk", Sources: src("chunksize", "COURSEMATE_CHUNKSIZE")},
		&cli.IntFlag{Name: "chunkoverlap", Value: 100, Usage: "characters repeated between neighbouring chunks", Sources: src("chunkoverlap", "COURSEMATE_CHUNKOVERLAP")},
		&cli.IntFlag{Name: "maxtoolrounds", Value: 2, Usage: "maximum sequential tool rounds per question", Sources: src("maxtoolrounds", "COURSEMATE_MAXTOOLROUNDS")},

		// Server
		&cli.StringFlag{Name: "addr", Value: ":8000", Usage: "HTTP listen address", Sources: src("addr", "COURSEMATE_ADDR")},

		&cli.StringFlag{Name: "loglevel", Value: "info", Usage: "log level: debug, info, warn or error", Sources: src("loglevel", "COURSEMATE_LOGLEVEL")},
	}
}

// ConfigPath finds the config file from the environment or the raw
// command line.
func ConfigPath(args []string) string {
	if v := os.Getenv(EnvConfigPath); v != "" {
		return v
	}
	for i, arg := range args {
		if arg == "--config" || arg == "-c" {
			if i+1 < len(args) {
				return args[i+1]
			}
		}
		if strings.HasPrefix(arg, "--config=") {
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	return ""
}

func loadYAML(path string) map[string]any {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to read config file %s: %v\n", path, err)
		return nil
	}
	var out map[string]any
	if err := yaml.Unmarshal(data, &out); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to parse config file %s: %v\n", path, err)
		return nil
	}
	return out
}

// New builds the configuration from parsed flags.
func New(c *cli.Command) (*Config, error) {
	provider := strings.ToLower(c.String("provider"))
	defaultModel, ok := defaultModels[provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
	model := c.String("model")
	if model == "" {
		model = defaultModel
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(c.String("loglevel"))); err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}

	cfg := &Config{
		Provider: &ProviderConfig{
			Name:         provider,
			Model:        model,
			AnthropicKey: c.String("anthropickey"),
			GeminiKey:    c.String("geminikey"),
			Timeout:      c.Duration("apitimeout"),
			Breaker:      c.Bool("breaker"),
		},
		Store: &StoreConfig{
			DBPath:     c.String("db"),
			DocsDir:    c.String("docs"),
			Sessions:   strings.ToLower(c.String("sessions")),
			SessionDir: c.String("sessiondir"),
		},
		RAG: &RAGConfig{
			MaxResults:    c.Int("maxresults"),
			MaxHistory:    c.Int("maxhistory"),
			ChunkSize:     c.Int("chunksize"),
			ChunkOverlap:  c.Int("chunkoverlap"),
			MaxToolRounds: c.Int("maxtoolrounds"),
		},
		Server: &ServerConfig{
			Addr: c.String("addr"),
		},
		LogLevel: level,
	}
	if cfg.Store.Sessions != SessionsSQLite && cfg.Store.Sessions != SessionsJSONL {
		return nil, fmt.Errorf("unknown session storage %q", cfg.Store.Sessions)
	}
	if cfg.RAG.MaxToolRounds < 0 {
		return nil, fmt.Errorf("max tool rounds must not be negative, got %d", cfg.RAG.MaxToolRounds)
	}
	if cfg.RAG.ChunkOverlap >= cfg.RAG.ChunkSize {
		return nil, fmt.Errorf("chunk overlap (%d) must be smaller than chunk size (%d)", cfg.RAG.ChunkOverlap, cfg.RAG.ChunkSize)
	}
	return cfg, nil
}

// APIKey returns the key of the selected provider.
func (p *ProviderConfig) APIKey() string {
	if p.Name == ProviderGemini {
		return p.GeminiKey
	}
	return p.AnthropicKey
}

// LogValue renders the configuration for logging with secrets masked.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("provider", c.Provider.Name),
		slog.String("model", c.Provider.Model),
		slog.String("apikey", mask(c.Provider.APIKey())),
		slog.Duration("apitimeout", c.Provider.Timeout),
		slog.Bool("breaker", c.Provider.Breaker),
		slog.String("db", c.Store.DBPath),
		slog.String("docs", c.Store.DocsDir),
		slog.String("sessions", c.Store.Sessions),
		slog.Int("maxresults", c.RAG.MaxResults),
		slog.Int("maxhistory", c.RAG.MaxHistory),
		slog.Int("chunksize", c.RAG.ChunkSize),
		slog.Int("chunkoverlap", c.RAG.ChunkOverlap),
		slog.Int("maxtoolrounds", c.RAG.MaxToolRounds),
		slog.String("addr", c.Server.Addr),
	)
}

func mask(secret string) string {
	if len(secret) <= 3 {
		return strings.Repeat("*", len(secret))
	}
	return strings.Repeat("*", len(secret)-3) + secret[len(secret)-3:]
}
