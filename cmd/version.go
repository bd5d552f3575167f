package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chidori-ai/chidori/internal/config"
)

// Version information (injected at build time via ldflags).
var (
	AppVersion = "development"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version and configuration information",
	RunE: func(_ *cobra.Command, _ []string) error {
		return runVersion()
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func runVersion() error {
	fmt.Printf("chidori %s\n", AppVersion)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n", GitCommit)
	fmt.Println()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	fmt.Println("Configuration:")
	fmt.Printf("  Provider: %s\n", cfg.Provider)
	fmt.Printf("  Model: %s\n", cfg.ModelName)
	fmt.Printf("  Embedder: %s\n", cfg.EmbedderModel)
	fmt.Printf("  Retriever: %s\n", cfg.Retriever)
	fmt.Printf("  Collection: %s\n", cfg.Collection)
	fmt.Printf("  Database: %s:%d/%s\n", cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresDBName)

	key := os.Getenv("GEMINI_API_KEY")
	name := "GEMINI_API_KEY"
	if cfg.Provider == config.ProviderOpenAI {
		key = os.Getenv("OPENAI_API_KEY")
		name = "OPENAI_API_KEY"
	}
	switch {
	case cfg.Provider == config.ProviderOllama:
		fmt.Printf("  Ollama host: %s\n", cfg.OllamaHost)
	case len(key) >= 8:
		fmt.Printf("  %s: %s...%s (configured)\n", name, key[:4], key[len(key)-4:])
	case key != "":
		fmt.Printf("  %s: (configured)\n", name)
	default:
		fmt.Printf("  %s: Not set\n", name)
		fmt.Println()
		fmt.Printf("Hint: export %s=your-api-key to enable the model\n", name)
	}

	return nil
}
