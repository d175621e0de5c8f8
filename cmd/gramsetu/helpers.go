package main

import (
	"fmt"
	"os"

	gramsetu "github.com/gramsetu-cloud/gramsetu-go"
	"go.uber.org/zap"
)

// getClient creates a GramSetu client authenticated with the stored token.
func getClient() (*gramsetu.Client, *Config) {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Auth.Token == "" {
		fmt.Fprintln(os.Stderr, "No token. Run 'gramsetu init <token>' first.")
		os.Exit(1)
	}
	if cfg.Auth.UserID == "" {
		fmt.Fprintln(os.Stderr, "No user id. Run 'gramsetu config set auth.user_id <id>'.")
		os.Exit(1)
	}

	var opts []gramsetu.ClientOption
	if cfg.Default.BaseURL != "" {
		opts = append(opts, gramsetu.WithBaseURL(cfg.Default.BaseURL))
	}
	if verbose {
		log, err := zap.NewDevelopment()
		if err == nil {
			opts = append(opts, gramsetu.WithLogger(log))
		}
	}

	return gramsetu.NewClient(cfg.Auth.Token, opts...), cfg
}

var verbose bool

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log connection lifecycle and dropped frames")
}
