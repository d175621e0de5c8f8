package main

import (
	"context"
	"fmt"
	"time"

	gramsetu "github.com/gramsetu-cloud/gramsetu-go"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current configuration and account status",
	Long:  "Display the current configuration, check if the token is expired, and fetch live unread state.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		fmt.Println("Configuration:")
		fmt.Printf("  Base URL: %s\n", valueOrDefault(cfg.Default.BaseURL, "(default)"))

		fmt.Println()
		fmt.Println("Auth:")
		if cfg.Auth.Username != "" {
			fmt.Printf("  Username: %s\n", cfg.Auth.Username)
		}
		fmt.Printf("  User ID:  %s\n", valueOrDefault(cfg.Auth.UserID, "(not set)"))

		tokenStatus := "none"
		if cfg.Auth.Token != "" {
			tokenStatus = "present"
			if cfg.Auth.TokenExpires != "" {
				expires, err := time.Parse(time.RFC3339, cfg.Auth.TokenExpires)
				switch {
				case err != nil:
					tokenStatus = fmt.Sprintf("present (unparseable expiry: %s)", cfg.Auth.TokenExpires)
				case time.Now().Before(expires):
					tokenStatus = fmt.Sprintf("valid (expires %s)", expires.Format(time.RFC3339))
				default:
					tokenStatus = fmt.Sprintf("EXPIRED (expired %s)", expires.Format(time.RFC3339))
				}
			}
		}
		fmt.Printf("  Token:    %s (%s)\n", maskKey(cfg.Auth.Token), tokenStatus)

		if cfg.Auth.Token == "" || cfg.Auth.UserID == "" {
			return nil
		}

		// Live state: peer directory plus locally persisted unread counts.
		fmt.Println()
		fmt.Println("Live status:")

		var opts []gramsetu.ClientOption
		if cfg.Default.BaseURL != "" {
			opts = append(opts, gramsetu.WithBaseURL(cfg.Default.BaseURL))
		}
		client := gramsetu.NewClient(cfg.Auth.Token, opts...)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		users, err := client.Chat().Users.List(ctx)
		if err != nil {
			fmt.Printf("  Error fetching peers: %v\n", err)
			return nil
		}
		fmt.Printf("  Peers: %d\n", len(users))

		path, err := gramsetu.DefaultUnreadPath(cfg.Auth.UserID)
		if err == nil {
			tracker := gramsetu.NewUnreadTracker(gramsetu.NewFileUnreadStore(path), nil)
			fmt.Printf("  Unread messages: %d\n", tracker.Total())
			for peer, n := range tracker.Snapshot() {
				if n > 0 {
					fmt.Printf("    %s: %d\n", peer, n)
				}
			}
		}

		return nil
	},
}

// maskKey shows the first 12 and last 4 characters of a key. Keys too short
// to mask meaningfully are hidden entirely.
func maskKey(key string) string {
	if key == "" {
		return "(not set)"
	}
	if len(key) < 8 {
		return "..."
	}
	if len(key) <= 16 {
		return key[:4] + "..." + key[len(key)-4:]
	}
	return key[:12] + "..." + key[len(key)-4:]
}

func valueOrDefault(val, def string) string {
	if val == "" {
		return def
	}
	return val
}
