package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	gramsetu "github.com/gramsetu-cloud/gramsetu-go"
	"github.com/spf13/cobra"
)

var (
	notifyEntities []string
	notifyFollow   bool
)

func init() {
	rootCmd.AddCommand(notifyCmd)
	notifyCmd.Flags().StringSliceVar(&notifyEntities, "entity", nil, "additionally follow per-entity topics (repeatable)")
	notifyCmd.Flags().BoolVarP(&notifyFollow, "follow", "f", false, "stay connected and print live notifications")
}

var notifyCmd = &cobra.Command{
	Use:   "notifications",
	Short: "Show notifications",
	Long:  "List persisted notifications, and with --follow stream live ones from the broker.",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cfg := getClient()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		items, err := client.Chat().Notifications.List(ctx, true)
		cancel()
		if err != nil {
			return fmt.Errorf("failed to list notifications: %w", err)
		}
		for _, n := range items {
			printNotification(n)
		}

		if !notifyFollow {
			return nil
		}

		sock := client.Chat().Realtime.Connect(&gramsetu.RealtimeConfig{
			AutoReconnect: true,
		})
		feed := gramsetu.NewNotificationFeed(sock, func(n gramsetu.Notification, dismiss time.Duration) {
			fmt.Fprintf(os.Stderr, "[ALERT %s] %s\n", n.Priority, n.Title)
		}, nil)
		sock.OnNotification(func(n gramsetu.Notification) {
			printNotification(n)
		})

		if err := sock.Connect(context.Background(), cfg.Auth.UserID); err != nil {
			return fmt.Errorf("connect failed: %w", err)
		}
		defer sock.Disconnect()

		for _, id := range notifyEntities {
			feed.SubscribeEntity(context.Background(), id)
		}

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt)
		<-stop
		fmt.Fprintf(os.Stderr, "\n%d unread this session\n", feed.UnreadCount())
		return nil
	},
}

func printNotification(n gramsetu.Notification) {
	read := " "
	if !n.IsRead {
		read = "*"
	}
	scope := n.EntityName
	if scope == "" {
		scope = "global"
	}
	fmt.Printf("%s [%-6s] %-20s %s — %s\n", read, n.Priority, scope, n.Title, n.Message)
}
