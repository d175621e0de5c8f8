package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"time"

	gramsetu "github.com/gramsetu-cloud/gramsetu-go"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(peersCmd)
}

var peersCmd = &cobra.Command{
	Use:   "peers",
	Short: "List chat peers",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _ := getClient()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		users, err := client.Chat().Users.List(ctx)
		if err != nil {
			return fmt.Errorf("failed to list peers: %w", err)
		}
		if len(users) == 0 {
			fmt.Println("No peers found.")
			return nil
		}
		for _, u := range users {
			name := u.DisplayName
			if name == "" {
				name = u.Username
			}
			fmt.Printf("%-24s %s\n", u.ID, name)
		}
		return nil
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat <peer-id>",
	Short: "Open a live conversation with a peer",
	Long:  "Connect to the realtime broker, load the conversation history, and exchange messages.\nType a line to send it; Ctrl-D to leave.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		peerID := args[0]
		client, cfg := getClient()
		userID := cfg.Auth.UserID

		path, err := gramsetu.DefaultUnreadPath(userID)
		if err != nil {
			return err
		}
		tracker := gramsetu.NewUnreadTracker(gramsetu.NewFileUnreadStore(path), nil)

		sock := client.Chat().Realtime.Connect(&gramsetu.RealtimeConfig{
			AutoReconnect: true,
		})
		sock.OnDisconnected(func(reason string) {
			fmt.Fprintf(os.Stderr, "[disconnected: %s]\n", reason)
		})
		sock.OnConnected(func() {
			fmt.Fprintln(os.Stderr, "[connected]")
		})

		session := gramsetu.NewChatSession(userID, sock, tracker, nil)
		sock.OnChatMessage(func(m gramsetu.ChatMessage) {
			// The session handler runs first and decides visibility.
			if m.SenderID == peerID {
				fmt.Printf("%s> %s\n", peerID, m.Content)
			}
		})

		ctx := context.Background()
		if err := sock.Connect(ctx, userID); err != nil {
			return fmt.Errorf("connect failed: %w", err)
		}
		defer sock.Disconnect()

		// Opening the chat surface is the coarse "seen" signal.
		tracker.ResetAll()

		if err := session.OpenConversation(ctx, client, peerID); err != nil {
			fmt.Fprintf(os.Stderr, "[history unavailable: %v]\n", err)
		}
		for _, m := range session.Transcript() {
			who := peerID
			if m.SenderID == userID {
				who = "me"
			}
			fmt.Printf("%s> %s\n", who, m.Content)
		}

		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			session.Send(ctx, peerID, line)
			fmt.Printf("me> %s\n", line)
		}
		return scanner.Err()
	},
}
