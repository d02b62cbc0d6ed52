package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/vovakirdan/wirechat-client/internal/app"
	"github.com/vovakirdan/wirechat-client/internal/chat"
	"github.com/vovakirdan/wirechat-client/internal/config"
	"github.com/vovakirdan/wirechat-client/internal/log"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type cliOptions struct {
	configPath string
	chatID     string
	userID     string
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}

	root := &cobra.Command{
		Use:           "wirechat-client",
		Short:         "Offline-first chat client for wirechat",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config file")

	root.AddCommand(newRunCmd(opts))
	root.AddCommand(newChatsCmd(opts))
	root.AddCommand(newResetCmd(opts))
	return root
}

func loadApp(opts *cliOptions) (*app.App, error) {
	bootstrapLog := log.New("info")
	cfg, path, err := config.Load(bootstrapLog, opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := log.New(cfg.LogLevel)
	logger.Debug().Str("config", path).Msg("configuration loaded")

	a, err := app.New(cfg, logger)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func newRunCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Open a conversation and chat interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := loadApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			user, err := a.SelectUser(ctx, opts.userID)
			if err != nil {
				return err
			}

			sess, err := a.OpenSession(ctx, opts.chatID)
			if err != nil {
				return err
			}
			defer sess.Detach()

			fmt.Printf("chatting in %s as %s (type and press Enter, Ctrl+C to leave)\n", opts.chatID, user.Name)

			go func() {
				for snap := range sess.Updates() {
					render(user, snap)
				}
			}()

			lines := make(chan string)
			go func() {
				defer close(lines)
				scanner := bufio.NewScanner(os.Stdin)
				for scanner.Scan() {
					lines <- scanner.Text()
				}
			}()

			for {
				select {
				case <-ctx.Done():
					return nil
				case line, ok := <-lines:
					if !ok {
						return nil
					}
					body := strings.TrimSpace(line)
					if body == "" {
						continue
					}
					if _, err := sess.Send(ctx, body); err != nil {
						fmt.Fprintf(os.Stderr, "send failed: %v\n", err)
					}
				}
			}
		},
	}
	cmd.Flags().StringVar(&opts.chatID, "chat", "", "conversation id")
	cmd.Flags().StringVar(&opts.userID, "user", "", "user id or name to chat as (default: first available)")
	_ = cmd.MarkFlagRequired("chat")
	return cmd
}

// render prints the latest snapshot oldest first, tagging undelivered rows.
func render(current chat.User, snap []chat.Message) {
	const maxLines = 20

	start := len(snap)
	if start > maxLines {
		start = maxLines
	}

	fmt.Println("----")
	for i := start - 1; i >= 0; i-- {
		msg := snap[i]
		marker := ""
		if !msg.Synced {
			marker = " (sending…)"
		}
		who := msg.SenderID
		if msg.SenderID == current.ID {
			who = "me"
		}
		fmt.Printf("[%s] %s: %s%s\n", msg.Timestamp.Local().Format("15:04:05"), who, msg.Body, marker)
	}
}

func newChatsCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chats",
		Short: "List conversations (cached when offline)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := loadApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.SelectUser(ctx, opts.userID); err != nil {
				return err
			}

			chats, err := a.Chats(ctx)
			if err != nil {
				return err
			}
			if len(chats) == 0 {
				fmt.Println("no conversations")
				return nil
			}
			for _, c := range chats {
				fmt.Printf("%s\t%s\t%s\t%s\n", c.ID, c.Title, c.LastMessage, c.LastTimestamp.Local().Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.userID, "user", "", "user id or name (default: first available)")
	return cmd
}

func newResetCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Wipe the local copy of a conversation (debug)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := loadApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			return a.ResetChat(ctx, opts.chatID)
		},
	}
	cmd.Flags().StringVar(&opts.chatID, "chat", "", "conversation id")
	_ = cmd.MarkFlagRequired("chat")
	return cmd
}
