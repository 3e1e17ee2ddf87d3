// ABOUTME: Entry point for the messenger client core.
// ABOUTME: Interactive chat session, conversation listing and dev token minting.

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/kelseyhightower/envconfig"

	"github.com/homeline/messenger/internal/auth"
	"github.com/homeline/messenger/internal/backend"
	"github.com/homeline/messenger/internal/chat"
	"github.com/homeline/messenger/internal/config"
	"github.com/homeline/messenger/internal/conversation"
	"github.com/homeline/messenger/internal/realtime"
)

// Version is set by goreleaser at build time.
var version = "dev"

// overrides are environment knobs that take precedence over the config
// file, so CI and one-off shells can redirect the client without editing
// YAML. Read with envconfig under the MESSENGER prefix.
type overrides struct {
	Config   string `envconfig:"CONFIG"`
	Token    string `envconfig:"TOKEN"`
	LogLevel string `envconfig:"LOG_LEVEL"`
}

// getConfigPath returns the path to the messenger config file.
// Priority: MESSENGER_CONFIG env var > XDG_CONFIG_HOME/messenger/messenger.yaml > ~/.config/messenger/messenger.yaml
func getConfigPath(ov overrides) string {
	if ov.Config != "" {
		return ov.Config
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "messenger.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "messenger", "messenger.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: messenger <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  chat                  Start an interactive chat session")
		fmt.Println("  conversations         List conversations and the unread total")
		fmt.Println("  token                 Mint a development session token")
		fmt.Println("  version               Print the version")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "chat":
		err = runChat(ctx)
	case "conversations":
		err = runConversations(ctx)
	case "token":
		err = runToken()
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadSession reads overrides and config and resolves the session token.
func loadSession() (*config.Config, overrides, error) {
	var ov overrides
	if err := envconfig.Process("messenger", &ov); err != nil {
		return nil, ov, fmt.Errorf("reading environment: %w", err)
	}

	cfg, err := config.Load(getConfigPath(ov))
	if err != nil {
		return nil, ov, fmt.Errorf("loading config: %w", err)
	}

	if ov.Token != "" {
		cfg.Session.Token = ov.Token
	}
	if ov.LogLevel != "" {
		cfg.Logging.Level = ov.LogLevel
	}
	if cfg.Session.Token == "" {
		return nil, ov, fmt.Errorf("no session token: set session.token or MESSENGER_TOKEN")
	}
	return cfg, ov, nil
}

func runChat(ctx context.Context) error {
	cfg, _, err := loadSession()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Logging)

	identity, err := auth.ParseIdentity(cfg.Session.Token)
	if err != nil {
		return fmt.Errorf("parsing session token: %w", err)
	}

	be := backend.NewClient(cfg.Backend.BaseURL, cfg.Session.Token, cfg.Backend.RequestTimeout, logger)
	rt := realtime.NewManager(realtime.Options{
		URL:                  cfg.Socket.URL,
		Transport:            &realtime.WebsocketTransport{HandshakeTimeout: cfg.Socket.HandshakeTimeout},
		MaxReconnectAttempts: cfg.Socket.MaxReconnectAttempts,
		ReconnectBaseDelay:   cfg.Socket.ReconnectBaseDelay,
		ReconnectMaxDelay:    cfg.Socket.ReconnectMaxDelay,
		Logger:               logger,
	})

	store := conversation.NewStore(rt, be, logger)
	defer store.Close()

	// Render incoming traffic alongside the store's own reconciliation;
	// subscriptions are additive so both handlers fire per event.
	rt.OnMessage(func(msg chat.Message) {
		if msg.Sender == chat.UserID(identity.UserID) {
			return
		}
		fmt.Printf("%s %s: %s\n",
			color.HiBlackString(msg.CreatedAt.Format("15:04:05")),
			color.CyanString(string(msg.Sender)),
			msg.Content)
	})
	rt.OnTyping(func(ev realtime.TypingEvent) {
		if ev.IsTyping {
			fmt.Println(color.HiBlackString(string(ev.UserID) + " is typing..."))
		}
	})

	if err := rt.Connect(ctx, cfg.Session.Token); err != nil {
		return fmt.Errorf("connecting: %w", err)
	}
	defer rt.Disconnect()

	if err := store.FetchConversations(ctx); err != nil {
		logger.Warn("initial conversation fetch failed", "error", err)
	}

	fmt.Printf("Connected as %s. Type /help for commands.\n", color.GreenString(identity.UserID))
	return replLoop(ctx, store)
}

// replLoop reads commands and messages from stdin until EOF or ctx ends.
func replLoop(ctx context.Context, store *conversation.Store) error {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			if _, err := store.SendMessage(ctx, line, nil); err != nil {
				fmt.Println(color.RedString("send failed: " + err.Error()))
			}
			continue
		}

		fields := strings.Fields(line)
		switch fields[0] {
		case "/help":
			fmt.Println("/list, /open <n>, /close, /new <user> [property], /who <user>, /unread, /quit")
		case "/list":
			printConversations(store.Conversations(), store.UnreadCount())
		case "/open":
			if len(fields) < 2 {
				fmt.Println("usage: /open <n>")
				continue
			}
			n, err := strconv.Atoi(fields[1])
			convs := store.Conversations()
			if err != nil || n < 1 || n > len(convs) {
				fmt.Println("no such conversation")
				continue
			}
			conv := convs[n-1]
			if err := store.Open(ctx, conv); err != nil {
				fmt.Println(color.YellowString("history unavailable: " + err.Error()))
			}
			for _, msg := range store.Messages() {
				fmt.Printf("%s %s: %s\n",
					color.HiBlackString(msg.CreatedAt.Format("15:04:05")),
					color.CyanString(string(msg.Sender)),
					msg.Content)
			}
		case "/close":
			store.CloseActive()
		case "/new":
			if len(fields) < 2 {
				fmt.Println("usage: /new <user> [property]")
				continue
			}
			propertyID := ""
			if len(fields) > 2 {
				propertyID = fields[2]
			}
			conv, err := store.StartConversation(ctx, chat.UserID(fields[1]), propertyID)
			if err != nil {
				fmt.Println(color.RedString("create failed: " + err.Error()))
				continue
			}
			fmt.Println("opened conversation " + conv.ID)
		case "/who":
			if len(fields) < 2 {
				fmt.Println("usage: /who <user>")
				continue
			}
			if store.IsUserOnline(chat.UserID(fields[1])) {
				fmt.Println(color.GreenString("online"))
			} else {
				fmt.Println(color.HiBlackString("offline"))
			}
		case "/unread":
			fmt.Printf("%d unread\n", store.UnreadCount())
		case "/quit":
			return nil
		default:
			fmt.Println("unknown command, try /help")
		}
	}
}

func printConversations(convs []chat.Conversation, unread int) {
	if len(convs) == 0 {
		fmt.Println("no conversations")
		return
	}
	for i, c := range convs {
		last := ""
		if c.LastMessage != nil {
			last = c.LastMessage.Content
			if len(last) > 40 {
				last = last[:40] + "..."
			}
		}
		fmt.Printf("%2d. %s %s %s\n", i+1,
			color.CyanString(c.ID),
			color.HiBlackString(c.UpdatedAt.Format("Jan 02 15:04")),
			last)
	}
	fmt.Printf("%d unread\n", unread)
}

func runConversations(ctx context.Context) error {
	cfg, _, err := loadSession()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Logging)

	be := backend.NewClient(cfg.Backend.BaseURL, cfg.Session.Token, cfg.Backend.RequestTimeout, logger)
	page, err := be.Conversations(ctx)
	if err != nil {
		return fmt.Errorf("fetching conversations: %w", err)
	}
	printConversations(page.Conversations, page.UnreadCount)
	return nil
}

func runToken() error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	secret := fs.String("secret", "", "shared HS256 secret of the local backend")
	user := fs.String("user", "", "user id to mint the token for")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	if err := fs.Parse(os.Args[2:]); err != nil {
		return err
	}
	if *secret == "" || *user == "" {
		return fmt.Errorf("both --secret and --user are required")
	}

	token, err := auth.MintToken([]byte(*secret), *user, *ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
