package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"meeting_relay/pkg/logger"
	"meeting_relay/pkg/protocol"
	"meeting_relay/pkg/relayclient"

	"github.com/Netflix/go-env"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config - переменные окружения консольного клиента
type Config struct {
	RelayURL      string        `env:"RELAY_URL,default=ws://localhost:3001/ws/chat"`
	RoomID        string        `env:"CHAT_ROOM_ID,required=true"`
	ParticipantID string        `env:"CHAT_PARTICIPANT_ID,required=true"`
	DisplayName   string        `env:"CHAT_DISPLAY_NAME"`
	SettleDelay   time.Duration `env:"RELAY_SETTLE_DELAY,default=50ms"`
	CloseTimeout  time.Duration `env:"RELAY_CLOSE_TIMEOUT,default=2s"`
	MaxTextLength int           `env:"RELAY_MAX_TEXT_LENGTH,default=4000"`
	LogLevel      string        `env:"LOG_LEVEL,default=warn"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	_ = godotenv.Load()

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	log := logger.NewWithWriter(cfg.LogLevel, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session := relayclient.NewSession(relayclient.Options{
		Dialer:        relayclient.NewWebSocketDialer(cfg.RelayURL),
		SettleDelay:   cfg.SettleDelay,
		CloseTimeout:  cfg.CloseTimeout,
		MaxTextLength: cfg.MaxTextLength,
		Logger:        log,
		OnEntry: func(entry protocol.ChatEntry) {
			fmt.Println(formatEntry(entry))
		},
		OnLifecycle: func(event relayclient.LifecycleEvent, binding *protocol.ReadyBinding) {
			fmt.Println(color.Gray.Render("* " + event.String()))
		},
	})
	defer session.Close()

	session.SetRoom(cfg.RoomID)
	session.SetParticipant(&protocol.ParticipantIdentity{
		ParticipantID: cfg.ParticipantID,
		DisplayName:   cfg.DisplayName,
	})

	go func() {
		for err := range session.Errors() {
			fmt.Fprintln(os.Stderr, color.Red.Render("! "+err.Error()))
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

	fmt.Println(color.New(color.BgBlack, color.FgGreen).Render(
		fmt.Sprintf(">>> Room %s via %s (/reconnect, Ctrl+C to quit)", cfg.RoomID, cfg.RelayURL)))

	for {
		select {
		case <-ctx.Done():
			return exitOK, nil
		case line, ok := <-lines:
			if !ok {
				return exitOK, nil
			}
			if strings.TrimSpace(line) == "/reconnect" {
				session.Reconnect()
				continue
			}
			sent, err := session.Submit(line)
			switch {
			case err != nil:
				fmt.Fprintln(os.Stderr, color.Red.Render("! "+err.Error()))
			case !sent && strings.TrimSpace(line) != "":
				fmt.Fprintln(os.Stderr, color.Yellow.Render("! not connected, message dropped"))
			}
		}
	}
}

func formatEntry(entry protocol.ChatEntry) string {
	at := time.UnixMilli(entry.TimestampMs).Format("15:04:05")
	switch {
	case entry.IsNotification():
		return color.Gray.Render(fmt.Sprintf("[%s] -- %s", at, entry.Text))
	case entry.IsLocal:
		return fmt.Sprintf("[%s] %s: %s", at, color.Green.Render("you"), entry.Text)
	default:
		return fmt.Sprintf("[%s] %s: %s", at, color.Cyan.Render(entry.SenderName), entry.Text)
	}
}
