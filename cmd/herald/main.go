// Command herald is the interactive subscriber/publisher client. It
// dials the broker over NATS, logs in with a user id and drives the
// broker operations from a numbered menu. Received notification
// batches accumulate in an in-memory inbox drained by "show notices".
//
// Configuration (environment, .env honored):
//
//	NATS_URL  NATS server the broker daemon is attached to
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/herald-mq/herald"
	"github.com/herald-mq/herald/pkg/natsx"
	"github.com/herald-mq/herald/pkg/slogx"
	"github.com/herald-mq/herald/transport/natsrpc"
	_ "github.com/joho/godotenv/autoload"
	"github.com/phsym/zeroslog"
	"github.com/rs/zerolog"
)

var log zerolog.Logger

func init() {
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Stamp}
	log = zerolog.New(output).With().Timestamp().Logger()
	slog.SetDefault(slog.New(
		zeroslog.NewHandler(log, &zeroslog.HandlerOptions{Level: slog.LevelWarn}),
	))
}

// inbox buffers received content until the user asks to see it.
type inbox struct {
	mu      sync.Mutex
	notices []herald.Content
}

func (i *inbox) Notify(_ context.Context, batch []herald.Content) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.notices = append(i.notices, batch...)
	return nil
}

func (i *inbox) drain() []herald.Content {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := i.notices
	i.notices = nil
	return out
}

func main() {
	ctx := context.Background()
	scanner := bufio.NewScanner(os.Stdin)

	nc, err := natsx.NewClient()
	if err != nil {
		slog.Error("failed to connect to NATS", slogx.Error(err))
		os.Exit(1)
	}
	defer nc.Close()

	client, err := natsrpc.Dial(nc)
	if err != nil {
		slog.Error("failed to reach the broker", slogx.Error(err))
		os.Exit(1)
	}
	defer func() {
		if err := client.Close(); err != nil {
			slog.Warn("disconnect failed", slogx.Error(err))
		}
	}()

	user := herald.UserID(prompt(scanner, "Enter your user id: "))
	if user == "" {
		return
	}

	in := &inbox{}
	ok, err := client.Login(ctx, user, in)
	if err != nil {
		slog.Error("login failed", slogx.Error(err))
		os.Exit(1)
	}
	if !ok {
		color.Red("login rejected: %q already has a live session", user)
		os.Exit(1)
	}
	color.Green("logged in as %s", user)

	menu(ctx, scanner, client, user, in)
	fmt.Println("Bye.")
}

func menu(ctx context.Context, scanner *bufio.Scanner, client *natsrpc.Client, user herald.UserID, in *inbox) {
	title := color.New(color.FgCyan, color.Bold).SprintFunc()
	for {
		fmt.Println()
		fmt.Println(title("Menu:"))
		fmt.Println("  1. Publish a notice")
		fmt.Println("  2. Subscribe to a topic")
		fmt.Println("  3. Unsubscribe from a topic")
		fmt.Println("  4. List topics")
		fmt.Println("  5. Show notices")
		fmt.Println("  6. Quit")

		switch prompt(scanner, "Choice (1-6): ") {
		case "1":
			topic := herald.Topic(prompt(scanner, "Topic: "))
			data := prompt(scanner, "Content: ")
			report(client.Publish(ctx, user, topic, data))("notice published", "publish failed: unknown topic")
		case "2":
			topic := herald.Topic(prompt(scanner, "Topic: "))
			report(client.SubscribeTo(ctx, user, topic))("subscribed", "subscribe failed: unknown topic")
		case "3":
			topic := herald.Topic(prompt(scanner, "Topic: "))
			report(client.UnsubscribeTo(ctx, user, topic))("unsubscribed", "unsubscribe failed: unknown topic")
		case "4":
			topics, err := client.ListTopics(ctx)
			if err != nil {
				color.Red("list failed: %v", err)
				continue
			}
			if len(topics) == 0 {
				fmt.Println("no topics yet")
				continue
			}
			for _, topic := range topics {
				fmt.Printf("  - %s\n", topic)
			}
		case "5":
			notices := in.drain()
			if len(notices) == 0 {
				fmt.Println("No new notices.")
				continue
			}
			for _, n := range notices {
				fmt.Printf("[%s] %s: %s\n",
					color.YellowString(string(n.Topic)),
					color.CyanString(string(n.Author)),
					n.Data,
				)
			}
		case "6", "exit", "":
			return
		default:
			fmt.Println("Invalid choice. Try again.")
		}
	}
}

func prompt(scanner *bufio.Scanner, label string) string {
	fmt.Print(label)
	if !scanner.Scan() {
		return ""
	}
	return strings.TrimSpace(scanner.Text())
}

// report renders a bool/error operation outcome on the console.
func report(ok bool, err error) func(success, failure string) {
	return func(success, failure string) {
		switch {
		case err != nil:
			color.Red("%v", err)
		case ok:
			color.Green("%s", success)
		default:
			color.Red("%s", failure)
		}
	}
}
