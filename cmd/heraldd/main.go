// Command heraldd runs the herald broker daemon: it binds the broker
// engine to the NATS transport and serves a console admin loop for
// topic creation.
//
// Configuration (environment, .env honored):
//
//	NATS_URL                 NATS server to attach to
//	HERALD_ADMIN             administrator identity (default "admin")
//	HERALD_DISPATCH_WORKERS  dispatch pool size (default 4)
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/herald-mq/herald"
	"github.com/herald-mq/herald/pkg/natsx"
	"github.com/herald-mq/herald/pkg/slogx"
	"github.com/herald-mq/herald/service"
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
		zeroslog.NewHandler(log, &zeroslog.HandlerOptions{Level: slog.LevelInfo}),
	))
}

func main() {
	admin := service.DefaultAdmin
	if v := os.Getenv("HERALD_ADMIN"); v != "" {
		admin = herald.UserID(v)
	}
	workers := 4
	if v := os.Getenv("HERALD_DISPATCH_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			slog.Error("invalid HERALD_DISPATCH_WORKERS", slog.String("value", v))
			os.Exit(1)
		}
		workers = n
	}

	nc, err := natsx.NewClient()
	if err != nil {
		slog.Error("failed to connect to NATS", slogx.Error(err))
		os.Exit(1)
	}
	defer nc.Close()

	brk := service.New(
		service.WithAdmin(admin),
		service.WithDispatchWorkers(workers),
	)
	defer brk.Close()

	srv := natsrpc.NewServer(nc, brk)
	if err := srv.Listen(); err != nil {
		slog.Error("failed to bind transport", slogx.Error(err))
		os.Exit(1)
	}
	defer srv.Close()

	slog.Info("herald broker is up", slog.String("admin", string(admin)))

	done := make(chan struct{})
	go consoleLoop(brk, admin, done)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigc:
		fmt.Println()
		slog.Info("shutting down")
	case <-done:
	}
}

// consoleLoop is the admin surface: `create_topic <name>` registers a
// topic as the administrator identity, `exit` stops the daemon.
func consoleLoop(brk herald.Broker, admin herald.UserID, done chan<- struct{}) {
	defer close(done)
	scanner := bufio.NewScanner(os.Stdin)
	prompt := color.New(color.FgCyan).SprintFunc()

	for {
		fmt.Printf("%s ", prompt("herald>"))
		if !scanner.Scan() {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "exit":
			return
		case "create_topic":
			if len(fields) != 2 {
				fmt.Println("usage: create_topic <name>")
				continue
			}
			if err := brk.CreateTopic(context.Background(), admin, herald.Topic(fields[1])); err != nil {
				color.Red("%v", err)
				continue
			}
			color.Green("topic %q created", fields[1])
		default:
			fmt.Println("commands: create_topic <name> | exit")
		}
	}
}
