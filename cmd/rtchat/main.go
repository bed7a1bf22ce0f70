package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	realtime "github.com/codewandler/realtime-go"
	"github.com/codewandler/realtime-go/events"
	"github.com/codewandler/realtime-go/tool"
)

type config struct {
	APIKey       string `envconfig:"OPENAI_API_KEY" required:"true"`
	Model        string `envconfig:"REALTIME_MODEL" default:"gpt-realtime"`
	Instructions string `envconfig:"REALTIME_INSTRUCTIONS" default:"You are a helpcenter agent and help the user."`
	MetricsAddr  string `envconfig:"REALTIME_METRICS_ADDR"`
	Debug        bool   `envconfig:"REALTIME_DEBUG"`
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

func main() {
	_ = godotenv.Load()

	var cfg config
	must(envconfig.Process("", &cfg))

	flag.StringVar(&cfg.Instructions, "instruction", cfg.Instructions, "instruction to send to the agent.")
	flag.StringVar(&cfg.Model, "model", cfg.Model, "model to connect to.")
	flag.BoolVar(&cfg.Debug, "debug", cfg.Debug, "enable debug logs")
	flag.Parse()

	slog.SetLogLoggerLevel(slog.LevelError)
	if cfg.Debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	reg := prometheus.NewRegistry()
	metrics, err := realtime.NewMetrics(reg)
	must(err)
	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				slog.Error("metrics server", slog.Any("err", err))
			}
		}()
	}

	tools := tool.NewRegistry()
	must(tools.Register(tool.Function("get_time", "Get current time", nil), func(context.Context, json.RawMessage) (any, error) {
		return time.Now().Format(time.RFC3339), nil
	}))
	must(tools.Register(tool.Function("conversation_end", "End the conversation", nil), func(context.Context, json.RawMessage) (any, error) {
		cancel()
		return "OK", nil
	}))

	client, err := realtime.Dial(ctx,
		realtime.WithDefaultLogger(),
		realtime.WithTrace(cfg.Debug),
		realtime.WithKey(cfg.APIKey),
		realtime.WithModel(cfg.Model),
		realtime.WithMetrics(metrics),
		realtime.WithToolRegistry(tools),
		realtime.WithSession(events.SessionUpdate{
			Type:             events.SessionTypeRealtime,
			Instructions:     &cfg.Instructions,
			OutputModalities: []events.Modality{events.ModalityText},
			ToolChoice:       tool.ChoiceAuto,
		}),
	)
	must(err)
	defer client.Close()

	go printEvents(ctx, client)

	fmt.Println("type a message, /cancel to interrupt, /quit to exit")
	lines := bufio.NewScanner(os.Stdin)
	for lines.Scan() {
		line := strings.TrimSpace(lines.Text())
		switch line {
		case "":
			continue
		case "/quit":
			return
		case "/cancel":
			if err := client.CancelResponse(ctx, ""); err != nil {
				slog.Error("cancel", slog.Any("err", err))
			}
			continue
		}

		if _, err := client.Say(ctx, line); err != nil {
			slog.Error("say", slog.Any("err", err))
			continue
		}
		if err := client.Respond(ctx); err != nil {
			if errors.Is(err, realtime.ErrResponseConflict) {
				fmt.Println("(agent is still answering)")
				continue
			}
			slog.Error("respond", slog.Any("err", err))
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func printEvents(ctx context.Context, client *realtime.Client) {
	for {
		evt, err := client.Recv(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				slog.Error("connection ended", slog.Any("err", err))
			}
			return
		}
		if err := realtime.EventError(evt); err != nil {
			slog.Error("error", slog.Any("err", err))
			continue
		}
		switch x := evt.(type) {
		case *events.ResponseTextDeltaEvent:
			fmt.Print(x.Delta)
		case *events.ResponseAudioTranscriptDeltaEvent:
			fmt.Print(x.Delta)
		case *events.ResponseDoneEvent:
			fmt.Println()
			if x.Response.Status != events.ResponseStatusCompleted {
				fmt.Printf("(response %s)\n", x.Response.Status)
			}
		}
	}
}
