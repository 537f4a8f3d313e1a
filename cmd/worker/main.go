package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/invopop/jsonschema"
	"github.com/milankumarIS/swaram-agent-worker/core/controlplane"
	"github.com/milankumarIS/swaram-agent-worker/core/pipeline"
	"github.com/milankumarIS/swaram-agent-worker/core/session"
	"github.com/milankumarIS/swaram-agent-worker/core/transport/console"
	"github.com/milankumarIS/swaram-agent-worker/core/transport/livekit"
	"github.com/milankumarIS/swaram-agent-worker/internal/config"
	"github.com/milankumarIS/swaram-agent-worker/internal/consoleui"
	"github.com/milankumarIS/swaram-agent-worker/internal/server"
)

const usage = `usage: worker <command> [flags]

commands:
  start     serve LiveKit webhooks and run a session for every new room
  console   run one session against the local microphone and speaker
  schema    print the JSON schema of the agent config served by the backend
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "start":
		err = runStart(os.Args[2:])
	case "console":
		err = runConsole(os.Args[2:])
	case "schema":
		err = runSchema(os.Stdout)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		slog.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

func runStart(args []string) error {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	cfg := config.Load()
	fs.IntVar(&cfg.Port, "port", cfg.Port, "HTTP port for LiveKit webhooks")
	if err := fs.Parse(args); err != nil {
		return err
	}

	setupLogging(os.Stdout, cfg.LogLevel)
	if err := cfg.ValidateLiveKit(); err != nil {
		return err
	}

	slog.Info("worker starting",
		"agent_name", cfg.AgentName,
		"backend_url", cfg.BackendURL,
		"livekit_url", cfg.LiveKitURL,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	worker := session.NewWorker(newOrchestrator(cfg), slog.Default())
	webhook := livekit.NewWebhookHandler(ctx, cfg.LiveKitAPIKey, cfg.LiveKitAPISecret,
		livekit.JoinWith(livekit.Credentials{
			URL:       cfg.LiveKitURL,
			APIKey:    cfg.LiveKitAPIKey,
			APISecret: cfg.LiveKitAPISecret,
			AgentName: cfg.AgentName,
		}),
		worker,
		livekit.WithAgentName(cfg.AgentName),
		livekit.WithLogger(slog.Default()),
	)

	err := server.New(cfg.Port, cfg.AgentName, webhook, worker).Run(ctx)

	slog.Info("shutting down", "active_sessions", worker.Active())
	worker.Wait()
	slog.Info("worker stopped")
	return err
}

func runConsole(args []string) error {
	fs := flag.NewFlagSet("console", flag.ExitOnError)
	agentID := fs.String("agent-id", "", "agent to run (required)")
	sessionID := fs.String("session-id", "", "backend session to end when the console exits")
	logFile := fs.String("log-file", "console.log", "file to write logs to while the UI owns the terminal")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *agentID == "" {
		fs.Usage()
		return fmt.Errorf("-agent-id is required")
	}

	cfg := config.Load()
	logs, err := tea.LogToFile(*logFile, "console")
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logs.Close()
	setupLogging(logs, cfg.LogLevel)

	metadata, err := json.Marshal(session.Metadata{AgentID: *agentID, SessionID: *sessionID})
	if err != nil {
		return err
	}

	var program *tea.Program
	room, err := console.NewRoom(string(metadata), console.WithDataSink(func(payload []byte) {
		if msg, ok := consoleui.TranscriptFromPayload(payload); ok {
			program.Send(msg)
		}
	}))
	if err != nil {
		return fmt.Errorf("failed to open audio devices: %w", err)
	}
	defer room.Disconnect()

	program = tea.NewProgram(consoleui.New(room.Name(), room.Disconnect), tea.WithAltScreen())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		result := newOrchestrator(cfg).Run(ctx, session.Job{Room: room})
		program.Send(consoleui.SessionEndedMsg(result))
	}()

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("console UI failed: %w", err)
	}
	room.Disconnect()
	<-done
	return nil
}

func runSchema(w io.Writer) error {
	reflector := jsonschema.Reflector{DoNotReference: true}
	schema := reflector.Reflect(&controlplane.AgentConfig{})

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(schema)
}

func newOrchestrator(cfg config.Config) *session.Orchestrator {
	configs := controlplane.NewClient(cfg.BackendURL, cfg.WorkerSecret,
		controlplane.WithTimeout(cfg.ControlPlaneTimeout),
		controlplane.WithLogger(slog.Default()),
	)
	assembler := pipeline.NewAssembler(pipeline.NewDefaultEngines(), pipeline.WithLogger(slog.Default()))

	return session.NewOrchestrator(configs, session.PipelineAssembler{Assembler: assembler},
		session.WithLogger(slog.Default()),
	)
}

func setupLogging(w io.Writer, level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
