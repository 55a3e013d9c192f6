// Command triggermic is the main entry point for the trigger mic server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/MrWong99/triggermic/internal/app"
	"github.com/MrWong99/triggermic/internal/config"
	"github.com/MrWong99/triggermic/internal/observe"
	"github.com/MrWong99/triggermic/pkg/audio"
	"github.com/MrWong99/triggermic/pkg/audio/miniaudio"
	"github.com/MrWong99/triggermic/pkg/audio/pcmfile"
	"github.com/MrWong99/triggermic/pkg/provider/stt"
	"github.com/MrWong99/triggermic/pkg/provider/stt/vosk"
	"github.com/MrWong99/triggermic/pkg/provider/stt/whisper"
	"github.com/MrWong99/triggermic/pkg/provider/vad"
	"github.com/MrWong99/triggermic/pkg/provider/vad/energy"
	"github.com/MrWong99/triggermic/pkg/provider/vad/webrtc"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "triggermic.yaml", "path to the YAML configuration file")
	watchEvery := flag.Duration("watch-interval", 5*time.Second, "config reload polling interval (0 disables reloading)")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "triggermic: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "triggermic: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(app.ParseLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("triggermic starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
		Registerer:     promReg,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	printStartupSummary(cfg)

	opts := []app.Option{
		app.WithMetrics(observe.DefaultMetrics()),
		app.WithGatherer(promReg),
		app.WithLogLevel(level),
	}
	if *watchEvery > 0 {
		opts = append(opts, app.WithConfigWatch(*configPath, *watchEvery))
	}
	application, err := app.New(ctx, cfg, reg, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("server ready; press Ctrl+C to shut down")

	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

type voskOptions struct {
	LogLevel int  `mapstructure:"log_level"`
	Words    bool `mapstructure:"words"`
}

type whisperOptions struct {
	Language  string `mapstructure:"language"`
	ModelPath string `mapstructure:"model_path"`
}

// registerBuiltinProviders wires all built-in factories into reg. Each
// factory decodes its entry's free-form options and constructs the real
// implementation.
func registerBuiltinProviders(reg *config.Registry) {
	// ── VAD ───────────────────────────────────────────────────────────────────
	reg.RegisterVAD("webrtc", func(config.ProviderEntry) (vad.Engine, error) { return webrtc.New(), nil })
	reg.RegisterVAD("energy", func(config.ProviderEntry) (vad.Engine, error) { return energy.New(), nil })

	// ── STT ───────────────────────────────────────────────────────────────────
	reg.RegisterSTT("vosk", func(entry config.ProviderEntry) (stt.Recognizer, error) {
		o := voskOptions{LogLevel: -1}
		if err := config.DecodeOptions(entry.Options, &o); err != nil {
			return nil, err
		}
		return vosk.New(entry.Model, vosk.WithLogLevel(o.LogLevel), vosk.WithWords(o.Words))
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Recognizer, error) {
		var o whisperOptions
		if err := config.DecodeOptions(entry.Options, &o); err != nil {
			return nil, err
		}
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if o.Language != "" {
			opts = append(opts, whisper.WithLanguage(o.Language))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Recognizer, error) {
		var o whisperOptions
		if err := config.DecodeOptions(entry.Options, &o); err != nil {
			return nil, err
		}
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = o.ModelPath
		}
		var opts []whisper.NativeOption
		if o.Language != "" {
			opts = append(opts, whisper.WithNativeLanguage(o.Language))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	// ── Sources ───────────────────────────────────────────────────────────────
	reg.RegisterSource("miniaudio", func(src config.SourceConfig) (audio.Source, error) {
		var o miniaudio.Options
		if err := config.DecodeOptions(src.Options, &o); err != nil {
			return nil, err
		}
		return miniaudio.New(o)
	})

	reg.RegisterSource("pcmfile", func(src config.SourceConfig) (audio.Source, error) {
		var o pcmfile.Options
		if err := config.DecodeOptions(src.Options, &o); err != nil {
			return nil, err
		}
		return pcmfile.New(o)
	})

	for _, kind := range []string{"vad", "stt", "source"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

// printStartupSummary writes to stderr so that stdout stays free for
// output.path "-".
func printStartupSummary(cfg *config.Config) {
	fmt.Fprintln(os.Stderr, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(os.Stderr, "║       triggermic startup summary      ║")
	fmt.Fprintln(os.Stderr, "╠═══════════════════════════════════════╣")
	printRow("Trigger word", quoteOr(cfg.Trigger.TriggerWord, "(none)"))
	printRow("Source", quoteOr(cfg.Trigger.Source, "(none)"))
	printRow("VAD", fmt.Sprintf("%s / mode %d", cfg.Providers.VAD.Name, cfg.Trigger.Sensitivity()))
	printRow("STT", cfg.Providers.STT.Name)
	printRow("STT fallbacks", fmt.Sprintf("%d", len(cfg.Providers.STTFallbacks)))
	printRow("Silence frames", fmt.Sprintf("%d x %d ms", cfg.Trigger.SilenceFrames, cfg.Trigger.FrameMs))
	if cfg.Server.ListenAddr != "" {
		printRow("Listen addr", cfg.Server.ListenAddr)
	}
	if cfg.Output.Path != "" {
		printRow("Output", cfg.Output.Path)
	}
	fmt.Fprintln(os.Stderr, "╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	if len(value) > 19 {
		value = value[:16] + "..."
	}
	fmt.Fprintf(os.Stderr, "║  %-14s  : %-19s ║\n", label, value)
}

func quoteOr(s, empty string) string {
	if s == "" {
		return empty
	}
	return s
}
