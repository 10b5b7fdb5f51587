package speech

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
)

// EngineConfig configures the external TTS command
type EngineConfig struct {
	Command  string // TTS binary, e.g. "espeak-ng", "espeak", "say"
	Rate     int    // words per minute (0 = engine default)
	ExtraArg string // optional extra flag passed before the text
}

// DefaultEngineConfig returns sensible defaults for a Raspberry Pi
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Command: "espeak-ng",
		Rate:    150,
	}
}

// Engine speaks text by invoking an external TTS command, one utterance at
// a time.
type Engine struct {
	cfg    EngineConfig
	logger *slog.Logger

	mu       sync.Mutex
	cancel   context.CancelFunc
	speaking bool

	// Stats
	spoken atomic.Uint64
	errors atomic.Uint64
}

// NewEngine creates a TTS engine
func NewEngine(cfg EngineConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{cfg: cfg, logger: logger}
}

// IsAvailable checks if the TTS command exists on PATH
func (e *Engine) IsAvailable() bool {
	_, err := exec.LookPath(e.cfg.Command)
	return err == nil
}

// Speak runs the TTS command and blocks until playback finishes
func (e *Engine) Speak(ctx context.Context, text string) error {
	ctx, cancel := context.WithCancel(ctx)

	var args []string
	if e.cfg.Rate > 0 {
		args = append(args, "-s", strconv.Itoa(e.cfg.Rate))
	}
	if e.cfg.ExtraArg != "" {
		args = append(args, e.cfg.ExtraArg)
	}
	args = append(args, text)

	cmd := exec.CommandContext(ctx, e.cfg.Command, args...)

	e.mu.Lock()
	e.cancel = cancel
	e.speaking = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.speaking = false
		e.cancel = nil
		e.mu.Unlock()
		cancel()
	}()

	if err := cmd.Run(); err != nil {
		e.errors.Add(1)
		return fmt.Errorf("tts command failed: %w", err)
	}

	e.spoken.Add(1)
	return nil
}

// Speaking reports whether an utterance is in flight
func (e *Engine) Speaking() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speaking
}

// Stop cancels the in-flight utterance, if any
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
	}
}

// EngineStats contains engine counters
type EngineStats struct {
	Spoken uint64 `json:"spoken"`
	Errors uint64 `json:"errors"`
}

// GetStats returns engine counters
func (e *Engine) GetStats() EngineStats {
	return EngineStats{
		Spoken: e.spoken.Load(),
		Errors: e.errors.Load(),
	}
}

// LogOutput is an Output that writes announcements to the log instead of
// speaking them. Used when no TTS command is installed.
type LogOutput struct {
	logger *slog.Logger
}

// NewLogOutput creates a log-only speech output
func NewLogOutput(logger *slog.Logger) *LogOutput {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogOutput{logger: logger}
}

func (o *LogOutput) Speak(ctx context.Context, text string) error {
	o.logger.Info("announcement", "text", text)
	return nil
}

func (o *LogOutput) Speaking() bool { return false }

func (o *LogOutput) Stop() {}
