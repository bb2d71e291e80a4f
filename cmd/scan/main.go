// Command scan runs one scan offline against the synthetic emulator or a
// directory of recorded frames and prints the outcome as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Krimson/strokeguard/internal/logger"
	"github.com/Krimson/strokeguard/internal/ppg"
	"github.com/Krimson/strokeguard/internal/risk"
	"github.com/Krimson/strokeguard/internal/scan"
	"github.com/Krimson/strokeguard/internal/source"
)

func main() {
	var (
		modeName = flag.String("mode", "face", "Scan mode: face or fingertip")
		dir      = flag.String("dir", "", "Directory of PNG/JPEG frames; empty uses the synthetic emulator")
		fps      = flag.Int("fps", 30, "Capture rate")
		window   = flag.Duration("window", 5*time.Second, "Aggregation window")
		windows  = flag.Int("windows", 6, "Windows per scan")
		speed    = flag.Float64("speed", 10, "Replay speed multiplier; 1 is real time")
		bpm      = flag.Float64("bpm", 72, "Synthetic pulse rate")
		noise    = flag.Float64("noise", 0.02, "Synthetic noise")
		seed     = flag.Int64("seed", 0, "Synthetic seed, 0 seeds from the clock")
		bp       = flag.String("bp", "", "Blood pressure, e.g. 118/76")
		smoking  = flag.String("smoking", "", "never | former | active")
		diabetes = flag.String("diabetes", "", "no | unsure | yes")
		family   = flag.String("family", "", "no | unsure | yes")
		activity = flag.String("activity", "", "5+ | 3-4 | 1-2 | 0")
		level    = flag.String("log-level", "warn", "Log level")
	)
	flag.Parse()

	log, err := logger.New(*level, "console", "scan")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	mode, err := ppg.ParseMode(*modeName)
	if err != nil {
		log.Fatal("invalid mode", zap.Error(err))
	}
	if *speed <= 0 || *fps <= 0 || *windows <= 0 || *window <= 0 {
		log.Fatal("fps, window, windows and speed must be positive")
	}

	var src scan.FrameSource
	if *dir != "" {
		src = source.NewImageDir(*dir)
	} else {
		cfg := source.DefaultSyntheticConfig()
		cfg.Pulse.BPM = *bpm
		cfg.Pulse.Noise = *noise
		cfg.Pulse.Seed = *seed
		synth, err := source.NewSynthetic(cfg)
		if err != nil {
			log.Fatal("invalid synthetic source", zap.Error(err))
		}
		src = synth
	}

	// Sources stamp frames at the nominal rate, so a faster tick replays
	// the scan faster without changing the measured vitals.
	capture := scan.DefaultCaptureConfig()
	capture.FPS = *fps
	capture.Windows = *windows
	capture.Window = time.Duration(float64(*window) / *speed)
	capture.Tick = time.Duration(float64(time.Second) / (float64(*fps) * *speed))

	scanner := scan.NewScanner(src, &scan.LogSink{Logger: log}, scan.WithLogger(log))
	baseline := risk.Baseline{
		BloodPressure:  *bp,
		SmokingStatus:  *smoking,
		DiabetesStatus: *diabetes,
		FamilyHistory:  *family,
		ActivityLevel:  *activity,
	}
	if baseline != (risk.Baseline{}) {
		scanner.SetBaseline(baseline)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := scanner.Start(ctx, mode, capture); err != nil {
		// acquisition failures still produce an outcome
		if _, ok := scanner.Outcome(); !ok {
			log.Fatal("failed to start scan", zap.Error(err))
		}
		log.Error("failed to start scan", zap.Error(err))
	}

	outcome, err := scanner.Wait(ctx)
	if err != nil {
		scanner.Stop()
		log.Fatal("scan interrupted", zap.Error(err))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(outcome); err != nil {
		log.Fatal("failed to write outcome", zap.Error(err))
	}
	if outcome.State != scan.StateCompleted {
		os.Exit(2)
	}
}
