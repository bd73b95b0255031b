package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"skald/internal/clipboard"
	"skald/internal/config"
	"skald/internal/console"
	"skald/internal/device"
	"skald/internal/engine"
	"skald/internal/hotkey"
	"skald/internal/level"
	"skald/internal/model"
	"skald/internal/pipeline"
	"skald/internal/recorder"
	"skald/internal/transcriber"
	"skald/pkg/skald"
)

// version is set at build time.
var version = "dev"

// logObserver is a skald.Observer that logs every event, grounded on
// the teacher's ServerStats/logger reporting in internal/server/server.go.
type logObserver struct {
	logger *log.Logger
}

func (o *logObserver) OnStatus(msg string) {
	o.logger.Printf("status: %s", msg)
}

func (o *logObserver) OnDebug(event map[string]any) {
	o.logger.Printf("debug: %v", event)
}

func (o *logObserver) OnRecordingStarted() {
	fmt.Println("\nRecording started")
}

func (o *logObserver) OnRecordingStopped() {
	fmt.Println("\nRecording stopped")
}

func (o *logObserver) OnTranscriptionDone(result skald.TranscriptionResult) {
	if result.Text == "" {
		fmt.Println("No speech detected")
		return
	}
	fmt.Printf("Transcribed (%.0f ms): %s\n", result.ProcessingTimeMS, result.Text)
}

func main() {
	var (
		settingsPath = flag.String("settings", "settings.json", "Path to the settings JSON file")
		modelsDir    = flag.String("models-dir", "models", "Directory GGML model files are downloaded into")
		showVersion  = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("skald version %s\n", version)
		return
	}

	logger := log.New(os.Stderr, "skald: ", log.LstdFlags)

	settings, err := config.Load(*settingsPath)
	if err != nil {
		logger.Fatalf("failed to load settings: %v", err)
	}

	backend, err := device.NewMalgoBackend()
	if err != nil {
		logger.Fatalf("failed to initialize audio backend: %v", err)
	}
	defer backend.Close()

	registry := device.NewRegistry(backend)
	dev, err := resolveDevice(registry, settings.SelectedDeviceName)
	if err != nil {
		logger.Fatalf("failed to select an input device: %v", err)
	}
	if dev == nil {
		logger.Fatalf("no input devices available")
	}
	probe, ok := registry.Probe(*dev, 0)
	if !ok {
		logger.Fatalf("device %q did not produce usable audio during probing", dev.Name)
	}
	logger.Printf("using device %q at %d Hz (%s)", dev.Name, probe.Rate, probe.Format)

	modelMgr := model.New(*modelsDir, logger)
	whisperEngine := engine.New(modelMgr)
	tr := transcriber.New(whisperEngine, settings.ModelID)

	rec := recorder.New(backend)
	mon := level.New(backend)

	binder := hotkey.New()
	clip := clipboard.New()
	paste := clipboard.NewPasteInjector()
	obs := &logObserver{logger: logger}

	controller := pipeline.New(rec, mon, tr, binder, clip, paste, obs, logger, *dev, probe.Format, probe.Rate)
	controller.ApplySettings(settings)

	if settings.RecordingMode == skald.Auto {
		if err := controller.StartAutoListening(); err != nil {
			logger.Fatalf("failed to start auto-listen capture: %v", err)
		}
	}

	cons := console.New(controller, logger)
	cons.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Printf("shutting down on signal")
	case <-controller.Done():
		logger.Printf("shutting down on request")
	}

	cons.Stop()
	controller.Shutdown()
}

// resolveDevice honors an explicit device name from settings, falling
// back to the registry's best-working-device heuristic.
func resolveDevice(registry *device.Registry, selectedName string) (*skald.DeviceDescriptor, error) {
	if selectedName != "" {
		devices, err := registry.ListDevices()
		if err != nil {
			return nil, &skald.DeviceEnumerationFailedError{Err: err}
		}
		for i := range devices {
			if devices[i].Name == selectedName {
				return &devices[i], nil
			}
		}
		log.Printf("configured device %q not found, falling back to auto-selection", selectedName)
	}
	return registry.BestWorkingDevice(0)
}
