package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"voicenotes/audio"
	"voicenotes/beep"
	"voicenotes/config"
	"voicenotes/doctor"
	"voicenotes/log"
	"voicenotes/settings"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	logPathFlag := flag.String("logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	deviceFlag := flag.String("device", "", "Use named microphone device (exact or partial match)")
	setupFlag := flag.Bool("setup", false, "Pick the microphone interactively before starting")
	formatFlag := flag.String("format", "", "Upload format: flac or wav (default from VOICENOTES_FORMAT, else flac)")
	testFlag := flag.Bool("test", false, "Headless mode: replay a WAV file, read commands from stdin")
	doctorFlag := flag.Bool("doctor", false, "Run diagnostics and exit")
	nobeepFlag := flag.Bool("nobeep", false, "Disable start/stop sounds")
	tokenFlag := flag.String("token", "", "Save the API token to the keyring and exit (\"-\" removes it)")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("voicenotes %s\n", version)
		return 0
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if *formatFlag != "" {
		cfg.Audio.Format = *formatFlag
	}
	if *deviceFlag != "" {
		cfg.Audio.Device = *deviceFlag
	}
	if *nobeepFlag {
		cfg.Beep = false
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if !cfg.Beep {
		beep.Disable()
	}

	logPath, err := log.ResolveDir(*logPathFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		return 1
	}
	log.SetDir(logPath)
	if crashFile, err := log.OpenCrashLog(); err == nil {
		debug.SetCrashOutput(crashFile, debug.CrashOptions{})
	} else {
		fmt.Fprintf(os.Stderr, "Warning: could not open crash log: %v\n", err)
	}

	if *doctorFlag {
		return doctor.Run(doctor.Options{Config: cfg, Version: version})
	}

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, cfg)
	if err != nil {
		log.Error("startup failed", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer a.Close()

	if *tokenFlag != "" {
		return saveToken(a.settings, *tokenFlag)
	}

	if *testFlag {
		args := flag.Args()
		if len(args) == 0 {
			fmt.Fprintln(os.Stderr, "Usage: voicenotes -test <wav-file>")
			return 1
		}
		log.SessionStart(version, cfg.Audio.Format, "fake", a.store.Len())
		code := runTestMode(ctx, a, args[0], os.Stdin, os.Stdout)
		log.SessionEnd(a.pipe.Created())
		return code
	}

	return runTUI(ctx, a, *setupFlag)
}

func saveToken(st *settings.Store, token string) int {
	if token == "-" {
		token = ""
	}
	if err := st.Save(settings.Settings{APIToken: token}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Printf("API token: %s\n", settings.Mask(st.Get().APIToken))
	return 0
}

func runTUI(ctx context.Context, a *app, setup bool) int {
	actx, err := audio.NewContext()
	if err != nil {
		log.Error("audio context init failed", err)
		fmt.Fprintf(os.Stderr, "Error initializing audio: %v\n", err)
		return 1
	}

	var device *audio.DeviceInfo
	switch {
	case a.cfg.Audio.Device != "":
		device, err = audio.FindDevice(actx, a.cfg.Audio.Device)
		if err != nil {
			log.Warnf("device lookup: %v", err)
			fmt.Fprintf(os.Stderr, "Warning: %v, using system default\n", err)
		}
	case setup:
		device, err = audio.SelectDevice(actx)
		if errors.Is(err, audio.ErrSelectionCancelled) {
			actx.Close()
			return 0
		}
		if err != nil {
			log.Warnf("device selection failed: %v", err)
			fmt.Fprintf(os.Stderr, "Warning: device selection failed: %v, using system default\n", err)
		}
	}

	var program *tea.Program
	ev := newSink(func(msg any) {
		if program != nil {
			program.Send(msg)
		}
	})
	a.attach(actx, device, ev)
	go beep.Init()

	log.SessionStart(version, a.cfg.Audio.Format, a.deviceName(), a.store.Len())
	program = tea.NewProgram(newTUIModel(ctx, a, ev), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = program.Run()
	log.SessionEnd(a.pipe.Created())
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		log.Error("TUI exited with error", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
