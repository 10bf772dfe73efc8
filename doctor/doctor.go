// Package doctor runs the -doctor self-diagnostics: it checks each local and
// remote dependency once and reports PASS or FAIL per check.
package doctor

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"voicenotes/audio"
	"voicenotes/config"
	"voicenotes/generator"
	"voicenotes/log"
	"voicenotes/settings"
	"voicenotes/storage"
	"voicenotes/transcriber"
)

type Options struct {
	Config  config.Config
	Version string

	// Out defaults to stdout.
	Out io.Writer
	// Audio, when set, replaces the system audio context.
	Audio audio.Context
	// CaptureFor is how long the microphone check records; zero means one
	// second, negative skips the capture.
	CaptureFor time.Duration
}

type check struct {
	name string
	run  func(o Options, w io.Writer) error
}

var checks = []check{
	{"Log directory", checkLogDir},
	{"Microphone", checkAudio},
	{"API token", checkToken},
	{"Database", checkDatabase},
	{"Endpoints", checkEndpoints},
}

// Run executes every check and returns an exit code (0=all pass, 1=any fail).
func Run(o Options) int {
	if o.Out == nil {
		o.Out = os.Stdout
		setupInterruptHandler()
	}
	w := o.Out

	fmt.Fprintf(w, "voicenotes %s doctor\n", o.Version)
	fmt.Fprintln(w, "============================")

	allPass := true
	for i, c := range checks {
		fmt.Fprintf(w, "\n[%d/%d] %s\n", i+1, len(checks), c.name)
		if err := c.run(o, w); err != nil {
			fmt.Fprintf(w, "  FAIL: %v\n", err)
			allPass = false
			continue
		}
		fmt.Fprintln(w, "  PASS")
	}

	fmt.Fprintln(w)
	if allPass {
		fmt.Fprintln(w, "All checks passed!")
		return 0
	}
	fmt.Fprintln(w, "Some checks failed. See details above.")
	return 1
}

func checkLogDir(_ Options, w io.Writer) error {
	if err := log.EnsureDir(); err != nil {
		return err
	}
	probe := filepath.Join(log.Dir(), ".doctor")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return fmt.Errorf("log directory not writable: %w", err)
	}
	os.Remove(probe)
	fmt.Fprintf(w, "  %s\n", log.Dir())
	return nil
}

func checkAudio(o Options, w io.Writer) error {
	ctx := o.Audio
	if ctx == nil {
		var err error
		ctx, err = audio.NewContext()
		if err != nil {
			return fmt.Errorf("cannot connect to audio: %w", err)
		}
		defer ctx.Close()
	}

	devices, err := ctx.Devices()
	if err != nil {
		return fmt.Errorf("cannot list devices: %w", err)
	}
	if len(devices) == 0 {
		return fmt.Errorf("no capture devices found")
	}
	for _, d := range devices {
		tag := ""
		if audio.IsBluetooth(d.Name) {
			tag = " (bluetooth: lower audio quality)"
		}
		fmt.Fprintf(w, "  - %s%s\n", d.Name, tag)
	}

	device, err := audio.FindDevice(ctx, o.Config.Audio.Device)
	if err != nil {
		return err
	}
	if o.CaptureFor < 0 {
		return nil
	}
	dur := o.CaptureFor
	if dur == 0 {
		dur = time.Second
	}

	mic := audio.NewMicrophone(ctx, device, o.Config.Audio.Format)
	defer mic.Close()
	var (
		peakMu sync.Mutex
		peak   float64
	)
	mic.OnLevel(func(l float64) {
		peakMu.Lock()
		peak = max(peak, l)
		peakMu.Unlock()
	})
	if err := mic.RequestAccess(context.Background()); err != nil {
		return fmt.Errorf("microphone access: %w", err)
	}
	if err := mic.StartCapture(); err != nil {
		return err
	}
	fmt.Fprintf(w, "  Recording %s from %s...\n", dur, mic.DeviceName())
	time.Sleep(dur)
	clip, err := mic.StopCapture()
	if err != nil {
		return err
	}
	stats := mic.LastStats()
	peakMu.Lock()
	defer peakMu.Unlock()
	fmt.Fprintf(w, "  captured %.1fs, %.1f KB %s (%.0f%% smaller than raw), peak level %.3f\n",
		clip.Duration.Seconds(), float64(len(clip.Data))/1024, clip.Format, stats.CompressionPct(), peak)
	if clip.Empty() {
		return fmt.Errorf("no audio captured")
	}
	if peak < 0.002 {
		fmt.Fprintln(w, "  Warning: input is silent; check the selected microphone")
	}
	return nil
}

func checkToken(o Options, w io.Writer) error {
	st, err := settings.OpenStore(settings.Config{
		Backend:  o.Config.Keyring.Backend,
		Dir:      filepath.Join(o.Config.Storage.DataDir, "keyring"),
		Password: o.Config.Keyring.Password,
	})
	if err != nil {
		return err
	}
	if o.Config.APIToken != "" {
		st.SetOverride(o.Config.APIToken)
		fmt.Fprintln(w, "  using VOICENOTES_API_TOKEN")
	}
	if !st.HasToken() {
		return fmt.Errorf("no API token; run voicenotes -token <token>")
	}
	fmt.Fprintf(w, "  %s\n", settings.Mask(st.Token()))
	return nil
}

func checkDatabase(o Options, w io.Writer) error {
	db, err := storage.Open(storage.Config{Path: o.Config.Storage.DBPath})
	if err != nil {
		return err
	}
	defer storage.Close(db)
	n, err := storage.NewNoteRepository(db).Count(context.Background())
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "  %s (%d notes)\n", o.Config.Storage.DBPath, n)
	return nil
}

func checkEndpoints(o Options, w io.Writer) error {
	var failed error
	for _, ep := range []struct {
		name string
		url  string
		ping func() error
	}{
		{"transcription", o.Config.Transcribe.URL, transcriber.New(transcriber.Config{URL: o.Config.Transcribe.URL, Model: o.Config.Transcribe.Model}).Reachable},
		{"chat", o.Config.Chat.URL, generator.New(generator.Config{URL: o.Config.Chat.URL, Model: o.Config.Chat.Model}).Reachable},
	} {
		start := time.Now()
		if err := ep.ping(); err != nil {
			fmt.Fprintf(w, "  %s %s: unreachable: %v\n", ep.name, ep.url, err)
			failed = fmt.Errorf("%s endpoint unreachable", ep.name)
			continue
		}
		fmt.Fprintf(w, "  %s %s: %dms\n", ep.name, ep.url, time.Since(start).Milliseconds())
	}
	return failed
}
