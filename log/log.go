// Package log writes the diagnostics log and the transcript log. Every call
// before Init is a no-op, so packages can log unconditionally.
package log

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	diagFileName       = "diagnostics_log.txt"
	transcriptFileName = "transcripts_log.txt"
	crashFileName      = "crash_log.txt"
	timeFormat         = "2006-01-02 15:04:05"
)

var (
	diagLog        zerolog.Logger
	diagFile       *os.File
	transcriptFile *os.File
	logMu          sync.Mutex
	logReady       bool
	pid            int
	dir            string
)

// ResolveDir picks the log directory: the -logpath flag, then
// VOICENOTES_LOG_PATH, then the OS default. Relative paths resolve against
// the working directory.
func ResolveDir(flagPath string) (string, error) {
	for _, p := range []string{flagPath, os.Getenv("VOICENOTES_LOG_PATH")} {
		if p == "" {
			continue
		}
		if filepath.IsAbs(p) {
			return p, nil
		}
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		return filepath.Join(wd, p), nil
	}
	return getDefaultDir()
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}
	pid = os.Getpid()

	var err error
	diagFile, err = openAppend(diagFileName)
	if err != nil {
		return err
	}
	transcriptFile, err = openAppend(transcriptFileName)
	if err != nil {
		diagFile.Close()
		return err
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: timeFormat,
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).With().Timestamp().Int("pid", pid).Logger()

	logReady = true
	return nil
}

func openAppend(name string) (*os.File, error) {
	return os.OpenFile(filepath.Join(dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
}

// OpenCrashLog opens crash_log.txt in the log directory and writes a session
// marker. The caller hands it to debug.SetCrashOutput and keeps it open.
func OpenCrashLog() (*os.File, error) {
	if err := EnsureDir(); err != nil {
		return nil, err
	}
	f, err := openAppend(crashFileName)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(f, "\n=== Session %s [pid=%d] ===\n", time.Now().Format(timeFormat), os.Getpid())
	return f, nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	if transcriptFile != nil {
		transcriptFile.Close()
		transcriptFile = nil
	}
	logReady = false
}

func Info(msg string) {
	if logReady {
		diagLog.Info().Msg(msg)
	}
}

func Infof(format string, args ...any) {
	if logReady {
		diagLog.Info().Msg(fmt.Sprintf(format, args...))
	}
}

// Error logs msg with err attached as the error field.
func Error(msg string, err error) {
	if logReady {
		diagLog.Error().Err(err).Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if logReady {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if logReady {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if logReady {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

// Failure logs a classified error with the operation and kind as fields.
func Failure(op, kind string, err error) {
	if !logReady {
		return
	}
	diagLog.Error().Str("op", op).Str("kind", kind).Err(err).Msg("failure")
}

// Writer returns an io.Writer whose lines land in the diagnostics log at
// info level, for libraries that want a plain writer (the GORM logger).
// Before Init it discards.
func Writer() io.Writer {
	return writerFunc(func(p []byte) (int, error) {
		if logReady {
			for _, line := range bytes.Split(bytes.TrimRight(p, "\n"), []byte("\n")) {
				if line := strings.TrimSpace(string(line)); line != "" {
					diagLog.Info().Str("src", "db").Msg(line)
				}
			}
		}
		return len(p), nil
	})
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

type TranscriptionMetricsData struct {
	Format         string
	Model          string
	AudioS         float64
	RawKB          float64
	EncodedKB      float64
	CompressionPct float64
	EncodeMs       float64
	DNSMs          float64
	TLSMs          float64
	TTFBMs         float64
	TotalMs        float64
	ConnReused     bool
	TLSProto       string
	RateLimit      string
}

func TranscriptionMetrics(m TranscriptionMetricsData) {
	if !logReady {
		return
	}
	ev := diagLog.Info().
		Str("format", m.Format).
		Str("model", m.Model).
		Str("conn", connStatus(m.ConnReused))
	if m.TLSProto != "" {
		ev = ev.Str("tls_proto", m.TLSProto)
	}
	if m.RateLimit != "" {
		ev = ev.Str("rate_limit", m.RateLimit)
	}
	ev.Float64("audio_s", m.AudioS).
		Float64("raw_kb", m.RawKB).
		Float64("encoded_kb", m.EncodedKB).
		Float64("compression_pct", m.CompressionPct).
		Float64("encode_ms", m.EncodeMs).
		Float64("dns_ms", m.DNSMs).
		Float64("tls_ms", m.TLSMs).
		Float64("ttfb_ms", m.TTFBMs).
		Float64("total_ms", m.TotalMs).
		Msg("transcription")
}

type GenerationMetricsData struct {
	Task          string
	Model         string
	PromptChars   int
	ResponseChars int
	TTFBMs        float64
	TotalMs       float64
	ConnReused    bool
}

func GenerationMetrics(m GenerationMetricsData) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("task", m.Task).
		Str("model", m.Model).
		Str("conn", connStatus(m.ConnReused)).
		Int("prompt_chars", m.PromptChars).
		Int("response_chars", m.ResponseChars).
		Float64("ttfb_ms", m.TTFBMs).
		Float64("total_ms", m.TotalMs).
		Msg("generation")
}

func connStatus(reused bool) string {
	if reused {
		return "reused"
	}
	return "new"
}

// TranscriptText appends one line per created note to transcripts_log.txt:
// time, pid, note id and text, tab separated. Newlines in text are escaped so
// each note stays on one line.
func TranscriptText(noteID, text string) {
	if !logReady {
		return
	}
	logMu.Lock()
	defer logMu.Unlock()
	if transcriptFile == nil {
		return
	}
	text = strings.NewReplacer("\r", `\r`, "\n", `\n`, "\t", `\t`).Replace(text)
	fmt.Fprintf(transcriptFile, "%s\t[%d]\t%s\t%s\n", time.Now().Format(timeFormat), pid, noteID, text)
}

func SessionStart(version, format, device string, notes int) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("version", version).
		Str("format", format).
		Str("device", device).
		Int("notes", notes).
		Msg("session_start")
}

func SessionEnd(created int) {
	if !logReady {
		return
	}
	diagLog.Info().
		Int("created", created).
		Msg("session_end")
}
