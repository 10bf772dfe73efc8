package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"voicenotes/apperr"
	"voicenotes/audio"
	"voicenotes/beep"
	"voicenotes/generator"
	"voicenotes/notes"
)

// printer renders front-end messages as one line each for the headless mode.
type printer struct {
	mu  sync.Mutex
	out io.Writer
}

func (p *printer) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format+"\n", args...)
}

func (p *printer) emit(msg any) {
	switch msg := msg.(type) {
	case recorderStateMsg:
		p.printf("STATE %s", msg.State.Name())
	case transcribingMsg:
		p.printf("TRANSCRIBING")
	case transcriptionFailedMsg:
		p.printf("ERROR transcribe %s: %s", apperr.KindOf(msg.Err), apperr.Message(msg.Err))
	case noteCreatedMsg:
		p.printf("NOTE %s %s", msg.Note.ID, oneLine(msg.Note.Content))
	case noteDeletedMsg:
		p.printf("DELETED %s", msg.ID)
	case generationStartedMsg:
		p.printf("GENERATING %s %s", msg.NoteID, msg.Task.Key())
	case generationFinishedMsg:
		p.printf("AI %s %s: %s", msg.Note.ID, msg.Note.AI.PromptType, oneLine(msg.Note.AI.Response))
	case generationFailedMsg:
		p.printf("ERROR generate %s: %s", apperr.KindOf(msg.Err), apperr.Message(msg.Err))
	}
}

func oneLine(s string) string {
	return strings.NewReplacer("\r", `\r`, "\n", `\n`).Replace(s)
}

// runTestMode drives the app from stdin commands against a fake capture
// that replays wavPath. It returns the process exit code.
func runTestMode(ctx context.Context, a *app, wavPath string, in io.Reader, out io.Writer) int {
	beep.Disable()

	fake, err := audio.NewFakeContext(wavPath, false)
	if err != nil {
		fmt.Fprintf(out, "ERROR loading wav: %v\n", err)
		return 1
	}
	p := &printer{out: out}
	a.attach(fake, nil, newSink(p.emit))

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if quit := runCommand(ctx, a, p, line); quit {
			return 0
		}
	}
	return 0
}

func runCommand(ctx context.Context, a *app, p *printer, line string) (quit bool) {
	fields := strings.Fields(line)
	cmd, args := strings.ToUpper(fields[0]), fields[1:]

	report := func(op string, err error) {
		if err != nil {
			p.printf("FAIL %s %s", op, err)
		}
	}

	switch cmd {
	case "RECORD":
		report("record", a.pipe.Start(ctx))
	case "STOP":
		_, err := a.pipe.Stop(ctx)
		report("stop", err)
	case "RETRY":
		_, err := a.pipe.Retry(ctx)
		report("retry", err)
	case "DISCARD":
		report("discard", a.pipe.Discard())
	case "GENERATE":
		if len(args) == 0 {
			p.printf("FAIL generate usage: GENERATE <task> [note-id]")
			return false
		}
		task, err := generator.ParseTask(args[0])
		if err != nil {
			report("generate", err)
			return false
		}
		id, err := noteArg(a.store, args[1:])
		if err != nil {
			report("generate", err)
			return false
		}
		_, err = a.pipe.Generate(ctx, id, task)
		report("generate", err)
	case "DELETE":
		id, err := noteArg(a.store, args)
		if err != nil {
			report("delete", err)
			return false
		}
		report("delete", a.pipe.Delete(ctx, id))
	case "LIST":
		list := a.store.List()
		p.printf("LIST %d", len(list))
		for _, n := range list {
			ai := "-"
			if n.AI != nil {
				ai = n.AI.PromptType
			}
			p.printf("%s\t%s\t%s", n.ID, ai, oneLine(n.Content))
		}
	case "STATE":
		p.printf("STATE %s", a.rec.State().Name())
	case "SLEEP":
		if len(args) > 0 {
			if ms, err := strconv.Atoi(args[0]); err == nil {
				time.Sleep(time.Duration(ms) * time.Millisecond)
			}
		}
	case "QUIT":
		return true
	default:
		p.printf("FAIL unknown command %q", fields[0])
	}
	return false
}

// noteArg resolves an optional note ID argument, defaulting to the newest
// note.
func noteArg(store *notes.Store, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	n, ok := store.Latest()
	if !ok {
		return "", notes.ErrNotFound
	}
	return n.ID, nil
}
