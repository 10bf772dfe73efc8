package main

import (
	"context"
	"fmt"
	"path/filepath"

	"gorm.io/gorm"

	"voicenotes/audio"
	"voicenotes/config"
	"voicenotes/generator"
	"voicenotes/log"
	"voicenotes/notes"
	"voicenotes/pipeline"
	"voicenotes/recorder"
	"voicenotes/settings"
	"voicenotes/storage"
	"voicenotes/transcriber"
)

// app holds everything that outlives a single view: persisted state and the
// recording pipeline.
type app struct {
	cfg      config.Config
	settings *settings.Store
	db       *gorm.DB
	store    *notes.Store

	audio  audio.Context
	device *audio.DeviceInfo
	mic    *audio.Microphone
	rec    *recorder.Recorder
	pipe   *pipeline.Pipeline
	trans  transcriber.Transcriber
	gen    generator.Generator
}

// openApp opens the keyring, the database and the note collection.
func openApp(ctx context.Context, cfg config.Config) (*app, error) {
	st, err := settings.OpenStore(settingsConfig(cfg))
	if err != nil {
		return nil, err
	}
	if cfg.APIToken != "" {
		st.SetOverride(cfg.APIToken)
	}

	db, err := storage.Open(storage.Config{Path: cfg.Storage.DBPath})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	store, err := notes.Open(ctx, storage.NewNoteRepository(db))
	if err != nil {
		storage.Close(db)
		return nil, fmt.Errorf("load notes: %w", err)
	}

	return &app{
		cfg:      cfg,
		settings: st,
		db:       db,
		store:    store,
		trans:    transcriber.New(transcriber.Config{URL: cfg.Transcribe.URL, Model: cfg.Transcribe.Model}),
		gen:      generator.New(generator.Config{URL: cfg.Chat.URL, Model: cfg.Chat.Model}),
	}, nil
}

// attach connects the recording side to an audio context and routes events
// into ev.
func (a *app) attach(actx audio.Context, device *audio.DeviceInfo, ev *sink) {
	a.audio = actx
	a.device = device
	a.mic = audio.NewMicrophone(actx, device, a.cfg.Audio.Format)
	a.mic.OnLevel(ev.Level)
	a.rec = recorder.New(a.mic, recorder.WithEvents(ev))
	a.pipe = pipeline.New(pipeline.Deps{
		Recorder:    a.rec,
		Transcriber: a.trans,
		Generator:   a.gen,
		Store:       a.store,
		Tokens:      a.settings,
		Events:      ev,
	})
}

func settingsConfig(cfg config.Config) settings.Config {
	return settings.Config{
		Backend:  cfg.Keyring.Backend,
		Dir:      filepath.Join(cfg.Storage.DataDir, "keyring"),
		Password: cfg.Keyring.Password,
	}
}

func (a *app) deviceName() string {
	if a.mic != nil {
		return a.mic.DeviceName()
	}
	if a.device != nil {
		return a.device.Name
	}
	return audio.DefaultDeviceName
}

func (a *app) Close() {
	if a.mic != nil {
		a.mic.Close()
	}
	if a.audio != nil {
		a.audio.Close()
	}
	if a.db == nil {
		return
	}
	if err := storage.Close(a.db); err != nil {
		log.Warnf("closing database: %v", err)
	}
}
