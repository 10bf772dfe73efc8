package recorder

import (
	"time"

	"voicenotes/audio"
)

// State is one of Idle, RequestingPermission, Recording, Stopped or Denied.
type State interface {
	Name() string
	isState()
}

type Idle struct{}

type RequestingPermission struct{}

type Recording struct {
	Started time.Time
	// Elapsed counts whole ticks (seconds in production) since Started.
	Elapsed time.Duration
}

// Stopped holds the finished clip until the pipeline consumes or discards it.
type Stopped struct {
	Clip audio.Clip
}

// Denied is terminal for the current gesture; only Reset leaves it.
type Denied struct {
	Err error
}

func (Idle) Name() string                 { return "idle" }
func (RequestingPermission) Name() string { return "requesting_permission" }
func (Recording) Name() string            { return "recording" }
func (Stopped) Name() string              { return "stopped" }
func (Denied) Name() string               { return "denied" }

func (Idle) isState()                 {}
func (RequestingPermission) isState() {}
func (Recording) isState()            {}
func (Stopped) isState()              {}
func (Denied) isState()               {}
