package tracker

import (
	"time"
)

type (
	// Broker carries messages between the goroutines around the player: the
	// MIDI input sends commands, an export running in the background sends
	// progress, and the front end drains both. All channels are buffered and
	// senders use TrySend, so a slow front end drops messages instead of
	// blocking MIDI or the export.
	Broker struct {
		ToPlayer chan Command
		Progress chan ExportProgress
	}

	// Command is a request to change the playback, coming from a remote
	// control.
	Command struct {
		Kind   CommandKind
		Delta  int     // orders or rows for the jump commands, effects for NextEffect
		Volume float64 // for SetVolume
	}

	CommandKind int

	ExportProgress struct {
		Path  string
		Done  int
		Total int
		Err   error // set with Finished
		// Finished is true on the last message of an export.
		Finished bool
	}
)

const (
	CommandTogglePause CommandKind = iota
	CommandJumpOrder
	CommandJumpRows
	CommandNextEffect
	CommandSetVolume
)

func NewBroker() *Broker {
	return &Broker{
		ToPlayer: make(chan Command, 1024),
		Progress: make(chan ExportProgress, 64),
	}
}

func (k CommandKind) String() string {
	switch k {
	case CommandTogglePause:
		return "TogglePause"
	case CommandJumpOrder:
		return "JumpOrder"
	case CommandJumpRows:
		return "JumpRows"
	case CommandNextEffect:
		return "NextEffect"
	case CommandSetVolume:
		return "SetVolume"
	}
	return "Unknown"
}

// Execute applies a command to the player.
func (p *Player) Execute(c Command) {
	switch c.Kind {
	case CommandTogglePause:
		p.TogglePause()
	case CommandJumpOrder:
		p.JumpToOrder(c.Delta)
	case CommandJumpRows:
		p.JumpRows(c.Delta)
	case CommandNextEffect:
		p.SetEffect(p.Effect().Next(c.Delta))
	case CommandSetVolume:
		p.SetVolume(c.Volume)
	}
}

// ExecuteAll applies all pending commands without blocking and returns how
// many were applied.
func (p *Player) ExecuteAll(c <-chan Command) int {
	n := 0
	for {
		select {
		case cmd := <-c:
			p.Execute(cmd)
			n++
		default:
			return n
		}
	}
}

// ExportAsync runs Export on a new goroutine, reporting progress and the
// result through the broker.
func (p *Player) ExportAsync(b *Broker, opts ExportOptions) {
	if opts.Path == "" {
		path, err := ExportFileName(p.config.ExportTemplate, p.meta, opts.Format)
		if err != nil {
			TrySend(b.Progress, ExportProgress{Err: err, Finished: true})
			return
		}
		opts.Path = path
	}
	progress := opts.Progress
	opts.Progress = func(done, total int) bool {
		TrySend(b.Progress, ExportProgress{Path: opts.Path, Done: done, Total: total})
		return progress == nil || progress(done, total)
	}
	go func() {
		err := p.Export(opts)
		// the final message must not be dropped
		b.Progress <- ExportProgress{Path: opts.Path, Err: err, Finished: true}
	}()
}

// TrySend is a helper function to send a value to a channel if it is not full.
// It is guaranteed to be non-blocking. Return true if the value was sent,
// false otherwise.
func TrySend[T any](c chan<- T, v T) bool {
	select {
	case c <- v:
	default:
		return false
	}
	return true
}

// TimeoutReceive is a helper function to block until a value is received from a
// channel, or timing out after t. ok will be false if the timeout occurred or if
// the channel is closed.
func TimeoutReceive[T any](c <-chan T, t time.Duration) (v T, ok bool) {
	select {
	case v, ok = <-c:
		return v, ok
	case <-time.After(t):
		return v, false
	}
}
