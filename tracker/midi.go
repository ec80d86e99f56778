package tracker

import (
	"fmt"
	"strings"

	"gitlab.com/gomidi/midi/v2"
)

type (
	MIDIContext interface {
		Inputs(yield func(input MIDIInputDevice) bool)
		Close()
		Support() MIDISupport
	}

	MIDIInputDevice interface {
		Open() error
		Close() error
		IsOpen() bool
		String() string
	}

	MIDISupport int

	// NullMIDIContext is used when the binary was built without MIDI drivers.
	NullMIDIContext struct{}

	// MIDIRemote turns incoming MIDI messages into player commands: note-ons
	// from the note map and the volume controller.
	MIDIRemote struct {
		notes    map[uint8]Command
		volumeCC int // -1 if disabled
	}
)

const (
	MIDISupportNotCompiled MIDISupport = iota
	MIDISupportNoDriver
	MIDISupported
)

func (s MIDISupport) String() string {
	switch s {
	case MIDISupportNotCompiled:
		return "not compiled"
	case MIDISupportNoDriver:
		return "no driver"
	}
	return "supported"
}

func (NullMIDIContext) Inputs(yield func(input MIDIInputDevice) bool) {}
func (NullMIDIContext) Close()                                        {}
func (NullMIDIContext) Support() MIDISupport                          { return MIDISupportNotCompiled }

func NewMIDIRemote(cfg MIDIConfig) (*MIDIRemote, error) {
	notes, err := cfg.Commands()
	if err != nil {
		return nil, err
	}
	cc := cfg.VolumeCC
	if cc < 0 || cc > 127 {
		cc = -1
	}
	return &MIDIRemote{notes: notes, volumeCC: cc}, nil
}

// Translate returns the command for a MIDI message, if it maps to one. Note
// messages are accepted on any channel.
func (r *MIDIRemote) Translate(msg midi.Message) (Command, bool) {
	var channel, key, velocity, controller, value uint8
	switch {
	case msg.GetNoteStart(&channel, &key, &velocity):
		cmd, ok := r.notes[key]
		return cmd, ok
	case msg.GetControlChange(&channel, &controller, &value):
		if r.volumeCC < 0 || int(controller) != r.volumeCC {
			return Command{}, false
		}
		return Command{Kind: CommandSetVolume, Volume: float64(value) / 127}, true
	}
	return Command{}, false
}

// Listener returns a callback for midi.ListenTo that forwards the translated
// commands to the player without blocking.
func (r *MIDIRemote) Listener(b *Broker) func(msg midi.Message, timestampms int32) {
	return func(msg midi.Message, timestampms int32) {
		if cmd, ok := r.Translate(msg); ok {
			TrySend(b.ToPlayer, cmd)
		}
	}
}

// OpenMIDIInput opens the first input whose name starts with prefix.
func OpenMIDIInput(ctx MIDIContext, prefix string) (MIDIInputDevice, error) {
	if ctx.Support() != MIDISupported {
		return nil, fmt.Errorf("MIDI input unavailable: %v", ctx.Support())
	}
	var found MIDIInputDevice
	ctx.Inputs(func(input MIDIInputDevice) bool {
		if strings.HasPrefix(input.String(), prefix) {
			found = input
			return false
		}
		return true
	})
	if found == nil {
		return nil, fmt.Errorf("could not find any MIDI input starting with %q", prefix)
	}
	if err := found.Open(); err != nil {
		return nil, err
	}
	return found, nil
}
