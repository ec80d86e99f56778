//go:build !cgo

package cmd

import (
	"github.com/vsariola/trackplay/tracker"
)

func NewMidiContext(broker *tracker.Broker, remote *tracker.MIDIRemote) tracker.MIDIContext {
	// with no cgo, we cannot use MIDI, so return a null context
	return tracker.NullMIDIContext{}
}
