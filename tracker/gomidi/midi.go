package gomidi

import (
	"errors"
	"fmt"

	"github.com/vsariola/trackplay/tracker"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

type (
	RTMIDIContext struct {
		driver   *rtmididrv.Driver
		listener func(msg midi.Message, timestampms int32)
	}

	RTMIDIInputDevice struct {
		in       drivers.In
		listener func(msg midi.Message, timestampms int32)
		stop     func()
	}
)

// NewContext opens the driver. Messages from opened inputs are translated by
// the remote and sent to the broker.
func NewContext(broker *tracker.Broker, remote *tracker.MIDIRemote) *RTMIDIContext {
	m := RTMIDIContext{listener: remote.Listener(broker)}
	// there's not much we can do if this fails, so just use m.driver = nil to
	// indicate no driver available
	m.driver, _ = rtmididrv.New()
	return &m
}

func (m *RTMIDIContext) Inputs(yield func(input tracker.MIDIInputDevice) bool) {
	if m.driver == nil {
		return
	}
	ins, err := m.driver.Ins()
	if err != nil {
		return
	}
	for i := 0; i < len(ins); i++ {
		if !yield(&RTMIDIInputDevice{in: ins[i], listener: m.listener}) {
			break
		}
	}
}

func (m *RTMIDIContext) Support() tracker.MIDISupport {
	if m.driver == nil {
		return tracker.MIDISupportNoDriver
	}
	return tracker.MIDISupported
}

func (m *RTMIDIContext) Close() {
	if m.driver == nil {
		return
	}
	m.driver.Close()
}

func (d *RTMIDIInputDevice) Open() error {
	if d.in == nil {
		return errors.New("no MIDI input")
	}
	if err := d.in.Open(); err != nil {
		return fmt.Errorf("opening MIDI input failed: %w", err)
	}
	stop, err := midi.ListenTo(d.in, d.listener)
	if err != nil {
		d.in.Close()
		return fmt.Errorf("listening to MIDI input failed: %w", err)
	}
	d.stop = stop
	return nil
}

func (d *RTMIDIInputDevice) Close() error {
	if d.stop != nil {
		d.stop()
		d.stop = nil
	}
	return d.in.Close()
}

func (d *RTMIDIInputDevice) IsOpen() bool { return d.in.IsOpen() }

func (d *RTMIDIInputDevice) String() string { return d.in.String() }
