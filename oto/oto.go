// Package oto plays audio through github.com/ebitengine/oto/v3.
package oto

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/sirupsen/logrus"
	"github.com/vsariola/trackplay"
)

type (
	OtoContext struct {
		context    *oto.Context
		sampleRate int
	}

	// OtoOutput feeds an oto.Player through a pipe, so that WriteAudio blocks
	// until the device has consumed the previous data.
	OtoOutput struct {
		mu        sync.Mutex
		player    *oto.Player
		reader    *io.PipeReader
		writer    *io.PipeWriter
		tmpBuffer []byte
		closed    bool
	}
)

// NewContext creates the oto context, waiting until the device is ready.
// bufferFrames sets the latency of the device; 0 uses the default of oto.
func NewContext(sampleRate, bufferFrames int) (*OtoContext, error) {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 2,
		Format:       oto.FormatFloat32LE,
	}
	if bufferFrames > 0 && sampleRate > 0 {
		op.BufferSize = time.Duration(bufferFrames) * time.Second / time.Duration(sampleRate)
	}
	context, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("cannot create oto context: %w", err)
	}
	<-ready
	logrus.WithFields(logrus.Fields{
		"function":   "NewContext",
		"sampleRate": sampleRate,
		"buffer":     bufferFrames,
	}).Debug("Audio device ready")
	return &OtoContext{context: context, sampleRate: sampleRate}, nil
}

func (c *OtoContext) SampleRate() int { return c.sampleRate }

func (c *OtoContext) Output() trackplay.AudioOutput {
	r, w := io.Pipe()
	return &OtoOutput{
		player: c.context.NewPlayer(r),
		reader: r,
		writer: w,
	}
}

func (c *OtoContext) Close() error {
	if err := c.context.Suspend(); err != nil {
		return fmt.Errorf("cannot suspend oto context: %w", err)
	}
	return nil
}

func (o *OtoOutput) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return io.ErrClosedPipe
	}
	o.player.Play()
	return nil
}

func (o *OtoOutput) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.closed {
		o.player.Pause()
	}
	return nil
}

// WriteAudio blocks until the player has read the whole buffer.
func (o *OtoOutput) WriteAudio(floatBuffer []float32) error {
	// we reuse the old capacity tmpBuffer by setting its length to zero. then,
	// we save the tmpBuffer so we can reuse it next time
	o.tmpBuffer = FloatBufferToFloat32LE(floatBuffer, o.tmpBuffer[:0])
	if _, err := o.writer.Write(o.tmpBuffer); err != nil {
		return fmt.Errorf("cannot write to player: %w", err)
	}
	if err := o.player.Err(); err != nil {
		return fmt.Errorf("oto player failed: %w", err)
	}
	return nil
}

// Close disposes of resources
func (o *OtoOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true
	o.writer.Close()
	if err := o.player.Close(); err != nil {
		return fmt.Errorf("cannot close oto player: %w", err)
	}
	return nil
}
