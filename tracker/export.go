package tracker

import (
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/vsariola/trackplay"
)

type ExportOptions struct {
	Format trackplay.ExportFormat
	// Path of the output file. If empty, the name is generated from
	// PlayerConfig.ExportTemplate.
	Path     string
	Progress trackplay.ProgressFunc
}

const exportChunkFrames = 4096

// Export renders the whole song from the beginning into a file. Playback is
// paused while exporting; the position and the pause state are restored
// afterwards, whether the export succeeded or not.
func (p *Player) Export(opts ExportOptions) (err error) {
	if !trackplay.Supported(opts.Format) {
		return fmt.Errorf("%w: %s", trackplay.ErrUnsupportedFormat, trackplay.FormatName(opts.Format))
	}
	if opts.Path == "" {
		opts.Path, err = ExportFileName(p.config.ExportTemplate, p.meta, opts.Format)
		if err != nil {
			return err
		}
	}
	log := logrus.WithFields(logrus.Fields{
		"function": "Export",
		"path":     opts.Path,
		"format":   opts.Format.String(),
	})
	log.Info("Export started")

	p.mu.Lock()
	wasPaused := p.paused
	p.paused = true
	p.state.Paused = true
	volume, effect := p.volume, p.effect
	p.mu.Unlock()

	p.decoderMu.Lock()
	saved := p.decoder.Position().Seconds
	sampleRate := p.decoder.SampleRate()
	err = p.decoder.SetSeconds(0)
	p.decoderMu.Unlock()

	defer func() {
		p.decoderMu.Lock()
		if serr := p.decoder.SetSeconds(saved); serr != nil {
			log.WithField("error", serr).Warn("Could not restore position after export")
		}
		p.decoderMu.Unlock()
		p.mu.Lock()
		p.paused = wasPaused
		p.state.Paused = wasPaused
		p.cond.Broadcast()
		p.mu.Unlock()
		p.refresh()
		switch {
		case trackplay.IsCancelled(err):
			log.Info("Export cancelled")
		case err != nil:
			log.WithField("error", err).Error("Export failed")
		default:
			log.Info("Export finished")
		}
	}()
	if err != nil {
		return fmt.Errorf("could not rewind for export: %w", err)
	}

	buffer, err := p.renderAll(sampleRate, volume, effect, opts.Progress)
	if err != nil {
		return err
	}
	return trackplay.EncodeFile(opts.Path, buffer, sampleRate, opts.Format, opts.Progress)
}

func (p *Player) renderAll(sampleRate int, volume float64, effect Effect, progress trackplay.ProgressFunc) (trackplay.AudioBuffer, error) {
	total := int(p.meta.Duration * float64(sampleRate))
	fx := NewEffects(sampleRate)
	chunk := make(trackplay.AudioBuffer, exportChunkFrames)
	pcm := make([]float32, 0, total*2)
	var tmp []float32
	done := 0
	for done < total {
		n := min(exportChunkFrames, total-done)
		p.decoderMu.Lock()
		r, err := chunk[:n].Fill(p.decoder)
		p.decoderMu.Unlock()
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("could not render: %w", err)
		}
		if r <= 0 {
			break
		}
		tmp = chunk[:r].Interleave(tmp)
		p.process(tmp, r, volume, effect, fx)
		pcm = append(pcm, tmp...)
		done += r
		if progress != nil && !progress(done, total) {
			return nil, trackplay.ErrExportCancelled
		}
	}
	return trackplay.Deinterleave(pcm, nil), nil
}
