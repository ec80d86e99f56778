package trackplay

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

type (
	ExportFormat int

	// ProgressFunc is called with the number of frames done so far and the
	// total. Returning false cancels the operation.
	ProgressFunc func(done, total int) bool
)

const (
	FormatWAV      ExportFormat = iota // 16-bit PCM wave
	FormatFloatWAV                     // 32-bit IEEE float wave
	FormatRaw                          // headerless 16-bit little endian
	FormatRawFloat                     // headerless 32-bit float little endian
	FormatMP3
	FormatFLAC
	NumExportFormats
)

const encodeChunkFrames = 4096

var formatInfo = [NumExportFormats]struct {
	name, ext, key string
	supported      bool
}{
	FormatWAV:      {"WAV (PCM)", ".wav", "wav", true},
	FormatFloatWAV: {"WAV (float)", ".wav", "wav32", true},
	FormatRaw:      {"Raw (int16)", ".raw", "raw", true},
	FormatRawFloat: {"Raw (float)", ".raw", "raw32", true},
	FormatMP3:      {"MP3 (Lossy)", ".mp3", "mp3", false},
	FormatFLAC:     {"FLAC (Lossless)", ".flac", "flac", false},
}

func (f ExportFormat) valid() bool { return f >= 0 && f < NumExportFormats }

// Supported reports whether the format can be written by Encode.
func Supported(f ExportFormat) bool { return f.valid() && formatInfo[f].supported }

func Extension(f ExportFormat) string {
	if !f.valid() {
		return ".wav"
	}
	return formatInfo[f].ext
}

func FormatName(f ExportFormat) string {
	if !f.valid() {
		return "Unknown"
	}
	return formatInfo[f].name
}

func (f ExportFormat) String() string {
	if !f.valid() {
		return fmt.Sprintf("ExportFormat(%d)", int(f))
	}
	return formatInfo[f].key
}

// ParseExportFormat accepts the short names printed by ExportFormat.String,
// case insensitively.
func ParseExportFormat(s string) (ExportFormat, error) {
	s = strings.ToLower(strings.TrimPrefix(s, "."))
	for i, info := range formatInfo {
		if info.key == s {
			return ExportFormat(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// EncodeFile writes the buffer into a new file at path. If encoding fails or
// is cancelled, the partial file is removed.
func EncodeFile(path string, buffer AudioBuffer, sampleRate int, format ExportFormat, progress ProgressFunc) (err error) {
	if !Supported(format) {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, FormatName(format))
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("could not create output file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("could not close output file: %w", cerr)
		}
		if err != nil {
			os.Remove(path)
		}
	}()
	return Encode(f, buffer, sampleRate, format, progress)
}

// Encode writes the buffer into w in the given format. progress may be nil.
func Encode(w io.WriteSeeker, buffer AudioBuffer, sampleRate int, format ExportFormat, progress ProgressFunc) error {
	if !Supported(format) {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, FormatName(format))
	}
	switch format {
	case FormatWAV:
		return encodePCM16Wav(w, buffer, sampleRate, progress)
	case FormatFloatWAV:
		bw := bufio.NewWriter(w)
		var header bytes.Buffer
		wavHeader(len(buffer)*2, false, sampleRate, &header)
		if _, err := bw.Write(header.Bytes()); err != nil {
			return fmt.Errorf("could not write wav header: %w", err)
		}
		if err := encodeRaw(bw, buffer, false, progress); err != nil {
			return err
		}
		return bw.Flush()
	case FormatRaw, FormatRawFloat:
		bw := bufio.NewWriter(w)
		if err := encodeRaw(bw, buffer, format == FormatRaw, progress); err != nil {
			return err
		}
		return bw.Flush()
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedFormat, FormatName(format))
}

func encodePCM16Wav(w io.WriteSeeker, buffer AudioBuffer, sampleRate int, progress ProgressFunc) error {
	enc := wav.NewEncoder(w, sampleRate, 16, 2, 1)
	intBuf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: 2,
			SampleRate:  sampleRate,
		},
		Data:           make([]int, 0, encodeChunkFrames*2),
		SourceBitDepth: 16,
	}
	for start := 0; start < len(buffer); start += encodeChunkFrames {
		end := min(start+encodeChunkFrames, len(buffer))
		intBuf.Data = intBuf.Data[:0]
		for _, s := range buffer[start:end] {
			intBuf.Data = append(intBuf.Data, int(FloatToInt16(s[0])), int(FloatToInt16(s[1])))
		}
		if err := enc.Write(intBuf); err != nil {
			return fmt.Errorf("could not write wav data: %w", err)
		}
		if progress != nil && !progress(end, len(buffer)) {
			return ErrExportCancelled
		}
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("could not finalize wav file: %w", err)
	}
	return nil
}

func encodeRaw(w io.Writer, buffer AudioBuffer, pcm16 bool, progress ProgressFunc) error {
	var tmp []float32
	for start := 0; start < len(buffer); start += encodeChunkFrames {
		end := min(start+encodeChunkFrames, len(buffer))
		tmp = buffer[start:end].Interleave(tmp)
		if err := rawToWriter(tmp, pcm16, w); err != nil {
			return err
		}
		if progress != nil && !progress(end, len(buffer)) {
			return ErrExportCancelled
		}
	}
	return nil
}

// FloatToInt16 clamps the sample to [-1, 1] and scales the positive half by
// 32767 and the negative half by 32768.
func FloatToInt16(v float32) int16 {
	if v != v { // NaN
		return 0
	}
	v = max(-1, min(1, v))
	if v >= 0 {
		return int16(v * math.MaxInt16)
	}
	return int16(v * -math.MinInt16)
}

func rawToWriter(data []float32, pcm16 bool, w io.Writer) error {
	var err error
	if pcm16 {
		int16data := make([]int16, len(data))
		for i, v := range data {
			int16data[i] = FloatToInt16(v)
		}
		err = binary.Write(w, binary.LittleEndian, int16data)
	} else {
		err = binary.Write(w, binary.LittleEndian, data)
	}
	if err != nil {
		return fmt.Errorf("could not binary write data: %w", err)
	}
	return nil
}

// wavHeader writes a wave header for either float32 or int16 .wav file into the
// bytes.buffer. bufferLength is the number of samples (L + R counted
// separately), so the length in stereo frames is bufferLength / 2.
func wavHeader(bufferLength int, pcm16 bool, sampleRate int, buf *bytes.Buffer) {
	// Refer to: http://www-mmsp.ece.mcgill.ca/Documents/AudioFormats/WAVE/WAVE.html
	numChannels := 2
	var bytesPerSample, chunkSize, fmtChunkSize, waveFormat int
	var factChunk bool
	if pcm16 {
		bytesPerSample = 2
		chunkSize = 36 + bytesPerSample*bufferLength
		fmtChunkSize = 16
		waveFormat = 1 // PCM
	} else {
		bytesPerSample = 4
		chunkSize = 50 + bytesPerSample*bufferLength
		fmtChunkSize = 18
		waveFormat = 3 // IEEE float
		factChunk = true
	}
	buf.Write([]byte("RIFF"))
	binary.Write(buf, binary.LittleEndian, uint32(chunkSize))
	buf.Write([]byte("WAVE"))
	buf.Write([]byte("fmt "))
	binary.Write(buf, binary.LittleEndian, uint32(fmtChunkSize))
	binary.Write(buf, binary.LittleEndian, uint16(waveFormat))
	binary.Write(buf, binary.LittleEndian, uint16(numChannels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*numChannels*bytesPerSample)) // avgBytesPerSec
	binary.Write(buf, binary.LittleEndian, uint16(numChannels*bytesPerSample))            // blockAlign
	binary.Write(buf, binary.LittleEndian, uint16(8*bytesPerSample))                      // bits per sample
	if fmtChunkSize > 16 {
		binary.Write(buf, binary.LittleEndian, uint16(0)) // size of extension
	}
	if factChunk {
		binary.Write(buf, binary.LittleEndian, []byte("fact"))
		binary.Write(buf, binary.LittleEndian, uint32(4))              // fact chunk size
		binary.Write(buf, binary.LittleEndian, uint32(bufferLength/2)) // sample frames
	}
	buf.Write([]byte("data"))
	binary.Write(buf, binary.LittleEndian, uint32(bytesPerSample*bufferLength))
}

// IsCancelled reports whether err came from a cancelled progress callback.
func IsCancelled(err error) bool { return errors.Is(err, ErrExportCancelled) }
