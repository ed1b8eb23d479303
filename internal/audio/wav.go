package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// Buffer holds decoded mono PCM16 audio.
type Buffer struct {
	SampleRate int
	Data       []byte // little-endian signed 16-bit samples
}

const bytesPerSample = 2

// Duration returns the buffer length in seconds.
func (b *Buffer) Duration() float64 {
	if b.SampleRate == 0 {
		return 0
	}
	return float64(len(b.Data)) / float64(b.SampleRate*bytesPerSample)
}

// Slice returns the samples covering [start, end) seconds, clamped to the
// buffer bounds. The returned buffer shares no storage with the receiver.
func (b *Buffer) Slice(start, end float64) *Buffer {
	lo := int(start*float64(b.SampleRate)) * bytesPerSample
	hi := int(end*float64(b.SampleRate)) * bytesPerSample
	if lo < 0 {
		lo = 0
	}
	if hi > len(b.Data) {
		hi = len(b.Data)
	}
	if lo > hi {
		lo = hi
	}
	out := make([]byte, hi-lo)
	copy(out, b.Data[lo:hi])
	return &Buffer{SampleRate: b.SampleRate, Data: out}
}

// PadSilence returns a copy of the buffer with ms milliseconds of silence
// prepended and appended.
func (b *Buffer) PadSilence(ms int) *Buffer {
	pad := make([]byte, b.SampleRate*ms/1000*bytesPerSample)
	out := make([]byte, 0, len(pad)*2+len(b.Data))
	out = append(out, pad...)
	out = append(out, b.Data...)
	out = append(out, pad...)
	return &Buffer{SampleRate: b.SampleRate, Data: out}
}

// EncodeWAV writes the buffer as a canonical PCM16 mono WAV stream.
func EncodeWAV(w io.Writer, b *Buffer) error {
	dataLen := uint32(len(b.Data))
	var hdr [44]byte
	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], 36+dataLen)
	copy(hdr[8:12], "WAVE")
	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16) // PCM fmt chunk size
	binary.LittleEndian.PutUint16(hdr[20:22], 1)  // PCM
	binary.LittleEndian.PutUint16(hdr[22:24], 1)  // mono
	binary.LittleEndian.PutUint32(hdr[24:28], uint32(b.SampleRate))
	binary.LittleEndian.PutUint32(hdr[28:32], uint32(b.SampleRate*bytesPerSample))
	binary.LittleEndian.PutUint16(hdr[32:34], bytesPerSample)
	binary.LittleEndian.PutUint16(hdr[34:36], 16) // bits per sample
	copy(hdr[36:40], "data")
	binary.LittleEndian.PutUint32(hdr[40:44], dataLen)

	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := w.Write(b.Data); err != nil {
		return fmt.Errorf("write samples: %w", err)
	}
	return nil
}

// DecodeWAV reads a PCM16 mono WAV stream. Only the canonical format our
// own ffmpeg invocation produces is supported; compressed or multi-channel
// files are rejected.
func DecodeWAV(r io.Reader) (*Buffer, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return nil, fmt.Errorf("read riff header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, fmt.Errorf("not a WAV stream")
	}

	var (
		sampleRate int
		data       []byte
		sawFmt     bool
	)
	for {
		var chunk [8]byte
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return nil, fmt.Errorf("read chunk header: %w", err)
		}
		id := string(chunk[0:4])
		size := binary.LittleEndian.Uint32(chunk[4:8])

		switch id {
		case "fmt ":
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, fmt.Errorf("read fmt chunk: %w", err)
			}
			format := binary.LittleEndian.Uint16(body[0:2])
			channels := binary.LittleEndian.Uint16(body[2:4])
			bits := binary.LittleEndian.Uint16(body[14:16])
			if format != 1 || channels != 1 || bits != 16 {
				return nil, fmt.Errorf("unsupported WAV format: fmt=%d channels=%d bits=%d", format, channels, bits)
			}
			sampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			sawFmt = true
		case "data":
			data = make([]byte, size)
			if _, err := io.ReadFull(r, data); err != nil {
				return nil, fmt.Errorf("read data chunk: %w", err)
			}
		default:
			// Skip LIST/INFO and other metadata chunks.
			if _, err := io.CopyN(io.Discard, r, int64(size)); err != nil {
				return nil, fmt.Errorf("skip %q chunk: %w", id, err)
			}
		}
		// Chunk bodies are word-aligned.
		if size%2 == 1 {
			io.CopyN(io.Discard, r, 1)
		}
	}

	if !sawFmt || data == nil {
		return nil, fmt.Errorf("WAV stream missing fmt or data chunk")
	}
	return &Buffer{SampleRate: sampleRate, Data: data}, nil
}

// ReadFile decodes a WAV file from disk.
func ReadFile(path string) (*Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return DecodeWAV(f)
}

// WriteFile encodes the buffer to a WAV file on disk.
func WriteFile(path string, b *Buffer) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := EncodeWAV(f, b); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
