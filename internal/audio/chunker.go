package audio

import (
	"fmt"
	"path/filepath"
)

// Chunk is a fixed-length contiguous slice of the source recording. Chunk i
// covers global time [i*L, min((i+1)*L, total)) where L is the chunk length.
type Chunk struct {
	Index    int
	Path     string
	Duration float64
}

// Split cuts a decoded recording into chunkSeconds-long chunks and writes
// each as a WAV file under dir. The final chunk may be shorter than the
// nominal length; together the chunks tile the recording exactly.
func Split(buf *Buffer, dir, basename string, chunkSeconds int) ([]Chunk, error) {
	if len(buf.Data) == 0 {
		return nil, fmt.Errorf("empty audio stream")
	}

	total := buf.Duration()
	length := float64(chunkSeconds)

	var chunks []Chunk
	for i := 0; float64(i)*length < total; i++ {
		start := float64(i) * length
		end := start + length
		if end > total {
			end = total
		}
		piece := buf.Slice(start, end)
		path := filepath.Join(dir, fmt.Sprintf("%s_chunk_%03d.wav", basename, i))
		if err := WriteFile(path, piece); err != nil {
			return nil, fmt.Errorf("write chunk %d: %w", i, err)
		}
		chunks = append(chunks, Chunk{Index: i, Path: path, Duration: piece.Duration()})
	}
	return chunks, nil
}
