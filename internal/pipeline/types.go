// Package pipeline is the chunked parallel transcription orchestrator: it
// splits a recording into fixed-length chunks, fans transcription jobs out
// to a remote inference backend, reassembles the results on a global
// timeline, retries failed chunks exactly once, and derives per-word audio
// clips from the merged transcript.
package pipeline

import (
	"math"
	"sort"
	"strings"
)

// Word is a single recognized word with global timestamps.
type Word struct {
	Text        string   `json:"word"`
	Start       float64  `json:"start"`
	End         float64  `json:"end"`
	Probability *float64 `json:"probability,omitempty"`
}

// Segment is a contiguous span of transcribed speech.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
	Words []Word  `json:"words,omitempty"`
}

// Transcript is the globally ordered sequence of segments covering the
// recording. Chunks that failed both rounds leave gaps.
type Transcript []Segment

// Text derives the full transcript text by joining segment texts with a
// single space in start-time order. It is never stored independently.
func (t Transcript) Text() string {
	parts := make([]string, len(t))
	for i, s := range t {
		parts[i] = s.Text
	}
	return strings.Join(parts, " ")
}

// Sort orders segments ascending by start time. Stable so equal-start
// segments keep their merge order.
func (t Transcript) Sort() {
	sort.SliceStable(t, func(i, j int) bool { return t[i].Start < t[j].Start })
}

// roundTime rounds a timestamp to hundredths of a second. This is a fixed
// precision contract: downstream consumers key audio slicing off these
// values.
func roundTime(v float64) float64 {
	return math.Round(v*100) / 100
}

// offsetSegments shifts chunk-local segment and word times into global time
// and applies the rounding contract.
func offsetSegments(segs []Segment, offset float64) []Segment {
	out := make([]Segment, len(segs))
	for i, s := range segs {
		ns := Segment{
			Start: roundTime(s.Start + offset),
			End:   roundTime(s.End + offset),
			Text:  s.Text,
		}
		if len(s.Words) > 0 {
			ns.Words = make([]Word, len(s.Words))
			for j, w := range s.Words {
				ns.Words[j] = Word{
					Text:        w.Text,
					Start:       roundTime(w.Start + offset),
					End:         roundTime(w.End + offset),
					Probability: w.Probability,
				}
			}
		}
		out[i] = ns
	}
	return out
}

// Result is the complete output of one pipeline run.
type Result struct {
	VideoURL            string            `json:"video_url"`
	VideoID             string            `json:"video_id"`
	Transcript          string            `json:"transcript"`
	CorrectedTranscript string            `json:"corrected_transcript"`
	AudioURLs           []string          `json:"audio_urls"`
	Segments            Transcript        `json:"segments"`
	DurationSeconds     float64           `json:"duration_seconds"`
	WordClips           map[string]string `json:"word_clips"`
}

// RunOptions describe one recording to process.
type RunOptions struct {
	VideoURL         string
	LanguageName     string   // human-readable target language name
	LanguageCode     string   // ISO 639-3 code, e.g. "jje"
	ContactLanguages []string // proxy language names, best match first
	Vocabulary       []string // known target-language words for correction
	SkipCorrection   bool
}
