package ingestion

import "strings"

// ChunkBounds configures the char/duration bounds a youtube or youtube_kg
// transcript is packed into.
type ChunkBounds struct {
	MinChars        int
	MaxChars        int
	MinDurationSec  float64
	MaxDurationSec  float64
	GapSoftSplitSec float64
}

// DefaultChunkBounds matches the defaults: 350-1200 chars, 25-75s, soft
// split past a 2.5s caption gap.
var DefaultChunkBounds = ChunkBounds{
	MinChars:        350,
	MaxChars:        1200,
	MinDurationSec:  25,
	MaxDurationSec:  75,
	GapSoftSplitSec: 2.5,
}

// boundaryCuePhrases mark a likely topic change in a travel narration and
// force a hard split once the current chunk has already cleared the
// minimum size. Not specified verbatim upstream; chosen to fit the
// travel-vlog register this pipeline ingests.
var boundaryCuePhrases = []string{
	"next up", "next stop", "moving on to", "let's head to", "now let's go to",
	"first stop", "last stop", "once you arrive", "before we go", "let's talk about",
}

func hasBoundaryCue(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range boundaryCuePhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// ChunkSegments packs timestamped segments into chunks respecting bounds.
// A chunk ends (a) on a boundary-cue phrase once it has cleared MinChars,
// (b) on a caption gap wider than GapSoftSplitSec once it has cleared
// MinChars, or (c) hard, regardless of minimums, once adding the next
// segment would exceed MaxChars or MaxDurationSec.
func ChunkSegments(videoID string, segments []TranscriptSegment, bounds ChunkBounds) []Chunk {
	var chunks []Chunk
	var cur []TranscriptSegment
	curChars := 0

	flush := func() {
		if len(cur) == 0 {
			return
		}
		start := cur[0].Start
		last := cur[len(cur)-1]
		end := last.Start + last.Duration
		texts := make([]string, len(cur))
		for i, s := range cur {
			texts[i] = s.Text
		}
		text := strings.TrimSpace(strings.Join(texts, " "))
		chunks = append(chunks, Chunk{
			ID:       CardID(videoID, start, end, text),
			Index:    len(chunks),
			StartSec: start,
			EndSec:   end,
			Text:     text,
		})
		cur = nil
		curChars = 0
	}

	var prevEnd float64
	for _, seg := range segments {
		if len(cur) > 0 {
			gap := seg.Start - prevEnd
			duration := seg.Start + seg.Duration - cur[0].Start
			clearedMin := curChars >= bounds.MinChars
			switch {
			case clearedMin && hasBoundaryCue(seg.Text):
				flush()
			case clearedMin && gap > bounds.GapSoftSplitSec:
				flush()
			case curChars+len(seg.Text)+1 > bounds.MaxChars:
				flush()
			case duration > bounds.MaxDurationSec:
				flush()
			}
		}
		cur = append(cur, seg)
		curChars += len(seg.Text) + 1
		prevEnd = seg.Start + seg.Duration
	}
	flush()

	return chunks
}
