package retrieval

import (
	"encoding/json"
	"fmt"
	"strings"

	"videoAsk/core"
)

// The bracket markers emitted here are a wire contract with the frontend:
// it parses [T: m:ss-m:ss] / [m:ss-m:ss] into timestamp chips and
// [F: id] / [id] into frame thumbnails, splitting the frame id on the
// literal "_frame_". Do not change the syntax without changing the
// frontend regexes in the same release.

// FormatTime renders seconds as m:ss, minutes without leading zero.
func FormatTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	m := int(seconds) / 60
	s := int(seconds) % 60
	return fmt.Sprintf("%d:%02d", m, s)
}

// FormatContext renders the single-video layout.
func FormatContext(bundle *core.EvidenceBundle) string {
	var b strings.Builder

	if len(bundle.Transcripts) > 0 {
		b.WriteString("Transcript:\n")
		for _, t := range bundle.Transcripts {
			fmt.Fprintf(&b, "[%s-%s] %s\n", FormatTime(t.Start), FormatTime(t.End), t.Text)
		}
	}

	if len(bundle.Frames) > 0 {
		b.WriteString("\nFrames:\n")
		for _, f := range bundle.Frames {
			fmt.Fprintf(&b, "[%s] %s\n", f.FrameID, f.Caption)
			writeControls(&b, f)
		}
	}

	return b.String()
}

// FormatContextMulti renders the multi-video layout: an optional user image
// block, then one block per video in first-appearance order (transcripts
// scanned before frames). Videos with a single modality omit the other
// section.
func FormatContextMulti(bundle *core.EvidenceBundle) string {
	var b strings.Builder

	if bundle.ImageCaption != "" {
		b.WriteString("**User Provided Image Context:**\n")
		b.WriteString(bundle.ImageCaption)
		b.WriteString("\n\n")
	}

	for _, g := range groupByVideo(bundle) {
		fmt.Fprintf(&b, "**Video: \"%s\"**\n", g.name)

		if len(g.transcripts) > 0 {
			b.WriteString("Transcript:\n")
			for _, t := range g.transcripts {
				fmt.Fprintf(&b, "[T: %s-%s] %s\n", FormatTime(t.Start), FormatTime(t.End), t.Text)
			}
		}

		if len(g.frames) > 0 {
			b.WriteString("\nFrames:\n")
			for _, f := range g.frames {
				fmt.Fprintf(&b, "[F: %s] %s\n", f.FrameID, f.Caption)
				writeControls(&b, f)
			}
		}

		b.WriteString("\n")
	}

	return b.String()
}

func writeControls(b *strings.Builder, f core.FrameHit) {
	if f.Entities == nil || len(f.Entities.Controls) == 0 {
		return
	}
	raw, err := json.Marshal(f.Entities.Controls)
	if err != nil {
		return
	}
	fmt.Fprintf(b, "  Controls: %s\n", raw)
}

type videoGroup struct {
	videoID     string
	name        string
	transcripts []core.TranscriptHit
	frames      []core.FrameHit
}

// groupByVideo is a two-pass transform: first pass collects hits into
// per-video groups preserving first-seen order, second pass (the caller)
// renders. Grouping never depends on map iteration order.
func groupByVideo(bundle *core.EvidenceBundle) []*videoGroup {
	byID := make(map[string]*videoGroup)
	var ordered []*videoGroup

	group := func(videoID, name string) *videoGroup {
		g, ok := byID[videoID]
		if !ok {
			g = &videoGroup{videoID: videoID, name: videoID}
			byID[videoID] = g
			ordered = append(ordered, g)
		}
		if g.name == g.videoID && name != "" {
			g.name = name
		}
		return g
	}

	for _, t := range bundle.Transcripts {
		g := group(t.VideoID, t.VideoName)
		g.transcripts = append(g.transcripts, t)
	}
	for _, f := range bundle.Frames {
		g := group(f.VideoID, f.VideoName)
		g.frames = append(g.frames, f)
	}

	return ordered
}
