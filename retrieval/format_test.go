package retrieval

import (
	"regexp"
	"strings"
	"testing"

	"videoAsk/core"
)

func TestFormatTime(t *testing.T) {
	cases := []struct {
		seconds float64
		want    string
	}{
		{83.4, "1:23"},
		{5.9, "0:05"},
		{600, "10:00"},
		{0, "0:00"},
		{-3, "0:00"},
		{3599.9, "59:59"},
		{3600, "60:00"},
	}
	for _, c := range cases {
		if got := FormatTime(c.seconds); got != c.want {
			t.Errorf("FormatTime(%v) = %q, want %q", c.seconds, got, c.want)
		}
	}
}

func TestFormatContextSingleVideo(t *testing.T) {
	bundle := &core.EvidenceBundle{
		Transcripts: []core.TranscriptHit{
			{Text: "press the red button", Start: 75, End: 98, VideoID: "v1", Similarity: 0.9},
		},
		Frames: []core.FrameHit{
			{
				FrameID: "abc123_frame_007",
				Caption: "a control panel with a red button",
				VideoID: "v1",
				Entities: &core.VisionAnalysis{
					Controls: []core.ControlItem{{Label: "Power", Kind: "button", Reading: "off", Units: ""}},
				},
				Similarity: 0.8,
			},
		},
	}

	got := FormatContext(bundle)

	if !strings.Contains(got, "[1:15-1:38] press the red button") {
		t.Errorf("missing timestamp marker line, got:\n%s", got)
	}
	if !strings.Contains(got, "[abc123_frame_007] a control panel with a red button") {
		t.Errorf("missing frame marker line, got:\n%s", got)
	}
	if !strings.Contains(got, `  Controls: [{"label":"Power","kind":"button","reading":"off","units":""}]`) {
		t.Errorf("missing controls line, got:\n%s", got)
	}
	if strings.Contains(got, "[T: ") || strings.Contains(got, "[F: ") {
		t.Errorf("single-video layout must not use T:/F: prefixes, got:\n%s", got)
	}

	// 前端用此正则解析时间戳标记，必须能还原
	re := regexp.MustCompile(`\[(\d+:\d+)-(\d+:\d+)\]`)
	m := re.FindStringSubmatch(got)
	if m == nil {
		t.Fatalf("renderer regex did not match context:\n%s", got)
	}
	if m[1] != "1:15" || m[2] != "1:38" {
		t.Errorf("round trip recovered (%q, %q), want (1:15, 1:38)", m[1], m[2])
	}
}

func TestFormatContextSingleVideoOmitsEmptySections(t *testing.T) {
	bundle := &core.EvidenceBundle{
		Frames: []core.FrameHit{{FrameID: "v1_frame_001", Caption: "a whiteboard", VideoID: "v1"}},
	}
	got := FormatContext(bundle)
	if strings.Contains(got, "Transcript:") {
		t.Errorf("empty transcript section must be omitted, got:\n%s", got)
	}
	if !strings.Contains(got, "Frames:\n[v1_frame_001] a whiteboard") {
		t.Errorf("missing frames section, got:\n%s", got)
	}

	if got := FormatContext(&core.EvidenceBundle{}); got != "" {
		t.Errorf("empty bundle must format to empty string, got %q", got)
	}
}

func TestFormatContextSingleVideoNoControlsLine(t *testing.T) {
	bundle := &core.EvidenceBundle{
		Frames: []core.FrameHit{
			{FrameID: "v1_frame_001", Caption: "no controls here", VideoID: "v1", Entities: &core.VisionAnalysis{}},
		},
	}
	if got := FormatContext(bundle); strings.Contains(got, "Controls:") {
		t.Errorf("empty controls must not emit a Controls line, got:\n%s", got)
	}
}

func TestFormatContextMultiGrouping(t *testing.T) {
	bundle := &core.EvidenceBundle{
		Transcripts: []core.TranscriptHit{
			{Text: "welcome to part one", Start: 0, End: 12, VideoID: "v1", VideoName: "intro.mp4", Similarity: 0.9},
		},
		Frames: []core.FrameHit{
			{FrameID: "v2_frame_003", Caption: "a gauge reading 40 psi", VideoID: "v2", VideoName: "demo.mp4", Similarity: 0.7},
		},
	}

	got := FormatContextMulti(bundle)

	v1Block := `**Video: "intro.mp4"**`
	v2Block := `**Video: "demo.mp4"**`
	i1 := strings.Index(got, v1Block)
	i2 := strings.Index(got, v2Block)
	if i1 < 0 || i2 < 0 {
		t.Fatalf("missing video blocks, got:\n%s", got)
	}
	if i1 > i2 {
		t.Errorf("videos must appear in first-seen order (transcripts before frames), got:\n%s", got)
	}

	v1Section := got[i1:i2]
	if !strings.Contains(v1Section, "[T: 0:00-0:12] welcome to part one") {
		t.Errorf("v1 block missing T: marker, got:\n%s", v1Section)
	}
	if strings.Contains(v1Section, "Frames:") {
		t.Errorf("v1 has no frame hits, Frames section must be omitted, got:\n%s", v1Section)
	}

	v2Section := got[i2:]
	if !strings.Contains(v2Section, "[F: v2_frame_003] a gauge reading 40 psi") {
		t.Errorf("v2 block missing F: marker, got:\n%s", v2Section)
	}
	if strings.Contains(v2Section, "Transcript:") {
		t.Errorf("v2 has no transcript hits, Transcript section must be omitted, got:\n%s", v2Section)
	}
}

func TestFormatContextMultiImageCaption(t *testing.T) {
	bundle := &core.EvidenceBundle{
		Transcripts:  []core.TranscriptHit{{Text: "hello", Start: 1, End: 2, VideoID: "v1", VideoName: "a.mp4"}},
		ImageCaption: "a photo of a thermostat set to 21C",
	}
	got := FormatContextMulti(bundle)
	want := "**User Provided Image Context:**\na photo of a thermostat set to 21C\n\n"
	if !strings.HasPrefix(got, want) {
		t.Errorf("image context block malformed, got:\n%s", got)
	}

	bundle.ImageCaption = ""
	if got := FormatContextMulti(bundle); strings.Contains(got, "User Provided Image Context") {
		t.Errorf("no image caption supplied, block must be absent, got:\n%s", got)
	}
}

func TestFormatContextMultiNameFallsBackToVideoID(t *testing.T) {
	bundle := &core.EvidenceBundle{
		Transcripts: []core.TranscriptHit{{Text: "x", VideoID: "v9"}},
	}
	got := FormatContextMulti(bundle)
	if !strings.Contains(got, `**Video: "v9"**`) {
		t.Errorf("expected video id fallback for display name, got:\n%s", got)
	}
}

func TestFrameReferenceSplit(t *testing.T) {
	// 前端按字面 "_frame_" 切分 frame_id，还原 video_id 和帧序号
	frameID := "abc123_frame_007"
	parts := strings.SplitN(frameID, "_frame_", 2)
	if len(parts) != 2 || parts[0] != "abc123" || parts[1] != "007" {
		t.Errorf("frame reference did not split cleanly: %v", parts)
	}

	re := regexp.MustCompile(`^(.+)_frame_(\d+)$`)
	m := re.FindStringSubmatch(frameID)
	if m == nil || m[1] != "abc123" || m[2] != "007" {
		t.Errorf("renderer frame regex failed on %q: %v", frameID, m)
	}
}
