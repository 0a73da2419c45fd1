package core

// ========== 检索数据结构 ==========

// TranscriptHit 语音转写片段的检索命中
type TranscriptHit struct {
	ID         string  `json:"id"`
	Text       string  `json:"text"`
	Start      float64 `json:"t_start"`
	End        float64 `json:"t_end"`
	VideoID    string  `json:"video_id"`
	VideoName  string  `json:"original_name"`
	Similarity float64 `json:"similarity"`
}

// FrameHit 帧描述的检索命中
// FrameID 格式为 {video_id}_frame_{nnn}，前端靠它定位缩略图
type FrameHit struct {
	ID         string          `json:"id"`
	FrameID    string          `json:"frame_id"`
	Caption    string          `json:"caption"`
	Entities   *VisionAnalysis `json:"entities,omitempty"`
	VideoID    string          `json:"video_id"`
	VideoName  string          `json:"original_name"`
	Similarity float64         `json:"similarity"`
}

// EvidenceBundle 一次检索调用的全部证据
// ImageCaption 为用户参考图的描述，未提供图片或视觉分析失败时为空
type EvidenceBundle struct {
	Transcripts  []TranscriptHit `json:"transcripts"`
	Frames       []FrameHit      `json:"frames"`
	ImageCaption string          `json:"image_caption,omitempty"`
}

// ========== 视觉分析结构 ==========

type ControlItem struct {
	Label   string `json:"label"`
	Kind    string `json:"kind"`
	Reading string `json:"reading"`
	Units   string `json:"units"`
}

type TextOnScreen struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

type VisionAnalysis struct {
	Caption      string         `json:"caption"`
	Controls     []ControlItem  `json:"controls"`
	TextOnScreen []TextOnScreen `json:"text_on_screen"`
}

// ========== 请求和响应结构 ==========

type AskRequest struct {
	Question  string   `json:"question"`
	VideoIDs  []string `json:"video_ids"`
	ImagePath string   `json:"image_path,omitempty"`
	TopK      int      `json:"top_k,omitempty"`
}

type AskResponse struct {
	Question    string          `json:"question"`
	Answer      string          `json:"answer"`
	Context     string          `json:"context"`
	Transcripts []TranscriptHit `json:"transcripts"`
	Frames      []FrameHit      `json:"frames"`
}
