package model

// Clip is a suggested short-form cut of the source video.
type Clip struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Title     string `json:"title"`
	Reason    string `json:"reason"`
}

// ContentResult is the artifact bundle produced by the content generator.
type ContentResult struct {
	ViralClips  []Clip   `json:"viral_clips"`
	XThread     []string `json:"x_thread"`
	BlogArticle string   `json:"blog_article"`
}

// Clone returns a deep copy of the bundle.
func (r *ContentResult) Clone() *ContentResult {
	if r == nil {
		return nil
	}
	cp := &ContentResult{BlogArticle: r.BlogArticle}
	if r.ViralClips != nil {
		cp.ViralClips = append([]Clip{}, r.ViralClips...)
	}
	if r.XThread != nil {
		cp.XThread = append([]string{}, r.XThread...)
	}
	return cp
}

// Segment is a time-bounded slice of transcript text, offsets in seconds.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcript is the transcriber output.
type Transcript struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`
}
