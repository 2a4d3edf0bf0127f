package vectorstore

// Payload field sets for the four collections, names preserved from the
// schema-bootstrap fragments so a point's payload round-trips through any
// tool built against those names.

// VideoFields is the Video collection's payload shape.
type VideoFields struct {
	VideoID      string
	VideoURL     string
	Title        string
	Channel      string
	Lang         string
	PlaylistURL  string
	PlaylistName string
	CreatorTier  string
	UploadDate   string
}

func (f VideoFields) ToPayload() map[string]any {
	return map[string]any{
		"videoId":      f.VideoID,
		"videoUrl":     f.VideoURL,
		"title":        f.Title,
		"channel":      f.Channel,
		"lang":         f.Lang,
		"playlistUrl":  f.PlaylistURL,
		"playlistName": f.PlaylistName,
		"creatorTier":  f.CreatorTier,
		"uploadDate":   f.UploadDate,
	}
}

// RecommendationCardFields is the RecommendationCard collection's payload
// shape: one enriched, embedded chunk of evidence.
type RecommendationCardFields struct {
	Summary         string
	Text            string
	StartSec        float64
	EndSec          float64
	TimestampURL    string
	Lang            string
	Destination     string
	Categories      []string
	PrimaryCategory string
	Places          []string
	Signals         []string
	Confidence      float64
	Rationale       string
	VideoUploadDate string
	FromVideo       string // Video point ID this card was chunked from
}

func (f RecommendationCardFields) ToPayload() map[string]any {
	return map[string]any{
		"summary":         f.Summary,
		"text":            f.Text,
		"startSec":        f.StartSec,
		"endSec":          f.EndSec,
		"timestampUrl":    f.TimestampURL,
		"lang":            f.Lang,
		"destination":     f.Destination,
		"categories":      joinStrings(f.Categories),
		"primaryCategory": f.PrimaryCategory,
		"places":          joinStrings(f.Places),
		"signals":         joinStrings(f.Signals),
		"confidence":      f.Confidence,
		"rationale":       f.Rationale,
		"videoUploadDate": f.VideoUploadDate,
		"fromVideo":       f.FromVideo,
	}
}

// ProductFields is the Product collection's payload shape.
type ProductFields struct {
	Question    string
	Opportunity string
	Link        string
	Destination string
	Lang        string
	Market      string
	Merchant    string
	CreatedAt   string
}

func (f ProductFields) ToPayload() map[string]any {
	return map[string]any{
		"question":    f.Question,
		"opportunity": f.Opportunity,
		"link":        f.Link,
		"destination": f.Destination,
		"lang":        f.Lang,
		"market":      f.Market,
		"merchant":    f.Merchant,
		"createdAt":   f.CreatedAt,
	}
}

// ProductCardFields is the ProductCard collection's payload shape: one
// enriched, embedded commercial recommendation.
type ProductCardFields struct {
	Summary           string
	Question          string
	Opportunity       string
	Link              string
	Merchant          string
	Lang              string
	Market            string
	Destination       string
	PrimaryCategory   string
	Categories        []string
	Triggers          []string
	AffiliatePriority float64
	UserValue         float64
	Constraints       []string
	Confidence        float64
	Rationale         string
	FromProduct       string // Product point ID this card was derived from
	CreatedAt         string
}

func (f ProductCardFields) ToPayload() map[string]any {
	return map[string]any{
		"summary":           f.Summary,
		"question":          f.Question,
		"opportunity":       f.Opportunity,
		"link":              f.Link,
		"merchant":          f.Merchant,
		"lang":              f.Lang,
		"market":            f.Market,
		"destination":       f.Destination,
		"primaryCategory":   f.PrimaryCategory,
		"categories":        joinStrings(f.Categories),
		"triggers":          joinStrings(f.Triggers),
		"affiliatePriority": f.AffiliatePriority,
		"userValue":         f.UserValue,
		"constraints":       joinStrings(f.Constraints),
		"confidence":        f.Confidence,
		"rationale":         f.Rationale,
		"fromProduct":       f.FromProduct,
		"createdAt":         f.CreatedAt,
	}
}

// joinStrings flattens a string slice for storage as a payload field, since
// toPayload's conversion table has no list-typed case; consumers split on
// the separator below.
func joinStrings(ss []string) string {
	out := ""
	for i, s := range ss {
		if i > 0 {
			out += fieldListSep
		}
		out += s
	}
	return out
}

const fieldListSep = "\x1f"

// SplitStrings reverses joinStrings when reading a payload field back out.
func SplitStrings(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == fieldListSep[0] {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}
