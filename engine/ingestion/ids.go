package ingestion

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// VideoID derives a stable identifier for a video from its URL. Re-deriving
// from the same URL always yields the same ID, making the video upsert a
// no-op on re-ingestion.
func VideoID(videoURL string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(videoURL)).String()
}

// CardID derives a stable identifier for a video-grounded card from its
// video, time range, and text.
func CardID(videoID string, startSec, endSec float64, text string) string {
	sum := md5.Sum([]byte(text))
	hash := hex.EncodeToString(sum[:])[:10]
	key := fmt.Sprintf("%s:%g:%g:%s", videoID, startSec, endSec, hash)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String()
}

// ProductCardID derives a stable identifier for a product card from its
// link and the question it answers.
func ProductCardID(link, question string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(link+"::"+question)).String()
}

// ProductID derives a stable identifier for the underlying product record,
// shared by every card generated from questions about the same link.
func ProductID(link string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(link)).String()
}
