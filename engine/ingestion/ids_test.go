package ingestion

import "testing"

func TestVideoIDDeterministic(t *testing.T) {
	a := VideoID("https://youtube.com/watch?v=abc123")
	b := VideoID("https://youtube.com/watch?v=abc123")
	if a != b {
		t.Errorf("expected identical video ID for identical URL, got %s vs %s", a, b)
	}
	if c := VideoID("https://youtube.com/watch?v=xyz789"); c == a {
		t.Errorf("expected different video IDs for different URLs")
	}
}

func TestCardIDDeterministicAndSensitiveToInputs(t *testing.T) {
	videoID := VideoID("https://youtube.com/watch?v=abc123")
	a := CardID(videoID, 0, 30, "visit the old town square")
	b := CardID(videoID, 0, 30, "visit the old town square")
	if a != b {
		t.Errorf("expected identical card ID for identical inputs, got %s vs %s", a, b)
	}
	if c := CardID(videoID, 0, 30, "visit the cathedral instead"); c == a {
		t.Errorf("expected different card IDs for different text")
	}
	if c := CardID(videoID, 30, 60, "visit the old town square"); c == a {
		t.Errorf("expected different card IDs for different time ranges")
	}
}

func TestProductIDsDeterministic(t *testing.T) {
	link := "https://example.com/product/42"
	if ProductID(link) != ProductID(link) {
		t.Error("expected identical product ID for identical link")
	}
	a := ProductCardID(link, "is this waterproof?")
	b := ProductCardID(link, "is this waterproof?")
	if a != b {
		t.Error("expected identical product card ID for identical link+question")
	}
	if c := ProductCardID(link, "does this ship internationally?"); c == a {
		t.Error("expected different product card IDs for different questions on the same link")
	}
}
