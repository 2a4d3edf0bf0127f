package retrieval

// CategorySet is the fixed 18-item travel category allow-list that
// free-form model categories are filtered against.
var CategorySet = map[string]bool{
	"insulated_jacket": true, "warm_top": true, "rain_shell": true,
	"swimwear": true, "sun_hat": true, "sunglasses": true,
	"hiking_boots": true, "sandals": true, "daypack": true,
	"travel_adapter": true, "power_bank": true, "camera": true,
	"formal_wear": true, "casual_wear": true, "thermal_layer": true,
	"umbrella": true, "first_aid": true, "toiletries": true,
}

// SceneTypeSet is the fixed 11-value scene type allow-list.
var SceneTypeSet = map[string]bool{
	"beach": true, "mountain": true, "urban_street": true,
	"landmark": true, "museum": true, "restaurant": true,
	"hotel_room": true, "airport": true, "nature_trail": true,
	"theme_park": true, "market": true,
}

// CoerceSignals enforces §4.5's vision-service invariants on a raw,
// model-produced VisionSignals: categories filtered to the allow-list,
// scene type filtered to its allow-list, confidence clamped to [0,1], and
// at most three place candidates kept.
func CoerceSignals(raw VisionSignals, confidence float64) (VisionSignals, float64) {
	out := raw

	filtered := make([]string, 0, len(raw.Categories))
	for _, c := range raw.Categories {
		if CategorySet[c] {
			filtered = append(filtered, c)
		}
	}
	out.Categories = filtered

	filteredSuggested := make([]string, 0, len(raw.SuggestedCategoriesForProducts))
	for _, c := range raw.SuggestedCategoriesForProducts {
		if CategorySet[c] {
			filteredSuggested = append(filteredSuggested, c)
		}
	}
	out.SuggestedCategoriesForProducts = filteredSuggested

	if !SceneTypeSet[raw.SceneType] {
		out.SceneType = ""
	}

	if len(raw.PlaceCandidates) > 3 {
		out.PlaceCandidates = append([]string(nil), raw.PlaceCandidates[:3]...)
	}

	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return out, confidence
}
