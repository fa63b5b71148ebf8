package types

// RecommendationRequest describes a new dataset by its summary statistics.
type RecommendationRequest struct {
	DatasetHash  string      `json:"dataset_hash"`
	TargetType   string      `json:"target_type"`
	MetaFeatures FeatureList `json:"meta_features"`
}

// Normalize strips null bytes from the dataset hash in place.
func (r *RecommendationRequest) Normalize() {
	r.DatasetHash = NormalizeDatasetHash(r.DatasetHash)
}

// Validate checks the fields the recommender relies on.
func (r *RecommendationRequest) Validate() error {
	if r.DatasetHash == "" {
		return ErrDatasetHashEmpty
	}
	if r.TargetType == "" {
		return ErrTargetTypeEmpty
	}
	for _, f := range r.MetaFeatures {
		if f.Name == "" {
			return ErrMetaFeatureNameEmpty
		}
	}
	return nil
}
