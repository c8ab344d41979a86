package models

// BuildOptions tune one context build. Zero values fall back to configured
// defaults inside the builder.
type BuildOptions struct {
	CourseID      string   `json:"courseID,omitempty"`
	UserID        string   `json:"userID,omitempty"`
	MaxMaterials  int      `json:"maxMaterials,omitempty"`
	MinRelevance  float64  `json:"minRelevance,omitempty"`
	MaxTokens     int      `json:"maxTokens,omitempty"`
	PriorityTypes []string `json:"priorityTypes,omitempty"`
	DisableCache  bool     `json:"disableCache,omitempty"`
}
