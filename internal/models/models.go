package models

import "time"

// MaterialKind classifies a unit of course content.
type MaterialKind string

const (
	KindLecture  MaterialKind = "lecture"
	KindSlide    MaterialKind = "slide"
	KindDocument MaterialKind = "document"
)

// Material is an immutable unit of course content. The retrieval core only
// reads materials; authoring/ingestion lives with the content store.
type Material struct {
	ID        string            `json:"id"`
	CourseID  string            `json:"courseID"`
	Title     string            `json:"title"`
	Kind      MaterialKind      `json:"kind"`
	Text      string            `json:"text"`
	Keywords  []string          `json:"keywords,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Embedding [][]float32       `json:"-"` // precomputed chunk embeddings
	Created   time.Time         `json:"createdAt"`
	Updated   time.Time         `json:"updatedAt"`
}

// Course carries the display identity attached to built contexts.
type Course struct {
	ID   string `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// HitSource identifies which index produced a RetrievalHit.
type HitSource string

const (
	SourceLexical  HitSource = "lexical"
	SourceSemantic HitSource = "semantic"
)

// RetrievalHit is produced per query by one index; ranks start at 1.
type RetrievalHit struct {
	MaterialID string    `json:"materialID"`
	Rank       int       `json:"rank"`
	RawScore   float64   `json:"rawScore"`
	Source     HitSource `json:"source"`
}

// FusedResult is one candidate after reciprocal rank fusion.
type FusedResult struct {
	MaterialID string      `json:"materialID"`
	FusedScore float64     `json:"fusedScore"`
	Sources    []HitSource `json:"contributingSources"`
}

// RankedMaterial is the unit that enters a context document. SpanStart and
// SpanEnd are byte offsets into the source Material.Text and never cross its
// bounds.
type RankedMaterial struct {
	MaterialID      string   `json:"materialID"`
	Title           string   `json:"title,omitempty"`
	Score           float64  `json:"score"`
	Excerpt         string   `json:"excerpt"`
	MatchedKeywords []string `json:"matchedKeywords,omitempty"`
	SpanStart       int      `json:"spanStart"`
	SpanEnd         int      `json:"spanEnd"`
	Citation        int      `json:"citation"`
	Tokens          int      `json:"tokens"`
}

// LexicalFeatures describe the surface form of a query.
type LexicalFeatures struct {
	QueryLength    int     `json:"queryLength"`
	Specificity    float64 `json:"specificity"`
	HasCourseCode  bool    `json:"hasCourseCode"`
	HasWeekMarker  bool    `json:"hasWeekMarker"`
	TechnicalTerms int     `json:"technicalTerms"`
	GenericPronoun int     `json:"genericPronouns"`
}

// SemanticFeatures describe how well the query maps onto corpus vocabulary.
type SemanticFeatures struct {
	KeywordCoverage float64 `json:"keywordCoverage"`
	Ambiguity       float64 `json:"ambiguity"`
	TopicFocus      float64 `json:"topicFocus"`
}

// HistoricalFeatures summarize prior queries from the history store.
type HistoricalFeatures struct {
	PastSuccessRate float64 `json:"pastSuccessRate"`
	PriorSimilarity float64 `json:"priorSimilarity"`
	UserFamiliarity float64 `json:"userFamiliarity"`
	CacheHitProb    float64 `json:"cacheHitProbability"`
}

// FeatureBreakdown records sub-scores and the weights used to combine them.
type FeatureBreakdown struct {
	Lexical          LexicalFeatures    `json:"lexical"`
	Semantic         SemanticFeatures   `json:"semantic"`
	Historical       HistoricalFeatures `json:"historical"`
	LexicalScore     float64            `json:"lexicalScore"`
	SemanticScore    float64            `json:"semanticScore"`
	HistoricalScore  float64            `json:"historicalScore"`
	LexicalWeight    float64            `json:"lexicalWeight"`
	SemanticWeight   float64            `json:"semanticWeight"`
	HistoricalWeight float64            `json:"historicalWeight"`
}

// ConfidenceLevel bands a confidence score.
type ConfidenceLevel string

const (
	LevelHigh   ConfidenceLevel = "high"
	LevelMedium ConfidenceLevel = "medium"
	LevelLow    ConfidenceLevel = "low"
)

// ConfidenceScore is immutable once produced; Score stays within [0,100].
type ConfidenceScore struct {
	Score     float64          `json:"score"`
	Level     ConfidenceLevel  `json:"level"`
	Breakdown FeatureBreakdown `json:"breakdown"`
	Reasoning string           `json:"reasoning"`
	DecidedAt time.Time        `json:"decidedAt"`
}

// RoutingAction is the closed set of per-request retrieval decisions.
type RoutingAction string

const (
	ActionUseCache           RoutingAction = "use-cache"
	ActionRetrieveStandard   RoutingAction = "retrieve-standard"
	ActionRetrieveExpanded   RoutingAction = "retrieve-expanded"
	ActionRetrieveAggressive RoutingAction = "retrieve-aggressive"
)

// RoutingDecision is immutable and attached to the context it produced.
type RoutingDecision struct {
	ID         string          `json:"id"`
	Action     RoutingAction   `json:"action"`
	CacheKey   string          `json:"cacheKey"`
	Confidence ConfidenceScore `json:"confidenceScore"`
	Reasoning  string          `json:"reasoning"`
	DecidedAt  time.Time       `json:"decidedAt"`
}

// CourseContext is the externally consumed artifact of a build.
type CourseContext struct {
	CourseID        string           `json:"courseID"`
	CourseCode      string           `json:"courseCode,omitempty"`
	CourseName      string           `json:"courseName,omitempty"`
	Materials       []RankedMaterial `json:"materials"`
	ContextText     string           `json:"contextText"`
	EstimatedTokens int              `json:"estimatedTokens"`
	BuiltAt         time.Time        `json:"builtAt"`
	Routing         *RoutingDecision `json:"routing,omitempty"`
}

// QueryHistoryEntry feeds the confidence scorer's historical features.
type QueryHistoryEntry struct {
	UserID   string    `json:"userID,omitempty"`
	CourseID string    `json:"courseID,omitempty"`
	Query    string    `json:"query"`
	Answered bool      `json:"answered"`
	CacheHit bool      `json:"cacheHit"`
	AskedAt  time.Time `json:"askedAt"`
}
