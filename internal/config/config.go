package config

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// KnownKeys defines environment variable keys that courserag recognizes.
var KnownKeys = []string{
	"COURSERAG_SERVER_URL",
	"COURSERAG_SQLITE_PATH",
	"COURSERAG_OPENAI_BASE_URL",
	"COURSERAG_OPENAI_API_KEY",
	"COURSERAG_EMBEDDING_MODEL",
	"COURSERAG_BM25_K1",
	"COURSERAG_BM25_B",
	"COURSERAG_RRF_K",
	"COURSERAG_BM25_WEIGHT",
	"COURSERAG_EMBEDDING_WEIGHT",
	"COURSERAG_MMR_LAMBDA",
	"COURSERAG_CONF_LEXICAL_WEIGHT",
	"COURSERAG_CONF_SEMANTIC_WEIGHT",
	"COURSERAG_CONF_HISTORICAL_WEIGHT",
	"COURSERAG_CONF_HIGH_BAND",
	"COURSERAG_CONF_MEDIUM_BAND",
	"COURSERAG_CACHE_TTL_SECONDS",
	"COURSERAG_CACHE_SIZE",
	"COURSERAG_MAX_TOKENS",
	"COURSERAG_MAX_MATERIALS",
	"COURSERAG_MIN_RELEVANCE",
	"COURSERAG_CANDIDATE_POOL",
	"COURSERAG_LOG_LEVEL",
}

// LoadAndApply loads configuration from ~/.courserag/config.yaml (or
// .yml/.json) and applies values into the process environment for known keys
// if they are not already set. Environment variables take precedence over
// file values.
func LoadAndApply() error {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return nil // non-fatal
	}
	base := filepath.Join(home, ".courserag")
	paths := []string{
		filepath.Join(base, "config.yaml"),
		filepath.Join(base, "config.yml"),
		filepath.Join(base, "config.json"),
	}
	var data map[string]any
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		if strings.HasSuffix(p, ".json") {
			if m, err := parseJSON(b); err == nil {
				data = m
				break
			}
		} else {
			if m, err := parseYAMLShallow(string(b)); err == nil {
				data = m
				break
			}
		}
	}
	if len(data) == 0 {
		return nil
	}
	for _, key := range KnownKeys {
		if os.Getenv(key) != "" {
			continue
		}
		if v, ok := lookupInsensitive(data, key); ok {
			os.Setenv(key, toString(v))
		}
	}
	return nil
}

// Tuning bundles every configurable constant of the retrieval core. Values
// are defaults here, not hard-coded anywhere else; production values are
// expected to be tuned via env or the config file.
type Tuning struct {
	BM25K1          float64
	BM25B           float64
	RRFK            float64
	BM25Weight      float64
	EmbeddingWeight float64
	MMRLambda       float64

	LexicalWeight    float64
	SemanticWeight   float64
	HistoricalWeight float64
	HighBand         float64 // score >= HighBand   -> high
	MediumBand       float64 // score >= MediumBand -> medium

	CacheTTLSeconds int
	CacheSize       int

	MaxTokens       int
	MaxMaterials    int
	MinRelevance    float64
	CandidatePool   int
	MinUsefulTokens int
}

// Defaults returns the illustrative defaults from the literature; see the
// package docs for the matching env keys.
func Defaults() Tuning {
	return Tuning{
		BM25K1:           1.5,
		BM25B:            0.75,
		RRFK:             60,
		BM25Weight:       1.0,
		EmbeddingWeight:  1.0,
		MMRLambda:        0.7,
		LexicalWeight:    0.4,
		SemanticWeight:   0.4,
		HistoricalWeight: 0.2,
		HighBand:         70,
		MediumBand:       40,
		CacheTTLSeconds:  600,
		CacheSize:        512,
		MaxTokens:        3000,
		MaxMaterials:     5,
		MinRelevance:     0.05,
		CandidatePool:    20,
		MinUsefulTokens:  50,
	}
}

// FromEnv layers env overrides on top of Defaults.
func FromEnv() Tuning {
	t := Defaults()
	fl := func(key string, dst *float64) {
		if v := os.Getenv(key); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}
	in := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				*dst = n
			}
		}
	}
	fl("COURSERAG_BM25_K1", &t.BM25K1)
	fl("COURSERAG_BM25_B", &t.BM25B)
	fl("COURSERAG_RRF_K", &t.RRFK)
	fl("COURSERAG_BM25_WEIGHT", &t.BM25Weight)
	fl("COURSERAG_EMBEDDING_WEIGHT", &t.EmbeddingWeight)
	fl("COURSERAG_MMR_LAMBDA", &t.MMRLambda)
	fl("COURSERAG_CONF_LEXICAL_WEIGHT", &t.LexicalWeight)
	fl("COURSERAG_CONF_SEMANTIC_WEIGHT", &t.SemanticWeight)
	fl("COURSERAG_CONF_HISTORICAL_WEIGHT", &t.HistoricalWeight)
	fl("COURSERAG_CONF_HIGH_BAND", &t.HighBand)
	fl("COURSERAG_CONF_MEDIUM_BAND", &t.MediumBand)
	fl("COURSERAG_MIN_RELEVANCE", &t.MinRelevance)
	in("COURSERAG_CACHE_TTL_SECONDS", &t.CacheTTLSeconds)
	in("COURSERAG_CACHE_SIZE", &t.CacheSize)
	in("COURSERAG_MAX_TOKENS", &t.MaxTokens)
	in("COURSERAG_MAX_MATERIALS", &t.MaxMaterials)
	in("COURSERAG_CANDIDATE_POOL", &t.CandidatePool)
	return t
}

func parseJSON(b []byte) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// parseYAMLShallow parses very shallow YAML with top-level key: value pairs.
// It ignores nested objects/arrays and comments. Values can be quoted
// strings, booleans, or numbers; everything else is treated as string.
func parseYAMLShallow(s string) (map[string]any, error) {
	m := make(map[string]any)
	rd := bufio.NewScanner(strings.NewReader(s))
	for rd.Scan() {
		line := strings.TrimSpace(rd.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(rd.Text(), " ") || strings.HasPrefix(rd.Text(), "\t") {
			continue // nested
		}
		i := strings.IndexRune(line, ':')
		if i <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:i])
		val := strings.TrimSpace(line[i+1:])
		if j := strings.Index(val, " #"); j >= 0 {
			val = strings.TrimSpace(val[:j])
		}
		if len(val) >= 2 && (val[0] == '"' || val[0] == '\'') && val[len(val)-1] == val[0] {
			val = val[1 : len(val)-1]
		}
		if b, err := strconv.ParseBool(strings.ToLower(val)); err == nil {
			m[key] = b
			continue
		}
		if n, err := strconv.ParseFloat(val, 64); err == nil {
			m[key] = n
			continue
		}
		m[key] = val
	}
	if err := rd.Err(); err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, errors.New("empty or unsupported YAML")
	}
	return m, nil
}

func lookupInsensitive(m map[string]any, key string) (any, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
