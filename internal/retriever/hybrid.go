package retriever

import (
	"context"
	"fmt"
	"sort"

	"github.com/chidori-ai/chidori/internal/log"
)

// Hybrid fuses vector and keyword retrieval with weighted min-max
// normalized scores. Cosine similarities and BM25 scores live on different
// scales, so each candidate list is normalized to [0, 1] before the
// weighted sum.
type Hybrid struct {
	vector        Retriever
	keyword       Retriever
	vectorWeight  float64
	keywordWeight float64
	logger        log.Logger
}

// NewHybrid creates a hybrid retriever.
// Weights are normalized so they sum to 1.
func NewHybrid(vector, keyword Retriever, vectorWeight, keywordWeight float64, logger log.Logger) (*Hybrid, error) {
	total := vectorWeight + keywordWeight
	if total <= 0 {
		return nil, fmt.Errorf("fusion weights must sum to a positive value, got vector=%.2f keyword=%.2f",
			vectorWeight, keywordWeight)
	}
	if logger == nil {
		logger = log.NewNop()
	}

	return &Hybrid{
		vector:        vector,
		keyword:       keyword,
		vectorWeight:  vectorWeight / total,
		keywordWeight: keywordWeight / total,
		logger:        logger,
	}, nil
}

// Name implements Retriever.
func (h *Hybrid) Name() string { return "hybrid" }

// Retrieve pulls an over-fetched candidate pool (topK*2) from both
// strategies, fuses the scores, and returns the topK best chunks.
// A failure in either branch fails the whole retrieval; the RAG pipeline
// handles fallback to the plain model.
func (h *Hybrid) Retrieve(ctx context.Context, query string, topK int) ([]Scored, error) {
	poolK := topK * 2

	vecResults, err := h.vector.Retrieve(ctx, query, poolK)
	if err != nil {
		return nil, fmt.Errorf("vector branch: %w", err)
	}

	kwResults, err := h.keyword.Retrieve(ctx, query, poolK)
	if err != nil {
		return nil, fmt.Errorf("keyword branch: %w", err)
	}

	fused := fuse(vecResults, kwResults, h.vectorWeight, h.keywordWeight)
	if len(fused) > topK {
		fused = fused[:topK]
	}

	h.logger.Debug("hybrid retrieval",
		"vector_candidates", len(vecResults),
		"keyword_candidates", len(kwResults),
		"fused", len(fused),
	)
	return fused, nil
}

// fuse combines two candidate lists into one ranking.
// Each list's scores are min-max normalized to [0, 1]; chunks appearing in
// both lists get the sum of their weighted normalized scores.
func fuse(vec, kw []Scored, vw, kww float64) []Scored {
	vecNorm := normalize(vec)
	kwNorm := normalize(kw)

	merged := make(map[string]*Scored, len(vec)+len(kw))
	for i, s := range vec {
		merged[s.ID] = &Scored{
			ID:       s.ID,
			Content:  s.Content,
			Metadata: s.Metadata,
			Score:    vw * vecNorm[i],
		}
	}
	for i, s := range kw {
		if existing, ok := merged[s.ID]; ok {
			existing.Score += kww * kwNorm[i]
			continue
		}
		merged[s.ID] = &Scored{
			ID:       s.ID,
			Content:  s.Content,
			Metadata: s.Metadata,
			Score:    kww * kwNorm[i],
		}
	}

	fused := make([]Scored, 0, len(merged))
	for _, s := range merged {
		fused = append(fused, *s)
	}
	sort.SliceStable(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		return fused[i].ID < fused[j].ID // deterministic order on ties
	})
	return fused
}

// normalize maps scores to [0, 1] by min-max scaling.
// A single candidate (or all-equal scores) normalizes to 1.0 so that one
// strong hit is not zeroed out.
func normalize(results []Scored) []float64 {
	norm := make([]float64, len(results))
	if len(results) == 0 {
		return norm
	}

	minScore, maxScore := results[0].Score, results[0].Score
	for _, r := range results[1:] {
		if r.Score < minScore {
			minScore = r.Score
		}
		if r.Score > maxScore {
			maxScore = r.Score
		}
	}

	if maxScore == minScore {
		for i := range norm {
			norm[i] = 1.0
		}
		return norm
	}

	for i, r := range results {
		norm[i] = (r.Score - minScore) / (maxScore - minScore)
	}
	return norm
}
