// Package eval measures retrieval and generation quality: pure ranking
// metrics, synthetic test generation, LLM judging, run execution, and
// cross-run comparison.
package eval

import "math"

// The metric functions are total and deterministic. Retrieved ids are in
// rank order; relevant is the ground-truth set.

// PrecisionAtK is |top_k ∩ relevant| / min(k, |top_k|).
func PrecisionAtK(retrieved []string, relevant map[string]bool, k int) float64 {
	if k <= 0 {
		return 0
	}
	topK := headOf(retrieved, k)
	if len(topK) == 0 {
		return 0
	}
	return float64(countRelevant(topK, relevant)) / float64(len(topK))
}

// RecallAtK is |top_k ∩ relevant| / |relevant|.
func RecallAtK(retrieved []string, relevant map[string]bool, k int) float64 {
	if len(relevant) == 0 || k <= 0 {
		return 0
	}
	return float64(countRelevant(headOf(retrieved, k), relevant)) / float64(len(relevant))
}

// HitAtK reports whether any relevant item appears in the top k.
func HitAtK(retrieved []string, relevant map[string]bool, k int) bool {
	if len(relevant) == 0 || k <= 0 {
		return false
	}
	return countRelevant(headOf(retrieved, k), relevant) > 0
}

// ReciprocalRank is 1/rank of the first relevant item within the top k,
// or 0 when none is found.
func ReciprocalRank(retrieved []string, relevant map[string]bool, k int) float64 {
	if len(relevant) == 0 || k <= 0 {
		return 0
	}
	for i, id := range headOf(retrieved, k) {
		if relevant[id] {
			return 1.0 / float64(i+1)
		}
	}
	return 0
}

// NDCGAtK computes normalized discounted cumulative gain with binary
// relevance.
func NDCGAtK(retrieved []string, relevant map[string]bool, k int) float64 {
	if k <= 0 || len(relevant) == 0 {
		return 0
	}
	topK := headOf(retrieved, k)
	if len(topK) == 0 {
		return 0
	}
	dcg := 0.0
	for i, id := range topK {
		if relevant[id] {
			dcg += 1.0 / math.Log2(float64(i)+2)
		}
	}
	idealCount := len(relevant)
	if k < idealCount {
		idealCount = k
	}
	idcg := 0.0
	for i := 0; i < idealCount; i++ {
		idcg += 1.0 / math.Log2(float64(i)+2)
	}
	if idcg == 0 {
		return 0
	}
	return dcg / idcg
}

// AveragePrecisionAtK is (1/|relevant|) · Σ P@i · rel_i over i = 1..k.
func AveragePrecisionAtK(retrieved []string, relevant map[string]bool, k int) float64 {
	if k <= 0 || len(relevant) == 0 {
		return 0
	}
	topK := headOf(retrieved, k)
	if len(topK) == 0 {
		return 0
	}
	relevantCount := 0
	precisionSum := 0.0
	for i, id := range topK {
		if relevant[id] {
			relevantCount++
			precisionSum += float64(relevantCount) / float64(i+1)
		}
	}
	if relevantCount == 0 {
		return 0
	}
	return precisionSum / float64(len(relevant))
}

// CompleteContextRate is 1 when every relevant item appears in the top k.
// An empty relevant set counts as complete.
func CompleteContextRate(retrieved []string, relevant map[string]bool, k int) float64 {
	if len(relevant) == 0 {
		return 1
	}
	if k <= 0 {
		return 0
	}
	topK := make(map[string]bool, k)
	for _, id := range headOf(retrieved, k) {
		topK[id] = true
	}
	for id := range relevant {
		if !topK[id] {
			return 0
		}
	}
	return 1
}

// CitationPrecision is the fraction of cited chunks that are relevant.
func CitationPrecision(cited []string, relevant map[string]bool) float64 {
	if len(cited) == 0 {
		return 0
	}
	return float64(countRelevant(cited, relevant)) / float64(len(cited))
}

// CitationRecall is the fraction of relevant chunks that are cited.
func CitationRecall(cited []string, relevant map[string]bool) float64 {
	if len(relevant) == 0 {
		return 0
	}
	citedSet := make(map[string]bool, len(cited))
	for _, id := range cited {
		citedSet[id] = true
	}
	n := 0
	for id := range relevant {
		if citedSet[id] {
			n++
		}
	}
	return float64(n) / float64(len(relevant))
}

// PhantomCitationCount counts 0-based citation indices outside the
// retrieved range.
func PhantomCitationCount(citationIndices []int, retrievedCount int) int {
	n := 0
	for _, idx := range citationIndices {
		if idx >= retrievedCount {
			n++
		}
	}
	return n
}

// CosineSimilarity of two vectors; zero vectors score 0.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// ScoreGap is mean relevant score minus mean non-relevant score; the bool is
// false when either group is empty.
func ScoreGap(retrieved []string, scores []float64, relevant map[string]bool) (float64, bool) {
	var gt, nonGT []float64
	for i, id := range retrieved {
		if i >= len(scores) {
			break
		}
		if relevant[id] {
			gt = append(gt, scores[i])
		} else {
			nonGT = append(nonGT, scores[i])
		}
	}
	if len(gt) == 0 || len(nonGT) == 0 {
		return 0, false
	}
	return mean(gt) - mean(nonGT), true
}

// HighConfidenceRate is 1 when the lowest relevant score beats the highest
// non-relevant score by margin.
func HighConfidenceRate(retrieved []string, scores []float64, relevant map[string]bool, margin float64) float64 {
	var gt, nonGT []float64
	for i, id := range retrieved {
		if i >= len(scores) {
			break
		}
		if relevant[id] {
			gt = append(gt, scores[i])
		} else {
			nonGT = append(nonGT, scores[i])
		}
	}
	if len(gt) == 0 || len(nonGT) == 0 {
		return 0
	}
	minGT := gt[0]
	for _, s := range gt[1:] {
		if s < minGT {
			minGT = s
		}
	}
	maxNonGT := nonGT[0]
	for _, s := range nonGT[1:] {
		if s > maxNonGT {
			maxNonGT = s
		}
	}
	if minGT > maxNonGT+margin {
		return 1
	}
	return 0
}

// MeanRelevantScore averages scores of relevant hits; 0 when none.
func MeanRelevantScore(retrieved []string, scores []float64, relevant map[string]bool) float64 {
	var vals []float64
	for i, id := range retrieved {
		if i < len(scores) && relevant[id] {
			vals = append(vals, scores[i])
		}
	}
	if len(vals) == 0 {
		return 0
	}
	return mean(vals)
}

// MeanIrrelevantScore averages scores of non-relevant hits; 0 when none.
func MeanIrrelevantScore(retrieved []string, scores []float64, relevant map[string]bool) float64 {
	var vals []float64
	for i, id := range retrieved {
		if i < len(scores) && !relevant[id] {
			vals = append(vals, scores[i])
		}
	}
	if len(vals) == 0 {
		return 0
	}
	return mean(vals)
}

// PearsonCorrelation returns (r, true), or (0, false) with fewer than three
// points or zero variance on either side.
func PearsonCorrelation(xs, ys []float64) (float64, bool) {
	n := len(xs)
	if n < 3 || n != len(ys) {
		return 0, false
	}
	meanX := mean(xs)
	meanY := mean(ys)
	var varX, varY, cov float64
	for i := 0; i < n; i++ {
		dx := xs[i] - meanX
		dy := ys[i] - meanY
		varX += dx * dx
		varY += dy * dy
		cov += dx * dy
	}
	if varX == 0 || varY == 0 {
		return 0, false
	}
	return cov / math.Sqrt(varX*varY), true
}

// QualityBucket groups a test case by its retrieval recall.
type QualityBucket string

const (
	BucketPerfect QualityBucket = "perfect" // recall == 1
	BucketMissed  QualityBucket = "missed"  // recall == 0
	BucketPartial QualityBucket = "partial" // otherwise
)

// GenerationQualityPoint is one (recall, faithfulness, relevancy) sample.
type GenerationQualityPoint struct {
	Recall       float64
	Faithfulness float64
	Relevancy    float64
}

// BucketMeans holds per-bucket generation averages.
type BucketMeans struct {
	Faithfulness float64
	Relevancy    float64
	Count        int
}

// BucketGenerationQuality groups generation scores by recall bucket.
func BucketGenerationQuality(points []GenerationQualityPoint) map[QualityBucket]BucketMeans {
	sums := make(map[QualityBucket]*BucketMeans)
	for _, p := range points {
		var bucket QualityBucket
		switch {
		case p.Recall == 1:
			bucket = BucketPerfect
		case p.Recall == 0:
			bucket = BucketMissed
		default:
			bucket = BucketPartial
		}
		b := sums[bucket]
		if b == nil {
			b = &BucketMeans{}
			sums[bucket] = b
		}
		b.Faithfulness += p.Faithfulness
		b.Relevancy += p.Relevancy
		b.Count++
	}
	out := make(map[QualityBucket]BucketMeans, len(sums))
	for bucket, b := range sums {
		out[bucket] = BucketMeans{
			Faithfulness: b.Faithfulness / float64(b.Count),
			Relevancy:    b.Relevancy / float64(b.Count),
			Count:        b.Count,
		}
	}
	return out
}

// AnswerConsistency is the mean pairwise cosine similarity of the answer
// embeddings; fewer than two answers score 0.
func AnswerConsistency(embeddings [][]float64) float64 {
	n := len(embeddings)
	if n < 2 {
		return 0
	}
	total := 0.0
	count := 0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			total += CosineSimilarity(embeddings[i], embeddings[j])
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return total / float64(count)
}

// IntraDocumentSimilarity is the mean pairwise similarity within each
// document's embeddings, averaged over all pairs.
func IntraDocumentSimilarity(embeddingsByDoc map[string][][]float64) float64 {
	total := 0.0
	count := 0
	for _, embs := range embeddingsByDoc {
		for i := 0; i < len(embs); i++ {
			for j := i + 1; j < len(embs); j++ {
				total += CosineSimilarity(embs[i], embs[j])
				count++
			}
		}
	}
	if count == 0 {
		return 0
	}
	return total / float64(count)
}

// InterDocumentSimilarity is the mean similarity of embedding pairs drawn
// from different documents.
func InterDocumentSimilarity(embeddingsByDoc map[string][][]float64) float64 {
	keys := make([]string, 0, len(embeddingsByDoc))
	for k := range embeddingsByDoc {
		keys = append(keys, k)
	}
	if len(keys) < 2 {
		return 0
	}
	total := 0.0
	count := 0
	for i := 0; i < len(keys); i++ {
		for j := i + 1; j < len(keys); j++ {
			for _, a := range embeddingsByDoc[keys[i]] {
				for _, b := range embeddingsByDoc[keys[j]] {
					total += CosineSimilarity(a, b)
					count++
				}
			}
		}
	}
	if count == 0 {
		return 0
	}
	return total / float64(count)
}

// SeparationRatio is intra / inter; 0 when inter is 0.
func SeparationRatio(intra, inter float64) float64 {
	if inter == 0 {
		return 0
	}
	return intra / inter
}

// AdjacentChunkSimilarity is the mean similarity of consecutive embedding
// pairs in document order.
func AdjacentChunkSimilarity(ordered [][]float64) float64 {
	n := len(ordered)
	if n < 2 {
		return 0
	}
	total := 0.0
	for i := 0; i < n-1; i++ {
		total += CosineSimilarity(ordered[i], ordered[i+1])
	}
	return total / float64(n-1)
}

func headOf(ids []string, k int) []string {
	if len(ids) > k {
		return ids[:k]
	}
	return ids
}

func countRelevant(ids []string, relevant map[string]bool) int {
	n := 0
	for _, id := range ids {
		if relevant[id] {
			n++
		}
	}
	return n
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}
