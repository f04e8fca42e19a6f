// Package context assembles a token-bounded, relevance-ranked digest of
// prior conversation events and knowledge entries to prepend to a new
// prompt.
package context

import (
	"fmt"
	"hash/fnv"
	"sort"
	"time"

	"github.com/kylebrodeur/agentmem/internal/clock"
	"github.com/kylebrodeur/agentmem/internal/convstore"
	"github.com/kylebrodeur/agentmem/internal/knowledge"
)

// Indexer is the subset of embindex.Index the builder needs: embedding
// the query text and fetching the already-stored vector for a
// previously-indexed candidate (so candidates are never re-embedded).
type Indexer interface {
	Embed(text string) ([]float32, error)
	VectorFor(id string) ([]float32, bool)
}

// Builder assembles compressed context from conversation events and
// knowledge entries.
type Builder struct {
	idx   Indexer
	clock clock.Clock
	tok   Tokenizer
}

// New creates a Builder over idx, using clk to compute candidate age.
func New(idx Indexer, clk clock.Clock) *Builder {
	return &Builder{idx: idx, clock: clk}
}

// CountTokens exposes the builder's cached tokenizer. It is an instance
// method, not a free function, because the tokenizer it wraps builds
// its regexp lazily on first use and caches it for reuse.
func (b *Builder) CountTokens(text string) int {
	return b.tok.CountTokens(text)
}

// Request bundles Build's inputs.
type Request struct {
	Query            string
	MaxTokens        int
	Topics           []string
	Agent            string
	IncludeKnowledge bool
}

type candidate struct {
	indexID   string
	tag       string
	text      string
	createdAt time.Time
	topics    []string
	provenance string
}

// Build produces the compressed context string for req.
func (b *Builder) Build(events []convstore.Event, entries []knowledge.Entry, req Request) (string, error) {
	if req.MaxTokens <= 0 {
		return "", nil
	}

	candidates := collectCandidates(events, entries, req.IncludeKnowledge)
	candidates = filterByAgent(candidates, req.Agent)
	candidates = dedupeByContent(candidates)
	if len(candidates) == 0 {
		return "", nil
	}

	var queryVec []float32
	if req.Query != "" {
		v, err := b.idx.Embed(req.Query)
		if err != nil {
			return "", err
		}
		queryVec = v
	}

	now := b.clock()
	scored := make([]scoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		s := b.score(c, queryVec, req.Topics, now)
		scored = append(scored, scoredCandidate{candidate: c, score: s})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].createdAt.After(scored[j].createdAt)
	})

	var segments []string
	budget := req.MaxTokens
	used := 0
	for _, sc := range scored {
		segment := formatSegment(sc.candidate)
		n := b.tok.CountTokens(segment)
		if used+n > budget {
			continue
		}
		used += n
		segments = append(segments, segment)
	}

	return joinSegments(segments), nil
}

type scoredCandidate struct {
	candidate
	score float64
}

// score combines relevance, recency, and content quality into a single
// ranking signal, boosted when a candidate shares topics with the
// request.
func (b *Builder) score(c candidate, queryVec []float32, topics []string, now time.Time) float64 {
	relevance := 0.0
	if queryVec != nil {
		if vec, ok := b.idx.VectorFor(c.indexID); ok {
			relevance = cosine(queryVec, vec)
		}
	}

	ageHours := now.Sub(c.createdAt).Hours()
	recency := 1 - ageHours/24
	if recency < 0 {
		recency = 0
	}

	q := quality(c.text)

	score := 0.5*relevance + 0.3*recency + 0.2*q

	matches := countTopicMatches(c.topics, topics)
	if matches > 0 {
		score *= 1 + 0.2*float64(matches)
		if score > 1.0 {
			score = 1.0
		}
	}
	return score
}

func countTopicMatches(candidateTopics, requested []string) int {
	if len(candidateTopics) == 0 || len(requested) == 0 {
		return 0
	}
	want := make(map[string]bool, len(requested))
	for _, t := range requested {
		want[t] = true
	}
	n := 0
	for _, t := range candidateTopics {
		if want[t] {
			n++
		}
	}
	return n
}

func collectCandidates(events []convstore.Event, entries []knowledge.Entry, includeKnowledge bool) []candidate {
	out := make([]candidate, 0, len(events)+len(entries))
	for _, ev := range events {
		out = append(out, eventCandidate(ev))
	}
	if includeKnowledge {
		for _, en := range entries {
			out = append(out, entryCandidate(en))
		}
	}
	return out
}

func eventCandidate(ev convstore.Event) candidate {
	c := candidate{
		indexID:   fmt.Sprintf("%s:%s", ev.TypeTag(), ev.ID()),
		text:      ev.EmbedText(),
		createdAt: ev.CreatedAt(),
	}
	switch e := ev.(type) {
	case convstore.UserMessage:
		c.tag = "[user]"
		c.topics = e.Topics
	case convstore.AssistantMessage:
		c.tag = fmt.Sprintf("[assistant t=%d]", e.Turn())
		c.provenance = e.Model
	case convstore.ToolUse:
		c.tag = fmt.Sprintf("[tool:%s]", e.ToolName)
	default:
		c.tag = "[event]"
	}
	return c
}

func entryCandidate(en knowledge.Entry) candidate {
	c := candidate{
		indexID:   fmt.Sprintf("%s:%s", en.TypeTag(), en.ID()),
		text:      en.EmbedText(),
		createdAt: en.CreatedAt(),
	}
	switch e := en.(type) {
	case knowledge.Convention:
		c.tag = "[convention]"
		c.topics = e.Topics
	case knowledge.Decision:
		c.tag = "[decision]"
		c.topics = e.Topics
		c.provenance = e.DecidedBy
	case knowledge.Learning:
		c.tag = "[learning]"
	case knowledge.Artifact:
		c.tag = "[artifact]"
		c.topics = e.Topics
	default:
		c.tag = "[knowledge]"
	}
	return c
}

// filterByAgent keeps only candidates whose provenance matches agent.
// Candidates without a provenance field (tool uses, user messages,
// conventions, learnings, artifacts) never match a non-empty filter.
func filterByAgent(candidates []candidate, agent string) []candidate {
	if agent == "" {
		return candidates
	}
	out := candidates[:0:0]
	for _, c := range candidates {
		if c.provenance == agent {
			out = append(out, c)
		}
	}
	return out
}

// dedupeByContent keeps only the most recent candidate among those with
// byte-identical text.
func dedupeByContent(candidates []candidate) []candidate {
	best := make(map[uint64]candidate, len(candidates))
	order := make([]uint64, 0, len(candidates))
	for _, c := range candidates {
		h := contentHash(c.text)
		if existing, ok := best[h]; !ok {
			best[h] = c
			order = append(order, h)
		} else if c.createdAt.After(existing.createdAt) {
			best[h] = c
		}
	}
	out := make([]candidate, 0, len(order))
	for _, h := range order {
		out = append(out, best[h])
	}
	return out
}

func contentHash(text string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	return h.Sum64()
}

func formatSegment(c candidate) string {
	return c.tag + " " + c.text
}

func joinSegments(segments []string) string {
	out := ""
	for i, s := range segments {
		if i > 0 {
			out += "\n\n"
		}
		out += s
	}
	return out
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}
