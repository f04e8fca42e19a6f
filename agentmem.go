package agentmem

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kylebrodeur/agentmem/internal/clock"
	"github.com/kylebrodeur/agentmem/internal/context"
	"github.com/kylebrodeur/agentmem/internal/convstore"
	"github.com/kylebrodeur/agentmem/internal/embindex"
	"github.com/kylebrodeur/agentmem/internal/errs"
	"github.com/kylebrodeur/agentmem/internal/filelock"
	"github.com/kylebrodeur/agentmem/internal/knowledge"
	"github.com/kylebrodeur/agentmem/internal/search"
)

// Store is the facade over a project's memory: it owns a project root,
// instantiates the conversation, knowledge, embedding, search, and
// context subsystems over that root's on-disk layout, and exposes every
// public operation as a thin delegation. It holds no logic of its own
// beyond parameter defaulting and wiring.
type Store struct {
	root string
	lock *filelock.Lock

	idx     *embindex.Index
	convs   *convstore.Store
	know    *knowledge.Store
	search  *search.Facade
	builder *context.Builder
}

// Open instantiates a Store rooted at cfg.ProjectRoot, creating the
// on-disk .state layout if it does not already exist, taking the
// single-writer file lock, loading any persisted embedding index, and
// repairing it from the conversation/knowledge logs if it is out of
// sync with them.
func Open(cfg Config) (*Store, error) {
	if cfg.ProjectRoot == "" {
		return nil, errs.Wrap("open", errs.ErrValidation)
	}
	cfg = cfg.withDefaults()

	stateDir := filepath.Join(cfg.ProjectRoot, ".state")
	convDir := filepath.Join(stateDir, "conversations")
	knowDir := filepath.Join(stateDir, "knowledge")
	embDir := filepath.Join(stateDir, "embeddings")
	for _, d := range []string{convDir, knowDir, embDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, errs.Wrap("open", fmt.Errorf("%w: %v", errs.ErrIO, err))
		}
	}

	lk, err := filelock.Acquire(filepath.Join(stateDir, "lock"))
	if err != nil {
		return nil, errs.Wrap("open", err)
	}

	idx := embindex.New(embDir, cfg.EmbeddingDim, cfg.Logger)
	if err := idx.Load(); err != nil {
		lk.Release()
		return nil, errs.Wrap("open", err)
	}

	idGen := func() string { return cfg.IDGenerator() }
	clk := clock.Clock(cfg.Clock)

	convs := convstore.New(convDir, idx, clk, idGen, cfg.Logger)
	know, err := knowledge.New(knowDir, idx, clk, idGen, cfg.Logger, cfg.DedupThreshold, cfg.DecayRate)
	if err != nil {
		lk.Release()
		return nil, errs.Wrap("open", err)
	}

	// Rebuild is idempotent: entries already present in idx fail with
	// ErrDuplicateID and are skipped, so running it unconditionally on
	// every open repairs whatever partial inconsistency a prior crash
	// mid-operation left behind, not just a fully-empty index.
	if n, err := convs.Rebuild(idx); err == nil && n > 0 {
		logIfSet(cfg.Logger, "index repaired from conversation log", "events_reindexed", n)
	}
	if n := know.Rebuild(idx); n > 0 {
		logIfSet(cfg.Logger, "index repaired from knowledge tables", "entries_reindexed", n)
	}

	s := &Store{
		root:    cfg.ProjectRoot,
		lock:    lk,
		idx:     idx,
		convs:   convs,
		know:    know,
		search:  search.New(idx),
		builder: context.New(idx, clk),
	}
	return s, nil
}

// logIfSet logs through l if it is non-nil; cfg.Logger may be left unset
// (no logger configured).
func logIfSet(l Logger, msg string, kv ...any) {
	if l == nil {
		return
	}
	l.Info(msg, kv...)
}

// Close persists the embedding index and releases the project lock.
func (s *Store) Close() error {
	if err := s.idx.Save(); err != nil {
		return err
	}
	return s.lock.Release()
}

// --- Conversation ---

func (s *Store) AddUserMessage(content string, turn int, sessionID string, topics []string) (UserMessage, error) {
	return s.convs.AddUserMessage(content, turn, sessionID, topics)
}

func (s *Store) AddAssistantMessage(content string, turn int, sessionID string, tokensIn, tokensOut *int, model string) (AssistantMessage, error) {
	return s.convs.AddAssistantMessage(content, turn, sessionID, tokensIn, tokensOut, model)
}

func (s *Store) AddToolUse(toolName string, toolInput map[string]any, toolResponse *string, turn int, sessionID string, latencyMS *int, success bool) (ToolUse, error) {
	return s.convs.AddToolUse(toolName, toolInput, toolResponse, turn, sessionID, latencyMS, success)
}

// --- Knowledge ---

func (s *Store) AddConvention(content string, topics []string, sourceSession string, confidence float64) (Convention, error) {
	return s.know.AddConvention(content, topics, sourceSession, confidence)
}

func (s *Store) AddDecision(question, decision, rationale, decidedBy, sessionID string, alternatives, topics []string) (Decision, error) {
	return s.know.AddDecision(question, decision, rationale, decidedBy, sessionID, alternatives, topics)
}

func (s *Store) AddLearning(pattern string, confidence float64, learnedFrom []string, category string) (Learning, error) {
	return s.know.AddLearning(pattern, confidence, learnedFrom, category)
}

func (s *Store) AddArtifact(artifactType, path, description, createdInSession string, topics []string) (Artifact, error) {
	return s.know.AddArtifact(artifactType, path, description, createdInSession, topics)
}

// DecayConfidence reduces the confidence of every Convention and
// Learning whose age exceeds maxAgeDays, returning the count updated.
func (s *Store) DecayConfidence(maxAgeDays int) (int, error) {
	return s.know.DecayConfidence(maxAgeDays)
}

// Deduplicate performs an out-of-band pairwise merge pass over
// Conventions and Learnings, returning the count of entries merged away.
func (s *Store) Deduplicate() (int, error) {
	return s.know.Deduplicate()
}

// --- Search & context ---

// Search ranks knowledge and conversation entries by embedding
// similarity to query, filtered by type, session, and minimum
// confidence.
func (s *Store) Search(query string, types []string, sessionID string, minConfidence float64, limit int) ([]SearchResult, error) {
	if minConfidence == 0 {
		minConfidence = 0.7
	}
	if limit == 0 {
		limit = 10
	}
	raw, err := s.search.Search(query, types, sessionID, minConfidence, limit)
	if err != nil {
		return nil, err
	}
	out := make([]SearchResult, len(raw))
	for i, r := range raw {
		out[i] = SearchResult{
			ID:         r.ID,
			Type:       r.Metadata.Type,
			Text:       r.Text,
			Similarity: r.Similarity,
			SessionID:  r.Metadata.SessionID,
			Topics:     r.Metadata.Topics,
			Confidence: r.Metadata.Confidence,
		}
	}
	return out, nil
}

// BuildCompressedContext assembles a token-budgeted prompt context from
// conversation events and, optionally, knowledge entries, scored and
// deduplicated by the context builder.
func (s *Store) BuildCompressedContext(query string, maxTokens int, topics []string, agent string, includeKnowledge bool) (string, error) {
	events, err := s.convs.ListEvents("", "")
	if err != nil {
		return "", err
	}
	var entries []knowledge.Entry
	if includeKnowledge {
		entries = s.know.Entries()
	}
	return s.builder.Build(events, entries, context.Request{
		Query:            query,
		MaxTokens:        maxTokens,
		Topics:           topics,
		Agent:            agent,
		IncludeKnowledge: includeKnowledge,
	})
}

// CountTokens reports the deterministic token count the context
// builder uses to budget text.
func (s *Store) CountTokens(text string) int {
	return s.builder.CountTokens(text)
}

// --- Introspection ---

// Stats reports aggregate counters across the conversation, knowledge,
// and embedding subsystems.
func (s *Store) Stats() (Stats, error) {
	convStats, err := s.convs.Stats()
	if err != nil {
		return Stats{}, err
	}
	knowStats := s.know.Stats()
	embStats := s.idx.Stats()
	return Stats{
		Conversations: convStats,
		Knowledge:     knowStats,
		Embeddings:    EmbeddingStats{Vectors: embStats.Vectors, Dimension: embStats.Dimension},
	}, nil
}
