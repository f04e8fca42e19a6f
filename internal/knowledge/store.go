package knowledge

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/kylebrodeur/agentmem/internal/clock"
	"github.com/kylebrodeur/agentmem/internal/embindex"
	"github.com/kylebrodeur/agentmem/internal/errs"
	"github.com/kylebrodeur/agentmem/internal/logging"
)

// DedupThreshold is the default cosine similarity at or above which two
// Conventions/Learnings are merged.
const DedupThreshold = 0.85

// DecayRate is the default per-day confidence decay applied by
// DecayConfidence.
const DecayRate = 0.01

// Indexer is the subset of embindex.Index the Knowledge Store needs.
type Indexer interface {
	Embed(text string) ([]float32, error)
	Add(id, text string, meta embindex.Metadata) error
	SearchFiltered(query []float32, k int, threshold float64, typeFilter map[string]bool) []embindex.Result
	UpdateMetadata(id string, meta embindex.Metadata) bool
}

// Store holds the four knowledge tables (conventions, decisions,
// learnings, artifacts) backed by one JSON file per table, each entry
// mirrored into the shared embedding index.
type Store struct {
	mu             sync.Mutex
	dir            string
	idx            Indexer
	clock          clock.Clock
	idGen          func() string
	log            logging.Logger
	dedupThreshold float64
	decayRate      float64

	conventions []Convention
	decisions   []Decision
	learnings   []Learning
	artifacts   []Artifact
}

// New creates a Store rooted at dir (the on-disk "knowledge/" directory)
// and loads any previously persisted tables. decayRate <= 0 falls back
// to the reference DecayRate constant.
func New(dir string, idx Indexer, clk clock.Clock, idGen func() string, log logging.Logger, dedupThreshold, decayRate float64) (*Store, error) {
	if log == nil {
		log = logging.Nop()
	}
	if dedupThreshold <= 0 {
		dedupThreshold = DedupThreshold
	}
	if decayRate <= 0 {
		decayRate = DecayRate
	}
	s := &Store{dir: dir, idx: idx, clock: clk, idGen: idGen, log: log, dedupThreshold: dedupThreshold, decayRate: decayRate}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// AddConvention merges content into an existing Convention whose cosine
// similarity is at or above the dedup threshold, or creates a new one.
func (s *Store) AddConvention(content string, topics []string, sourceSession string, confidence float64) (Convention, error) {
	if content == "" {
		return Convention{}, errs.Wrap("add_convention", errs.ErrValidation)
	}
	if confidence < 0 || confidence > 1 {
		return Convention{}, errs.Wrap("add_convention", errs.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	vec, err := s.idx.Embed(content)
	if err != nil {
		return Convention{}, err
	}
	if hit := s.bestMatch(vec, "convention"); hit != nil {
		for i := range s.conventions {
			if s.conventions[i].IDValue == hit.ID {
				c := &s.conventions[i]
				c.Confidence = min1(c.Confidence + 0.1)
				c.LastVerified = s.clock()
				c.Topics = unionTopics(c.Topics, topics)
				if err := s.persistConventions(); err != nil {
					return Convention{}, err
				}
				s.idx.UpdateMetadata(indexID(*c), conventionMeta(*c))
				return *c, nil
			}
		}
	}

	now := s.clock()
	c := Convention{
		IDValue:       s.idGen(),
		Content:       content,
		Topics:        topics,
		SourceSession: sourceSession,
		Confidence:    confidence,
		LastVerified:  now,
		Created:       now,
	}
	s.conventions = append(s.conventions, c)
	if err := s.persistConventions(); err != nil {
		return Convention{}, err
	}
	if err := s.idx.Add(indexID(c), content, conventionMeta(c)); err != nil {
		s.log.Warn("index add failed for convention", "id", c.IDValue, "err", err)
	}
	return c, nil
}

// AddDecision never deduplicates.
func (s *Store) AddDecision(question, decision, rationale, decidedBy, sessionID string, alternatives, topics []string) (Decision, error) {
	if question == "" || decision == "" || rationale == "" {
		return Decision{}, errs.Wrap("add_decision", errs.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	d := Decision{
		IDValue:      s.idGen(),
		Question:     question,
		DecisionText: decision,
		Rationale:    rationale,
		Alternatives: alternatives,
		DecidedBy:    decidedBy,
		SessionID:    sessionID,
		Topics:       topics,
		Created:      s.clock(),
	}
	s.decisions = append(s.decisions, d)
	if err := s.persistDecisions(); err != nil {
		return Decision{}, err
	}
	if err := s.idx.Add(indexID2(d), d.EmbedText(), decisionMeta(d)); err != nil {
		s.log.Warn("index add failed for decision", "id", d.IDValue, "err", err)
	}
	return d, nil
}

// AddLearning merges pattern into an existing Learning whose cosine
// similarity is at or above the dedup threshold — unioning
// learned_from and raising confidence to min(1, old + new*0.5) — or
// creates a new one.
func (s *Store) AddLearning(pattern string, confidence float64, learnedFrom []string, category string) (Learning, error) {
	if pattern == "" {
		return Learning{}, errs.Wrap("add_learning", errs.ErrValidation)
	}
	if confidence < 0 || confidence > 1 {
		return Learning{}, errs.Wrap("add_learning", errs.ErrValidation)
	}
	if len(learnedFrom) == 0 {
		return Learning{}, errs.Wrap("add_learning", errs.ErrValidation)
	}
	if category == "" {
		category = "general"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	vec, err := s.idx.Embed(pattern)
	if err != nil {
		return Learning{}, err
	}
	if hit := s.bestMatch(vec, "learning"); hit != nil {
		for i := range s.learnings {
			if s.learnings[i].IDValue == hit.ID {
				l := &s.learnings[i]
				l.LearnedFrom = unionTopics(l.LearnedFrom, learnedFrom)
				l.Confidence = min1(l.Confidence + confidence*0.5)
				if err := s.persistLearnings(); err != nil {
					return Learning{}, err
				}
				s.idx.UpdateMetadata(learningIndexID(*l), learningMeta(*l))
				return *l, nil
			}
		}
	}

	l := Learning{
		IDValue:     s.idGen(),
		Pattern:     pattern,
		Confidence:  confidence,
		LearnedFrom: learnedFrom,
		Category:    category,
		Created:     s.clock(),
	}
	s.learnings = append(s.learnings, l)
	if err := s.persistLearnings(); err != nil {
		return Learning{}, err
	}
	if err := s.idx.Add(learningIndexID(l), pattern, learningMeta(l)); err != nil {
		s.log.Warn("index add failed for learning", "id", l.IDValue, "err", err)
	}
	return l, nil
}

// AddArtifact never deduplicates.
func (s *Store) AddArtifact(artifactType, path, description, createdInSession string, topics []string) (Artifact, error) {
	if path == "" || description == "" {
		return Artifact{}, errs.Wrap("add_artifact", errs.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a := Artifact{
		IDValue:          s.idGen(),
		ArtifactType:     artifactType,
		Path:             path,
		Description:      description,
		CreatedInSession: createdInSession,
		Topics:           topics,
		Created:          s.clock(),
	}
	s.artifacts = append(s.artifacts, a)
	if err := s.persistArtifacts(); err != nil {
		return Artifact{}, err
	}
	if err := s.idx.Add(indexID3(a), a.EmbedText(), artifactMeta(a)); err != nil {
		s.log.Warn("index add failed for artifact", "id", a.IDValue, "err", err)
	}
	return a, nil
}

// bestMatch returns the closest existing entry of typeTag whose
// similarity to vec meets the dedup threshold, or nil.
func (s *Store) bestMatch(vec []float32, typeTag string) *embindex.Result {
	results := s.idx.SearchFiltered(vec, 1, s.dedupThreshold, map[string]bool{typeTag: true})
	if len(results) == 0 {
		return nil
	}
	return &results[0]
}

// DecayConfidence reduces the confidence of every Convention and
// Learning older than maxAgeDays, returning the number of entries
// updated.
func (s *Store) DecayConfidence(maxAgeDays int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	updated := 0

	for i := range s.conventions {
		c := &s.conventions[i]
		ageDays := now.Sub(c.LastVerified).Hours() / 24
		if ageDays <= float64(maxAgeDays) {
			continue
		}
		newConf := c.Confidence - ageDays*s.decayRate
		if newConf < 0 {
			newConf = 0
		}
		if newConf == c.Confidence {
			continue
		}
		c.Confidence = newConf
		updated++
		s.idx.UpdateMetadata(indexID(*c), conventionMeta(*c))
	}
	for i := range s.learnings {
		l := &s.learnings[i]
		ageDays := now.Sub(l.Created).Hours() / 24
		if ageDays <= float64(maxAgeDays) {
			continue
		}
		newConf := l.Confidence - ageDays*s.decayRate
		if newConf < 0 {
			newConf = 0
		}
		if newConf == l.Confidence {
			continue
		}
		l.Confidence = newConf
		updated++
		s.idx.UpdateMetadata(learningIndexID(*l), learningMeta(*l))
	}

	if updated > 0 {
		if err := s.persistConventions(); err != nil {
			return updated, err
		}
		if err := s.persistLearnings(); err != nil {
			return updated, err
		}
	}
	return updated, nil
}

// Deduplicate runs a pairwise merge pass across all Conventions and all
// Learnings, returning the number of merges performed. Intentionally
// O(n²) cosine comparisons: a knowledge base tops out at thousands of
// entries, not a throughput-sensitive working set.
func (s *Store) Deduplicate() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	merges := 0

	keptConventions := make([]Convention, 0, len(s.conventions))
	for _, c := range s.conventions {
		vec, err := s.idx.Embed(c.Content)
		if err != nil {
			keptConventions = append(keptConventions, c)
			continue
		}
		matched := false
		for i := range keptConventions {
			otherVec, err := s.idx.Embed(keptConventions[i].Content)
			if err != nil {
				continue
			}
			if c.IDValue == keptConventions[i].IDValue {
				continue
			}
			if cosineLocal(vec, otherVec) >= s.dedupThreshold {
				keptConventions[i].Confidence = min1(keptConventions[i].Confidence + 0.1)
				keptConventions[i].LastVerified = s.clock()
				keptConventions[i].Topics = unionTopics(keptConventions[i].Topics, c.Topics)
				s.idx.UpdateMetadata(indexID(keptConventions[i]), conventionMeta(keptConventions[i]))
				matched = true
				merges++
				break
			}
		}
		if !matched {
			keptConventions = append(keptConventions, c)
		}
	}
	s.conventions = keptConventions

	keptLearnings := make([]Learning, 0, len(s.learnings))
	for _, l := range s.learnings {
		vec, err := s.idx.Embed(l.Pattern)
		if err != nil {
			keptLearnings = append(keptLearnings, l)
			continue
		}
		matched := false
		for i := range keptLearnings {
			otherVec, err := s.idx.Embed(keptLearnings[i].Pattern)
			if err != nil {
				continue
			}
			if l.IDValue == keptLearnings[i].IDValue {
				continue
			}
			if cosineLocal(vec, otherVec) >= s.dedupThreshold {
				keptLearnings[i].LearnedFrom = unionTopics(keptLearnings[i].LearnedFrom, l.LearnedFrom)
				keptLearnings[i].Confidence = min1(keptLearnings[i].Confidence + l.Confidence*0.5)
				s.idx.UpdateMetadata(learningIndexID(keptLearnings[i]), learningMeta(keptLearnings[i]))
				matched = true
				merges++
				break
			}
		}
		if !matched {
			keptLearnings = append(keptLearnings, l)
		}
	}
	s.learnings = keptLearnings

	if merges > 0 {
		if err := s.persistConventions(); err != nil {
			return merges, err
		}
		if err := s.persistLearnings(); err != nil {
			return merges, err
		}
	}
	return merges, nil
}

func cosineLocal(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

func min1(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}

func unionTopics(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, t := range append(append([]string{}, a...), b...) {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

func indexID(c Convention) string { return "convention:" + c.IDValue }

func conventionMeta(c Convention) embindex.Metadata {
	conf := c.Confidence
	return embindex.Metadata{
		Type:       "convention",
		SessionID:  c.SourceSession,
		Topics:     c.Topics,
		Confidence: &conf,
		CreatedAt:  c.Created,
	}
}

func decisionMeta(d Decision) embindex.Metadata {
	return embindex.Metadata{
		Type:      "decision",
		SessionID: d.SessionID,
		Topics:    d.Topics,
		CreatedAt: d.Created,
	}
}

func learningIndexID(l Learning) string { return "learning:" + l.IDValue }

func learningMeta(l Learning) embindex.Metadata {
	conf := l.Confidence
	return embindex.Metadata{
		Type:       "learning",
		Confidence: &conf,
		CreatedAt:  l.Created,
		Extra:      map[string]string{"category": l.Category},
	}
}

func artifactMeta(a Artifact) embindex.Metadata {
	return embindex.Metadata{
		Type:      "artifact",
		SessionID: a.CreatedInSession,
		Topics:    a.Topics,
		CreatedAt: a.Created,
	}
}

// Stats reports counts per table.
type Stats struct {
	Conventions int `json:"conventions"`
	Decisions   int `json:"decisions"`
	Learnings   int `json:"learnings"`
	Artifacts   int `json:"artifacts"`
}

// Stats returns current table sizes.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Conventions: len(s.conventions),
		Decisions:   len(s.decisions),
		Learnings:   len(s.learnings),
		Artifacts:   len(s.artifacts),
	}
}

// Entries returns a snapshot of every knowledge entry across all four
// tables, for consumers (e.g. the Compressed Context Builder) that need
// a uniform view over the Entry trait rather than per-table access.
func (s *Store) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.conventions)+len(s.decisions)+len(s.learnings)+len(s.artifacts))
	for _, c := range s.conventions {
		out = append(out, c)
	}
	for _, d := range s.decisions {
		out = append(out, d)
	}
	for _, l := range s.learnings {
		out = append(out, l)
	}
	for _, a := range s.artifacts {
		out = append(out, a)
	}
	return out
}

// Rebuild re-adds every persisted table entry into idx, repairing an
// embedding index that has fallen out of sync with the on-disk tables.
func (s *Store) Rebuild(idx interface {
	Add(id, text string, meta embindex.Metadata) error
}) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, c := range s.conventions {
		if err := idx.Add(indexID(c), c.Content, conventionMeta(c)); err == nil {
			n++
		}
	}
	for _, d := range s.decisions {
		if err := idx.Add(indexID2(d), d.EmbedText(), decisionMeta(d)); err == nil {
			n++
		}
	}
	for _, l := range s.learnings {
		if err := idx.Add(learningIndexID(l), l.Pattern, learningMeta(l)); err == nil {
			n++
		}
	}
	for _, a := range s.artifacts {
		if err := idx.Add(indexID3(a), a.EmbedText(), artifactMeta(a)); err == nil {
			n++
		}
	}
	return n
}

func indexID2(d Decision) string { return "decision:" + d.IDValue }
func indexID3(a Artifact) string { return "artifact:" + a.IDValue }

func (s *Store) load() error {
	if err := loadJSON(filepath.Join(s.dir, "conventions.json"), &s.conventions); err != nil {
		return err
	}
	if err := loadJSON(filepath.Join(s.dir, "decisions.json"), &s.decisions); err != nil {
		return err
	}
	if err := loadJSON(filepath.Join(s.dir, "learnings.json"), &s.learnings); err != nil {
		return err
	}
	if err := loadJSON(filepath.Join(s.dir, "artifacts.json"), &s.artifacts); err != nil {
		return err
	}
	return nil
}

func loadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return json.Unmarshal(data, v)
}

func (s *Store) persistConventions() error {
	return errs.Wrap("persist", wrapIO(writeJSONAtomic(filepath.Join(s.dir, "conventions.json"), s.conventions)))
}
func (s *Store) persistDecisions() error {
	return errs.Wrap("persist", wrapIO(writeJSONAtomic(filepath.Join(s.dir, "decisions.json"), s.decisions)))
}
func (s *Store) persistLearnings() error {
	return errs.Wrap("persist", wrapIO(writeJSONAtomic(filepath.Join(s.dir, "learnings.json"), s.learnings)))
}
func (s *Store) persistArtifacts() error {
	return errs.Wrap("persist", wrapIO(writeJSONAtomic(filepath.Join(s.dir, "artifacts.json"), s.artifacts)))
}

func wrapIO(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", errs.ErrIO, err)
}

func writeJSONAtomic(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
