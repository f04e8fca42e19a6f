package convstore

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

// Indexer is the subset of embindex.Index the conversation store needs.
// Declared as an interface so tests can substitute a fake that records
// failures, exercising the "index update fails, log write is kept" path
// without touching the real embedder.
type Indexer interface {
	Add(id, text string, meta embindex.Metadata) error
}

// Store is the append-only conversation event log, one JSON document
// ({session_id, events}) per session, rewritten atomically on every
// append, with every event also mirrored into the embedding index on
// write.
type Store struct {
	mu       sync.Mutex
	dir      string
	idx      Indexer
	clock    clock.Clock
	idGen    func() string
	log      logging.Logger
	sessions map[string]*sessionFile
}

type sessionFile struct {
	SessionID string            `json:"session_id"`
	Events    []json.RawMessage `json:"events"`
}

// New creates a Store rooted at dir (the on-disk "conversations/"
// directory).
func New(dir string, idx Indexer, clk clock.Clock, idGen func() string, log logging.Logger) *Store {
	if log == nil {
		log = logging.Nop()
	}
	return &Store{
		dir:      dir,
		idx:      idx,
		clock:    clk,
		idGen:    idGen,
		log:      log,
		sessions: make(map[string]*sessionFile),
	}
}

func sessionPath(dir, sessionID string) string {
	return filepath.Join(dir, fmt.Sprintf("conversation_%s.json", sessionID))
}

// AddUserMessage validates, persists, and indexes a UserMessage.
func (s *Store) AddUserMessage(content string, turn int, sessionID string, topics []string) (UserMessage, error) {
	if content == "" {
		return UserMessage{}, errs.Wrap("add_user_message", errs.ErrValidation)
	}
	if err := validateCommon(sessionID, turn); err != nil {
		return UserMessage{}, err
	}

	m := UserMessage{
		Type:      "user_message",
		IDValue:   s.idGen(),
		Session:   sessionID,
		TurnValue: turn,
		Content:   content,
		Topics:    topics,
		Created:   s.clock(),
	}

	if err := s.appendAndIndex(sessionID, m, embindex.Metadata{
		Type:      m.TypeTag(),
		SessionID: sessionID,
		Topics:    topics,
		CreatedAt: m.Created,
	}); err != nil {
		return UserMessage{}, err
	}
	return m, nil
}

// AddAssistantMessage validates, persists, and indexes an
// AssistantMessage.
func (s *Store) AddAssistantMessage(content string, turn int, sessionID string, tokensIn, tokensOut *int, model string) (AssistantMessage, error) {
	if content == "" {
		return AssistantMessage{}, errs.Wrap("add_assistant_message", errs.ErrValidation)
	}
	if err := validateCommon(sessionID, turn); err != nil {
		return AssistantMessage{}, err
	}
	if tokensIn != nil && *tokensIn < 0 {
		return AssistantMessage{}, errs.Wrap("add_assistant_message", errs.ErrValidation)
	}
	if tokensOut != nil && *tokensOut < 0 {
		return AssistantMessage{}, errs.Wrap("add_assistant_message", errs.ErrValidation)
	}

	m := AssistantMessage{
		Type:      "assistant_message",
		IDValue:   s.idGen(),
		Session:   sessionID,
		TurnValue: turn,
		Content:   content,
		TokensIn:  tokensIn,
		TokensOut: tokensOut,
		Model:     model,
		Created:   s.clock(),
	}

	if err := s.appendAndIndex(sessionID, m, embindex.Metadata{
		Type:      m.TypeTag(),
		SessionID: sessionID,
		CreatedAt: m.Created,
	}); err != nil {
		return AssistantMessage{}, err
	}
	return m, nil
}

// AddToolUse validates, persists, and indexes a ToolUse.
func (s *Store) AddToolUse(toolName string, toolInput map[string]any, toolResponse *string, turn int, sessionID string, latencyMS *int, success bool) (ToolUse, error) {
	if toolName == "" {
		return ToolUse{}, errs.Wrap("add_tool_use", errs.ErrValidation)
	}
	if err := validateCommon(sessionID, turn); err != nil {
		return ToolUse{}, err
	}
	if latencyMS != nil && *latencyMS < 0 {
		return ToolUse{}, errs.Wrap("add_tool_use", errs.ErrValidation)
	}

	t := ToolUse{
		Type:         "tool_use",
		IDValue:      s.idGen(),
		Session:      sessionID,
		TurnValue:    turn,
		ToolName:     toolName,
		ToolInput:    toolInput,
		ToolResponse: toolResponse,
		LatencyMS:    latencyMS,
		Success:      success,
		Created:      s.clock(),
	}

	if err := s.appendAndIndex(sessionID, t, embindex.Metadata{
		Type:      t.TypeTag(),
		SessionID: sessionID,
		CreatedAt: t.Created,
	}); err != nil {
		return ToolUse{}, err
	}
	return t, nil
}

// appendAndIndex writes ev to the session log first (durable before
// return), then indexes it. If the index update fails, the log write is
// still kept — a subsequent Rebuild will pick the event back up, so a
// transient embedding failure never loses conversation history.
func (s *Store) appendAndIndex(sessionID string, ev Event, meta embindex.Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sf, err := s.loadOrCreateLocked(sessionID)
	if err != nil {
		return errs.Wrap("append", fmt.Errorf("%w: %v", errs.ErrIO, err))
	}

	raw, err := json.Marshal(ev)
	if err != nil {
		return errs.Wrap("append", fmt.Errorf("%w: %v", errs.ErrIO, err))
	}
	sf.Events = append(sf.Events, raw)

	if err := writeSessionAtomic(s.dir, sf); err != nil {
		// roll back the in-memory append so a retried add doesn't see a
		// phantom event that never made it to disk.
		sf.Events = sf.Events[:len(sf.Events)-1]
		return errs.Wrap("append", fmt.Errorf("%w: %v", errs.ErrIO, err))
	}

	if err := s.idx.Add(indexID(ev), ev.EmbedText(), meta); err != nil {
		s.log.Warn("index update failed after durable log write; will be repaired on next load",
			"session_id", sessionID, "event_id", ev.ID(), "err", err)
	}
	return nil
}

func indexID(ev Event) string {
	return fmt.Sprintf("%s:%s", ev.TypeTag(), ev.ID())
}

// ListEvents returns events across sessions (or one session if sessionID
// is non-empty), optionally filtered by type tag, ordered by insertion.
func (s *Store) ListEvents(sessionID, typeTag string) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sessionIDs []string
	if sessionID != "" {
		sessionIDs = []string{sessionID}
	} else {
		entries, err := os.ReadDir(s.dir)
		if err != nil {
			if os.IsNotExist(err) {
				return []Event{}, nil
			}
			return nil, errs.Wrap("list_events", fmt.Errorf("%w: %v", errs.ErrIO, err))
		}
		for _, e := range entries {
			id, ok := sessionIDFromFilename(e.Name())
			if ok {
				sessionIDs = append(sessionIDs, id)
			}
		}
		sort.Strings(sessionIDs)
	}

	var out []Event
	for _, id := range sessionIDs {
		sf, err := s.loadOrCreateLocked(id)
		if err != nil {
			return nil, errs.Wrap("list_events", fmt.Errorf("%w: %v", errs.ErrIO, err))
		}
		events, err := decodeEvents(sf.Events)
		if err != nil {
			return nil, errs.Wrap("list_events", fmt.Errorf("%w: %v", errs.ErrIO, err))
		}
		for _, ev := range events {
			if typeTag != "" && ev.TypeTag() != typeTag {
				continue
			}
			out = append(out, ev)
		}
	}
	return out, nil
}

// Stats reports counts per event type and total token usage recorded by
// assistant messages.
type Stats struct {
	UserMessages      int `json:"user_messages"`
	AssistantMessages int `json:"assistant_messages"`
	ToolUses          int `json:"tool_uses"`
	TotalTokens       int `json:"total_tokens"`
}

// Stats computes aggregate counters across all sessions.
func (s *Store) Stats() (Stats, error) {
	events, err := s.ListEvents("", "")
	if err != nil {
		return Stats{}, err
	}
	var st Stats
	for _, ev := range events {
		switch e := ev.(type) {
		case UserMessage:
			st.UserMessages++
		case AssistantMessage:
			st.AssistantMessages++
			if e.TokensIn != nil {
				st.TotalTokens += *e.TokensIn
			}
			if e.TokensOut != nil {
				st.TotalTokens += *e.TokensOut
			}
		case ToolUse:
			st.ToolUses++
		}
	}
	return st, nil
}

// Rebuild re-adds every persisted event into idx. Used by the core
// facade to repair an embedding index that has fallen out of sync with
// the on-disk event log.
func (s *Store) Rebuild(idx Indexer) (int, error) {
	events, err := s.ListEvents("", "")
	if err != nil {
		return 0, err
	}
	n := 0
	for _, ev := range events {
		meta := embindex.Metadata{
			Type:      ev.TypeTag(),
			SessionID: ev.SessionID(),
			CreatedAt: ev.CreatedAt(),
		}
		if um, ok := ev.(UserMessage); ok {
			meta.Topics = um.Topics
		}
		if err := idx.Add(indexID(ev), ev.EmbedText(), meta); err != nil {
			continue // already present or duplicate id; not a rebuild failure
		}
		n++
	}
	return n, nil
}

func (s *Store) loadOrCreateLocked(sessionID string) (*sessionFile, error) {
	if sf, ok := s.sessions[sessionID]; ok {
		return sf, nil
	}

	data, err := os.ReadFile(sessionPath(s.dir, sessionID))
	if os.IsNotExist(err) {
		sf := &sessionFile{SessionID: sessionID, Events: []json.RawMessage{}}
		s.sessions[sessionID] = sf
		return sf, nil
	}
	if err != nil {
		return nil, err
	}

	var sf sessionFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, err
	}
	s.sessions[sessionID] = &sf
	return &sf, nil
}

func writeSessionAtomic(dir string, sf *sessionFile) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(sessionPath(dir, sf.SessionID))+".tmp-*")
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
	return os.Rename(tmpName, sessionPath(dir, sf.SessionID))
}

func sessionIDFromFilename(name string) (string, bool) {
	const prefix, suffix = "conversation_", ".json"
	if len(name) <= len(prefix)+len(suffix) {
		return "", false
	}
	if name[:len(prefix)] != prefix || name[len(name)-len(suffix):] != suffix {
		return "", false
	}
	return name[len(prefix) : len(name)-len(suffix)], true
}

func decodeEvents(raw []json.RawMessage) ([]Event, error) {
	out := make([]Event, 0, len(raw))
	for _, r := range raw {
		var tagged struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(r, &tagged); err != nil {
			return nil, err
		}
		switch tagged.Type {
		case "user_message":
			var m UserMessage
			if err := json.Unmarshal(r, &m); err != nil {
				return nil, err
			}
			out = append(out, m)
		case "assistant_message":
			var m AssistantMessage
			if err := json.Unmarshal(r, &m); err != nil {
				return nil, err
			}
			out = append(out, m)
		case "tool_use":
			var t ToolUse
			if err := json.Unmarshal(r, &t); err != nil {
				return nil, err
			}
			out = append(out, t)
		default:
			return nil, fmt.Errorf("unknown event type %q", tagged.Type)
		}
	}
	return out, nil
}
