// Package agentmem is a local, file-backed memory and knowledge store
// for coding agents: a conversation event log, a typed knowledge base of
// conventions/decisions/learnings/artifacts, a shared semantic embedding
// index over both, and a token-budgeted compressed context builder that
// turns the two into a single string fit to prepend to a new prompt.
//
// Everything lives under a project root as plain files (JSON logs plus a
// flat vectors.npy/metadata.json pair) — no external database, no
// network calls, no CGO.
//
// # Key Features
//
//   - Append-only conversation log, one file per session, replayable to
//     rebuild the embedding index after a crash.
//   - Four knowledge tables with semantic deduplication on add and
//     on-demand confidence decay.
//   - A single shared embedding index across every entry kind, with
//     exact cosine search and type-filtered variants for dedup checks.
//   - A compressed context builder that scores candidates by relevance,
//     recency, and a quality heuristic, then greedily packs them under a
//     token budget.
//
// # Quick Start
//
//	import "github.com/kylebrodeur/agentmem"
//
//	func main() {
//	    cfg := agentmem.DefaultConfig("/path/to/project")
//	    mem, err := agentmem.Open(cfg)
//	    if err != nil {
//	        panic(err)
//	    }
//	    defer mem.Close()
//
//	    mem.AddUserMessage("how do we handle auth?", 1, "sess-1", nil)
//	    mem.AddDecision("how do we handle auth?", "JWT in a cookie", "stateless, works behind our LB",
//	        "agent", "sess-1", nil, nil)
//
//	    results, _ := mem.Search("auth", nil, "", 0, 5)
//	    ctxText, _ := mem.BuildCompressedContext("auth", 500, nil, "", true)
//	}
//
// # Configuration
//
// DefaultConfig returns sane defaults (384-dim embeddings, 0.85 dedup
// threshold, 0.01/day confidence decay); override any field before
// calling Open.
//
//	cfg := agentmem.DefaultConfig(root)
//	cfg.DedupThreshold = 0.9
//	cfg.Logger = myLogger
package agentmem
