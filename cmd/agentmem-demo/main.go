// Command agentmem-demo exercises the memory store end to end against a
// project directory: record a short conversation, a decision, and a
// convention, then print a compressed context and the store's stats.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/kylebrodeur/agentmem"
)

func main() {
	root := flag.String("root", ".", "project root directory")
	configPath := flag.String("config", "", "optional agentmem.yaml path")
	query := flag.String("query", "authentication", "query for the compressed context demo")
	maxTokens := flag.Int("max-tokens", 300, "token budget for the compressed context demo")
	flag.Parse()

	cfg := agentmem.DefaultConfig(*root)
	if *configPath != "" {
		loaded, err := agentmem.LoadConfigFile(*configPath)
		if err != nil {
			log.Fatalf("agentmem-demo: %v", err)
		}
		loaded.ProjectRoot = *root
		cfg = loaded
	}

	mem, err := agentmem.Open(cfg)
	if err != nil {
		log.Fatalf("agentmem-demo: open: %v", err)
	}
	defer mem.Close()

	if err := seed(mem); err != nil {
		log.Fatalf("agentmem-demo: seed: %v", err)
	}

	ctxText, err := mem.BuildCompressedContext(*query, *maxTokens, nil, "", true)
	if err != nil {
		log.Fatalf("agentmem-demo: build_compressed_context: %v", err)
	}
	fmt.Println("--- compressed context ---")
	fmt.Println(ctxText)

	stats, err := mem.Stats()
	if err != nil {
		log.Fatalf("agentmem-demo: stats: %v", err)
	}
	fmt.Println("--- stats ---")
	fmt.Println(stats.String())
}

func seed(mem *agentmem.Store) error {
	const session = "demo-session"

	if _, err := mem.AddUserMessage("how should we handle authentication for the new service?", 1, session, []string{"auth"}); err != nil {
		return err
	}
	if _, err := mem.AddAssistantMessage("I'd suggest JWT bearer tokens validated at the gateway.", 1, session, nil, nil, "demo-model"); err != nil {
		return err
	}
	if _, err := mem.AddDecision(
		"how should we handle authentication for the new service?",
		"use JWT bearer tokens validated at the gateway",
		"stateless, avoids a shared session store across instances",
		"agentmem-demo", session, nil, []string{"auth"},
	); err != nil {
		return err
	}
	if _, err := mem.AddConvention("all new services validate JWTs at the gateway, not per-handler", []string{"auth"}, session, 0.9); err != nil {
		return err
	}
	return nil
}
