// Package groundwork is a retrieval-augmented query engine.
//
// Groundwork answers natural-language questions over private document
// collections: it embeds the question, retrieves and reranks matching
// chunks from a vector store, and generates a grounded answer with an
// LLM, with per-document source attribution.
//
// # Quick Start
//
// Install the CLI:
//
//	go install github.com/groundwork-ai/groundwork/cmd/groundwork@latest
//
// Create a configuration:
//
//	llm:
//	  type: openai
//	  model: gpt-4o-mini
//	  api_key: ${OPENAI_API_KEY}
//
//	vector_store:
//	  type: qdrant
//	  host: localhost
//
// Start the server:
//
//	groundwork serve --config config.yaml
//
// Without a config file the engine starts with the embedded chromem
// vector store and an in-process SQLite database.
//
// # Using as Go Library
//
// Import the packages directly:
//
//	import (
//	    "github.com/groundwork-ai/groundwork/pkg/config"
//	    "github.com/groundwork-ai/groundwork/pkg/runtime"
//	    "github.com/groundwork-ai/groundwork/pkg/search"
//	)
//
// runtime.New wires the full service graph from a config; the search
// and conversation services are then ready to call.
//
// # Key Features
//
//   - Six-stage query pipeline: resolution, query enhancement,
//     retrieval, reranking, optional chain-of-thought reasoning,
//     generation
//   - Private collections with owner and reader access control
//   - Multi-turn conversations with context building and per-session
//     token budgets
//   - Answer quality evaluation (embedding cosine or LLM judges)
//   - Pluggable vector stores: chromem (embedded), Qdrant, Pinecone
//   - Post-generation enrichment through an external tool gateway
package groundwork
