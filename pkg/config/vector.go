package config

import "fmt"

// VectorStoreConfig configures the vector database provider.
//
// Example YAML:
//
//	vector_store:
//	  type: qdrant
//	  host: qdrant.example.com
//	  port: 6334
//	  api_key: ${QDRANT_API_KEY}
type VectorStoreConfig struct {
	// Type is the vector store type: "chromem", "qdrant", "pinecone",
	// "elasticsearch", "milvus", "weaviate".
	Type string `yaml:"type"`

	// Host for external vector stores.
	Host string `yaml:"host,omitempty"`

	// Port for external vector stores.
	Port int `yaml:"port,omitempty"`

	// APIKey for authenticated access.
	APIKey string `yaml:"api_key,omitempty"`

	// UseTLS enables TLS connections.
	UseTLS bool `yaml:"use_tls,omitempty"`

	// PersistPath for chromem file persistence.
	PersistPath string `yaml:"persist_path,omitempty"`

	// IndexHost for Pinecone serverless indexes.
	IndexHost string `yaml:"index_host,omitempty"`

	// Metric is the similarity metric: "COSINE", "IP", "L2",
	// "HAMMING", "JACCARD".
	Metric string `yaml:"metric,omitempty"`

	// Index is the index kind for stores that expose it: "FLAT",
	// "IVF_FLAT", "IVF_SQ8", "IVF_PQ", "HNSW", "ANNOY".
	Index string `yaml:"index,omitempty"`
}

func (c *VectorStoreConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = "chromem" // embedded, zero-config
	}
	if c.Port == 0 {
		switch c.Type {
		case "qdrant":
			c.Port = 6334
		case "milvus":
			c.Port = 19530
		case "weaviate":
			c.Port = 8080
		case "elasticsearch":
			c.Port = 9200
		}
	}
	if c.Metric == "" {
		c.Metric = "COSINE"
	}
	if c.Index == "" {
		c.Index = "HNSW"
	}
}

func (c *VectorStoreConfig) Validate() error {
	validTypes := map[string]bool{
		"chromem":       true,
		"qdrant":        true,
		"pinecone":      true,
		"elasticsearch": true,
		"milvus":        true,
		"weaviate":      true,
	}
	if !validTypes[c.Type] {
		return fmt.Errorf("unsupported vector store type: %s", c.Type)
	}

	validMetrics := map[string]bool{
		"COSINE": true, "IP": true, "L2": true, "HAMMING": true, "JACCARD": true,
	}
	if !validMetrics[c.Metric] {
		return fmt.Errorf("unsupported metric: %s", c.Metric)
	}

	validIndexes := map[string]bool{
		"FLAT": true, "IVF_FLAT": true, "IVF_SQ8": true, "IVF_PQ": true,
		"HNSW": true, "ANNOY": true,
	}
	if !validIndexes[c.Index] {
		return fmt.Errorf("unsupported index kind: %s", c.Index)
	}

	if c.Type == "pinecone" && c.APIKey == "" {
		return fmt.Errorf("pinecone requires an api_key")
	}
	return nil
}
