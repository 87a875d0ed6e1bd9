package search

import (
	"sort"

	"github.com/groundwork-ai/groundwork/pkg/errs"
	"github.com/groundwork-ai/groundwork/pkg/storage"
	"github.com/groundwork-ai/groundwork/pkg/vector"
)

// DocumentMetadata is the per-document display view of a result set:
// one entry per distinct document, carrying its best chunk score and
// the pages the chunks came from.
type DocumentMetadata struct {
	DocumentID  string  `json:"document_id"`
	Name        string  `json:"name"`
	BestScore   float64 `json:"best_score"`
	PageNumbers []int   `json:"page_numbers,omitempty"`
}

// assembleDocuments folds scored chunks into per-document metadata.
// Every referenced document id must exist in the collection's file set;
// a miss means the vector store and the file records disagree.
func assembleDocuments(results []vector.ScoredChunk, files []*storage.FileRecord) ([]DocumentMetadata, error) {
	names := make(map[string]string, len(files))
	for _, f := range files {
		names[f.DocumentID] = f.Name
	}

	byDoc := map[string]*DocumentMetadata{}
	pages := map[string]map[int]bool{}
	for _, result := range results {
		meta := result.Chunk().Metadata
		if meta.DocumentID == "" {
			continue
		}

		name, known := names[meta.DocumentID]
		if !known {
			return nil, errs.Newf(errs.KindConfiguration, "Search", "assembleDocuments",
				"result references document %q which is not in the collection", meta.DocumentID)
		}

		doc, seen := byDoc[meta.DocumentID]
		if !seen {
			doc = &DocumentMetadata{DocumentID: meta.DocumentID, Name: name}
			byDoc[meta.DocumentID] = doc
			pages[meta.DocumentID] = map[int]bool{}
		}
		if result.Score() > doc.BestScore {
			doc.BestScore = result.Score()
		}
		if meta.PageNumber > 0 {
			pages[meta.DocumentID][meta.PageNumber] = true
		}
	}

	out := make([]DocumentMetadata, 0, len(byDoc))
	for id, doc := range byDoc {
		for page := range pages[id] {
			doc.PageNumbers = append(doc.PageNumbers, page)
		}
		sort.Ints(doc.PageNumbers)
		out = append(out, *doc)
	}

	// Best score descending, document id as the deterministic tie-break.
	sort.Slice(out, func(i, j int) bool {
		if out[i].BestScore != out[j].BestScore {
			return out[i].BestScore > out[j].BestScore
		}
		return out[i].DocumentID < out[j].DocumentID
	})
	return out, nil
}
