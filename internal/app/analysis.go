package app

import (
	"github.com/priscilla100/goose-llm/internal/anomaly"
	"github.com/priscilla100/goose-llm/internal/chunker"
	"github.com/priscilla100/goose-llm/internal/config"
	"github.com/priscilla100/goose-llm/internal/conversation"
	"github.com/priscilla100/goose-llm/internal/logging"
)

// Dataset selects the records to analyse and how to split them.
type Dataset struct {
	Path           string
	Limit          *int
	MaxTokens      int
	HeuristicsFile string
}

// Resolve fills unset fields from cfg and then from the built-in defaults.
func (d Dataset) Resolve(cfg config.Config) Dataset {
	if d.Path == "" {
		d.Path = cfg.DatasetPath()
	}
	if d.Limit == nil {
		limit := chunker.DefaultLimit
		if cfg.Dataset.Limit != nil {
			limit = *cfg.Dataset.Limit
		}
		d.Limit = &limit
	}
	if d.MaxTokens == 0 {
		d.MaxTokens = cfg.Dataset.MaxTokens
	}
	if d.MaxTokens == 0 {
		d.MaxTokens = chunker.DefaultMaxTokens
	}
	if d.HeuristicsFile == "" {
		d.HeuristicsFile = cfg.HeuristicsFile
	}
	return d
}

// Chunk splits the resolved dataset.
func (d Dataset) Chunk() ([]string, error) {
	var opts []chunker.Option
	if d.Limit != nil {
		opts = append(opts, chunker.WithLimit(*d.Limit))
	}
	return chunker.ChunkFile(d.Path, d.MaxTokens, opts...)
}

// PrepareAnalysis chunks a resolved dataset and lays out the opening conversation.
func PrepareAnalysis(d Dataset, logger *logging.Logger) (conversation.Log, []string, error) {
	limit := -1
	if d.Limit != nil {
		limit = *d.Limit
	}
	logger.Infof("Chunking %s (limit=%d, maxTokens=%d)", d.Path, limit, d.MaxTokens)

	chunks, err := d.Chunk()
	if err != nil {
		return conversation.Log{}, nil, err
	}
	for i, chunk := range chunks {
		logger.Infof("Prepared chunk %d/%d (%d characters)", i+1, len(chunks), len([]rune(chunk)))
	}

	heuristics, err := anomaly.LoadHeuristics(d.HeuristicsFile)
	if err != nil {
		return conversation.Log{}, nil, err
	}
	return anomaly.BuildAnalysis(chunks, heuristics), chunks, nil
}
