// notelmd wires the research assistant backend: configuration, persistence,
// extraction, embedding, retrieval, RAG, crawling, and evaluation. The HTTP
// surface mounts on top of the services constructed here.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"notelm/internal/config"
	"notelm/internal/crawl"
	"notelm/internal/embed"
	"notelm/internal/eval"
	"notelm/internal/extract"
	"notelm/internal/ingest"
	"notelm/internal/llm"
	"notelm/internal/observability"
	"notelm/internal/rag"
	"notelm/internal/retrieve"
	"notelm/internal/store"
	"notelm/internal/textsplit"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config_load_failed")
	}
	observability.InitLogging(cfg.LogLevel, cfg.Debug)

	ctx := context.Background()
	stores, err := store.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("store_init_failed")
	}

	encoding, err := textsplit.NewCL100KEncoding()
	if err != nil {
		log.Fatal().Err(err).Msg("encoding_init_failed")
	}
	chunker := textsplit.NewChunker(encoding, cfg.ChunkSize, cfg.ChunkOverlap)

	var embedder embed.Provider = embed.NewOpenAI(cfg.OpenAIAPIKey, cfg.EmbeddingModel, cfg.EmbeddingDimensions)
	switch cfg.EmbedCacheBackend {
	case "memory":
		embedder = embed.WithCache(embedder, embed.NewMemoryCache(), cfg.EmbeddingModel)
	case "redis":
		cache, err := embed.NewRedisCache(cfg.RedisURL, 24*time.Hour)
		if err != nil {
			log.Fatal().Err(err).Msg("redis_cache_init_failed")
		}
		embedder = embed.WithCache(embedder, cache, cfg.EmbeddingModel)
	}

	provider := llm.NewOpenAI(cfg.OpenAIAPIKey, cfg.EvalModel)
	extractor := extract.NewComposite(cfg.JinaAPIKey)

	pipeline := ingest.NewPipeline(stores.Documents, stores.Tx, stores.Vector, extractor, chunker, embedder, 10)
	ingestion := ingest.NewService(stores.Notebooks, stores.Documents, pipeline, cfg.IngestMaxWorkers)

	links := crawl.NewLinkDiscoverer(cfg.CrawlRPS)
	crawler := crawl.NewService(stores.Crawls, stores.Documents, links, ingestion)

	retrieval := retrieve.NewService(stores.Documents, stores.Vector, embedder)
	answerer := rag.NewAnswerer(provider, cfg.EvalModel)
	conversations := rag.NewConversationAnswerer(answerer, stores.Conversations, retrieval)
	judge := eval.NewJudge(provider, cfg.EvalModel)
	generator := eval.NewGenerator(provider, cfg.EvalModel, time.Now().UnixNano())
	runner := eval.NewRunner(stores.Notebooks, stores.Documents, stores.Chunks, stores.Evaluations,
		retrieval, answerer, judge, generator)

	// The transport layer mounts on this bundle.
	services := Services{
		Ingestion:     ingestion,
		Crawler:       crawler,
		Retrieval:     retrieval,
		Answerer:      answerer,
		Conversations: conversations,
		Evaluator:     runner,
	}

	log.Info().
		Str("vector_backend", cfg.VectorBackend).
		Str("embedding_model", cfg.EmbeddingModel).
		Int("dimensions", cfg.EmbeddingDimensions).
		Msg("notelmd_ready")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info().Msg("notelmd_draining")
	services.Ingestion.WaitForAll()
	services.Crawler.WaitForAll()
	log.Info().Msg("notelmd_stopped")
}

// Services is the bundle the HTTP layer consumes.
type Services struct {
	Ingestion     *ingest.Service
	Crawler       *crawl.Service
	Retrieval     *retrieve.Service
	Answerer      *rag.Answerer
	Conversations *rag.ConversationAnswerer
	Evaluator     *eval.Runner
}
