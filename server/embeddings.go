package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/poiesic/docvec/embedcache"
)

type singleEmbeddingRequest struct {
	Text  string `json:"text"`
	Model string `json:"model"`
}

type singleEmbeddingResponse struct {
	Success    bool      `json:"success"`
	Embedding  []float32 `json:"embedding"`
	Cached     bool      `json:"cached"`
	Model      string    `json:"model"`
	Dimensions int       `json:"dimensions"`
}

func (s *Server) handleSingleEmbedding(c echo.Context) error {
	var req singleEmbeddingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := s.checkModel(req.Model); err != nil {
		return err
	}

	vector, cached, err := s.embeddings.GetEmbedding(c.Request().Context(), req.Text)
	if err != nil {
		return embeddingError(err)
	}

	return c.JSON(http.StatusOK, singleEmbeddingResponse{
		Success:    true,
		Embedding:  vector,
		Cached:     cached,
		Model:      s.embeddings.Model(),
		Dimensions: len(vector),
	})
}

type batchEmbeddingsRequest struct {
	Texts     []string `json:"texts"`
	Model     string   `json:"model"`
	BatchSize int      `json:"batchSize"`
}

type batchItem struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
	Cached    bool      `json:"cached"`
}

type batchFailure struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

type batchEmbeddingsResponse struct {
	Success    bool           `json:"success"`
	Embeddings []batchItem    `json:"embeddings"`
	Total      int            `json:"total"`
	Successful int            `json:"successful"`
	Failed     int            `json:"failed"`
	CacheHits  int            `json:"cacheHits"`
	Failures   []batchFailure `json:"failures,omitempty"`
}

func (s *Server) handleBatchEmbeddings(c echo.Context) error {
	var req batchEmbeddingsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := s.checkModel(req.Model); err != nil {
		return err
	}

	result, err := s.embeddings.GetEmbeddingsBatch(c.Request().Context(), req.Texts, req.BatchSize)
	if err != nil {
		return embeddingError(err)
	}

	resp := batchEmbeddingsResponse{
		Success:    result.Success(),
		Embeddings: make([]batchItem, 0, len(result.Results)),
		Total:      result.Total,
		Successful: result.Successful,
		Failed:     result.Failed,
		CacheHits:  result.CacheHits,
	}
	for _, r := range result.Results {
		resp.Embeddings = append(resp.Embeddings, batchItem{Index: r.Index, Embedding: r.Vector, Cached: r.Cached})
	}
	for _, f := range result.Failures {
		resp.Failures = append(resp.Failures, batchFailure{Index: f.Index, Error: f.Err.Error()})
	}

	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleClearCache(c echo.Context) error {
	cleared, err := s.embeddings.Clear(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"clearedCount": cleared})
}

func (s *Server) handleCacheStats(c echo.Context) error {
	count, ttl, err := s.embeddings.Stats(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"cachedCount": count,
		"ttlSeconds":  int(ttl.Seconds()),
	})
}

// checkModel rejects requests for a model other than the configured one.
// The cache is keyed by (text, model); serving a different model here
// would silently return vectors from the wrong embedding space.
func (s *Server) checkModel(model string) error {
	if model != "" && model != s.embeddings.Model() {
		return echo.NewHTTPError(http.StatusBadRequest, "unsupported model: "+model)
	}
	return nil
}

func embeddingError(err error) error {
	switch {
	case errors.Is(err, embedcache.ErrRateLimited):
		return echo.NewHTTPError(http.StatusTooManyRequests, err.Error())
	case errors.Is(err, embedcache.ErrEmptyText):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return err
	}
}
