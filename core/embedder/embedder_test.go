package embedder

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/bytedance/sonic"
	"github.com/gogf/gf/v2/frame/g"
	"github.com/gogf/gf/v2/os/glog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Malowking/textverse/core/config"
	"github.com/Malowking/textverse/core/errors"
)

func TestMain(m *testing.M) {
	g.Log().SetConfig(glog.Config{
		Flags:       glog.F_TIME_STD,
		Level:       glog.LEVEL_ALL,
		StdoutPrint: true,
	})
	os.Exit(m.Run())
}

func TestHFEmbedder(t *testing.T) {
	ctx := context.Background()

	t.Run("posts inputs and decodes vectors", func(t *testing.T) {
		var gotPath, gotAuth string
		var gotReq featureExtractionRequest
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			gotAuth = r.Header.Get("Authorization")
			body, _ := io.ReadAll(r.Body)
			_ = sonic.Unmarshal(body, &gotReq)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`[[0.1,0.2,0.3],[0.4,0.5,0.6]]`))
		}))
		defer srv.Close()

		emb, err := NewHFEmbedder(ctx, srv.URL+"/models/", "BAAI/bge-small-en-v1.5", "hf_token", 3, time.Second)
		require.NoError(t, err)

		vectors, err := emb.EmbedStrings(ctx, []string{"first", "second"})
		require.NoError(t, err)
		require.Len(t, vectors, 2)
		assert.InDeltaSlice(t, []float64{0.4, 0.5, 0.6}, vectors[1], 1e-9)

		assert.Equal(t, "/models/BAAI/bge-small-en-v1.5/pipeline/feature-extraction", gotPath)
		assert.Equal(t, "Bearer hf_token", gotAuth)
		assert.Equal(t, []string{"first", "second"}, gotReq.Inputs)
	})

	t.Run("empty input skips the request", func(t *testing.T) {
		emb, err := NewHFEmbedder(ctx, "http://127.0.0.1:1", "m", "", 0, time.Second)
		require.NoError(t, err)
		vectors, err := emb.EmbedStrings(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, vectors)
	})

	t.Run("api error is surfaced with code", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"Model is currently loading"}`))
		}))
		defer srv.Close()

		emb, err := NewHFEmbedder(ctx, srv.URL, "m", "k", 0, time.Second)
		require.NoError(t, err)
		_, err = emb.EmbedStrings(ctx, []string{"q"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrEmbeddingFailed))
		assert.Contains(t, err.Error(), "Model is currently loading")
	})

	t.Run("long non-json error body is cut on a rune boundary", func(t *testing.T) {
		body := strings.Repeat("é", 300)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(body))
		}))
		defer srv.Close()

		emb, err := NewHFEmbedder(ctx, srv.URL, "m", "k", 0, time.Second)
		require.NoError(t, err)
		_, err = emb.EmbedStrings(ctx, []string{"q"})
		require.Error(t, err)
		assert.True(t, utf8.ValidString(err.Error()))
		assert.Contains(t, err.Error(), strings.Repeat("é", 200)+"...")
		assert.NotContains(t, err.Error(), body)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`[[0.1,0.2]]`))
		}))
		defer srv.Close()

		emb, err := NewHFEmbedder(ctx, srv.URL, "m", "k", 384, time.Second)
		require.NoError(t, err)
		_, err = emb.EmbedStrings(ctx, []string{"q"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "expected 384")
	})

	t.Run("token level output is rejected", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`[[[0.1,0.2],[0.3,0.4]]]`))
		}))
		defer srv.Close()

		emb, err := NewHFEmbedder(ctx, srv.URL, "m", "k", 0, time.Second)
		require.NoError(t, err)
		_, err = emb.EmbedStrings(ctx, []string{"q"})
		assert.Error(t, err)
	})
}

func TestNewEmbedder(t *testing.T) {
	ctx := context.Background()

	t.Run("default provider is huggingface", func(t *testing.T) {
		conf := config.Default().Embedding
		conf.Provider = ""
		emb, err := NewEmbedder(ctx, &conf, "hf_x")
		require.NoError(t, err)
		_, ok := emb.(*HFEmbedder)
		assert.True(t, ok)
	})

	t.Run("unsupported provider", func(t *testing.T) {
		conf := config.Default().Embedding
		conf.Provider = "word2vec"
		_, err := NewEmbedder(ctx, &conf, "hf_x")
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrModelConfigInvalid))
	})

	t.Run("missing model", func(t *testing.T) {
		conf := config.Default().Embedding
		conf.Model = ""
		_, err := NewEmbedder(ctx, &conf, "hf_x")
		assert.Error(t, err)
	})
}

func TestEmbedQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[[1,0,0]]`))
	}))
	defer srv.Close()

	emb, err := NewHFEmbedder(context.Background(), srv.URL, "m", "", 3, time.Second)
	require.NoError(t, err)
	v, err := EmbedQuery(context.Background(), emb, "hello")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0, 0}, v)
}
