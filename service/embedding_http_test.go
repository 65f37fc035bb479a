package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rushteam/questkit/core"
	"github.com/rushteam/questkit/model"
)

func TestEmbeddingHTTPClientPredict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/predictions/sbert" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		var req map[string][]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		vectors := make([][]float64, len(req["texts"]))
		for i := range vectors {
			vectors[i] = []float64{0.1, 0.2, 0.3}
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"vectors": vectors})
	}))
	defer srv.Close()

	client := NewEmbeddingHTTPClient(srv.URL, "sbert")
	resp, err := client.Predict(context.Background(), &core.MLPredictRequest{
		ModelName: "sbert",
		Params:    map[string]interface{}{"texts": []string{"read ten pages", "run 5km"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Vectors) != 2 || len(resp.Vectors[0]) != 3 {
		t.Errorf("Vectors = %v, want 2 vectors of dim 3", resp.Vectors)
	}
}

func TestEmbeddingHTTPClientBareArrayResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([][]float64{{1, 2}})
	}))
	defer srv.Close()

	client := NewEmbeddingHTTPClient(srv.URL, "sbert")
	resp, err := client.Predict(context.Background(), &core.MLPredictRequest{
		Params: map[string]interface{}{"texts": []string{"one"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Vectors) != 1 {
		t.Errorf("Vectors = %v, want one vector", resp.Vectors)
	}
}

func TestEmbeddingHTTPClientServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewEmbeddingHTTPClient(srv.URL, "sbert")
	_, err := client.Predict(context.Background(), &core.MLPredictRequest{
		Params: map[string]interface{}{"texts": []string{"x"}},
	})
	if err == nil {
		t.Error("server error must surface to the caller")
	}
}

func TestRemoteEmbedderOverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string][]string
		json.NewDecoder(r.Body).Decode(&req)
		vectors := make([][]float64, len(req["texts"]))
		for i := range vectors {
			vectors[i] = []float64{0.5, 0.5, 0.5, 0.5}
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"vectors": vectors})
	}))
	defer srv.Close()

	embedder := model.NewRemoteEmbedder(NewEmbeddingHTTPClient(srv.URL, "sbert"), "sbert", 4)
	if embedder.ModelID() != "remote:sbert" {
		t.Errorf("ModelID = %q", embedder.ModelID())
	}

	vec, err := embedder.EncodeText(context.Background(), "매일 아침 운동하기")
	if err != nil {
		t.Fatal(err)
	}
	if len(vec) != 4 {
		t.Errorf("dimension = %d, want 4", len(vec))
	}
}

func TestEmbeddingHTTPClientHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ping" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewEmbeddingHTTPClient(srv.URL, "sbert")
	if err := client.Health(context.Background()); err != nil {
		t.Errorf("Health = %v, want nil", err)
	}
}
