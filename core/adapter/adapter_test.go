package adapter

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	contractx "github.com/retailmesh/agentcore/core/contract"
)

func TestNewSelectsVariantFromConfig(t *testing.T) {
	t.Parallel()

	a, err := New(Config{Mode: "mock"})
	if err != nil {
		t.Fatalf("new mock: %v", err)
	}
	if _, ok := a.(*Mock); !ok {
		t.Fatalf("expected *Mock, got %T", a)
	}

	a, err = New(Config{Mode: "live", URL: "http://inventory.internal"})
	if err != nil {
		t.Fatalf("new live: %v", err)
	}
	if _, ok := a.(*Live); !ok {
		t.Fatalf("expected *Live, got %T", a)
	}

	if _, err := New(Config{Mode: "telepathy"}); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestMockUpsertFetchDelete(t *testing.T) {
	t.Parallel()

	m := NewMock()
	ctx := context.Background()

	if err := m.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	payload := []byte(`{"id":"sku-1","stock":12}`)
	if err := m.Upsert(ctx, payload); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := m.Fetch(ctx, "sku-1")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("unexpected payload: %s", got)
	}

	if err := m.Delete(ctx, "sku-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := m.Fetch(ctx, "sku-1"); !errors.Is(err, contractx.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMockUpsertRejectsPayloadWithoutID(t *testing.T) {
	t.Parallel()

	m := NewMock()
	if err := m.Upsert(context.Background(), []byte(`{"stock":12}`)); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestLiveAdapterRoundTrip(t *testing.T) {
	t.Parallel()

	var upserted []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v1/health":
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodGet && r.URL.Path == "/v1/records":
			if r.URL.Query().Get("q") == "sku-9" {
				_, _ = w.Write([]byte(`{"id":"sku-9"}`))
				return
			}
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPut && r.URL.Path == "/v1/records":
			body, _ := io.ReadAll(r.Body)
			upserted = body
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodDelete && r.URL.Path == "/v1/records/sku-9":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	l, err := NewLive(Config{Mode: ModeLive, URL: srv.URL, Token: "secret"})
	if err != nil {
		t.Fatalf("new live: %v", err)
	}
	ctx := context.Background()

	if err := l.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	got, err := l.Fetch(ctx, "sku-9")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(got) != `{"id":"sku-9"}` {
		t.Fatalf("unexpected fetch payload: %s", got)
	}
	if _, err := l.Fetch(ctx, "missing"); !errors.Is(err, contractx.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := l.Upsert(ctx, []byte(`{"id":"sku-9","stock":3}`)); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if string(upserted) != `{"id":"sku-9","stock":3}` {
		t.Fatalf("unexpected upserted body: %s", upserted)
	}
	if err := l.Delete(ctx, "sku-9"); err != nil {
		t.Fatalf("delete: %v", err)
	}
}
