package proxypool

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sadewadee/tgproxybot/internal/domain"
)

func TestFetch_EmptyOnFailure(t *testing.T) {
	f := NewFetcher(0, 0, 0)
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	assert.Empty(t, f.Fetch(ctx, domain.ProxySource{URL: srv.URL}))
	assert.Empty(t, f.Fetch(ctx, domain.ProxySource{URL: "http://127.0.0.1:1"}))
	assert.Empty(t, f.Fetch(ctx, domain.ProxySource{URL: "::not-a-url"}))
}

func TestFetch_BodyCapped(t *testing.T) {
	f := NewFetcher(0, 64, 0)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, strings.Repeat("x", 1024))
	}))
	defer srv.Close()

	body := f.Fetch(context.Background(), domain.ProxySource{URL: srv.URL})
	assert.Len(t, body, 64)
}

func TestFetchAll_MergesSources(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "1.2.3.4:1080\n5.6.7.8:1080\n")
	}))
	defer good.Close()

	other := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "http://9.9.9.9:3128\nnot a proxy\n")
	}))
	defer other.Close()

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer broken.Close()

	f := NewFetcher(0, 0, 0)
	got := f.FetchAll(context.Background(), []domain.ProxySource{
		{URL: good.URL, DefaultScheme: domain.SchemeSOCKS5},
		{URL: other.URL, DefaultScheme: domain.SchemeHTTP},
		{URL: broken.URL, DefaultScheme: domain.SchemeSOCKS5},
	})

	assert.Len(t, got, 3)

	var urls []string
	for _, p := range got {
		urls = append(urls, p.URL())
	}
	assert.ElementsMatch(t, []string{
		"socks5://1.2.3.4:1080",
		"socks5://5.6.7.8:1080",
		"http://9.9.9.9:3128",
	}, urls)
}
