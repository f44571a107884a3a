package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"jobs-scraper/config"
	"jobs-scraper/models"
	"jobs-scraper/scraper"
	"jobs-scraper/utils"

	"github.com/stretchr/testify/require"
)

func card(id int) string {
	return fmt.Sprintf(`<li><a href="/jobs/view/%d?trk=x"></a><h3>Job %d</h3><h4>Org</h4><span class="job-search-card__location">Remote</span></li>`, id, id)
}

func newSearchServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Fetcher) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	f := NewFetcher(utils.NewHTTPClient(utils.HTTPOptions{}), Options{
		SearchURL:  srv.URL + "/search",
		Keyword:    "golang",
		Location:   "Berlin",
		PageSize:   25,
		LimitParam: "count",
	})
	return srv, f
}

func TestFetchPageHTMLFragment(t *testing.T) {
	queries := make(chan url.Values, 1)
	_, f := newSearchServer(t, func(w http.ResponseWriter, r *http.Request) {
		queries <- r.URL.Query()
		start, _ := strconv.Atoi(r.URL.Query().Get("start"))
		fmt.Fprint(w, card(start)+card(start+1))
	})

	cursor := models.Cursor{Page: 1, Offset: 25}
	page, hasMore, err := f.FetchPage(context.Background(), cursor)
	require.NoError(t, err)

	query := <-queries
	require.Equal(t, "golang", query.Get("keywords"))
	require.Equal(t, "Berlin", query.Get("location"))
	require.Equal(t, "25", query.Get("count"))
	require.Equal(t, "25", query.Get("start"))
	require.True(t, hasMore)
	require.Equal(t, cursor, page.Cursor)

	listings := scraper.NewExtractor(config.DefaultConfig().Selectors, false).Extract(page)
	require.Len(t, listings, 2)
	require.Equal(t, "Job 25", listings[0].Title)
	require.Contains(t, listings[0].Link, "/jobs/view/25")
	require.NotContains(t, listings[0].Link, "trk")
}

func TestFetchPageJSON(t *testing.T) {
	_, f := newSearchServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "application/json")
		fmt.Fprint(w, `{"listings": [{"title": "A", "url": "https://x/a"}, {"title": "B", "url": "https://x/b"}]}`)
	})

	page, hasMore, err := f.FetchPage(context.Background(), models.Cursor{})
	require.NoError(t, err)
	require.True(t, hasMore)
	require.Len(t, page.Items, 2)
}

func TestFetchPageEmptyBody(t *testing.T) {
	_, f := newSearchServer(t, func(w http.ResponseWriter, r *http.Request) {})

	page, hasMore, err := f.FetchPage(context.Background(), models.Cursor{Offset: 50})
	require.NoError(t, err)
	require.False(t, hasMore)
	require.True(t, page.Empty())
}

func TestFetchPageStatusClassification(t *testing.T) {
	cases := []struct {
		status    int
		transient bool
		terminal  bool
	}{
		{http.StatusTooManyRequests, true, false},
		{http.StatusBadGateway, true, false},
		{http.StatusForbidden, false, true},
		{http.StatusUnauthorized, false, true},
		{http.StatusBadRequest, false, false},
		{http.StatusNotFound, false, false},
	}

	for _, tc := range cases {
		t.Run(strconv.Itoa(tc.status), func(t *testing.T) {
			_, f := newSearchServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			})

			page, _, err := f.FetchPage(context.Background(), models.Cursor{})
			switch {
			case tc.terminal:
				require.True(t, utils.IsTerminal(err))
			case tc.transient:
				require.Error(t, err)
				require.False(t, utils.IsTerminal(err))
			default:
				require.NoError(t, err)
				require.True(t, page.Empty())
			}
		})
	}
}

func TestFetchDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/jobs/view/1":
			fmt.Fprint(w, `<html><body><div class="show-more-less-html__markup">
				<p>Build   pipelines.</p><p>Run Kubernetes.</p></div></body></html>`)
		case "/jobs/view/2":
			fmt.Fprint(w, `<html><body><p>expired</p></body></html>`)
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	d := NewDetailFetcher(utils.NewHTTPClient(utils.HTTPOptions{}), config.DefaultConfig().Selectors.Detail)
	require.True(t, d.SupportsConcurrency())

	text, err := d.FetchDetail(context.Background(), srv.URL+"/jobs/view/1")
	require.NoError(t, err)
	require.Equal(t, "Build pipelines.Run Kubernetes.", text)

	_, err = d.FetchDetail(context.Background(), srv.URL+"/jobs/view/2")
	require.ErrorIs(t, err, scraper.ErrDetailMissing)

	_, err = d.FetchDetail(context.Background(), srv.URL+"/jobs/view/3")
	require.Error(t, err)
	require.False(t, utils.IsTerminal(err))
}
