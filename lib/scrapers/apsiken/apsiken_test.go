package apsiken

import (
	"context"
	"testing"

	"apharvest/lib/fetch"

	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	handler func(req fetch.Request) ([]byte, error)
	// requests records every request in order.
	requests []fetch.Request
}

func (f *fakeFetcher) Fetch(ctx context.Context, req fetch.Request) ([]byte, error) {
	f.requests = append(f.requests, req)
	return f.handler(req)
}

const startPageFixture = `<html><body>
<form>
<label><input type="checkbox" name="times[]" value="07_haru">令和7年春期</label>
<label><input type="checkbox" name="times[]" value="31_haru">平成31年春期</label>
<label><input type="checkbox" name="times[]" value="te_all">テクノロジ系すべて</label>
<input type="checkbox" name="times[]" value="">
<input type="hidden" name="sid" value="abc123def456">
</form>
</body></html>`

func TestDiscoverSessions(t *testing.T) {
	fetcher := &fakeFetcher{handler: func(req fetch.Request) ([]byte, error) {
		return []byte(startPageFixture), nil
	}}
	client := NewClient(fetcher)

	sessions, err := client.DiscoverSessions(context.Background())
	require.NoError(t, err)

	// the filter checkbox carries no parseable year and is skipped
	require.Equal(t, []Session{
		{Label: "令和7年春期", Year: 2025, TimesCode: "07_haru", StartURL: BaseURL},
		{Label: "平成31年春期", Year: 2019, TimesCode: "31_haru", StartURL: BaseURL},
	}, sessions)
}

func TestStartState(t *testing.T) {
	fetcher := &fakeFetcher{handler: func(req fetch.Request) ([]byte, error) {
		return []byte(startPageFixture), nil
	}}
	client := NewClient(fetcher)

	state, err := client.StartState(context.Background(), Session{TimesCode: "07_haru"})
	require.NoError(t, err)
	require.Equal(t, "abc123def456", state.Sid)
	require.NotEmpty(t, state.StartTime)
	require.Equal(t, "0", state.Hidden.Result)
}

func TestStartStateMissingSid(t *testing.T) {
	fetcher := &fakeFetcher{handler: func(req fetch.Request) ([]byte, error) {
		return []byte("<html><body>maintenance</body></html>"), nil
	}}
	client := NewClient(fetcher)

	_, err := client.StartState(context.Background(), Session{})
	require.Error(t, err)
}

func TestQuestionPageRequest(t *testing.T) {
	fetcher := &fakeFetcher{handler: func(req fetch.Request) ([]byte, error) {
		return []byte("ok"), nil
	}}
	client := NewClient(fetcher)

	state := PageState{
		Sid:       "abc123",
		StartTime: "1700000000",
		Hidden:    HiddenParams{Q: "07_haru_3", R: "r", C: "c", Result: "0"},
	}
	_, err := client.QuestionPage(context.Background(), Session{TimesCode: "07_haru"}, state, 5)
	require.NoError(t, err)
	require.Len(t, fetcher.requests, 1)

	req := fetcher.requests[0]
	require.Equal(t, BaseURL, req.URL)
	require.Equal(t, "abc123-5", req.CacheKey)
	require.Equal(t, BaseURL, req.Headers["Referer"])

	require.Equal(t, []string{"07_haru"}, req.Form["times[]"])
	require.Len(t, req.Form["categories[]"], 23)
	require.Equal(t, "5", req.Form.Get("qno"))
	require.Equal(t, "abc123", req.Form.Get("sid"))
	require.Equal(t, "0", req.Form.Get("result"))
	require.Equal(t, "1700000000", req.Form.Get("startTime"))
	require.Equal(t, "07_haru_3", req.Form.Get("_q"))
	require.Equal(t, "r", req.Form.Get("_r"))
	require.Equal(t, "c", req.Form.Get("_c"))
	require.Equal(t, "mix_all", req.Form.Get("moshi"))
}

func TestQuestionFormDefaultsResult(t *testing.T) {
	form := questionForm("07_haru", PageState{Sid: "s"}, 0)
	require.Equal(t, "-1", form.Get("result"))
}

func TestAPIPageRequest(t *testing.T) {
	fetcher := &fakeFetcher{handler: func(req fetch.Request) ([]byte, error) {
		return []byte(`{"questions": [], "nextPage": ""}`), nil
	}}
	client := NewClient(fetcher)

	session := Session{Label: "mirror", APIURL: "https://mirror.example.com/api"}
	require.True(t, session.Deterministic())

	_, err := client.APIPage(context.Background(), session, "")
	require.NoError(t, err)
	_, err = client.APIPage(context.Background(), session, "2")
	require.NoError(t, err)

	require.Len(t, fetcher.requests, 2)
	require.Empty(t, fetcher.requests[0].Query)
	require.Equal(t, "2", fetcher.requests[1].Query.Get("page"))
}
