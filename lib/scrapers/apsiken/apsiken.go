// Package apsiken talks to the AP exam archive at www.ap-siken.com.
//
// The site serves two shapes: a stateful form endpoint that returns one
// randomized question per POST, and (for mirrored archives) a paginated
// JSON API. Extraction stays source-native here; canonical values are
// produced downstream by the normalizer.
package apsiken

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"apharvest/lib/fetch"
	"apharvest/lib/htmlutil"
	"apharvest/lib/normalize"

	"github.com/PuerkitoBio/goquery"
)

const BaseURL = "https://www.ap-siken.com/apkakomon.php"

// Fetcher is the transport the client runs on. Tests inject a fake; the
// CLI passes *fetch.Client.
type Fetcher interface {
	Fetch(ctx context.Context, req fetch.Request) ([]byte, error)
}

// Session identifies one exam administration and how to reach it.
// A non-empty APIURL selects the deterministic paginated mode, otherwise
// questions are sampled from the randomized form endpoint.
type Session struct {
	Label     string `json:"label"`
	Year      int    `json:"year"`
	TimesCode string `json:"times_code"`
	StartURL  string `json:"start_url"`
	APIURL    string `json:"api_url"`
	Category  string `json:"category"`
}

func (s Session) Deterministic() bool {
	return s.APIURL != ""
}

type Client struct {
	fetcher Fetcher
	baseURL string
}

func NewClient(fetcher Fetcher) *Client {
	return &Client{fetcher: fetcher, baseURL: BaseURL}
}

func (c *Client) startURL(s Session) string {
	if s.StartURL != "" {
		return s.StartURL
	}
	return c.baseURL
}

// DiscoverSessions scrapes the exam-selection checkboxes off the start
// page. Checkboxes whose label does not parse to a year are skipped,
// they select filters rather than administrations.
func (c *Client) DiscoverSessions(ctx context.Context) ([]Session, error) {
	body, err := c.fetcher.Fetch(ctx, fetch.Request{URL: c.baseURL})
	if err != nil {
		return nil, err
	}
	doc, err := newDocument(body)
	if err != nil {
		return nil, err
	}

	var sessions []Session
	doc.Find(`input[name="times[]"]`).Each(func(_ int, input *goquery.Selection) {
		code := input.AttrOr("value", "")
		if code == "" {
			return
		}

		label := ""
		parent := input.Parent()
		if goquery.NodeName(parent) == "label" {
			label = cleanSelection(parent)
		} else if node := input.Get(0); node != nil && node.NextSibling != nil {
			label = strings.TrimSpace(htmlutil.GetText(node.NextSibling))
		}
		if label == "" {
			return
		}

		year, err := normalize.EraToGregorian(label)
		if err != nil {
			return
		}
		sessions = append(sessions, Session{
			Label:     label,
			Year:      year,
			TimesCode: code,
			StartURL:  c.baseURL,
		})
	})

	return sessions, nil
}

// PageState carries the per-session tokens the site threads between
// consecutive question posts.
type PageState struct {
	Sid       string
	StartTime string
	Hidden    HiddenParams
}

var sidRegex = regexp.MustCompile(`name="sid" value="([a-f0-9]+)"`)

// StartState fetches the session start page and pulls out the server-side
// session id every question post must echo back.
func (c *Client) StartState(ctx context.Context, s Session) (PageState, error) {
	body, err := c.fetcher.Fetch(ctx, fetch.Request{URL: c.startURL(s)})
	if err != nil {
		return PageState{}, err
	}
	groups := sidRegex.FindSubmatch(body)
	if len(groups) < 2 {
		return PageState{}, &ExtractionError{Reason: "sid not found in start page"}
	}
	return PageState{
		Sid:       string(groups[1]),
		StartTime: strconv.FormatInt(time.Now().Unix(), 10),
		Hidden:    HiddenParams{Result: "0"},
	}, nil
}

// QuestionPage posts the exam-filter form for one question number. The
// response is cached under sid-qno so reruns replay without traffic.
func (c *Client) QuestionPage(ctx context.Context, s Session, state PageState, qno int) ([]byte, error) {
	return c.fetcher.Fetch(ctx, fetch.Request{
		URL:      c.startURL(s),
		Form:     questionForm(s.TimesCode, state, qno),
		Headers:  map[string]string{"Referer": c.startURL(s)},
		CacheKey: fmt.Sprintf("%s-%d", state.Sid, qno),
	})
}

// questionForm reproduces the browser's filter payload: every category
// selected, restricted to one administration via timesFilter.
func questionForm(timesCode string, state PageState, qno int) url.Values {
	form := url.Values{}
	form.Add("times[]", timesCode)

	form.Add("fields[]", "te_all")
	for cat := 1; cat <= 13; cat++ {
		form.Add("categories[]", strconv.Itoa(cat))
	}
	form.Add("fields[]", "ma_all")
	for cat := 14; cat <= 16; cat++ {
		form.Add("categories[]", strconv.Itoa(cat))
	}
	form.Add("fields[]", "st_all")
	for cat := 17; cat <= 23; cat++ {
		form.Add("categories[]", strconv.Itoa(cat))
	}

	form.Add("options[]", "timesFilter")
	form.Set("moshi", "mix_all")
	form.Set("moshi_cnt", "40")
	form.Set("addition", "0")
	form.Set("mode", "1")
	form.Set("qno", strconv.Itoa(qno))
	form.Set("sid", state.Sid)
	result := state.Hidden.Result
	if result == "" {
		result = "-1"
	}
	form.Set("result", result)
	form.Set("checkflag", "-1")
	form.Set("startTime", state.StartTime)
	form.Set("_q", state.Hidden.Q)
	form.Set("_r", state.Hidden.R)
	form.Set("_c", state.Hidden.C)
	return form
}

// APIPage fetches one page of the deterministic JSON API. An empty token
// requests the first page.
func (c *Client) APIPage(ctx context.Context, s Session, pageToken string) ([]byte, error) {
	req := fetch.Request{URL: s.APIURL}
	if pageToken != "" {
		req.Query = url.Values{"page": {pageToken}}
	}
	return c.fetcher.Fetch(ctx, req)
}
