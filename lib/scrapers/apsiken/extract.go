package apsiken

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"apharvest/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// ExtractionError means a response could not be parsed into the expected
// shape. Non-fatal: the harvester counts and decides whether to skip or,
// past its tolerance, fail the session.
type ExtractionError struct {
	Reason string
}

func (e *ExtractionError) Error() string {
	return "extract: " + e.Reason
}

// RawQuestion carries the source-native fields of one extracted question.
// Era labels, category text and choices are untouched here; the
// normalizer produces the canonical record.
type RawQuestion struct {
	EraLabel     string
	CategoryPath []string
	Text         string
	Choices      []string
	// AnswerIndex is -1 when the answer marker was missing.
	AnswerIndex int
	Explanation string
	SourceURL   string
	// Number is the source's own question number, 0 when unknown.
	Number int
}

// HiddenParams are the form fields the site threads from one question
// page into the next request.
type HiddenParams struct {
	Q      string
	R      string
	C      string
	Result string
}

// Page is the parse result of one randomized-mode response.
type Page struct {
	Question RawQuestion
	// PageNo is the 1-based number shown on the page ("第N問").
	PageNo int
	// Total is the parsed total-question-count hint, 0 when absent. It
	// is an early-exit optimization only, never a convergence criterion
	// by itself.
	Total  int
	Hidden HiddenParams
}

var (
	pageNoRegex = regexp.MustCompile(`第(\d+)問`)
	totalRegex  = regexp.MustCompile(`選択中の問題(\d+)問`)
)

var answerCharIndex = map[string]int{
	"ア": 0,
	"イ": 1,
	"ウ": 2,
	"エ": 3,
}

var choiceIDs = []string{"select_a", "select_i", "select_u", "select_e"}

func newDocument(body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &ExtractionError{Reason: "unparseable html: " + err.Error()}
	}
	return doc, nil
}

func cleanSelection(sel *goquery.Selection) string {
	return htmlutil.CleanText(sel)
}

// ParseQuestionPage pulls one question out of a randomized-mode response.
// Responses that are still the exam-filter config page (no question
// block, no page marker) come back as an ExtractionError.
func ParseQuestionPage(body []byte, session Session) (Page, error) {
	doc, err := newDocument(body)
	if err != nil {
		return Page{}, err
	}

	if doc.Find(".selectList").Length() == 0 {
		return Page{}, &ExtractionError{Reason: "question block not found"}
	}

	var page Page
	if groups := pageNoRegex.FindSubmatch(body); len(groups) >= 2 {
		page.PageNo, _ = strconv.Atoi(string(groups[1]))
	}
	if page.PageNo == 0 {
		return Page{}, &ExtractionError{Reason: "page marker not found"}
	}
	if groups := totalRegex.FindSubmatch(body); len(groups) >= 2 {
		page.Total, _ = strconv.Atoi(string(groups[1]))
	}

	q := RawQuestion{
		EraLabel:    session.Label,
		Text:        cleanSelection(doc.Find("h3.qno + div").First()),
		Explanation: cleanSelection(doc.Find("#kaisetsu")),
		AnswerIndex: -1,
	}

	for _, id := range choiceIDs {
		q.Choices = append(q.Choices, cleanSelection(doc.Find("#"+id)))
	}

	answerChar := strings.TrimSpace(doc.Find("#answerChar").Text())
	if idx, ok := answerCharIndex[answerChar]; ok {
		q.AnswerIndex = idx
	}

	q.SourceURL = doc.Find(`meta[property="og:url"]`).AttrOr("content", session.StartURL)
	q.CategoryPath = extractCategoryPath(doc)
	q.Number = extractQuestionNumber(doc)

	page.Question = q
	page.Hidden = extractHiddenParams(doc)
	return page, nil
}

// extractCategoryPath reads the breadcrumb under the 分類 heading and
// splits it on the site's assorted separator glyphs.
func extractCategoryPath(doc *goquery.Document) []string {
	var raw string
	doc.Find("h3").EachWithBreak(func(_ int, h3 *goquery.Selection) bool {
		if !strings.Contains(h3.Text(), "分類") {
			return true
		}
		raw = cleanSelection(h3.NextAllFiltered("div").First())
		return false
	})
	if raw == "" {
		return nil
	}

	raw = strings.ReplaceAll(raw, "&raquo;", "»")
	raw = strings.ReplaceAll(raw, "＞", "»")

	var parts []string
	for _, p := range strings.Split(raw, "»") {
		p = strings.TrimSpace(p)
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// extractQuestionNumber derives the source question number from the
// hidden _q field, whose value ends in "_<number>".
func extractQuestionNumber(doc *goquery.Document) int {
	value := doc.Find(`input[name="_q"]`).AttrOr("value", "")
	if value == "" {
		return 0
	}
	parts := strings.Split(value, "_")
	n, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return 0
	}
	return n
}

func extractHiddenParams(doc *goquery.Document) HiddenParams {
	attr := func(name string) string {
		return doc.Find(`input[name="` + name + `"]`).AttrOr("value", "")
	}
	hidden := HiddenParams{
		Q:      attr("_q"),
		R:      attr("_r"),
		C:      attr("_c"),
		Result: attr("result"),
	}
	if hidden.Result == "" {
		hidden.Result = "-1"
	}
	return hidden
}

type apiQuestion struct {
	No          int      `json:"no"`
	Era         string   `json:"era"`
	Category    string   `json:"category"`
	Question    string   `json:"question"`
	Choices     []string `json:"choices"`
	Answer      int      `json:"answer"`
	Explanation string   `json:"explanation"`
	URL         string   `json:"url"`
}

type apiPayload struct {
	Questions []apiQuestion `json:"questions"`
	NextPage  string        `json:"nextPage"`
	Total     int           `json:"total"`
}

// ParseAPIPage decodes one page of the deterministic JSON API. The
// returned token requests the next page; empty means done.
func ParseAPIPage(body []byte) ([]RawQuestion, string, error) {
	var payload apiPayload
	err := json.Unmarshal(body, &payload)
	if err != nil {
		return nil, "", &ExtractionError{Reason: "unparseable api payload: " + err.Error()}
	}

	questions := make([]RawQuestion, 0, len(payload.Questions))
	for _, q := range payload.Questions {
		questions = append(questions, RawQuestion{
			EraLabel:     q.Era,
			CategoryPath: []string{q.Category},
			Text:         q.Question,
			Choices:      q.Choices,
			AnswerIndex:  q.Answer,
			Explanation:  q.Explanation,
			SourceURL:    q.URL,
			Number:       q.No,
		})
	}
	return questions, payload.NextPage, nil
}
