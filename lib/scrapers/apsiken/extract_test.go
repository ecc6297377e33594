package apsiken

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const questionPageFixture = `<html>
<head><meta property="og:url" content="https://www.ap-siken.com/kakomon/07_haru/q3.html"></head>
<body>
<p>選択中の問題80問</p>
<h3 class="qno">第3問</h3>
<div>サブネットマスクの説明として，適切なものはどれか。</div>
<ul class="selectList">
<li><div id="select_a">IPアドレスのネットワーク部とホスト部の境界を示す。</div></li>
<li><div id="select_i">MACアドレスを固定長に区切る。</div></li>
<li><div id="select_u">経路制御表を圧縮する。</div></li>
<li><div id="select_e">ドメイン名をIPアドレスに変換する。</div></li>
</ul>
<span id="answerChar">ア</span>
<div id="kaisetsu">サブネットマスクは<b>ネットワーク部</b>の長さを示すビット列です。</div>
<h3>分類</h3>
<div>テクノロジ系 » ネットワーク » 通信プロトコル</div>
<form>
<input type="hidden" name="_q" value="07_haru_3">
<input type="hidden" name="_r" value="r-token">
<input type="hidden" name="_c" value="c-token">
<input type="hidden" name="result" value="1">
<input type="hidden" name="sid" value="abc123def456">
</form>
</body>
</html>`

func TestParseQuestionPage(t *testing.T) {
	session := Session{Label: "令和7年春期", Year: 2025, TimesCode: "07_haru"}

	page, err := ParseQuestionPage([]byte(questionPageFixture), session)
	require.NoError(t, err)

	require.Equal(t, 3, page.PageNo)
	require.Equal(t, 80, page.Total)

	q := page.Question
	require.Equal(t, "令和7年春期", q.EraLabel)
	require.Equal(t, "サブネットマスクの説明として，適切なものはどれか。", q.Text)
	require.Equal(t, []string{
		"IPアドレスのネットワーク部とホスト部の境界を示す。",
		"MACアドレスを固定長に区切る。",
		"経路制御表を圧縮する。",
		"ドメイン名をIPアドレスに変換する。",
	}, q.Choices)
	require.Equal(t, 0, q.AnswerIndex)
	require.Equal(t, "サブネットマスクは ネットワーク部 の長さを示すビット列です。", q.Explanation)
	require.Equal(t, "https://www.ap-siken.com/kakomon/07_haru/q3.html", q.SourceURL)
	require.Equal(t, []string{"テクノロジ系", "ネットワーク", "通信プロトコル"}, q.CategoryPath)
	require.Equal(t, 3, q.Number)

	require.Equal(t, HiddenParams{
		Q:      "07_haru_3",
		R:      "r-token",
		C:      "c-token",
		Result: "1",
	}, page.Hidden)
}

func TestParseQuestionPageConfigPage(t *testing.T) {
	body := []byte(`<html><body><form><input name="times[]" value="07_haru"></form></body></html>`)
	_, err := ParseQuestionPage(body, Session{})
	require.Error(t, err)

	var eerr *ExtractionError
	require.ErrorAs(t, err, &eerr)
}

func TestParseQuestionPageMissingMarker(t *testing.T) {
	body := []byte(`<html><body><ul class="selectList"><li>a</li></ul></body></html>`)
	_, err := ParseQuestionPage(body, Session{})
	require.Error(t, err)
}

func TestParseQuestionPageMissingAnswer(t *testing.T) {
	body := []byte(`<html><body>
<h3 class="qno">第1問</h3><div>text</div>
<ul class="selectList"></ul>
<div id="select_a">a</div><div id="select_i">b</div>
</body></html>`)
	page, err := ParseQuestionPage(body, Session{})
	require.NoError(t, err)
	require.Equal(t, -1, page.Question.AnswerIndex)
	require.Equal(t, HiddenParams{Result: "-1"}, page.Hidden)
}

func TestParseAPIPage(t *testing.T) {
	body := []byte(`{
		"questions": [
			{
				"no": 1,
				"era": "令和7年春期",
				"category": "ネットワーク",
				"question": "q1",
				"choices": ["a", "b", "c", "d"],
				"answer": 2,
				"explanation": "e1",
				"url": "https://example.com/q1"
			},
			{"no": 2, "era": "令和7年春期", "category": "セキュリティ",
			 "question": "q2", "choices": ["a", "b"], "answer": 0, "explanation": "e2"}
		],
		"nextPage": "2",
		"total": 3
	}`)

	questions, next, err := ParseAPIPage(body)
	require.NoError(t, err)
	require.Equal(t, "2", next)
	require.Len(t, questions, 2)

	require.Equal(t, RawQuestion{
		EraLabel:     "令和7年春期",
		CategoryPath: []string{"ネットワーク"},
		Text:         "q1",
		Choices:      []string{"a", "b", "c", "d"},
		AnswerIndex:  2,
		Explanation:  "e1",
		SourceURL:    "https://example.com/q1",
		Number:       1,
	}, questions[0])
}

func TestParseAPIPageDone(t *testing.T) {
	questions, next, err := ParseAPIPage([]byte(`{"questions": [], "nextPage": ""}`))
	require.NoError(t, err)
	require.Empty(t, next)
	require.Empty(t, questions)
}

func TestParseAPIPageGarbage(t *testing.T) {
	_, _, err := ParseAPIPage([]byte(`<html>not json</html>`))
	require.Error(t, err)

	var eerr *ExtractionError
	require.ErrorAs(t, err, &eerr)
}
