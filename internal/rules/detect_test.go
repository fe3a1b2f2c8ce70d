package rules

import (
	"strings"
	"testing"
)

func mustRule(t *testing.T, raw RawRule) *Rule {
	t.Helper()
	engine := NewEngine("")
	rule, problems := engine.BuildRule(raw, PackInfo{Name: "test", Type: PackBuiltin})
	if len(problems) > 0 {
		t.Fatalf("rule invalid: %v", problems)
	}
	return rule
}

func engineWith(t *testing.T, raws ...RawRule) *Engine {
	t.Helper()
	engine := NewEngine("")
	rules := make([]*Rule, 0, len(raws))
	for _, raw := range raws {
		rules = append(rules, mustRule(t, raw))
	}
	engine.Replace(rules)
	return engine
}

func jsonResponse(status int, body string) Response {
	return Response{Status: status, Headers: map[string]string{"content-type": "application/json"}, Body: body}
}

func TestDetectScenarioPasswordReset(t *testing.T) {
	engine := engineWith(t, RawRule{"id": "pw", "title": "Password", "regex": "password", "where": []any{"response.body"}, "confidence": 60.0})

	findings := engine.Detect(Request{Method: "GET", URL: "https://app.test/reset"}, jsonResponse(200, "your password is reset"))
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(findings))
	}
	f := findings[0]
	if f.Confidence != 80 {
		t.Fatalf("expected confidence 80, got %d", f.Confidence)
	}
	if f.DetectorID != "pw" || f.Meta.PatternID != "pw" {
		t.Fatalf("unexpected detector id %q", f.DetectorID)
	}
	if f.Evidence != "password" || f.Meta.MatchPosition != 5 || f.Meta.MatchLength != 8 {
		t.Fatalf("unexpected evidence %q at %d+%d", f.Evidence, f.Meta.MatchPosition, f.Meta.MatchLength)
	}
	if f.Meta.ContentType != "application/json" || f.Meta.ResponseStatus != 200 {
		t.Fatalf("unexpected response meta %+v", f.Meta)
	}
	if f.Meta.RequestMethod != "GET" || f.Meta.RequestURL != "https://app.test/reset" {
		t.Fatalf("unexpected request meta %+v", f.Meta)
	}
	if f.Severity != SeverityInfo {
		t.Fatalf("expected info severity without cvss, got %s", f.Severity)
	}
	if f.ID == "" {
		t.Fatalf("expected finding id")
	}
}

func TestDetectRejectsErrorResponses(t *testing.T) {
	raw := RawRule{"id": "pw", "title": "Password", "regex": "password", "confidence": 60.0}
	engine := engineWith(t, raw)

	if findings := engine.Detect(Request{}, Response{Status: 404, Body: "password not found"}); len(findings) != 0 {
		t.Fatalf("expected no findings on 404, got %d", len(findings))
	}

	raw["allow_error_responses"] = true
	engine = engineWith(t, raw)
	findings := engine.Detect(Request{}, Response{Status: 404, Body: "password not found"})
	if len(findings) != 1 {
		t.Fatalf("expected override to allow 404, got %d", len(findings))
	}
	if findings[0].Confidence != 60 {
		t.Fatalf("expected 60 (+10 short -10 error status), got %d", findings[0].Confidence)
	}
}

func TestDetectRejectsHashShapedXSSMatch(t *testing.T) {
	engine := engineWith(t, RawRule{"id": "xss-reflected", "title": "Reflected input", "regex": "[a-f0-9]{64}"})
	body := "token=" + strings.Repeat("ab12", 16)

	if findings := engine.Detect(Request{}, jsonResponse(200, body)); len(findings) != 0 {
		t.Fatalf("expected hash-shaped match to be rejected, got %d", len(findings))
	}
}

func TestDetectOneFindingPerRule(t *testing.T) {
	engine := engineWith(t, RawRule{
		"id": "secret", "title": "Secret", "regex": "secret",
		"where": []any{"request.url", "response.body"},
	})

	findings := engine.Detect(Request{URL: "https://app.test/?q=secret"}, jsonResponse(200, "secret value"))
	if len(findings) != 1 {
		t.Fatalf("expected exactly 1 finding, got %d", len(findings))
	}
	if findings[0].Meta.Where != LocRequestURL {
		t.Fatalf("expected first where location to win, got %s", findings[0].Meta.Where)
	}
}

func TestDetectDoesNotRetryAfterGateRejection(t *testing.T) {
	hash := strings.Repeat("0123456789abcdef", 2)
	req := Request{URL: "https://app.test/?id=" + hash}
	res := jsonResponse(200, "session token here")

	engine := engineWith(t, RawRule{
		"id": "tok", "title": "Token", "regex": "[0-9a-f]{32}|token",
		"where": []any{"request.url", "response.body"},
	})
	if findings := engine.Detect(req, res); len(findings) != 0 {
		t.Fatalf("expected rejected first location to end the rule, got %d", len(findings))
	}

	engine = engineWith(t, RawRule{
		"id": "tok", "title": "Token", "regex": "[0-9a-f]{32}|token",
		"where": []any{"response.body", "request.url"},
	})
	if findings := engine.Detect(req, res); len(findings) != 1 {
		t.Fatalf("expected body match to be reported, got %d", len(findings))
	}
}

func TestDetectReflectionBoostsConfidence(t *testing.T) {
	payload := "<script>alert(1)</script>"
	engine := engineWith(t, RawRule{"id": "reflected-xss", "title": "Reflected XSS", "regex": `<script>alert\(1\)</script>`, "confidence": 50.0})

	req := Request{
		Method: "POST",
		URL:    "https://app.test/comment",
		Query:  map[string]any{"q": payload},
		JSON:   map[string]any{"comment": payload, "count": 1.0},
	}
	res := Response{Status: 200, Headers: map[string]string{"Content-Type": "text/html; charset=utf-8"}, Body: "<div>" + payload + "</div>"}

	findings := engine.Detect(req, res)
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(findings))
	}
	if findings[0].Confidence != 90 {
		t.Fatalf("expected 50+10+15+15+5-5=90, got %d", findings[0].Confidence)
	}
	if !strings.Contains(findings[0].Meta.RequestSnippet, `"comment": "<script>`) {
		t.Fatalf("expected unescaped request body in snippet, got %q", findings[0].Meta.RequestSnippet)
	}
}

func TestDetectRequestBodyPrefersJSON(t *testing.T) {
	engine := engineWith(t, RawRule{"id": "body", "title": "Body", "regex": "marker", "where": "request.body"})

	findings := engine.Detect(Request{JSON: map[string]any{"a": "marker"}, Data: "nothing"}, jsonResponse(200, ""))
	if len(findings) != 1 {
		t.Fatalf("expected json body to be scanned, got %d", len(findings))
	}
	findings = engine.Detect(Request{Data: "raw marker"}, jsonResponse(200, ""))
	if len(findings) != 1 {
		t.Fatalf("expected data body to be scanned, got %d", len(findings))
	}
}

func TestDetectHeadersUseSpacedSeparators(t *testing.T) {
	engine := engineWith(t, RawRule{"id": "banner", "title": "Server banner", "regex": `"server": "nginx`, "where": "response.headers"})

	res := Response{Status: 200, Headers: map[string]string{"server": "nginx/1.2"}}
	if findings := engine.Detect(Request{}, res); len(findings) != 1 {
		t.Fatalf("expected header match, got %d findings", len(findings))
	}
}

func TestJSONText(t *testing.T) {
	cases := []struct {
		value any
		want  string
	}{
		{nil, "{}"},
		{map[string]string{}, "{}"},
		{map[string]any{"a": 1.0, "b": []any{"x", "y"}}, `{"a": 1, "b": ["x", "y"]}`},
		{map[string]string{"k": `a:b, "c"`}, `{"k": "a:b, \"c\""}`},
		{map[string]string{"html": "<b>"}, `{"html": "<b>"}`},
	}
	for _, tt := range cases {
		if got := jsonText(tt.value); got != tt.want {
			t.Fatalf("jsonText(%v): expected %s, got %s", tt.value, tt.want, got)
		}
	}
}

func TestDetectDenseFieldPenalty(t *testing.T) {
	engine := engineWith(t, RawRule{"id": "pw", "title": "Password", "regex": "password", "minified_gate": false})
	body := "password" + strings.Repeat("x", 1200)

	findings := engine.Detect(Request{}, Response{Status: 200, Body: body})
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(findings))
	}
	if findings[0].Confidence != 55 {
		t.Fatalf("expected 60+10+5-20=55, got %d", findings[0].Confidence)
	}
}

func TestDetectCategoryHeuristics(t *testing.T) {
	cases := []struct {
		name string
		rule RawRule
		body string
		want int
	}{
		{"traversal literal present", RawRule{"id": "path-traversal", "title": "Traversal", "regex": `(\.\./)?etc/passwd`}, "file=../etc/passwd", 1},
		{"traversal literal missing", RawRule{"id": "path-traversal", "title": "Traversal", "regex": `(\.\./)?etc/passwd`}, "file=etc/passwd", 0},
		{"bare sql keyword", RawRule{"id": "sql-error", "title": "SQL error", "regex": `select|syntax error`}, "SELECT", 0},
		{"padded sql keyword", RawRule{"id": "sqli", "title": "SQL injection", "regex": ` select `}, "a select b", 1},
		{"sql error message", RawRule{"id": "sql-error", "title": "SQL error", "regex": `select|syntax error`}, "you have a syntax error", 1},
		{"xss numeric match", RawRule{"id": "dom", "title": "Cross-Site Scripting", "regex": `\d+`}, "id 12345", 0},
		{"xss special heavy", RawRule{"id": "xss", "title": "XSS", "regex": `[<>"']+`}, `<<"">>`, 0},
		{"xss input at 199 chars", RawRule{"id": "xss", "title": "XSS", "regex": `q[a-z ]*`, "context_gate": false}, "q" + strings.Repeat("ab ", 66), 1},
		{"xss input over 200 chars", RawRule{"id": "xss", "title": "XSS", "regex": `q[a-z ]*`, "context_gate": false}, "q" + strings.Repeat("ab ", 67), 0},
	}
	for _, tt := range cases {
		engine := engineWith(t, tt.rule)
		if got := len(engine.Detect(Request{}, jsonResponse(200, tt.body))); got != tt.want {
			t.Fatalf("%s: expected %d findings, got %d", tt.name, tt.want, got)
		}
	}
}

func TestDetectContextGate(t *testing.T) {
	cases := []struct {
		name  string
		regex string
		body  string
		want  int
	}{
		{"match of 997 chars", `start.*end`, "start " + strings.Repeat("a-b ", 247) + "end", 1},
		{"match over 1000 chars", `start.*end`, "start " + strings.Repeat("a-b ", 250) + "end", 0},
		{"alnum run of 100 chars", `k[a-z ]+`, "k" + strings.Repeat("ab ", 33), 1},
		{"alnum run over 100 chars", `k[a-z ]+`, "k" + strings.Repeat("ab ", 34), 0},
		{"uuid", `[0-9a-f-]{36}`, "id 123e4567-e89b-12d3-a456-426614174000", 0},
		{"uuid-shaped non hex", `[0-9a-z-]{36}`, "id zzze4567-e89b-12d3-a456-4266141740zz", 1},
		{"sha1-shaped token", `[0-9a-z]{40}`, "v=" + strings.Repeat("a1", 20), 0},
		{"39 char token", `[0-9a-z]{39}`, "v=" + strings.Repeat("a1", 19) + "a", 1},
	}
	for _, tt := range cases {
		engine := engineWith(t, RawRule{"id": "ctx", "title": "Context", "regex": tt.regex, "minified_gate": false})
		if got := len(engine.Detect(Request{}, jsonResponse(200, tt.body))); got != tt.want {
			t.Fatalf("%s: expected %d findings, got %d", tt.name, tt.want, got)
		}
	}
}

func TestDetectGateOverrides(t *testing.T) {
	minifiedJS := "var password=1;" + strings.Repeat("a=b;", 400)
	large := strings.Repeat("word ", 200001) + "password"

	cases := []struct {
		name string
		rule RawRule
		res  Response
		want int
	}{
		{"binary rejected", RawRule{"title": "pw", "regex": "password"}, Response{Status: 200, Headers: map[string]string{"Content-Type": "image/png"}, Body: "password"}, 0},
		{"binary allowed", RawRule{"title": "pw", "regex": "password", "allow_binary_content": true}, Response{Status: 200, Headers: map[string]string{"Content-Type": "image/png"}, Body: "password"}, 1},
		{"pdf rejected", RawRule{"title": "pw", "regex": "password"}, Response{Status: 200, Headers: map[string]string{"Content-Type": "application/pdf"}, Body: "password"}, 0},
		{"content type gate off", RawRule{"title": "pw", "regex": "password", "content_type_gate": false}, Response{Status: 200, Headers: map[string]string{"Content-Type": "application/octet-stream"}, Body: "password"}, 1},
		{"redirect rejected", RawRule{"title": "pw", "regex": "password"}, Response{Status: 302, Body: "password"}, 0},
		{"redirect allowed", RawRule{"title": "pw", "regex": "password", "allow_redirects": true}, Response{Status: 302, Body: "password"}, 1},
		{"status gate off", RawRule{"title": "pw", "regex": "password", "status_gate": false}, Response{Status: 500, Body: "password"}, 1},
		{"minified js rejected", RawRule{"title": "pw", "regex": "password", "minified_gate": false}, Response{Status: 200, Headers: map[string]string{"Content-Type": "application/javascript"}, Body: minifiedJS}, 0},
		{"minified js allowed", RawRule{"title": "pw", "regex": "password", "minified_gate": false, "allow_minified_js": true}, Response{Status: 200, Headers: map[string]string{"Content-Type": "application/javascript"}, Body: minifiedJS}, 1},
		{"minified content rejected", RawRule{"title": "pw", "regex": "password"}, Response{Status: 200, Body: minifiedJS}, 0},
		{"minified content allowed", RawRule{"title": "pw", "regex": "password", "allow_minified_content": true}, Response{Status: 200, Body: minifiedJS}, 1},
		{"large field rejected", RawRule{"title": "pw", "regex": "password"}, Response{Status: 200, Body: large}, 0},
		{"large field allowed", RawRule{"title": "pw", "regex": "password", "allow_large_responses": true}, Response{Status: 200, Body: large}, 1},
	}
	for _, tt := range cases {
		engine := engineWith(t, tt.rule)
		if got := len(engine.Detect(Request{}, tt.res)); got != tt.want {
			t.Fatalf("%s: expected %d findings, got %d", tt.name, tt.want, got)
		}
	}
}

func TestDetectTruncatesEvidenceAndContext(t *testing.T) {
	engine := engineWith(t, RawRule{"title": "long", "regex": "a+", "context_gate": false, "minified_gate": false})
	findings := engine.Detect(Request{}, Response{Status: 200, Body: strings.Repeat("a", 3000)})
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(findings))
	}
	if len(findings[0].Evidence) != maxEvidence {
		t.Fatalf("expected evidence truncated to %d, got %d", maxEvidence, len(findings[0].Evidence))
	}
	if findings[0].Meta.MatchLength != 3000 {
		t.Fatalf("expected full match length, got %d", findings[0].Meta.MatchLength)
	}

	engine = engineWith(t, RawRule{"title": "pw", "regex": "password"})
	body := strings.Repeat("x ", 150) + "password" + strings.Repeat(" y", 150)
	findings = engine.Detect(Request{}, Response{Status: 200, Body: body})
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(findings))
	}
	if got := len(findings[0].Meta.ContextSnippet); got != 208 {
		t.Fatalf("expected 100 chars either side of the match, got %d", got)
	}
}

func TestDetectSkipsDisabledRules(t *testing.T) {
	engine := engineWith(t, RawRule{"id": "pw", "title": "Password", "regex": "password"})
	engine.TogglePattern("pw", false)
	if findings := engine.Detect(Request{}, jsonResponse(200, "password")); len(findings) != 0 {
		t.Fatalf("expected disabled rule to be skipped")
	}
}

func TestFindingRanges(t *testing.T) {
	engine := engineWith(t,
		RawRule{"id": "low", "title": "low", "regex": strings.Repeat("b", 250), "confidence": 0.0, "context_gate": false, "cvss": 10.0},
		RawRule{"id": "high", "title": "high", "regex": "b", "confidence": 100.0},
	)
	req := Request{Query: map[string]any{"q": []any{"b"}}, JSON: map[string]any{"x": "b"}}
	for _, f := range engine.Detect(req, Response{Status: 500, Body: strings.Repeat("b ", 300), Headers: map[string]string{"Content-Type": "text/html"}}) {
		t.Fatalf("expected no findings on 500, got %+v", f)
	}
	findings := engine.Detect(req, Response{Status: 200, Body: strings.Repeat("b", 250) + " c", Headers: map[string]string{"Content-Type": "text/html"}})
	if len(findings) != 2 || findings[0].DetectorID != "low" || findings[1].DetectorID != "high" {
		t.Fatalf("expected findings for low and high, got %d", len(findings))
	}
	for _, f := range findings {
		if f.Confidence < 0 || f.Confidence > 100 {
			t.Fatalf("confidence out of range: %d", f.Confidence)
		}
		if f.CVSS != nil && (*f.CVSS < 0 || *f.CVSS > 10) {
			t.Fatalf("cvss out of range: %v", *f.CVSS)
		}
	}
}

func TestIsMinified(t *testing.T) {
	if IsMinified(strings.Repeat("a", 999)) {
		t.Fatalf("short text must not be minified")
	}
	if !IsMinified(strings.Repeat("a", 1000)) {
		t.Fatalf("dense text must be minified")
	}
	if IsMinified(strings.Repeat("word ", 400)) {
		t.Fatalf("prose must not be minified")
	}
	longLines := strings.Repeat(strings.Repeat("ab ", 80)+"\n", 12)
	if !IsMinified(longLines) {
		t.Fatalf("many long lines must be minified")
	}
}
