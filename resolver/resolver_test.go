package resolver

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/liamcoop/linker/lookup"
	"github.com/liamcoop/linker/rules"
)

const origin = "https://linker.test"

func numberRule(id, url string) rules.Rule {
	return rules.Rule{ID: id, PatternType: rules.PatternNumber, Pattern: `^\d+$`, URL: url}
}

func testConditions() []rules.Condition {
	return []rules.Condition{
		{ID: "c-mr", Key: "mr", Rules: []rules.Rule{
			numberRule("mr-1", "https://x.test/mr/%s"),
		}},
		{ID: "c-env", Key: "env", Rules: []rules.Rule{
			{ID: "env-1", PatternType: rules.PatternEmpty, Pattern: `^$`, URL: "https://${env}.test/"},
			numberRule("env-2", "https://${env}.test/item/%s"),
		}},
		{ID: "c-case", Key: "case", TrimInput: true, LowercaseInput: true, Rules: []rules.Rule{
			{ID: "case-1", PatternType: rules.PatternConst, Pattern: "abc", URL: "https://case.test/%s"},
		}},
		{ID: "c-search", Key: "search", Rules: []rules.Rule{
			{ID: "search-1", PatternType: rules.PatternString, Pattern: `^.*$`, URL: "https://s.test/?q=%s"},
		}},
		{ID: "c-bad", Key: "bad", Rules: []rules.Rule{
			{ID: "bad-1", PatternType: rules.PatternRegex, Pattern: `(unclosed`, URL: "https://never.test"},
			numberRule("bad-2", "https://bad.test/%s"),
			{ID: "bad-3", PatternType: rules.PatternString, Pattern: `^.*$`, URL: "https://later.test"},
		}},
		{ID: "c-hop", Key: "hop", Rules: []rules.Rule{
			numberRule("hop-1", "/?q=go+env+%s"),
		}},
		{ID: "c-bare", Key: "bare", Rules: []rules.Rule{
			numberRule("bare-1", "go mr %s"),
		}},
		{ID: "c-abs", Key: "abs", Rules: []rules.Rule{
			numberRule("abs-1", origin+"/?q=go+mr+%s"),
		}},
		{ID: "c-foreign", Key: "foreign", Rules: []rules.Rule{
			numberRule("foreign-1", "https://elsewhere.test/?q=go+mr+%s"),
		}},
		{ID: "c-path", Key: "path", Rules: []rules.Rule{
			numberRule("path-1", origin+"/search?q=go+mr+%s"),
		}},
	}
}

func testTables() []lookup.Table {
	return []lookup.Table{
		{ID: "t-docs", Key: "docs", Entries: []lookup.Entry{
			{ID: "e1", Description: "React", Tags: []string{"react"}, URL: "https://react.test"},
			{ID: "e2", Description: "React TS", Tags: []string{"react", "ts"}, URL: "https://react.test/ts"},
		}},
		{ID: "t-links", Key: "links", Entries: []lookup.Entry{
			{ID: "l1", Description: "MR", Tags: []string{"mr"}, URL: "/?q=go+mr+${id}"},
			{ID: "l2", Description: "Env", Tags: []string{"env"}, URL: "https://${env}.test/"},
		}},
	}
}

func evaluate(q string, params map[string]string) Evaluation {
	return Evaluate(q, testConditions(), testTables(), Options{Origin: origin, Params: params})
}

func stepKinds(steps []Step) []string {
	kinds := make([]string, 0, len(steps))
	for _, s := range steps {
		kinds = append(kinds, StepKind(s))
	}
	return kinds
}

func TestEvaluateResults(t *testing.T) {
	testCases := []struct {
		name   string
		query  string
		params map[string]string
		want   Result
	}{
		{"rule match redirects", "go mr 1234", nil, Redirect{URL: "https://x.test/mr/1234"}},
		{"no rule match", "go mr abc", nil, Navigate{To: "/go/?key=mr"}},
		{"unknown condition", "go zz 1", nil, Navigate{To: "/go/?key=zz"}},
		{"single entry redirects", "find docs react ts", nil, Redirect{URL: "https://react.test/ts"}},
		{"tag order irrelevant", "find docs ts react", nil, Redirect{URL: "https://react.test/ts"}},
		{"no entry matches", "find docs vue", nil, Navigate{To: "/find/?key=docs"}},
		{"unknown table", "find zz react", nil, Navigate{To: "/find/?key=zz"}},
		{"const mismatch", "go case a b", nil, Navigate{To: "/go/?key=case"}},
		{"input is encoded", "go search a b&c", nil, Redirect{URL: "https://s.test/?q=a%20b%26c"}},
		{"normalised input", "go case ABC", nil, Redirect{URL: "https://case.test/abc"}},
		{"invalid regex skipped", "go bad 7", nil, Redirect{URL: "https://bad.test/7"}},
		{"flag fills placeholder", "go env 5 --env=prod", nil, Redirect{URL: "https://prod.test/item/5"}},
		{"flags alone are enough", "go env --env=prod", nil, Redirect{URL: "https://prod.test/"}},
		{"url params alone are enough", "go env", map[string]string{"env": "stage"}, Redirect{URL: "https://stage.test/"}},
		{"flags override url params", "go env --env=prod", map[string]string{"env": "stage"}, Redirect{URL: "https://prod.test/"}},
		{"relative chain", "go hop 5 --env=qa", nil, Redirect{URL: "https://qa.test/item/5"}},
		{"bare query chain", "go bare 42", nil, Redirect{URL: "https://x.test/mr/42"}},
		{"same origin chain", "go abs 8", nil, Redirect{URL: "https://x.test/mr/8"}},
		{"other origin is external", "go foreign 8", nil, Redirect{URL: "https://elsewhere.test/?q=go+mr+8"}},
		{"non-root path is external", "go path 8", nil, Redirect{URL: origin + "/search?q=go+mr+8"}},
		{"entry chain", "find links mr --id=77", nil, Redirect{URL: "https://x.test/mr/77"}},
		{"entry params", "find links env --env=dev", nil, Redirect{URL: "https://dev.test/"}},
		{"sentinel go", "go mr ?", nil, Navigate{To: "/go/?key=mr"}},
		{"sentinel find", "find docs ?", nil, Navigate{To: "/find/?key=docs"}},
		{"sentinel other module", "zz docs ?", nil, Navigate{To: "/go/?key=docs"}},
		{"sentinel key encoded", "go a&b ?", nil, Navigate{To: "/go/?key=a%26b"}},
		{"module only", "go", nil, Navigate{To: "/go/"}},
		{"find module only", "find", nil, Navigate{To: "/find/"}},
		{"command without param", "go mr", nil, Navigate{To: "/go/"}},
		{"unknown module", "zz mr 1", nil, Navigate{To: "/go/"}},
		{"surrounding whitespace", "  go mr 1  ", nil, Redirect{URL: "https://x.test/mr/1"}},
		{"empty", "", nil, None{}},
		{"blank", "   ", nil, None{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := evaluate(tc.query, tc.params).Result
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("Evaluate(%q).Result = %#v, want %#v", tc.query, got, tc.want)
			}
		})
	}
}

func TestEvaluateEmptyQueryHasNoSteps(t *testing.T) {
	got := evaluate("", nil)
	if got.Steps == nil || len(got.Steps) != 0 {
		t.Errorf("Steps = %#v, want empty non-nil", got.Steps)
	}
}

func TestEvaluatePicker(t *testing.T) {
	got := evaluate("find docs react --lang=en", map[string]string{"theme": "dark"})

	picker, ok := got.Result.(Picker)
	if !ok {
		t.Fatalf("Result = %#v, want Picker", got.Result)
	}
	if picker.Table.Key != "docs" {
		t.Errorf("Table = %q", picker.Table.Key)
	}
	if len(picker.Entries) != 2 || picker.Entries[0].ID != "e1" || picker.Entries[1].ID != "e2" {
		t.Errorf("Entries = %+v", picker.Entries)
	}
	if !reflect.DeepEqual(picker.Tags, []string{"react"}) {
		t.Errorf("Tags = %v", picker.Tags)
	}
	want := map[string]string{"theme": "dark", "lang": "en"}
	if !reflect.DeepEqual(picker.Params, want) {
		t.Errorf("Params = %v, want %v", picker.Params, want)
	}

	wantKinds := []string{"parse", "table_found", "entry_multi"}
	if kinds := stepKinds(got.Steps); !reflect.DeepEqual(kinds, wantKinds) {
		t.Errorf("steps = %v, want %v", kinds, wantKinds)
	}
}

func TestPickerEntryURL(t *testing.T) {
	p := Picker{Params: map[string]string{"id": "3"}}

	if got := p.EntryURL(lookup.Entry{URL: "https://x.test/${id}"}); got != "https://x.test/3" {
		t.Errorf("EntryURL() = %q", got)
	}
	if got := p.EntryURL(lookup.Entry{URL: "go mr ${id}"}); got != "/?q=go+mr+3" {
		t.Errorf("EntryURL() = %q", got)
	}
}

func TestEvaluateTrace(t *testing.T) {
	testCases := []struct {
		query string
		want  []string
	}{
		{"go mr 1", []string{"parse", "condition_found", "rule_match"}},
		{"go mr abc", []string{"parse", "condition_found", "rule_fail"}},
		{"go zz 1", []string{"parse", "condition_not_found"}},
		{"go bad 7", []string{"parse", "condition_found", "rule_fail", "rule_match"}},
		{"go hop 5", []string{"parse", "condition_found", "rule_match", "chain", "parse", "condition_found", "rule_fail", "rule_match"}},
		{"find docs react ts", []string{"parse", "table_found", "entry_match"}},
		{"find docs vue", []string{"parse", "table_found", "entry_no_match"}},
		{"find zz a", []string{"parse", "table_not_found"}},
		{"find links mr --id=1", []string{"parse", "table_found", "entry_match", "chain", "parse", "condition_found", "rule_match"}},
		{"go mr ?", []string{"parse", "sentinel"}},
		{"go", []string{"parse"}},
	}

	for _, tc := range testCases {
		t.Run(tc.query, func(t *testing.T) {
			got := stepKinds(evaluate(tc.query, nil).Steps)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("steps = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestEvaluateStepDetails(t *testing.T) {
	got := evaluate("go bad 7 --x=1", map[string]string{"y": "2"})

	parse := got.Steps[0].(ParseStep)
	if parse.Module != "go" || parse.Command != "bad" || parse.Param != "7" || !parse.HasParam {
		t.Errorf("parse step = %+v", parse)
	}
	if !reflect.DeepEqual(parse.Flags, map[string]string{"x": "1"}) {
		t.Errorf("Flags = %v", parse.Flags)
	}
	if !reflect.DeepEqual(parse.Params, map[string]string{"x": "1", "y": "2"}) {
		t.Errorf("Params = %v", parse.Params)
	}

	fail := got.Steps[2].(RuleFailStep)
	if fail.Rule.ID != "bad-1" || fail.Error == "" {
		t.Errorf("rule fail step = %+v, want compile error for bad-1", fail)
	}

	match := got.Steps[3].(RuleMatchStep)
	if match.Rule.ID != "bad-2" || match.RawURL != "https://bad.test/7" || match.Condition.Key != "bad" {
		t.Errorf("rule match step = %+v", match)
	}

	// bad-3 would also match but comes after the decisive rule
	if len(got.Steps) != 4 {
		t.Errorf("expected no steps after the match, got %v", stepKinds(got.Steps))
	}
}

func TestEvaluateChainStep(t *testing.T) {
	got := evaluate("go hop 5", nil)

	chain, ok := got.Steps[3].(ChainStep)
	if !ok {
		t.Fatalf("step 3 = %#v, want ChainStep", got.Steps[3])
	}
	if chain.FromURL != "/?q=go+env+5" || chain.ToQuery != "go env 5" || chain.Depth != 0 {
		t.Errorf("chain step = %+v", chain)
	}
	if d := StepDepth(got.Steps[4]); d != 1 {
		t.Errorf("nested parse depth = %d, want 1", d)
	}
	if got.Hops() != 1 {
		t.Errorf("Hops() = %d, want 1", got.Hops())
	}
}

func TestEvaluateCycleFails(t *testing.T) {
	conditions := []rules.Condition{
		{ID: "1", Key: "mr", Rules: []rules.Rule{numberRule("a", "/?q=go+other+%s")}},
		{ID: "2", Key: "other", Rules: []rules.Rule{numberRule("b", "/?q=go+mr+%s")}},
	}

	got := Evaluate("go mr 5", conditions, nil, Options{})

	want := Failure{Message: "Max chain depth reached (possible cycle)"}
	if !reflect.DeepEqual(got.Result, want) {
		t.Fatalf("Result = %#v, want %#v", got.Result, want)
	}

	parses := 0
	for _, s := range got.Steps {
		if _, ok := s.(ParseStep); ok {
			parses++
		}
	}
	if parses != MaxDepth+1 {
		t.Errorf("resolution attempts = %d, want %d", parses, MaxDepth+1)
	}
	if got.Hops() != MaxDepth+1 {
		t.Errorf("Hops() = %d, want %d", got.Hops(), MaxDepth+1)
	}

	last, ok := got.Steps[len(got.Steps)-1].(ErrorStep)
	if !ok || last.Depth != MaxDepth+1 {
		t.Errorf("last step = %#v, want ErrorStep at depth %d", got.Steps[len(got.Steps)-1], MaxDepth+1)
	}
}

func TestEvaluateChainWithinLimit(t *testing.T) {
	// A chain of exactly MaxDepth hops still resolves
	var conditions []rules.Condition
	for i := 0; i < MaxDepth; i++ {
		conditions = append(conditions, rules.Condition{
			ID:    fmt.Sprint(i),
			Key:   fmt.Sprintf("c%d", i),
			Rules: []rules.Rule{numberRule("r", fmt.Sprintf("/?q=go+c%d+%%s", i+1))},
		})
	}
	conditions = append(conditions, rules.Condition{
		ID: "end", Key: fmt.Sprintf("c%d", MaxDepth),
		Rules: []rules.Rule{numberRule("r", "https://end.test/%s")},
	})

	got := Evaluate("go c0 1", conditions, nil, Options{})
	if want := (Redirect{URL: "https://end.test/1"}); !reflect.DeepEqual(got.Result, want) {
		t.Errorf("Result = %#v, want %#v", got.Result, want)
	}
	if got.Hops() != MaxDepth {
		t.Errorf("Hops() = %d, want %d", got.Hops(), MaxDepth)
	}
}

// TestEvaluateTerminates checks self-referential data always stops within
// MaxDepth+1 resolution attempts
func TestEvaluateTerminates(t *testing.T) {
	conditions := []rules.Condition{
		{ID: "self", Key: "self", Rules: []rules.Rule{
			{ID: "s", PatternType: rules.PatternString, Pattern: `^.*$`, URL: "go self %s"},
		}},
		{ID: "abs", Key: "abs", Rules: []rules.Rule{
			{ID: "s", PatternType: rules.PatternString, Pattern: `^.*$`, URL: origin + "/?q=find+loop+x"},
		}},
	}
	tables := []lookup.Table{
		{ID: "loop", Key: "loop", Entries: []lookup.Entry{
			{ID: "x", Tags: []string{"x"}, URL: "/?q=go+abs+1"},
		}},
	}

	for _, q := range []string{"go self 1", "go self", "go abs 1", "find loop x", "go self --a=b"} {
		got := Evaluate(q, conditions, tables, Options{Origin: origin})

		parses := 0
		for _, s := range got.Steps {
			if _, ok := s.(ParseStep); ok {
				parses++
			}
		}
		if parses > MaxDepth+1 {
			t.Errorf("%q: %d resolution attempts, want at most %d", q, parses, MaxDepth+1)
		}
		if _, ok := got.Result.(Failure); !ok && q != "go self" {
			t.Errorf("%q: Result = %#v, want Failure", q, got.Result)
		}
	}
}

func TestEvaluateDuplicateKeysFirstWins(t *testing.T) {
	conditions := []rules.Condition{
		{ID: "1", Key: "mr", Rules: []rules.Rule{numberRule("a", "https://first.test/%s")}},
		{ID: "2", Key: "mr", Rules: []rules.Rule{numberRule("b", "https://second.test/%s")}},
	}
	tables := []lookup.Table{
		{ID: "1", Key: "docs", Entries: []lookup.Entry{{ID: "a", Tags: []string{"x"}, URL: "https://first.test"}}},
		{ID: "2", Key: "docs", Entries: []lookup.Entry{{ID: "b", Tags: []string{"x"}, URL: "https://second.test"}}},
	}

	if got := Evaluate("go mr 1", conditions, tables, Options{}).Result; got != (Redirect{URL: "https://first.test/1"}) {
		t.Errorf("condition result = %#v", got)
	}
	if got := Evaluate("find docs x", conditions, tables, Options{}).Result; got != (Redirect{URL: "https://first.test"}) {
		t.Errorf("table result = %#v", got)
	}
}

func TestEvaluateIsDeterministic(t *testing.T) {
	for _, q := range []string{"go hop 5 --env=a", "find docs react", "go bad 7", "go zz"} {
		first := evaluate(q, map[string]string{"k": "v"})
		second := evaluate(q, map[string]string{"k": "v"})
		if !reflect.DeepEqual(first, second) {
			t.Errorf("%q: repeated evaluation differs", q)
		}
	}
}

func TestEvaluateDoesNotMutateInputs(t *testing.T) {
	conditions := testConditions()
	tables := testTables()
	params := map[string]string{"env": "stage"}

	Evaluate("go env 5 --env=prod", conditions, tables, Options{Params: params})
	Evaluate("find docs react", conditions, tables, Options{Params: params})

	if !reflect.DeepEqual(conditions, testConditions()) || !reflect.DeepEqual(tables, testTables()) {
		t.Error("Evaluate modified its data")
	}
	if !reflect.DeepEqual(params, map[string]string{"env": "stage"}) {
		t.Errorf("Evaluate modified params: %v", params)
	}
}

func TestEvaluateConcurrent(t *testing.T) {
	conditions := testConditions()
	tables := testTables()
	matcher := rules.NewMatcher()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			q := fmt.Sprintf("go mr %d", n)
			got := Evaluate(q, conditions, tables, Options{Matcher: matcher})
			want := Redirect{URL: fmt.Sprintf("https://x.test/mr/%d", n)}
			if got.Result != want {
				t.Errorf("%q: Result = %#v", q, got.Result)
			}
		}(i)
	}
	wg.Wait()
}

func TestAdminPath(t *testing.T) {
	testCases := []struct {
		module, key, want string
	}{
		{"go", "", "/go/"},
		{"go", "mr", "/go/?key=mr"},
		{"find", "docs", "/find/?key=docs"},
		{"find", "", "/find/"},
		{"other", "a b", "/go/?key=a%20b"},
	}
	for _, tc := range testCases {
		if got := AdminPath(tc.module, tc.key); got != tc.want {
			t.Errorf("AdminPath(%q, %q) = %q, want %q", tc.module, tc.key, got, tc.want)
		}
	}
}

func TestEvaluationJSON(t *testing.T) {
	data, err := json.Marshal(evaluate("go hop 5 --env=qa", nil))
	if err != nil {
		t.Fatalf("Marshal() failed: %v", err)
	}

	var decoded struct {
		Steps []map[string]any `json:"steps"`
		Result map[string]any  `json:"result"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() failed: %v", err)
	}

	if decoded.Result["type"] != "redirect" || decoded.Result["url"] != "https://qa.test/item/5" {
		t.Errorf("result = %v", decoded.Result)
	}
	if decoded.Steps[0]["type"] != "parse" || decoded.Steps[0]["module"] != "go" {
		t.Errorf("first step = %v", decoded.Steps[0])
	}
	if decoded.Steps[3]["type"] != "chain" || decoded.Steps[3]["toQuery"] != "go env 5" {
		t.Errorf("chain step = %v", decoded.Steps[3])
	}
}

func TestResultJSON(t *testing.T) {
	testCases := []struct {
		result Result
		want   string
	}{
		{None{}, `{"type":"none"}`},
		{Redirect{URL: "https://x.test"}, `{"type":"redirect","url":"https://x.test"}`},
		{Navigate{To: "/go/"}, `{"type":"navigate","to":"/go/"}`},
		{Failure{Message: "boom"}, `{"type":"error","message":"boom"}`},
	}
	for _, tc := range testCases {
		data, err := json.Marshal(tc.result)
		if err != nil {
			t.Fatalf("Marshal(%#v) failed: %v", tc.result, err)
		}
		if string(data) != tc.want {
			t.Errorf("Marshal(%#v) = %s, want %s", tc.result, data, tc.want)
		}
	}
}

func TestDescribeCoversEveryStep(t *testing.T) {
	steps := []Step{
		ParseStep{Module: "go", HasParam: true, Param: "1"},
		SentinelStep{NavigateTo: "/go/"},
		ConditionFoundStep{},
		ConditionNotFoundStep{Command: "zz"},
		RuleMatchStep{Rule: rules.Rule{Label: "numbers"}},
		RuleFailStep{Rule: rules.Rule{PatternType: rules.PatternRegex, Pattern: "("}, Error: "bad"},
		TableFoundStep{},
		TableNotFoundStep{Command: "zz"},
		EntryMatchStep{Tags: []string{"a"}},
		EntryNoMatchStep{Tags: []string{"a"}},
		EntryMultiStep{Tags: []string{"a"}},
		ChainStep{FromURL: "/?q=go+a", ToQuery: "go a"},
		ErrorStep{Message: "boom"},
	}

	seen := make(map[string]bool)
	for _, s := range steps {
		if Describe(s) == "" {
			t.Errorf("Describe(%T) is empty", s)
		}
		kind := StepKind(s)
		if seen[kind] {
			t.Errorf("duplicate step kind %q", kind)
		}
		seen[kind] = true

		data, err := json.Marshal(s)
		if err != nil {
			t.Fatalf("Marshal(%T) failed: %v", s, err)
		}
		if !strings.HasPrefix(string(data), `{"type":"`+kind+`",`) {
			t.Errorf("Marshal(%T) = %s", s, data)
		}
	}
}
