package mt

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestNameGuardReplace(t *testing.T) {
	g := NewNameGuard([]string{"阿强", "老张"})
	got, refs := g.Replace("阿强对老张说，阿强不去")
	if got != "<<NAME_1:阿强>>对<<NAME_2:老张>>说，<<NAME_1:阿强>>不去" {
		t.Fatalf("replaced = %q", got)
	}
	if len(refs) != 2 || refs[0].Source != "阿强" || refs[1].Source != "老张" {
		t.Fatalf("refs = %+v", refs)
	}
}

func TestNameGuardLongestMatch(t *testing.T) {
	// "张三丰" must win over its prefix "张三".
	g := NewNameGuard([]string{"张三", "张三丰"})
	got, refs := g.Replace("张三丰来了")
	if len(refs) != 1 || refs[0].Source != "张三丰" {
		t.Fatalf("refs = %+v", refs)
	}
	if !strings.HasPrefix(got, "<<NAME_1:张三丰>>") {
		t.Fatalf("replaced = %q", got)
	}
}

func TestNameGuardNoNames(t *testing.T) {
	g := NewNameGuard(nil)
	got, refs := g.Replace("没有人名")
	if got != "没有人名" || len(refs) != 0 {
		t.Fatalf("got %q, refs %+v", got, refs)
	}
}

func TestNameMapFirstWriteWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "names.json")
	nm := LoadNameMap(path)

	if !nm.Add("阿强", "Qiang", "given-name", "ep01", "llm") {
		t.Fatal("first add rejected")
	}
	if nm.Add("阿强", "Keung", "given-name", "ep02", "llm") {
		t.Fatal("second add overwrote a committed name")
	}
	nm.RecordAlternative("阿强", "Keung")
	if nm.Target("阿强") != "Qiang" {
		t.Fatalf("target = %q", nm.Target("阿强"))
	}
	if err := nm.Save(); err != nil {
		t.Fatal(err)
	}

	again := LoadNameMap(path)
	if again.Target("阿强") != "Qiang" {
		t.Fatalf("reloaded target = %q", again.Target("阿强"))
	}
	if missing := again.Missing([]string{"阿强", "老张", "老张"}); len(missing) != 1 || missing[0] != "老张" {
		t.Fatalf("missing = %v", missing)
	}
}

func TestCompleteNamesParsesSloppyJSON(t *testing.T) {
	nm := LoadNameMap(filepath.Join(t.TempDir(), "names.json"))
	fn := func(prompt string) (string, error) {
		if !strings.Contains(prompt, "老张") {
			t.Fatalf("prompt missing name:\n%s", prompt)
		}
		// Fenced and trailing-comma output, as models like to produce.
		return "```json\n{\"老张\": \"Mr. Zhang\", \"平安\": \"Ping An\",}\n```", nil
	}
	if err := nm.CompleteNames([]string{"老张", "平安"}, "ep01", fn); err != nil {
		t.Fatal(err)
	}
	if nm.Target("老张") != "Mr. Zhang" {
		t.Fatalf("target = %q", nm.Target("老张"))
	}
	if nm.Target("平安") != "Ping An" {
		t.Fatalf("target = %q", nm.Target("平安"))
	}
}
