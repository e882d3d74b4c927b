package input

import "testing"

func TestTable_Lookup(t *testing.T) {
	table := Table{
		"chat":             "hello\nquit\n",
		"interactive-chat": "exit\n",
		"quiz":             "1\n2\n3\n",
	}

	tests := []struct {
		path   string
		want   string
		wantOK bool
	}{
		{"03-prompts/code/chat.ts", "hello\nquit\n", true},
		{"03-prompts/code/interactive-chat.ts", "exit\n", true},
		{"05-agents/solution/quiz-app.ts", "1\n2\n3\n", true},
		{"05-agents/solution/agent.ts", "", false},
		{"chat/code/agent.ts", "", false}, // directory names do not match
	}

	for _, tt := range tests {
		got, ok := table.Lookup(tt.path)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("Lookup(%q) = (%q, %v), want (%q, %v)", tt.path, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestTable_LookupTieBreak(t *testing.T) {
	table := Table{"ab": "first", "bc": "second"}
	for i := 0; i < 20; i++ {
		got, ok := table.Lookup("abc.ts")
		if !ok || got != "first" {
			t.Fatalf("Lookup tie = (%q, %v), want (first, true)", got, ok)
		}
	}
}

func TestTable_LookupEmpty(t *testing.T) {
	var table Table
	if _, ok := table.Lookup("anything.ts"); ok {
		t.Error("nil table should not match")
	}
	if _, ok := (Table{"": "x"}).Lookup("a.ts"); ok {
		t.Error("empty key should never match")
	}
}
