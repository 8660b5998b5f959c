package classify

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		snapshot string
		kind     Kind
	}{
		{
			name:     "plain text",
			snapshot: "Reading internal/foo.go\nAdding a new helper function\n",
			kind:     KindText,
		},
		{
			name:     "error marker",
			snapshot: "Running tests...\nError: undefined symbol 'bar'\n",
			kind:     KindError,
		},
		{
			name:     "panic marker",
			snapshot: "panic: runtime error: index out of range\n",
			kind:     KindError,
		},
		{
			name:     "completion marker",
			snapshot: "All tests passing.\n✅ Done\n",
			kind:     KindCompleted,
		},
		{
			name:     "task completed phrase",
			snapshot: "Implemented the feature.\nTask completed.\n",
			kind:     KindCompleted,
		},
		{
			name:     "trailing question mark",
			snapshot: "I found two possible approaches.\nWhich one should I use?\n",
			kind:     KindQuestion,
		},
		{
			name:     "interrogative phrase without question mark",
			snapshot: "Should I also update the README\n",
			kind:     KindQuestion,
		},
		{
			name: "numbered option list",
			snapshot: "Pick a database:\n" +
				"1. PostgreSQL\n" +
				"2. SQLite\n",
			kind: KindQuestion,
		},
		{
			name:     "waiting sentinel character",
			snapshot: "Continue? (y/n) >\n",
			kind:     KindQuestion,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.snapshot)
			if got.Kind != tt.kind {
				t.Errorf("Classify(%q).Kind = %s, want %s", tt.snapshot, got.Kind, tt.kind)
			}
		})
	}
}

func TestClassifyExtractsQuestionText(t *testing.T) {
	ev := Classify("Found a naming conflict.\nShould I rename the old function instead?\n")
	if ev.Kind != KindQuestion {
		t.Fatalf("Kind = %s, want question", ev.Kind)
	}
	if ev.Text == "" {
		t.Error("expected non-empty extracted question text")
	}
}

func TestClassifyOptionListExtractsPromptLine(t *testing.T) {
	ev := Classify("Pick a database:\n1. PostgreSQL\n2. SQLite\n")
	if ev.Kind != KindQuestion {
		t.Fatalf("Kind = %s, want question", ev.Kind)
	}
	if ev.Text != "Pick a database:" {
		t.Errorf("Text = %q, want %q", ev.Text, "Pick a database:")
	}
}

func TestClassifyErrorTakesPriorityOverCompletion(t *testing.T) {
	ev := Classify("Build successful\nError: post-build hook failed\n")
	if ev.Kind != KindError {
		t.Errorf("Kind = %s, want error (error markers evaluated first)", ev.Kind)
	}
}

func TestClassifyEmptySnapshot(t *testing.T) {
	ev := Classify("\n\n\n")
	if ev.Kind != KindText || ev.Text != "" {
		t.Errorf("Classify(blank) = %+v, want empty text event", ev)
	}
}
