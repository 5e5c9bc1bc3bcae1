package classifier

import (
	"testing"

	"github.com/developer-mesh/dispatch-core/pkg/models"
)

func TestClassifyExplicitTags(t *testing.T) {
	cases := map[string]models.ExecutorType{
		"[ai] refactor the parser":        models.ExecutorTypeAI,
		"[human] review the design doc":   models.ExecutorTypeHuman,
		"[human-ai] pair on the migration": models.ExecutorTypeHumanAI,
	}
	for title, want := range cases {
		if got := Classify(title); got != want {
			t.Errorf("Classify(%q) = %q, want %q", title, got, want)
		}
	}
}

func TestClassifyLegacySynonyms(t *testing.T) {
	if got := Classify("[claude-code] fix the bug"); got != models.ExecutorTypeAI {
		t.Errorf("expected ai for [claude-code], got %q", got)
	}
	if got := Classify("[CC] write tests"); got != models.ExecutorTypeAI {
		t.Errorf("expected ai for [CC] (case-insensitive), got %q", got)
	}
	if got := Classify("[DE] design review"); got != models.ExecutorTypeHumanAI {
		t.Errorf("expected human-ai for [DE], got %q", got)
	}
}

func TestClassifySemanticVerbs(t *testing.T) {
	if got := Classify("[implement] add retry logic"); got != models.ExecutorTypeAI {
		t.Errorf("expected ai for [implement], got %q", got)
	}
	if got := Classify("[research] survey alternatives"); got != models.ExecutorTypeAI {
		t.Errorf("expected ai for [research], got %q", got)
	}
}

func TestClassifyDefaultsToHuman(t *testing.T) {
	if got := Classify("buy groceries"); got != models.ExecutorTypeHuman {
		t.Errorf("expected default human, got %q", got)
	}
}

func TestClassifyIgnoresLeadingWhitespace(t *testing.T) {
	if got := Classify("   [ai] trailing spaces"); got != models.ExecutorTypeAI {
		t.Errorf("expected ai after trimming whitespace, got %q", got)
	}
}

func TestRequiresContainer(t *testing.T) {
	if !RequiresContainer("[implement] add login") {
		t.Errorf("expected [implement] to require container path")
	}
	if !RequiresContainer("[deploy] ship v2") {
		t.Errorf("expected [deploy] to require container path")
	}
	if RequiresContainer("[ai] summarize this doc") {
		t.Errorf("expected plain [ai] to use the quick path")
	}
	if RequiresContainer("[human] review the design doc") {
		t.Errorf("expected [human] to not require container path")
	}
}
