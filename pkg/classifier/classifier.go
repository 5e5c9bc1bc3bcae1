// Package classifier assigns an ExecutorType to a task title by matching an
// ordered list of prefix-tag rules (spec §4.1).
package classifier

import (
	"regexp"
	"strings"

	"github.com/developer-mesh/dispatch-core/pkg/models"
)

// rule is one entry in the ordered prefix-tag table. The first rule whose
// pattern matches the title wins; evaluation always starts from rule zero.
type rule struct {
	pattern *regexp.Regexp
	result  models.ExecutorType
}

// rules is evaluated top to bottom: explicit literal tags first, legacy
// synonyms next, semantic verbs last, matching the precedence spec §4.1
// assigns to ambiguous or historical tagging conventions.
var rules = []rule{
	{pattern: regexp.MustCompile(`(?i)^\[ai\]`), result: models.ExecutorTypeAI},
	{pattern: regexp.MustCompile(`(?i)^\[human-ai\]`), result: models.ExecutorTypeHumanAI},
	{pattern: regexp.MustCompile(`(?i)^\[human\]`), result: models.ExecutorTypeHuman},

	{pattern: regexp.MustCompile(`(?i)^\[claude-code\]`), result: models.ExecutorTypeAI},
	{pattern: regexp.MustCompile(`(?i)^\[cc\]`), result: models.ExecutorTypeAI},
	{pattern: regexp.MustCompile(`(?i)^\[de\]`), result: models.ExecutorTypeHumanAI},

	{pattern: regexp.MustCompile(`(?i)^\[implement\]`), result: models.ExecutorTypeAI},
	{pattern: regexp.MustCompile(`(?i)^\[deploy\]`), result: models.ExecutorTypeHumanAI},
	{pattern: regexp.MustCompile(`(?i)^\[research\]`), result: models.ExecutorTypeAI},
	{pattern: regexp.MustCompile(`(?i)^\[plan\]`), result: models.ExecutorTypeHumanAI},
}

// DefaultExecutorType is assigned when no rule matches the title (spec
// §4.1's fallback).
const DefaultExecutorType = models.ExecutorTypeHuman

// Classify returns the ExecutorType for a task title, trying each rule in
// order and falling back to DefaultExecutorType.
func Classify(title string) models.ExecutorType {
	trimmed := strings.TrimSpace(title)
	for _, r := range rules {
		if r.pattern.MatchString(trimmed) {
			return r.result
		}
	}
	return DefaultExecutorType
}

// containerTags are the tags whose work implies a repository checkout (a
// code change, a deploy, a Claude Code CLI session) rather than a single
// prompt/response. The Executor routes these to the container path; every
// other `ai` classification goes through the quick SDK path.
var containerTags = regexp.MustCompile(`(?i)^\[(implement|deploy|claude-code|cc|de)\]`)

// RequiresContainer reports whether title's tag implies the Executor's
// container path (an async request with a workflow callback) rather than
// the synchronous SDK path.
func RequiresContainer(title string) bool {
	return containerTags.MatchString(strings.TrimSpace(title))
}
