package store

import (
	"encoding/json"
	"strings"

	"github.com/lamim/quizforge/pkg/models"
)

const insertItemColumns = `fingerprint, session_id, category, difficulty, scope_key, group_names,
	question_text, answer, explanation, buggy_question_text, function_name,
	sample_input, sample_output, hidden_tests, buggy_code, correct_code,
	buggy_correct_code, buggy_explanation, context, created_at`

// itemArgs returns insert arguments in insertItemColumns order
func itemArgs(item *models.Item) ([]any, error) {
	names, err := json.Marshal(item.GroupNames)
	if err != nil {
		return nil, err
	}
	return []any{
		item.Fingerprint, item.SessionID, string(item.Category), item.Difficulty,
		models.ScopeKeyString(item.ScopeKey), string(names),
		item.QuestionText, item.Answer, item.Explanation, item.BuggyQuestionText, item.FunctionName,
		item.SampleInput, item.SampleOutput, hiddenTests(item), item.BuggyCode, item.CorrectCode,
		item.BuggyCorrectCode, item.BuggyExplanation, storedContext(item), item.CreatedAt.Unix(),
	}, nil
}

// whereClause renders f as a WHERE clause using placeholder(n) for the nth argument
func whereClause(f Filter, placeholder func(n int) string) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, strings.Replace(cond, "?", placeholder(len(args)), 1))
	}

	if f.Category != "" {
		add("category = ?", string(f.Category))
	}
	if f.Difficulty != "" {
		add("difficulty = ?", f.Difficulty)
	}
	if len(f.ScopeKey) > 0 {
		add("scope_key = ?", models.ScopeKeyString(f.ScopeKey))
	}
	if f.GroupID != 0 {
		add("id IN (SELECT item_id FROM item_groups WHERE group_id = ?)", f.GroupID)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
