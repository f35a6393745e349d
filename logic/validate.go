package logic

import "github.com/mbolis/airform-sync/model"

const ReasonRequired = "required"

// Result of validating a submission. Errors maps field ids to a reason.
type Result struct {
	Errors map[string]string `json:"errors,omitempty"`
}

func (r Result) Accepted() bool {
	return len(r.Errors) == 0
}

// Visibility walks the questions of form in order and reports whether each
// one is visible. A rule sees the answers of every earlier question, hidden
// or not.
func Visibility(form model.Form, answers model.Answers) []bool {
	visible := make([]bool, len(form.Questions))
	seen := make(model.Answers, len(answers))
	for i, q := range form.Questions {
		visible[i] = Evaluate(q.Rule, seen)
		if a, ok := answers[q.FieldID]; ok {
			seen[q.FieldID] = a
		}
	}
	return visible
}

// Validate rejects a submission that leaves a visible required question
// unanswered. Hidden questions are never checked.
func Validate(form model.Form, answers model.Answers) Result {
	res := Result{}
	for i, visible := range Visibility(form, answers) {
		q := form.Questions[i]
		if !visible || !q.Required {
			continue
		}
		if a, ok := answers[q.FieldID]; !ok || a.Empty() {
			if res.Errors == nil {
				res.Errors = map[string]string{}
			}
			res.Errors[q.FieldID] = ReasonRequired
		}
	}
	return res
}
