package models

// SurveyAnswer is one question label and the answer given.
type SurveyAnswer struct {
	Question string
	Answer   string
}

// SurveyResponse holds the answers of one form submission in document order.
type SurveyResponse struct {
	FormID    string
	UpdatedBy string
	Answers   []SurveyAnswer
}

// Questions lists the question labels in document order.
func (r *SurveyResponse) Questions() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.Answers))
	for _, a := range r.Answers {
		out = append(out, a.Question)
	}
	return out
}

// AnswerMap indexes the answers by question.
func (r *SurveyResponse) AnswerMap() map[string]string {
	out := make(map[string]string)
	if r == nil {
		return out
	}
	for _, a := range r.Answers {
		out[a.Question] = a.Answer
	}
	return out
}
