package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// QuizInput is the create/update payload of a quiz.
type QuizInput struct {
	Title     string          `json:"title"`
	Questions []QuestionInput `json:"questions"`
}

// QuestionInput is the editable part of a question; order is implied by position.
type QuestionInput struct {
	Type          QuestionType `json:"type"`
	Text          string       `json:"text"`
	Options       []string     `json:"options"`
	CorrectAnswer string       `json:"correct_answer"`
	TimeLimit     int          `json:"time_limit"`
	Points        int          `json:"points"`
}

// Normalize validates the input and returns questions with defaults applied and
// contiguous order values starting at 0.
func (in QuizInput) Normalize() (string, []Question, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return "", nil, fmt.Errorf("%w: quiz title is required", ErrValidation)
	}
	if len(in.Questions) == 0 {
		return "", nil, fmt.Errorf("%w: at least one question is required", ErrValidation)
	}

	questions := make([]Question, 0, len(in.Questions))
	for i, qi := range in.Questions {
		q, err := qi.normalize(i)
		if err != nil {
			return "", nil, fmt.Errorf("question %d: %w", i+1, err)
		}
		questions = append(questions, q)
	}
	return title, questions, nil
}

func (qi QuestionInput) normalize(order int) (Question, error) {
	q := Question{
		Type:          qi.Type,
		Text:          strings.TrimSpace(qi.Text),
		CorrectAnswer: strings.TrimSpace(qi.CorrectAnswer),
		TimeLimit:     qi.TimeLimit,
		Points:        qi.Points,
		Order:         order,
	}
	if !q.Type.Valid() {
		return Question{}, fmt.Errorf("%w: unknown question type %q", ErrValidation, qi.Type)
	}
	if q.Text == "" {
		return Question{}, fmt.Errorf("%w: question text is required", ErrValidation)
	}
	if q.CorrectAnswer == "" {
		return Question{}, fmt.Errorf("%w: correct answer is required", ErrValidation)
	}

	if q.TimeLimit == 0 {
		q.TimeLimit = DefaultTimeLimit
	}
	if q.TimeLimit < MinTimeLimit || q.TimeLimit > MaxTimeLimit {
		return Question{}, fmt.Errorf("%w: time limit must be between %d and %d seconds", ErrValidation, MinTimeLimit, MaxTimeLimit)
	}
	if q.Points == 0 {
		q.Points = DefaultPoints
	}
	if q.Points < MinPoints || q.Points > MaxPoints {
		return Question{}, fmt.Errorf("%w: points must be between %d and %d", ErrValidation, MinPoints, MaxPoints)
	}

	switch q.Type {
	case MultipleChoice:
		options := make([]string, 0, len(qi.Options))
		for _, opt := range qi.Options {
			if opt = strings.TrimSpace(opt); opt != "" {
				options = append(options, opt)
			}
		}
		if len(options) < 2 {
			return Question{}, fmt.Errorf("%w: multiple choice needs at least two options", ErrValidation)
		}
		matched := false
		for _, opt := range options {
			if strings.EqualFold(opt, q.CorrectAnswer) {
				matched = true
				break
			}
		}
		if !matched {
			return Question{}, fmt.Errorf("%w: correct answer must be one of the options", ErrValidation)
		}
		q.Options = options
	case TrueFalse:
		answer := strings.ToLower(q.CorrectAnswer)
		if answer != "true" && answer != "false" {
			return Question{}, fmt.Errorf("%w: true/false answer must be true or false", ErrValidation)
		}
		q.CorrectAnswer = answer
	case OpenText:
	}
	return q, nil
}

// NormalizeNickname trims the nickname and enforces its length bounds.
func NormalizeNickname(raw string) (string, error) {
	nickname := strings.TrimSpace(raw)
	if nickname == "" {
		return "", fmt.Errorf("%w: nickname is required", ErrValidation)
	}
	n := utf8.RuneCountInString(nickname)
	if n < MinNicknameLength || n > MaxNicknameLength {
		return "", fmt.Errorf("%w: nickname must be %d-%d characters", ErrValidation, MinNicknameLength, MaxNicknameLength)
	}
	return nickname, nil
}
