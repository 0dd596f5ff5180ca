package client

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// QuizDraft is the authoring payload, readable from a YAML file:
//
//	title: Capitals
//	questions:
//	  - text: Capital of France?
//	    type: multiple_choice
//	    options: [Paris, Lyon, Nice]
//	    correct_index: 0
//	  - text: Height of the Eiffel tower in meters?
//	    type: estimate
//	    estimate: {min: "100", max: "500", correct: "330"}
type QuizDraft struct {
	Title     string          `json:"title" yaml:"title"`
	Gamified  bool            `json:"gamified" yaml:"gamified"`
	Questions []QuestionDraft `json:"questions" yaml:"questions"`
}

type QuestionDraft struct {
	Text         string         `json:"text" yaml:"text"`
	Type         string         `json:"type" yaml:"type"`
	Options      []string       `json:"options,omitempty" yaml:"options"`
	CorrectIndex int            `json:"correctIndex" yaml:"correct_index"`
	Estimate     *EstimateDraft `json:"estimate,omitempty" yaml:"estimate"`
}

type EstimateDraft struct {
	Min     string `json:"min" yaml:"min"`
	Max     string `json:"max" yaml:"max"`
	Correct string `json:"correct" yaml:"correct"`
}

func LoadQuizDraft(path string) (QuizDraft, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return QuizDraft{}, fmt.Errorf("read quiz file: %w", err)
	}
	var draft QuizDraft
	if err := yaml.Unmarshal(raw, &draft); err != nil {
		return QuizDraft{}, fmt.Errorf("parse quiz file: %w", err)
	}
	return draft, nil
}
