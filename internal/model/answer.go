package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// AnswerKind identifies the primitive type carried by an AnswerValue.
type AnswerKind string

const (
	AnswerKindChoice AnswerKind = "choice" // option index as string
	AnswerKindBool   AnswerKind = "bool"
	AnswerKindNumber AnswerKind = "number"
)

// AnswerValue is a typed answer: an option-index string for multiple
// choice, a boolean for true/false, or a number for numeric questions.
// The zero value is invalid; construct via ChoiceAnswer, BoolAnswer or
// NumberAnswer, or unmarshal from JSON.
type AnswerValue struct {
	kind   AnswerKind
	choice string
	flag   bool
	number float64
}

// ChoiceAnswer builds a multiple-choice answer from an option index string.
func ChoiceAnswer(optionIndex string) AnswerValue {
	return AnswerValue{kind: AnswerKindChoice, choice: optionIndex}
}

// BoolAnswer builds a true/false answer.
func BoolAnswer(v bool) AnswerValue {
	return AnswerValue{kind: AnswerKindBool, flag: v}
}

// NumberAnswer builds a numeric answer.
func NumberAnswer(v float64) AnswerValue {
	return AnswerValue{kind: AnswerKindNumber, number: v}
}

// Kind returns the primitive kind of the answer.
func (a AnswerValue) Kind() AnswerKind { return a.kind }

// IsZero reports whether the value was never set.
func (a AnswerValue) IsZero() bool { return a.kind == "" }

// Choice returns the option index string. Valid only for AnswerKindChoice.
func (a AnswerValue) Choice() string { return a.choice }

// Bool returns the boolean value. Valid only for AnswerKindBool.
func (a AnswerValue) Bool() bool { return a.flag }

// Number returns the numeric value. Valid only for AnswerKindNumber.
func (a AnswerValue) Number() float64 { return a.number }

// Equal reports whether two answers carry the same kind and value.
func (a AnswerValue) Equal(b AnswerValue) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case AnswerKindChoice:
		return a.choice == b.choice
	case AnswerKindBool:
		return a.flag == b.flag
	case AnswerKindNumber:
		return a.number == b.number
	}
	return false
}

// MatchesType reports whether the answer's kind is legal for the given
// question type.
func (a AnswerValue) MatchesType(qt QuestionType) bool {
	switch qt {
	case QuestionTypeMultipleChoice:
		return a.kind == AnswerKindChoice
	case QuestionTypeTrueFalse:
		return a.kind == AnswerKindBool
	case QuestionTypeNumeric:
		return a.kind == AnswerKindNumber
	}
	return false
}

// MarshalJSON emits the bare primitive so the wire shape matches
// {"question_id": ..., "value": "2" | true | 3.14}.
func (a AnswerValue) MarshalJSON() ([]byte, error) {
	switch a.kind {
	case AnswerKindChoice:
		return json.Marshal(a.choice)
	case AnswerKindBool:
		return json.Marshal(a.flag)
	case AnswerKindNumber:
		return json.Marshal(a.number)
	}
	return nil, fmt.Errorf("marshal answer: unset value")
}

// UnmarshalJSON sniffs the JSON primitive type to recover the kind.
func (a *AnswerValue) UnmarshalJSON(data []byte) error {
	if string(bytes.TrimSpace(data)) == "null" {
		return fmt.Errorf("unmarshal answer: null is not a valid answer")
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*a = ChoiceAnswer(s)
		return nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*a = BoolAnswer(b)
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*a = NumberAnswer(n)
		return nil
	}
	return fmt.Errorf("unmarshal answer: expected string, bool or number, got %s", data)
}

// AnswerEntry is the wire form of a single answer.
type AnswerEntry struct {
	QuestionID uuid.UUID   `json:"question_id"`
	Value      AnswerValue `json:"value"`
}

// AnswerSet maps question IDs to their latest answer. At most one entry
// per question; re-answering replaces. JSON form is an array of
// AnswerEntry sorted by question ID so marshaling is deterministic and
// round-trips are order-independent.
type AnswerSet map[uuid.UUID]AnswerValue

// MarshalJSON renders entries sorted by question ID.
func (s AnswerSet) MarshalJSON() ([]byte, error) {
	entries := make([]AnswerEntry, 0, len(s))
	for qid, v := range s {
		entries = append(entries, AnswerEntry{QuestionID: qid, Value: v})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].QuestionID.String() < entries[j].QuestionID.String()
	})
	return json.Marshal(entries)
}

// UnmarshalJSON rebuilds the map from the entry array. Duplicate
// question IDs resolve last-write-wins, matching engine semantics.
func (s *AnswerSet) UnmarshalJSON(data []byte) error {
	var entries []AnswerEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	m := make(AnswerSet, len(entries))
	for _, e := range entries {
		m[e.QuestionID] = e.Value
	}
	*s = m
	return nil
}

// Clone returns a shallow copy of the set.
func (s AnswerSet) Clone() AnswerSet {
	out := make(AnswerSet, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
