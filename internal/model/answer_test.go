package model

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestAnswerValueJSONRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		value AnswerValue
		wire  string
	}{
		{"choice", ChoiceAnswer("2"), `"2"`},
		{"bool true", BoolAnswer(true), `true`},
		{"bool false", BoolAnswer(false), `false`},
		{"integer number", NumberAnswer(42), `42`},
		{"fractional number", NumberAnswer(9.81), `9.81`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.value)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if string(data) != tt.wire {
				t.Errorf("wire = %s, want %s", data, tt.wire)
			}

			var back AnswerValue
			if err := json.Unmarshal(data, &back); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if !back.Equal(tt.value) {
				t.Errorf("round trip changed value: %+v != %+v", back, tt.value)
			}
		})
	}
}

func TestAnswerValueUnmarshalRejectsGarbage(t *testing.T) {
	var v AnswerValue
	for _, raw := range []string{`{"a":1}`, `[1,2]`, `null`} {
		if err := json.Unmarshal([]byte(raw), &v); err == nil {
			t.Errorf("unmarshal %s: expected error", raw)
		}
	}
}

func TestAnswerValueEqualDistinguishesKinds(t *testing.T) {
	// "1" as a choice index is not the number 1.
	if ChoiceAnswer("1").Equal(NumberAnswer(1)) {
		t.Error("choice and number compared equal")
	}
	if BoolAnswer(false).Equal(NumberAnswer(0)) {
		t.Error("bool and number compared equal")
	}
}

func TestAnswerValueMatchesType(t *testing.T) {
	tests := []struct {
		value AnswerValue
		qt    QuestionType
		want  bool
	}{
		{ChoiceAnswer("0"), QuestionTypeMultipleChoice, true},
		{ChoiceAnswer("0"), QuestionTypeTrueFalse, false},
		{BoolAnswer(true), QuestionTypeTrueFalse, true},
		{BoolAnswer(true), QuestionTypeNumeric, false},
		{NumberAnswer(1.5), QuestionTypeNumeric, true},
		{NumberAnswer(1.5), QuestionTypeMultipleChoice, false},
	}
	for _, tt := range tests {
		if got := tt.value.MatchesType(tt.qt); got != tt.want {
			t.Errorf("MatchesType(%v, %s) = %t, want %t", tt.value, tt.qt, got, tt.want)
		}
	}
}

func TestAnswerSetRoundTripIsOrderIndependent(t *testing.T) {
	q1, q2, q3 := uuid.New(), uuid.New(), uuid.New()
	set := AnswerSet{
		q1: ChoiceAnswer("3"),
		q2: BoolAnswer(false),
		q3: NumberAnswer(2.5),
	}

	data, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var back AnswerSet
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(set, back) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", back, set)
	}

	// Marshaling is deterministic regardless of map iteration order.
	again, err := json.Marshal(back)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != string(again) {
		t.Errorf("non-deterministic marshal:\n%s\n%s", data, again)
	}
}

func TestAnswerSetUnmarshalLastWriteWins(t *testing.T) {
	qid := uuid.New()
	raw := `[{"question_id":"` + qid.String() + `","value":"1"},{"question_id":"` + qid.String() + `","value":"2"}]`

	var set AnswerSet
	if err := json.Unmarshal([]byte(raw), &set); err != nil {
		t.Fatal(err)
	}
	if len(set) != 1 {
		t.Fatalf("entries = %d, want 1", len(set))
	}
	if !set[qid].Equal(ChoiceAnswer("2")) {
		t.Errorf("value = %+v, want choice 2", set[qid])
	}
}

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatal(err)
	}
	return ts
}

func TestSubmissionJSONRoundTrip(t *testing.T) {
	qid := uuid.New()
	sub := ExamSubmission{
		ID:        uuid.New(),
		ExamID:    uuid.New(),
		TakerID:   uuid.New(),
		StartedAt: mustTime(t, "2026-03-01T09:00:00Z"),
		Answers:   AnswerSet{qid: NumberAnswer(7)},
		Status:    SubmissionStatusInProgress,
	}

	data, err := json.Marshal(sub)
	if err != nil {
		t.Fatal(err)
	}
	var back ExamSubmission
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(sub.Answers, back.Answers) {
		t.Errorf("answers mismatch: %+v != %+v", back.Answers, sub.Answers)
	}
	if back.Status != SubmissionStatusInProgress || back.ID != sub.ID {
		t.Errorf("header fields lost: %+v", back)
	}
}
