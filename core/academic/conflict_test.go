package academic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func block(id, subject, grade, section string, day Day, start, end string) Block {
	return Block{
		ID:         id,
		SubjectID:  "subj-" + subject,
		Subject:    subject,
		GradeLevel: grade,
		Section:    section,
		Day:        day,
		Start:      mustClock(start),
		End:        mustClock(end),
	}
}

func mustClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

func TestCheckScheduleConflict(t *testing.T) {
	maths := block("b1", "Matemáticas", "1er Año", "A", Monday, "08:00", "09:00")
	history := block("b2", "Historia", "1er Año", "A", Monday, "10:00", "11:30")
	existing := []Block{maths, history}

	tests := []struct {
		name         string
		existing     []Block
		candidate    Block
		wantConflict *Block
	}{
		{
			name:      "empty partition",
			candidate: block("", "Castellano", "1er Año", "A", Monday, "08:00", "09:00"),
		},
		{
			name:      "adjacent after",
			existing:  existing,
			candidate: block("", "Castellano", "1er Año", "A", Monday, "09:00", "10:00"),
		},
		{
			name:      "adjacent before",
			existing:  existing,
			candidate: block("", "Castellano", "1er Año", "A", Monday, "07:00", "08:00"),
		},
		{
			name:         "partial overlap",
			existing:     []Block{block("b3", "Matemáticas", "1er Año", "A", Monday, "09:00", "10:00")},
			candidate:    block("", "Castellano", "1er Año", "A", Monday, "08:00", "09:30"),
			wantConflict: &Block{ID: "b3"},
		},
		{
			name:         "contained",
			existing:     existing,
			candidate:    block("", "Castellano", "1er Año", "A", Monday, "10:30", "11:00"),
			wantConflict: &history,
		},
		{
			name:         "containing",
			existing:     existing,
			candidate:    block("", "Castellano", "1er Año", "A", Monday, "07:00", "12:00"),
			wantConflict: &maths,
		},
		{
			name:         "identical",
			existing:     existing,
			candidate:    block("", "Castellano", "1er Año", "A", Monday, "08:00", "09:00"),
			wantConflict: &maths,
		},
		{
			name:      "other day",
			existing:  existing,
			candidate: block("", "Castellano", "1er Año", "A", Tuesday, "08:00", "09:00"),
		},
		{
			name:      "other section",
			existing:  existing,
			candidate: block("", "Castellano", "1er Año", "B", Monday, "08:00", "09:00"),
		},
		{
			name:      "other grade level",
			existing:  existing,
			candidate: block("", "Castellano", "2do Año", "A", Monday, "08:00", "09:00"),
		},
		{
			name:      "editing itself",
			existing:  existing,
			candidate: block("b1", "Matemáticas", "1er Año", "A", Monday, "08:30", "09:30"),
		},
		{
			name:         "editing into another block",
			existing:     existing,
			candidate:    block("b1", "Matemáticas", "1er Año", "A", Monday, "08:30", "10:30"),
			wantConflict: &history,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckScheduleConflict(tt.existing, tt.candidate)
			if tt.wantConflict == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			conflictErr, ok := err.(*ScheduleConflictError)
			require.True(t, ok, "got %T", err)
			assert.Equal(t, tt.wantConflict.ID, conflictErr.Conflict.ID)
			assert.True(t, IsScheduleConflict(err))
		})
	}
}

func TestCheckScheduleConflict_reportsCollidingBlock(t *testing.T) {
	existing := []Block{block("b1", "Matemáticas", "1er Año", "A", Wednesday, "08:00", "09:30")}
	err := CheckScheduleConflict(existing, block("", "Castellano", "1er Año", "A", Wednesday, "09:00", "10:00"))

	conflictErr, ok := err.(*ScheduleConflictError)
	require.True(t, ok, "got %T", err)
	assert.Equal(t, existing[0], conflictErr.Conflict)
	assert.Contains(t, err.Error(), "Matemáticas")
	assert.Contains(t, err.Error(), "08:00-09:30")
}

func TestCheckScheduleConflict_invalid(t *testing.T) {
	existing := []Block{block("b1", "Matemáticas", "1er Año", "A", Monday, "08:00", "09:00")}
	tests := []struct {
		name      string
		candidate Block
		wantField string
	}{
		{name: "start equals end", candidate: block("", "Castellano", "1er Año", "A", Monday, "08:00", "08:00"), wantField: "end_time"},
		{name: "start after end", candidate: block("", "Castellano", "1er Año", "A", Monday, "10:00", "09:00"), wantField: "end_time"},
		{name: "unknown day", candidate: block("", "Castellano", "1er Año", "A", Day("Sábado"), "08:00", "09:00"), wantField: "day"},
		{name: "empty day", candidate: block("", "Castellano", "1er Año", "A", "", "08:00", "09:00"), wantField: "day"},
		{name: "out of range clock", candidate: Block{Day: Monday, Start: 0, End: minutesPerDay + 1}, wantField: "end_time"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckScheduleConflict(existing, tt.candidate)
			inputErr, ok := err.(*InvalidInputError)
			require.True(t, ok, "got %T", err)
			assert.Equal(t, "schedule", inputErr.Record)
			assert.Equal(t, tt.wantField, inputErr.Field)
		})
	}
}
