package academic

// Block is a weekly time-block of a subject, located in its (grade level, section) partition.
// The interval is half-open: [Start, End).
type Block struct {
	ID         string `json:"id" db:"id"`
	SubjectID  string `json:"subject_id" db:"subject_id"`
	Subject    string `json:"subject" db:"subject_name"`
	GradeLevel string `json:"grade_level" db:"grade_level"`
	Section    string `json:"section" db:"section"`
	Day        Day    `json:"day" db:"day"`
	Start      Clock  `json:"start_time" db:"start_time"`
	End        Clock  `json:"end_time" db:"end_time"`
}

func (b Block) samePartition(other Block) bool {
	return b.GradeLevel == other.GradeLevel && b.Section == other.Section
}

// Overlaps reports whether both blocks share some minute on the same day.
// Adjacent blocks ([08:00,09:00) and [09:00,10:00)) do not overlap.
func (b Block) Overlaps(other Block) bool {
	return b.Day == other.Day && b.Start < other.End && other.Start < b.End
}

func (b Block) validate() error {
	invalid := func(field, reason string) error {
		return &InvalidInputError{Record: "schedule", ID: b.ID, Field: field, Reason: reason}
	}
	switch {
	case !b.Day.Valid():
		return invalid("day", "must be a weekday (Lunes to Viernes)")
	case !b.Start.Valid():
		return invalid("start_time", "must be a valid time of day")
	case !b.End.Valid():
		return invalid("end_time", "must be a valid time of day")
	case b.Start >= b.End:
		return invalid("end_time", "must be after start_time")
	}
	return nil
}

// CheckScheduleConflict validates candidate and scans existing for a block of the same
// (grade level, section) partition overlapping it.
// A candidate with a non-empty ID is an edit: the existing block with that ID is skipped.
// The first overlapping block in existing is reported in a *ScheduleConflictError.
func CheckScheduleConflict(existing []Block, candidate Block) error {
	if err := candidate.validate(); err != nil {
		return err
	}
	for _, b := range existing {
		if candidate.ID != "" && b.ID == candidate.ID {
			continue
		}
		if !candidate.samePartition(b) {
			continue
		}
		if candidate.Overlaps(b) {
			return &ScheduleConflictError{Conflict: b}
		}
	}
	return nil
}
