package model

import "time"

// StudentRecord is a student or team member.
type StudentRecord struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	Email       string `json:"email,omitempty"`
	StudentID   string `json:"student_id,omitempty"`
	Team        string `json:"team,omitempty"`
}

// TeamMember is a StudentRecord returned by a hosting provider's member list.
type TeamMember = StudentRecord

// AttendanceRecord is one student's attendance at one session.
type AttendanceRecord struct {
	StudentID     string    `json:"student_id"`
	SessionFinish time.Time `json:"session_finish"`
	Present       bool      `json:"present"`
}

// AttendanceSummary counts sessions per student.
type AttendanceSummary struct {
	StudentID string `json:"student_id"`
	Attended  int    `json:"attended"`
	Sessions  int    `json:"sessions"`
}

// SummarizeAttendance counts, per student, sessions that finished before
// now and how many of those were attended. Sessions that have not finished
// yet are ignored.
func SummarizeAttendance(records []AttendanceRecord, now time.Time) map[string]AttendanceSummary {
	summaries := map[string]AttendanceSummary{}
	for _, r := range records {
		if !r.SessionFinish.Before(now) {
			continue
		}
		s := summaries[r.StudentID]
		s.StudentID = r.StudentID
		s.Sessions++
		if r.Present {
			s.Attended++
		}
		summaries[r.StudentID] = s
	}
	return summaries
}
