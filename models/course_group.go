package models

import "time"

// CourseGroup is a scheduled section of a Course.
//
// CurrentEnrollment is a cache of the number of active enrollments bound to
// the group. It is rewritten from the real count inside every transaction
// that changes the roster and must never be adjusted anywhere else.
type CourseGroup struct {
	ID                uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	GroupNumber       int       `json:"group_number" gorm:"not null;uniqueIndex:idx_course_groups_number_course"`
	CourseID          uint      `json:"course_id" gorm:"not null;uniqueIndex:idx_course_groups_number_course"`
	Course            Course    `json:"course,omitempty" gorm:"foreignKey:CourseID"`
	ProfessorID       *uint     `json:"professor_id,omitempty"`
	Professor         *User     `json:"professor,omitempty" gorm:"foreignKey:ProfessorID"`
	Capacity          *int      `json:"capacity"`
	CurrentEnrollment int       `json:"current_enrollment" gorm:"not null;default:0"`
	IsActive          bool      `json:"is_active" gorm:"not null"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (CourseGroup) TableName() string {
	return "course_groups"
}

// Unlimited reports whether the group accepts any number of students.
// A nil or non-positive capacity means no limit.
func (g *CourseGroup) Unlimited() bool {
	return g.Capacity == nil || *g.Capacity <= 0
}
