package models

import "time"

// Enrollment binds a student to a course and, optionally, to one of the
// course's groups. A nil GroupID marks a legacy enrollment that has not been
// placed into a section yet. Rows are deactivated, never deleted.
//
// When a group is deleted the FK clears GroupID; RemovedGroupID keeps the
// section the row belonged to.
type Enrollment struct {
	ID             uint         `json:"id" gorm:"primaryKey;autoIncrement"`
	StudentID      uint         `json:"student_id" gorm:"not null;index"`
	Student        User         `json:"student,omitempty" gorm:"foreignKey:StudentID"`
	CourseID       uint         `json:"course_id" gorm:"not null;index"`
	Course         Course       `json:"course,omitempty" gorm:"foreignKey:CourseID"`
	GroupID        *uint        `json:"group_id" gorm:"index"`
	Group          *CourseGroup `json:"group,omitempty" gorm:"foreignKey:GroupID;constraint:OnDelete:SET NULL"`
	RemovedGroupID *uint        `json:"removed_group_id,omitempty"`
	IsActive       bool         `json:"is_active" gorm:"not null"`
	Score          *float64     `json:"score"`
	CreatedByID    uint         `json:"created_by_id" gorm:"not null"`
	CreatedBy      User         `json:"created_by,omitempty" gorm:"foreignKey:CreatedByID"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

func (Enrollment) TableName() string {
	return "enrollments"
}

// Legacy reports whether the enrollment is bound to a course only.
func (e *Enrollment) Legacy() bool {
	return e.GroupID == nil
}
