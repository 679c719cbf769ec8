package models

import (
	"strings"
	"time"
)

type Role string

const (
	RoleStudent  Role = "student"
	RoleTeacher  Role = "teacher"
	RoleExaminer Role = "examiner"
	RoleAdmin    Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleExaminer, RoleAdmin:
		return true
	}
	return false
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusSuspended Status = "suspended"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusSuspended:
		return true
	}
	return false
}

// User is a registered account. The role decides which profile fields apply:
// ExamLevel for students, Subject for teachers and examiners.
type User struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	Email         string    `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Role          Role      `gorm:"size:16;index;not null" json:"userType"`
	PasswordHash  string    `gorm:"size:255;not null" json:"-"`
	Status        Status    `gorm:"size:16;not null;default:pending" json:"status"`
	EmailVerified bool      `gorm:"not null;default:false" json:"emailVerified"`
	TokenVersion  int       `gorm:"not null;default:0" json:"-"`
	FullName      string    `gorm:"size:128" json:"fullName"`
	Phone         string    `gorm:"size:32" json:"phone,omitempty"`
	School        string    `gorm:"size:255" json:"school,omitempty"`
	ExamLevel     string    `gorm:"size:32" json:"examLevel,omitempty"`
	Subject       string    `gorm:"size:128" json:"subject,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func (User) TableName() string { return "users" }

func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }

// NormalizeEmail is applied before every store lookup and insert.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// UserUpdate is a partial update; nil fields are left alone. Status and
// EmailVerified are admin-only, which callers enforce before reaching the store.
type UserUpdate struct {
	FullName      *string
	Phone         *string
	School        *string
	ExamLevel     *string
	Subject       *string
	Status        *Status
	EmailVerified *bool
}

func (u UserUpdate) Empty() bool {
	return u.FullName == nil && u.Phone == nil && u.School == nil && u.ExamLevel == nil &&
		u.Subject == nil && u.Status == nil && u.EmailVerified == nil
}

// Columns maps the set fields to their column names.
func (u UserUpdate) Columns() map[string]interface{} {
	cols := map[string]interface{}{}
	if u.FullName != nil {
		cols["full_name"] = *u.FullName
	}
	if u.Phone != nil {
		cols["phone"] = *u.Phone
	}
	if u.School != nil {
		cols["school"] = *u.School
	}
	if u.ExamLevel != nil {
		cols["exam_level"] = *u.ExamLevel
	}
	if u.Subject != nil {
		cols["subject"] = *u.Subject
	}
	if u.Status != nil {
		cols["status"] = *u.Status
	}
	if u.EmailVerified != nil {
		cols["email_verified"] = *u.EmailVerified
	}
	return cols
}

// Apply copies the set fields onto user.
func (u UserUpdate) Apply(user *User) {
	if u.FullName != nil {
		user.FullName = *u.FullName
	}
	if u.Phone != nil {
		user.Phone = *u.Phone
	}
	if u.School != nil {
		user.School = *u.School
	}
	if u.ExamLevel != nil {
		user.ExamLevel = *u.ExamLevel
	}
	if u.Subject != nil {
		user.Subject = *u.Subject
	}
	if u.Status != nil {
		user.Status = *u.Status
	}
	if u.EmailVerified != nil {
		user.EmailVerified = *u.EmailVerified
	}
}
