package model

import "time"

// Student is an exam taker.
type Student struct {
	ID           int       `json:"id"`
	NISN         string    `json:"nisn"`
	Name         string    `json:"name"`
	Grade        string    `json:"grade,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Teacher authors exams and monitors attempts.
type Teacher struct {
	ID           int       `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Subject      string    `json:"subject,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// CreateStudentRequest is the payload for registering a student.
type CreateStudentRequest struct {
	NISN     string `json:"nisn" binding:"required,min=4,max=30"`
	Name     string `json:"name" binding:"required,min=2,max=100"`
	Grade    string `json:"grade" binding:"omitempty,max=20"`
	Password string `json:"password" binding:"required,min=6"`
}

// ResetPasswordRequest is the payload for a password reset.
type ResetPasswordRequest struct {
	Password string `json:"password" binding:"required,min=6"`
}

// StudentLoginRequest is the payload for a student login.
type StudentLoginRequest struct {
	NISN     string `json:"nisn" binding:"required,min=4,max=30"`
	Password string `json:"password" binding:"required,min=6"`
}

// TeacherLoginRequest is the payload for a teacher login.
type TeacherLoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}
