package service

import "github.com/stemsi/cbt-backend/internal/model"

// Actor is the signed-in user on whose behalf a service call runs.
type Actor struct {
	UserID         int64
	Role           model.Role
	StudentClassID *int64
}

// IsStudent reports whether the actor is a student.
func (a Actor) IsStudent() bool { return a.Role == model.RoleStudent }
