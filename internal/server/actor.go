package server

import (
	"net/http"
	"strings"

	"github.com/p-n-ai/pai-progress/internal/progress"
)

// Identity headers set by the upstream auth proxy.
const (
	HeaderUserID    = "X-User-ID"
	HeaderUserRole  = "X-User-Role"
	HeaderTeacherID = "X-Teacher-ID"
	HeaderUserName  = "X-User-Name"
)

type actorHeaders struct {
	UserID    string `header:"X-User-ID" validate:"required,max=128"`
	Role      string `header:"X-User-Role" validate:"required,oneof=student teacher principal admin"`
	TeacherID string `header:"X-Teacher-ID" validate:"max=128"`
	Name      string `header:"X-User-Name" validate:"max=256"`
}

// actorFrom resolves the caller from identity headers. A missing role
// means student.
func actorFrom(r *http.Request) (progress.Actor, error) {
	h := actorHeaders{
		UserID:    strings.TrimSpace(r.Header.Get(HeaderUserID)),
		Role:      strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderUserRole))),
		TeacherID: strings.TrimSpace(r.Header.Get(HeaderTeacherID)),
		Name:      strings.TrimSpace(r.Header.Get(HeaderUserName)),
	}
	if h.Role == "" {
		h.Role = string(progress.RoleStudent)
	}
	if err := validate.Struct(h); err != nil {
		return progress.Actor{}, err
	}
	return progress.Actor{
		UserID:    h.UserID,
		Name:      h.Name,
		Role:      progress.Role(h.Role),
		TeacherID: h.TeacherID,
	}, nil
}

// canTeach reports whether the actor may see teacher-facing data.
func canTeach(a progress.Actor) bool {
	switch a.Role {
	case progress.RoleTeacher, progress.RolePrincipal, progress.RoleAdmin:
		return true
	}
	return false
}
