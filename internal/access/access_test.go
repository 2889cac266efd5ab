package access

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stemsi/cbt-backend/internal/model"
)

func TestCheck_DefaultPolicy(t *testing.T) {
	cases := []struct {
		role model.Role
		cap  Capability
		want Decision
	}{
		{model.RoleAnonymous, TakeExam, RedirectLogin},
		{"", ViewOwnScore, RedirectLogin},
		{model.RoleStudent, TakeExam, Allow},
		{model.RoleStudent, ViewOwnScore, Allow},
		{model.RoleStudent, ViewScores, Forbidden},
		{model.RoleStudent, DeleteScores, Forbidden},
		{model.RoleStudent, MonitorExam, Forbidden},
		{model.RoleStaff, ViewScores, Allow},
		{model.RoleStaff, DeleteScores, Allow},
		{model.RoleStaff, MonitorExam, Allow},
		{model.RoleAdmin, DeleteScores, Allow},
		{model.Role("janitor"), TakeExam, Forbidden},
	}
	for _, tc := range cases {
		t.Run(string(tc.role)+"/"+string(tc.cap), func(t *testing.T) {
			assert.Equal(t, tc.want, Check(tc.role, tc.cap))
		})
	}
}

func TestChecker_PrefixWildcard(t *testing.T) {
	c := NewChecker(map[model.Role][]Capability{
		model.RoleStaff: {"exam:*"},
	})

	assert.True(t, c.Has(model.RoleStaff, TakeExam))
	assert.True(t, c.Has(model.RoleStaff, MonitorExam))
	assert.False(t, c.Has(model.RoleStaff, ViewScores))
	assert.Equal(t, Forbidden, c.Check(model.RoleAdmin, ViewScores))
}

func TestDecision_String(t *testing.T) {
	assert.Equal(t, "allow", Allow.String())
	assert.Equal(t, "redirect_login", RedirectLogin.String())
	assert.Equal(t, "forbidden", Forbidden.String())
}
