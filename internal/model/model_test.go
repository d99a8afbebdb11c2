package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want TaskStatus
		ok   bool
	}{
		{raw: "pending", want: StatusPending, ok: true},
		{raw: " In Progress ", want: StatusInProgress, ok: true},
		{raw: "in_progress", want: StatusInProgress, ok: true},
		{raw: "done", want: StatusCompleted, ok: true},
		{raw: "Completed", want: StatusCompleted, ok: true},
		{raw: "archived", ok: false},
		{raw: "", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := ParseStatus(tt.raw)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateTaskDraft(t *testing.T) {
	err := Validate(TaskDraft{Title: "Write report", Status: StatusPending})
	require.NoError(t, err)

	err = Validate(TaskDraft{Status: "archived"})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "title is required", verr.Fields["Title"])
	assert.Contains(t, verr.Fields["Status"], "status must be")
}

func TestValidateTaskPatch(t *testing.T) {
	require.NoError(t, Validate(TaskPatch{}))

	done := StatusCompleted
	require.NoError(t, Validate(TaskPatch{Status: &done}))

	bad := TaskStatus("later")
	empty := ""
	err := Validate(TaskPatch{Status: &bad, Title: &empty})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Fields, 2)
}

func TestValidateSignupForm(t *testing.T) {
	form := SignupForm{Name: "Jane", Email: "jane@x.com", Password: "pw1", ConfirmPassword: "pw2"}
	err := Validate(form)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "passwords do not match", verr.Error())

	form.ConfirmPassword = "pw1"
	assert.NoError(t, Validate(form))

	form.Email = "not-an-email"
	assert.Error(t, Validate(form))
}

func TestTaskPatchEmpty(t *testing.T) {
	assert.True(t, TaskPatch{}.Empty())
	title := "x"
	assert.False(t, TaskPatch{Title: &title}.Empty())
}
