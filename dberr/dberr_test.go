package dberr_test

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Neos21/db-api/dberr"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want dberr.Kind
	}{
		{"validation", dberr.Validationf("DB Name Is Empty"), dberr.Validation},
		{"not found", dberr.NotFoundf("The DB Does Not Exist"), dberr.NotFound},
		{"conflict", dberr.Conflictf("The Name Of DB Already Exists"), dberr.Conflict},
		{"io", dberr.Wrap(dberr.IO, "docfile.read", fs.ErrPermission), dberr.IO},
		{"wrapped twice", fmt.Errorf("outer: %w", dberr.Wrap(dberr.Query, "sqlite.run", errors.New("syntax error"))), dberr.Query},
		{"plain", errors.New("boom"), dberr.Unknown},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, dberr.KindOf(tc.err))
		})
	}
}

func TestIsExpected(t *testing.T) {
	assert.True(t, dberr.IsExpected(dberr.Validationf("x")))
	assert.True(t, dberr.IsExpected(dberr.NotFoundf("x")))
	assert.True(t, dberr.IsExpected(dberr.Conflictf("x")))
	assert.False(t, dberr.IsExpected(dberr.Wrap(dberr.Parse, "op", errors.New("bad"))))
	assert.False(t, dberr.IsExpected(errors.New("bad")))
}

func TestReason(t *testing.T) {
	assert.Equal(t, "Invalid Credential", dberr.Reason(dberr.Validationf("Invalid Credential")))

	err := dberr.Wrap(dberr.IO, "docfile.write", fs.ErrPermission)
	assert.Equal(t, "docfile.write: permission denied", dberr.Reason(err))
	assert.ErrorIs(t, err, fs.ErrPermission)

	assert.Nil(t, dberr.Wrap(dberr.IO, "noop", nil))
}
