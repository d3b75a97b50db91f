package prompt

import (
	"errors"
	"testing"

	"github.com/manifoldco/promptui"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scripted answers a prompt with a fixed result and records what was asked.
type scripted struct {
	result string
	err    error

	asked []promptui.Prompt
}

func (s *scripted) install(t *testing.T) {
	t.Helper()
	prevRunner, prevInteractive := newRunner, interactive
	newRunner = func(p promptui.Prompt) runner {
		s.asked = append(s.asked, p)
		return s
	}
	interactive = func() bool { return true }
	t.Cleanup(func() { newRunner, interactive = prevRunner, prevInteractive })
}

func (s *scripted) Run() (string, error) { return s.result, s.err }

func TestConfirm(t *testing.T) {
	tests := []struct {
		name       string
		result     string
		err        error
		defaultYes bool
		want       bool
		wantErr    error
	}{
		{name: "y", result: "y", want: true},
		{name: "YES", result: "YES", want: true},
		{name: "n", result: "n", err: promptui.ErrAbort, want: false},
		{name: "empty takes default yes", err: errors.New("empty"), defaultYes: true, want: true},
		{name: "empty takes default no", err: errors.New("empty"), want: false},
		{name: "ctrl-c", err: promptui.ErrInterrupt, wantErr: ErrAborted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &scripted{result: tt.result, err: tt.err}
			s.install(t)

			got, err := Confirm("Delete container 4", tt.defaultYes)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			require.Len(t, s.asked, 1)
			assert.True(t, s.asked[0].IsConfirm)
		})
	}
}

func TestConfirmNotInteractive(t *testing.T) {
	s := &scripted{result: "y"}
	s.install(t)
	interactive = func() bool { return false }

	_, err := Confirm("Delete container 4", false)
	assert.ErrorIs(t, err, ErrNotInteractive)
	_, err = ConfirmDanger("Force delete container 4", "4")
	assert.ErrorIs(t, err, ErrNotInteractive)
	assert.Empty(t, s.asked)
}

func TestConfirmDanger(t *testing.T) {
	s := &scripted{result: "12"}
	s.install(t)

	ok, err := ConfirmDanger("Force delete container 12", "12")
	require.NoError(t, err)
	assert.True(t, ok)

	require.Len(t, s.asked, 1)
	validate := s.asked[0].Validate
	require.NotNil(t, validate)
	assert.NoError(t, validate("12"))
	assert.Error(t, validate("1"))

	s.result, s.err = "", promptui.ErrInterrupt
	_, err = ConfirmDanger("Force delete container 12", "12")
	assert.ErrorIs(t, err, ErrAborted)
}

func TestConfirmContainerDelete(t *testing.T) {
	t.Run("yes skips the prompt", func(t *testing.T) {
		s := &scripted{}
		s.install(t)

		for _, force := range []bool{false, true} {
			ok, err := ConfirmContainerDelete(7, force, true)
			require.NoError(t, err)
			assert.True(t, ok)
		}
		assert.Empty(t, s.asked)
	})

	t.Run("plain delete asks yes/no", func(t *testing.T) {
		s := &scripted{result: "y"}
		s.install(t)

		ok, err := ConfirmContainerDelete(7, false, false)
		require.NoError(t, err)
		assert.True(t, ok)
		require.Len(t, s.asked, 1)
		assert.True(t, s.asked[0].IsConfirm)
		assert.Contains(t, s.asked[0].Label, "Delete container 7")
	})

	t.Run("forced delete requires the id", func(t *testing.T) {
		s := &scripted{result: "7"}
		s.install(t)

		ok, err := ConfirmContainerDelete(7, true, false)
		require.NoError(t, err)
		assert.True(t, ok)
		require.Len(t, s.asked, 1)
		assert.False(t, s.asked[0].IsConfirm)
		assert.Contains(t, s.asked[0].Label, "type '7' to confirm")
	})
}
