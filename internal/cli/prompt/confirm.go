// Package prompt asks the operator to confirm destructive CLI commands.
package prompt

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"
	"golang.org/x/term"
)

var (
	// ErrAborted is returned when the user presses Ctrl+C.
	ErrAborted = errors.New("aborted")

	// ErrNotInteractive is returned when confirmation is needed but stdin
	// is not a terminal.
	ErrNotInteractive = errors.New("confirmation required but stdin is not a terminal (pass --yes)")
)

type runner interface {
	Run() (string, error)
}

// newRunner and interactive are replaced in tests.
var (
	newRunner = func(p promptui.Prompt) runner { return &p }

	interactive = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) }
)

// Confirm prompts the user for yes/no confirmation.
// Returns ErrAborted if the user presses Ctrl+C.
func Confirm(label string, defaultYes bool) (bool, error) {
	if !interactive() {
		return false, ErrNotInteractive
	}

	defaultStr := "y/N"
	if defaultYes {
		defaultStr = "Y/n"
	}

	result, err := newRunner(promptui.Prompt{
		Label:     fmt.Sprintf("%s [%s]", label, defaultStr),
		IsConfirm: true,
	}).Run()
	if err != nil {
		switch {
		case errors.Is(err, promptui.ErrInterrupt):
			return false, ErrAborted
		case errors.Is(err, promptui.ErrAbort):
			// promptui reports "n" as ErrAbort
			return false, nil
		case result == "":
			return defaultYes, nil
		}
		return false, err
	}

	result = strings.ToLower(result)
	return result == "y" || result == "yes", nil
}

// ConfirmDanger requires typing confirmWord to proceed.
// Returns ErrAborted if the user presses Ctrl+C.
func ConfirmDanger(label, confirmWord string) (bool, error) {
	if !interactive() {
		return false, ErrNotInteractive
	}

	result, err := newRunner(promptui.Prompt{
		Label:    fmt.Sprintf("%s (type '%s' to confirm)", label, confirmWord),
		Validate: matchWord(confirmWord),
	}).Run()
	if err != nil {
		if errors.Is(err, promptui.ErrInterrupt) {
			return false, ErrAborted
		}
		if errors.Is(err, promptui.ErrAbort) {
			return false, nil
		}
		return false, err
	}

	return result == confirmWord, nil
}

func matchWord(word string) promptui.ValidateFunc {
	return func(input string) error {
		if input != word {
			return fmt.Errorf("type '%s' to confirm", word)
		}
		return nil
	}
}

// ConfirmWithForce returns true immediately if force is true,
// otherwise prompts for confirmation.
func ConfirmWithForce(label string, force bool) (bool, error) {
	if force {
		return true, nil
	}
	return Confirm(label, false)
}

// ConfirmContainerDelete asks before deleting container id. A forced delete
// drops live blocks, so it requires typing the container id; a plain delete
// only removes an empty container and takes a yes/no answer. yes skips the
// prompt entirely.
func ConfirmContainerDelete(id int64, force, yes bool) (bool, error) {
	if force && !yes {
		return ConfirmDanger(
			fmt.Sprintf("Force delete container %d including all of its blocks", id),
			strconv.FormatInt(id, 10))
	}
	return ConfirmWithForce(fmt.Sprintf("Delete container %d", id), yes)
}
