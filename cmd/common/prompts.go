package common

import (
	"fmt"
	"os"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"
)

// SurveyStdio is the standard survey option to direct prompts to stderr.
var SurveyStdio = survey.WithStdio(os.Stdin, os.Stderr, os.Stderr)

// Ask wraps survey.AskOne while forcing prompts to stderr.
func Ask(p survey.Prompt, response interface{}, opts ...survey.AskOpt) error {
	return survey.AskOne(p, response, append([]survey.AskOpt{SurveyStdio}, opts...)...)
}

// Confirm asks the user for confirmation and aborts when rejected.
func Confirm(msg, abortMsg string) {
	if answerYes {
		fmt.Fprintf(os.Stderr, "? %s Yes\n", msg)
		return
	}

	var proceed bool
	err := Ask(&survey.Confirm{Message: msg}, &proceed)
	cobra.CheckErr(err)
	if !proceed {
		cobra.CheckErr(abortMsg)
	}
}
