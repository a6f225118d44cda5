package common

import (
	flag "github.com/spf13/pflag"
)

var (
	// AnswerYesFlag answers yes to all questions.
	AnswerYesFlag *flag.FlagSet

	// VerboseFlag enables step-by-step protocol logging.
	VerboseFlag *flag.FlagSet

	answerYes bool
	verbose   bool
)

// IsVerbose returns true if the verbose flag is set.
func IsVerbose() bool {
	return verbose
}

func init() {
	AnswerYesFlag = flag.NewFlagSet("", flag.ContinueOnError)
	AnswerYesFlag.BoolVarP(&answerYes, "yes", "y", false, "answer yes to all questions")

	VerboseFlag = flag.NewFlagSet("", flag.ContinueOnError)
	VerboseFlag.BoolVarP(&verbose, "verbose", "v", false, "log every protocol step")
}
