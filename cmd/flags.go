package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/conneroisu/taglet/internal/errors"
)

// AddFlagValidation adds validation for a specific flag
func AddFlagValidation(cmd *cobra.Command, flagName string, validator func(string) error) {
	flag := cmd.Flags().Lookup(flagName)
	if flag == nil {
		return
	}

	flag.Value = &validatingValue{
		Value:     flag.Value,
		validator: validator,
	}
}

type validatingValue struct {
	pflag.Value
	validator func(string) error
}

func (v *validatingValue) Set(val string) error {
	if v.validator != nil {
		if err := v.validator(val); err != nil {
			return err
		}
	}
	return v.Value.Set(val)
}

// ValidateFormatWithSuggestion accepts value when it is one of valid, and
// otherwise names the closest valid choice.
func ValidateFormatWithSuggestion(value string, valid []string) error {
	for _, v := range valid {
		if strings.EqualFold(value, v) {
			return nil
		}
	}
	msg := fmt.Sprintf("invalid value %q, must be one of: %s", value, strings.Join(valid, ", "))
	if suggestions := errors.Suggest(strings.ToLower(value), valid); len(suggestions) > 0 {
		msg += fmt.Sprintf(" (did you mean %q?)", suggestions[0])
	}
	return fmt.Errorf("%s", msg)
}
