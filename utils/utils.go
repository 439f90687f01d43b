package utils

import (
	"regexp"

	"github.com/pkg/errors"
)

// CompileRegExps compiles all patterns, failing on the first invalid one.
func CompileRegExps(patterns ...string) ([]*regexp.Regexp, error) {
	regExps := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		regExp, err := regexp.Compile(pattern)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid pattern '%s'", pattern)
		}
		regExps = append(regExps, regExp)
	}
	return regExps, nil
}

// MatchAny reports whether at least one of the expressions matches value.
func MatchAny(regExps []*regexp.Regexp, value string) bool {
	for _, regExp := range regExps {
		if regExp.MatchString(value) {
			return true
		}
	}
	return false
}
