package quiz

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ErrInvalid wraps every validation failure so handlers can map it to 400.
var ErrInvalid = errors.New("invalid")

// Validate checks struct tags plus the rules tags cannot express.
func (q Quiz) Validate() error {
	if err := validate.Struct(q); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalid, describe(err))
	}
	for i, qq := range q.Questions {
		if qq.Type == MultipleChoice && len(qq.Options) < 2 {
			return fmt.Errorf("%w: question %d: multiple choice needs at least two options", ErrInvalid, i)
		}
		if qq.Type == MultipleChoice && qq.AnswerKey != "" && !contains(qq.Options, qq.AnswerKey) {
			return fmt.Errorf("%w: question %d: answer key %q is not one of the options", ErrInvalid, i, qq.AnswerKey)
		}
	}
	return nil
}

func (c Class) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalid, describe(err))
	}
	return nil
}

// Struct validates any request DTO with the shared validator.
func Struct(v any) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalid, describe(err))
	}
	return nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}
