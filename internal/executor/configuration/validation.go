package configuration

import (
	"github.com/go-playground/validator/v10"
)

func (c ExecutorConfiguration) Validate() error {
	return validator.New().Struct(c)
}
