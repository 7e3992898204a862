// Package validation validates cmdkit configuration.
//
// Struct tag validation uses go-playground/validator and reports fields by
// their configuration key:
//
//	type Profile struct {
//	    Command    string `mapstructure:"command" validate:"required"`
//	    RetryTimes int    `mapstructure:"retry_times" validate:"gte=0"`
//	}
//	err := validation.Validate(p)
//
// Checks that tags cannot express are collected programmatically and
// combined with tag checks in one error:
//
//	v := validation.New().Struct(p)
//	v.Custom(p.RetryTimes == 0 || p.Check, "retry_times", "requires check")
//	err := v.Validate()
package validation
