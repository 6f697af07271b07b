package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/banshee-data/bode.report/internal/bode"
)

// inputValidate is shared by every SweepInput.
var inputValidate *validator.Validate

func init() {
	inputValidate = validator.New()
	if err := inputValidate.RegisterValidation("spacing", validateSpacing); err != nil {
		panic(err)
	}
}

func validateSpacing(fl validator.FieldLevel) bool {
	_, err := bode.ParseSpacing(fl.Field().String())
	return err == nil
}

// SweepInput is the user-supplied sweep request. It is validated before any
// instrument is opened. The supported range is 0.2 Hz to 10 MHz, 2 to 1000
// steps and 0.5 to 20 Vpp.
type SweepInput struct {
	StartFreq float64 `json:"start_freq" yaml:"start_freq" validate:"gte=0.2,lte=10000000"`
	EndFreq   float64 `json:"end_freq" yaml:"end_freq" validate:"gtfield=StartFreq,lte=10000000"`
	Steps     int     `json:"steps" yaml:"steps" validate:"gte=2,lte=1000"`
	Spacing   string  `json:"spacing" yaml:"spacing" validate:"required,spacing"`
	Vpp       float64 `json:"vpp" yaml:"vpp" validate:"gte=0.5,lte=20"`
}

// Validate checks every field and reports all violations at once.
func (in SweepInput) Validate() error {
	err := inputValidate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("invalid sweep input: %s", strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	name := fieldNames[fe.Field()]
	if name == "" {
		name = fe.Field()
	}
	switch fe.Tag() {
	case "gte":
		return fmt.Sprintf("%s must be at least %s, got %v", name, fe.Param(), fe.Value())
	case "lte":
		return fmt.Sprintf("%s must be at most %s, got %v", name, fe.Param(), fe.Value())
	case "gtfield":
		return fmt.Sprintf("%s must be above the start frequency, got %v", name, fe.Value())
	case "required", "spacing":
		return fmt.Sprintf("%s must be linear or log, got %q", name, fe.Value())
	}
	return fmt.Sprintf("%s failed %s", name, fe.Tag())
}

var fieldNames = map[string]string{
	"StartFreq": "start frequency",
	"EndFreq":   "end frequency",
	"Steps":     "steps",
	"Spacing":   "spacing",
	"Vpp":       "amplitude (Vpp)",
}

// Plan validates the input and converts it into a sweep plan.
func (in SweepInput) Plan() (bode.SweepPlan, error) {
	if err := in.Validate(); err != nil {
		return bode.SweepPlan{}, fmt.Errorf("%w: %v", bode.ErrInvalidPlan, err)
	}
	spacing, err := bode.ParseSpacing(in.Spacing)
	if err != nil {
		return bode.SweepPlan{}, err
	}
	return bode.SweepPlan{
		StartFreq: in.StartFreq,
		EndFreq:   in.EndFreq,
		StepCount: in.Steps,
		Spacing:   spacing,
	}, nil
}
