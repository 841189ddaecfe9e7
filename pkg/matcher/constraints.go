package matcher

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/dd0wney/cluso-flowscan/pkg/flow"
)

var (
	// validate is a singleton validator instance
	validate *validator.Validate
)

func init() {
	validate = validator.New()
}

// DefaultDurationRatio is the default k: the return leg must last more
// than 10x longer than the outbound leg.
const DefaultDurationRatio = 10.0

// Constraints configures the two-cycle predicates. A candidate pair
// (e1, e2) with e1 going A->B and e2 going B->A qualifies only when
// every enabled predicate holds.
type Constraints struct {
	// DurationRatioMin is k in: e1.Duration * k < e2.Duration (strict).
	DurationRatioMin float64 `json:"duration_ratio_min" yaml:"duration_ratio_min" validate:"required,gt=0"`

	// ProtoFirst is the protocol label required of e1 (e.g. "tcp").
	ProtoFirst string `json:"proto_first" yaml:"proto_first" validate:"required"`

	// ProtoSecond is the protocol label required of e2 (e.g. "icmp").
	ProtoSecond string `json:"proto_second" yaml:"proto_second" validate:"required"`

	// TimeOrder requires e1.StartTime <= e2.StartTime when true.
	TimeOrder bool `json:"time_order" yaml:"time_order"`
}

// DefaultConstraints returns the beacon-signature defaults: a short tcp
// probe answered by an icmp flow lasting more than 10x longer.
func DefaultConstraints() Constraints {
	return Constraints{
		DurationRatioMin: DefaultDurationRatio,
		ProtoFirst:       "tcp",
		ProtoSecond:      "icmp",
		TimeOrder:        true,
	}
}

// constraintOption maps struct field names to the option names used in
// configuration and error messages.
var constraintOption = map[string]string{
	"DurationRatioMin": "duration_ratio_min",
	"ProtoFirst":       "proto_first",
	"ProtoSecond":      "proto_second",
	"TimeOrder":        "time_order",
}

// Validate checks the constraint set and returns an InvalidConstraint
// error naming the first offending option. Called before any scan work
// begins.
func (c Constraints) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return flow.InvalidConstraintError("constraints", err)
	}

	for _, e := range validationErrs {
		option := constraintOption[e.Field()]
		if option == "" {
			option = e.Field()
		}

		switch e.Tag() {
		case "required":
			return flow.InvalidConstraintError(option, fmt.Errorf("field is required"))
		case "gt":
			return flow.InvalidConstraintError(option, fmt.Errorf("must be greater than %s", e.Param()))
		default:
			return flow.InvalidConstraintError(option, fmt.Errorf("validation failed (%s)", e.Tag()))
		}
	}

	return nil
}

// admit evaluates the predicates for one candidate pair, short-circuiting
// on the first failure. e1 and e2 are assumed structurally valid; the
// distinct-instance check (e1.ID != e2.ID) is the caller's job because it
// is cheaper done before the protocol comparison.
func (c Constraints) admit(e1, e2 *flow.Edge) bool {
	if e2.Protocol != c.ProtoSecond {
		return false
	}
	if c.TimeOrder && e1.StartTime > e2.StartTime {
		return false
	}
	// Strict: equality at the threshold does not qualify.
	return e1.Duration*c.DurationRatioMin < e2.Duration
}
