package checkpoint

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Format selects the on-disk encoding of a checkpoint.
type Format string

const (
	// FormatJSON is the human-readable format (.json).
	FormatJSON Format = "json"

	// FormatBinary is the compact gob format (.gob).
	// It is not portable outside Go.
	FormatBinary Format = "binary"
)

// Policy is the immutable configuration of a Manager.
type Policy struct {
	// Directory holds the versioned checkpoint files.
	Directory string `validate:"required"`

	// Interval is the number of processed items between automatic
	// checkpoints. 0 disables periodic checkpointing; explicit saves
	// still work.
	Interval int `validate:"gte=0"`

	// Name is an optional fixed logical name. When empty the caller
	// derives one.
	Name string

	Format Format `validate:"oneof=json binary"`

	// RetentionCount is the number of prior versions kept beside the
	// current file.
	RetentionCount int `validate:"gte=1"`

	// AutoCleanupOnSuccess asks the caller to delete the checkpoint once
	// the whole computation succeeded. The manager does not act on it.
	AutoCleanupOnSuccess bool
}

// PolicyOption configures a Policy.
type PolicyOption func(*Policy)

// WithInterval sets the periodic checkpoint interval in items.
func WithInterval(n int) PolicyOption {
	return func(p *Policy) {
		p.Interval = n
	}
}

// WithName sets a fixed logical checkpoint name.
func WithName(name string) PolicyOption {
	return func(p *Policy) {
		p.Name = name
	}
}

// WithFormat sets the on-disk format.
func WithFormat(f Format) PolicyOption {
	return func(p *Policy) {
		p.Format = f
	}
}

// WithRetention sets the number of prior versions to keep.
func WithRetention(n int) PolicyOption {
	return func(p *Policy) {
		p.RetentionCount = n
	}
}

// WithAutoCleanup sets AutoCleanupOnSuccess.
func WithAutoCleanup(enabled bool) PolicyOption {
	return func(p *Policy) {
		p.AutoCleanupOnSuccess = enabled
	}
}

// DefaultPolicy returns a policy for dir with JSON format, one retained
// version and periodic checkpointing disabled.
func DefaultPolicy(dir string) Policy {
	return Policy{
		Directory:      dir,
		Format:         FormatJSON,
		RetentionCount: 1,
	}
}

// NewPolicy builds a validated policy. Either a valid Policy or a
// *ConfigurationError is returned, never both.
func NewPolicy(dir string, opts ...PolicyOption) (Policy, error) {
	p := DefaultPolicy(dir)
	for _, opt := range opts {
		opt(&p)
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

var policyValidate = validator.New()

// Validate checks the policy invariants and returns the first violation
// as a *ConfigurationError.
func (p Policy) Validate() error {
	err := policyValidate.Struct(p)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ConfigurationError{Field: "Policy", Message: err.Error()}
	}

	fe := verrs[0]
	return &ConfigurationError{
		Field:   fe.Field(),
		Message: constraintMessage(fe.Tag(), fe.Param(), fe.Value()),
	}
}

// Extension returns the file extension for the policy's format.
func (p Policy) Extension() string {
	codec, err := CodecFor(p.Format)
	if err != nil {
		return ""
	}
	return codec.Extension()
}

func constraintMessage(tag, param string, value any) string {
	switch tag {
	case "required":
		return "must be set"
	case "gte":
		return fmt.Sprintf("must be >= %s, got %v", param, value)
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %q", param, value)
	default:
		return fmt.Sprintf("failed %s=%s", tag, param)
	}
}
