package protocol

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	cuejson "cuelang.org/go/encoding/json"
)

//go:embed schema.cue
var schemaSource string

// SchemaError reports a request that does not match the wire schema.
type SchemaError struct {
	Message string
	Details string
}

func (e *SchemaError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("invalid request: %s\n%s", e.Message, e.Details)
	}
	return "invalid request: " + e.Message
}

// validator holds the compiled schema. A cue.Context is not safe for
// concurrent use, so every evaluation happens under mu.
type validator struct {
	mu      sync.Mutex
	ctx     *cue.Context
	request cue.Value
}

var (
	schemaOnce sync.Once
	schema     *validator
	schemaErr  error
)

func loadSchema() (*validator, error) {
	schemaOnce.Do(func() {
		ctx := cuecontext.New()
		v := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
		if err := v.Err(); err != nil {
			schemaErr = fmt.Errorf("compile request schema: %w", err)
			return
		}
		req := v.LookupPath(cue.ParsePath("#Request"))
		if err := req.Err(); err != nil {
			schemaErr = fmt.Errorf("lookup #Request: %w", err)
			return
		}
		schema = &validator{ctx: ctx, request: req}
	})
	return schema, schemaErr
}

// Validate checks raw against the request schema.
func Validate(raw []byte) error {
	if !json.Valid(raw) {
		return &SchemaError{Message: "body is not valid JSON"}
	}

	s, err := loadSchema()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	expr, err := cuejson.Extract("request.json", raw)
	if err != nil {
		return &SchemaError{Message: "body is not valid JSON", Details: errors.Details(err, nil)}
	}
	data := s.ctx.BuildExpr(expr)
	if err := data.Err(); err != nil {
		return schemaError(err)
	}

	unified := s.request.Unify(data)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return schemaError(err)
	}
	return nil
}

func schemaError(err error) *SchemaError {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &SchemaError{Message: err.Error()}
	}
	return &SchemaError{
		Message: errs[0].Error(),
		Details: errors.Details(err, nil),
	}
}

// ParseRequest validates raw against the schema and decodes it.
func ParseRequest(raw []byte) (*Request, error) {
	if err := Validate(raw); err != nil {
		return nil, err
	}
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, &SchemaError{Message: err.Error()}
	}
	return &req, nil
}
