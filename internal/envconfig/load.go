package envconfig

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	cuejson "cuelang.org/go/encoding/json"
	cueyaml "cuelang.org/go/encoding/yaml"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource []byte

// Error codes returned in LoadError.
const (
	ErrCodeRead   = "E101" // file could not be read
	ErrCodeFormat = "E102" // unsupported file extension
	ErrCodeSyntax = "E103" // document does not parse
	ErrCodeSchema = "E104" // document violates #Environment
	ErrCodeExport = "E105" // validated value could not be decoded
)

// LoadError reports why an environment file was rejected.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
	Err     error
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Extensions lists the file extensions Load understands.
var Extensions = []string{".yaml", ".yml", ".json", ".cue"}

// Load reads, validates and decodes the environment file at path.
func Load(path string) (*Environment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeRead, Message: fmt.Sprintf("reading environment: %v", err), Err: err}
	}
	return Parse(path, data)
}

// Parse validates and decodes an environment document. The format is taken
// from the extension of filename.
func Parse(filename string, data []byte) (*Environment, error) {
	raw, err := decode(filename, data)
	if err != nil {
		return nil, err
	}
	env := FromMap(raw)
	return &env, nil
}

// Validate checks the environment file at path against the schema without
// building an Environment.
func Validate(path string) error {
	_, err := Load(path)
	return err
}

func decode(filename string, data []byte) (map[string]any, error) {
	ctx := cuecontext.New()

	value, err := build(ctx, filename, data)
	if err != nil {
		return nil, err
	}

	schema := ctx.CompileBytes(schemaSource, cue.Filename("schema.cue")).LookupPath(cue.ParsePath("#Environment"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compiling environment schema: %w", err)
	}

	unified := schema.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, cueLoadError(ErrCodeSchema, err)
	}

	js, err := value.MarshalJSON()
	if err != nil {
		return nil, cueLoadError(ErrCodeExport, err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(js, &raw); err != nil {
		return nil, &LoadError{Code: ErrCodeExport, Message: err.Error(), Err: err}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

func build(ctx *cue.Context, filename string, data []byte) (cue.Value, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return ctx.CompileString("{}"), nil
	}

	var value cue.Value
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".yaml", ".yml":
		file, err := cueyaml.Extract(filename, data)
		if err != nil {
			return cue.Value{}, cueLoadError(ErrCodeSyntax, err)
		}
		value = ctx.BuildFile(file)
	case ".json":
		expr, err := cuejson.Extract(filename, data)
		if err != nil {
			return cue.Value{}, cueLoadError(ErrCodeSyntax, err)
		}
		value = ctx.BuildExpr(expr)
	case ".cue":
		value = ctx.CompileBytes(data, cue.Filename(filename))
	default:
		return cue.Value{}, &LoadError{
			Code:    ErrCodeFormat,
			Message: fmt.Sprintf("unsupported environment format %q (want one of %s)", ext, strings.Join(Extensions, ", ")),
		}
	}

	if err := value.Err(); err != nil {
		return cue.Value{}, cueLoadError(ErrCodeSyntax, err)
	}
	return value, nil
}

// cueLoadError converts a CUE error into a LoadError carrying the position
// of its first error.
func cueLoadError(code string, err error) *LoadError {
	le := &LoadError{Code: code, Message: err.Error(), Err: err}
	var cerr cueerrors.Error
	if errors.As(err, &cerr) {
		if list := cueerrors.Errors(cerr); len(list) > 0 {
			first := list[0]
			le.Pos = first.Position()
			le.Message = first.Error()
		}
	}
	return le
}
