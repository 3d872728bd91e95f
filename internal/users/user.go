package users

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hanpama/usergraph/internal/executor"
	"github.com/hanpama/usergraph/internal/sqlrt"
)

// SDL is the GraphQL schema served for users.
//
//go:embed schema.graphql
var SDL string

// User is one row of the users table.
type User struct {
	ID   int32  `json:"id"`
	Name string `json:"name"`
}

var _ sqlrt.Entity = User{}

// Field implements sqlrt.Entity.
func (u User) Field(name string) (any, bool) {
	switch name {
	case "id":
		return u.ID, true
	case "name":
		return u.Name, true
	}
	return nil, false
}

// UserInput is the argument of createUser.
type UserInput struct {
	Name string `validate:"required"`
}

// InputFromArgs reads a coerced UserInput argument.
func InputFromArgs(v any) (UserInput, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return UserInput{}, fmt.Errorf("users: input has type %T", v)
	}
	name, _ := m["name"].(string)
	return UserInput{Name: name}, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// InvalidInputError reports a UserInput that failed validation.
type InvalidInputError struct {
	// Fields lists the offending argument paths, e.g. "input.name".
	Fields []string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input: %s is required", strings.Join(e.Fields, ", "))
}

func (e *InvalidInputError) ErrorCode() string { return executor.CodeMissingArgument }

func (in UserInput) validate() error {
	err := validate.Struct(in)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, "input."+strings.ToLower(fe.Field()))
	}
	return &InvalidInputError{Fields: fields}
}
