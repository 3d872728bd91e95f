package users

import (
	"fmt"

	"github.com/hanpama/usergraph/internal/schema"
	"github.com/hanpama/usergraph/internal/sqlrt"
)

// Schema builds the executable schema from SDL.
func Schema() (*schema.Schema, error) {
	return schema.BuildFromSDL(SDL)
}

// Register binds the root fields of SDL to resolvers backed by repo.
func Register(reg *sqlrt.Registry, repo *Repository) {
	reg.Bind("Query", "users", repo.resolveUsers)
	reg.Bind("Query", "user", repo.resolveUser)
	reg.Bind("Mutation", "createUser", repo.resolveCreateUser)
}

func (r *Repository) resolveUsers(rc *sqlrt.RequestContext, _ any, _ map[string]any) (any, error) {
	out, err := r.List(rc.Context())
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repository) resolveUser(rc *sqlrt.RequestContext, _ any, args map[string]any) (any, error) {
	id, ok := args["id"].(int)
	if !ok {
		return nil, fmt.Errorf("users: id has type %T", args["id"])
	}
	u, err := r.Get(rc.Context(), id)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *Repository) resolveCreateUser(rc *sqlrt.RequestContext, _ any, args map[string]any) (any, error) {
	in, err := InputFromArgs(args["input"])
	if err != nil {
		return nil, err
	}
	u, err := r.Create(rc.Context(), in)
	if err != nil {
		return nil, err
	}
	return u, nil
}
