package users

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/hanpama/usergraph/internal/sqlrt"
	"github.com/hanpama/usergraph/internal/store"
)

const (
	listQuery   = `SELECT id, name FROM users ORDER BY id`
	getQuery    = `SELECT id, name FROM users WHERE id = ?`
	insertQuery = `INSERT INTO users (name) VALUES (?)`
	deleteQuery = `DELETE FROM users WHERE id = ?`
)

// Repository reads and writes users through a pool. It backs the resolvers
// bound by Register.
type Repository struct {
	pool sqlrt.Pool
}

func NewRepository(pool sqlrt.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns every user ordered by id. An empty table yields an empty,
// non-nil slice.
func (r *Repository) List(ctx context.Context) (out []User, err error) {
	err = r.pool.WithConn(ctx, func(c *store.Conn) error {
		out, err = list(ctx, c)
		return err
	})
	return out, err
}

// Get returns the user with the given id, or an error matching
// store.ErrNotFound.
func (r *Repository) Get(ctx context.Context, id int) (u User, err error) {
	err = r.pool.WithConn(ctx, func(c *store.Conn) error {
		u, err = get(ctx, c, id)
		return err
	})
	return u, err
}

// Create validates in and inserts it. Invalid input never reaches the store.
func (r *Repository) Create(ctx context.Context, in UserInput) (u User, err error) {
	if err := in.validate(); err != nil {
		return User{}, err
	}
	err = r.pool.WithConn(ctx, func(c *store.Conn) error {
		u, err = create(ctx, c, in)
		return err
	})
	return u, err
}

func toUser(id int64, name string) (User, error) {
	if id > math.MaxInt32 || id < math.MinInt32 {
		return User{}, &store.Error{
			Sentinel: store.ErrQueryRejected,
			Message:  fmt.Sprintf("user id %d does not fit in Int", id),
		}
	}
	return User{ID: int32(id), Name: name}, nil
}

func list(ctx context.Context, c *store.Conn) ([]User, error) {
	rows, err := c.Query(ctx, listQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []User{}
	for rows.Next() {
		var (
			id   int64
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		u, err := toUser(id, name)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, rows.Close()
}

func get(ctx context.Context, c *store.Conn, id int) (User, error) {
	var (
		got  int64
		name string
	)
	err := c.QueryRow(ctx, getQuery, id).Scan(&got, &name)
	if errors.Is(err, store.ErrNotFound) {
		return User{}, store.NotFound("user %d not found", id)
	}
	if err != nil {
		return User{}, err
	}
	return toUser(got, name)
}

// create inserts in. An assigned id outside the Int range is removed again
// and reported, since no client could address it.
func create(ctx context.Context, c *store.Conn, in UserInput) (User, error) {
	id, err := c.InsertReturningID(ctx, insertQuery, "id", in.Name)
	if err != nil {
		return User{}, err
	}
	u, err := toUser(id, in.Name)
	if err != nil {
		if _, derr := c.Exec(ctx, deleteQuery, id); derr != nil {
			return User{}, errors.Join(err, derr)
		}
		return User{}, err
	}
	return u, nil
}
