package ops

import (
	"context"
	"fmt"

	"github.com/ValentinKolb/dDoc/lib/store"
)

// Names of the user management operations
const (
	OpCreateUser = "create-user"
	OpUpdateUser = "update-user"
	OpRemoveUser = "remove-user"
	OpGrantRoles = "grant-roles"
)

type userParams struct {
	dbParams
	Username string      `json:"username"`
	Password string      `json:"password,omitempty"`
	Roles    []RoleParam `json:"roles,omitempty"`
}

func (p userParams) user() store.User {
	return store.User{Name: p.Username, Password: p.Password, Roles: toRoles(p.Roles)}
}

func userOps() []Descriptor {
	username := str("user name")
	return []Descriptor{
		{
			Name:        OpCreateUser,
			Description: "Create a database user.",
			Schema: object([]string{"db", "username", "password", "roles"}, dbProps(false, map[string]any{
				"username": username,
				"password": str("password"),
				"roles":    roles("roles, e.g. [\"readWrite\"] or [{\"role\": \"read\", \"db\": \"reporting\"}]", 0),
			})),
			Exec: bind(func(ctx context.Context, p userParams, conn store.IConn) (Result, error) {
				if err := conn.CreateUser(ctx, p.DB, p.user()); err != nil {
					return Result{}, err
				}
				return Result{Value: p.Username, Text: fmt.Sprintf("User %q created successfully.", p.Username)}, nil
			}),
		},
		{
			Name:        OpUpdateUser,
			Description: "Change the password and/or the roles of a user. Omitted fields stay unchanged.",
			Schema: object([]string{"db", "username"}, dbProps(false, map[string]any{
				"username": username,
				"password": str("new password"),
				"roles":    roles("replacement roles", 0),
			})),
			Exec: bind(func(ctx context.Context, p userParams, conn store.IConn) (Result, error) {
				if p.Password == "" && p.Roles == nil {
					return Result{}, invalidParam("password", fmt.Errorf("password or roles must be given"))
				}
				if err := conn.UpdateUser(ctx, p.DB, p.user()); err != nil {
					return Result{}, err
				}
				return Result{Value: p.Username, Text: fmt.Sprintf("User %q updated successfully.", p.Username)}, nil
			}),
		},
		{
			Name:        OpRemoveUser,
			Description: "Remove a database user.",
			Schema: object([]string{"db", "username"}, dbProps(false, map[string]any{
				"username": username,
			})),
			Exec: bind(func(ctx context.Context, p userParams, conn store.IConn) (Result, error) {
				if err := conn.DropUser(ctx, p.DB, p.Username); err != nil {
					return Result{}, err
				}
				return Result{Value: p.Username, Text: fmt.Sprintf("User %q removed successfully.", p.Username)}, nil
			}),
		},
		{
			Name:        OpGrantRoles,
			Description: "Grant additional roles to a user.",
			Schema: object([]string{"db", "username", "roles"}, dbProps(false, map[string]any{
				"username": username,
				"roles":    roles("roles to add", 1),
			})),
			Exec: bind(func(ctx context.Context, p userParams, conn store.IConn) (Result, error) {
				if err := conn.GrantRoles(ctx, p.DB, p.Username, toRoles(p.Roles)); err != nil {
					return Result{}, err
				}
				return Result{Value: p.Username, Text: fmt.Sprintf("Granted %d role(s) to %q.", len(p.Roles), p.Username)}, nil
			}),
		},
	}
}
