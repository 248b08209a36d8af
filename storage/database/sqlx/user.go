package sqlxrepos

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/reportcardpro/backend/core/user"
	"github.com/reportcardpro/backend/storage/database"
)

type userRow struct {
	ID           string      `db:"id"`
	Name         string      `db:"name"`
	Email        string      `db:"email"`
	School       string      `db:"school"`
	Province     string      `db:"province"`
	PasswordHash string      `db:"password_hash"`
	CreatedAt    string      `db:"created_at"`
	UpdatedAt    string      `db:"updated_at"`
	LastLogin    null.String `db:"last_login"`
}

const userColumns = "id, name, email, school, province, password_hash, created_at, updated_at, last_login"

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{db: db}
}

func boilUser(usr user.User) userRow {
	row := userRow{
		ID:           usr.ID,
		Name:         usr.Name,
		Email:        usr.Email,
		School:       usr.School,
		Province:     usr.Province,
		PasswordHash: string(usr.PasswordHash),
		CreatedAt:    formatTime(usr.CreatedAt),
		UpdatedAt:    formatTime(usr.UpdatedAt),
	}
	if !usr.LastLogin.IsZero() {
		row.LastLogin = null.StringFrom(formatTime(usr.LastLogin))
	}
	return row
}

func unboilUser(row userRow) (user.User, error) {
	usr := user.User{
		ID:           row.ID,
		Name:         row.Name,
		Email:        row.Email,
		School:       row.School,
		Province:     row.Province,
		PasswordHash: []byte(row.PasswordHash),
	}
	var err error
	if usr.CreatedAt, err = parseTime(row.CreatedAt); err != nil {
		return user.User{}, err
	}
	if usr.UpdatedAt, err = parseTime(row.UpdatedAt); err != nil {
		return user.User{}, err
	}
	if row.LastLogin.Valid {
		if usr.LastLogin, err = parseTime(row.LastLogin.String); err != nil {
			return user.User{}, err
		}
	}
	return usr, nil
}

func trapNoRowsErr(err error) error {
	if database.IsNoRows(err) {
		return user.ErrNotFound
	}
	return err
}

func (repo *userRepository) CheckEmailUniqueness(ctx context.Context, email string, excludedUsers ...user.User) error {
	q := "SELECT id FROM users WHERE email = ?"
	args := []interface{}{email}
	if len(excludedUsers) > 0 {
		ids := make([]string, len(excludedUsers))
		for i, u := range excludedUsers {
			ids[i] = u.ID
		}
		q += " AND id NOT IN (?" + strings.Repeat(", ?", len(ids)-1) + ")"
		for _, id := range ids {
			args = append(args, id)
		}
	}

	var found []string
	if err := repo.db.SelectContext(ctx, &found, repo.db.Rebind(q+" LIMIT 1"), args...); err != nil {
		return errors.Wrap(err, "checking email uniqueness")
	}
	if len(found) > 0 {
		return user.ErrEmailExists
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	if err := repo.CheckEmailUniqueness(ctx, usr.Email); err != nil {
		return user.User{}, err
	}
	q := "INSERT INTO users (" + userColumns + ") VALUES " +
		"(:id, :name, :email, :school, :province, :password_hash, :created_at, :updated_at, :last_login)"
	if _, err := repo.db.NamedExecContext(ctx, q, boilUser(usr)); err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return repo.GetUserByID(ctx, usr.ID)
}

func (repo *userRepository) QueryAllUsers(ctx context.Context) ([]user.User, error) {
	var rows []userRow
	if err := repo.db.SelectContext(ctx, &rows, "SELECT "+userColumns+" FROM users ORDER BY created_at, id"); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		usr, err := unboilUser(row)
		if err != nil {
			return nil, err
		}
		users = append(users, usr)
	}
	return users, nil
}

func (repo *userRepository) getUser(ctx context.Context, where string, arg interface{}) (user.User, error) {
	var row userRow
	q := repo.db.Rebind("SELECT " + userColumns + " FROM users WHERE " + where + " = ?")
	if err := repo.db.GetContext(ctx, &row, q, arg); err != nil {
		return user.User{}, trapNoRowsErr(err)
	}
	return unboilUser(row)
}

func (repo *userRepository) GetUserByID(ctx context.Context, id string) (user.User, error) {
	return repo.getUser(ctx, "id", id)
}

func (repo *userRepository) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	return repo.getUser(ctx, "email", email)
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	orig, err := repo.GetUserByID(ctx, usr.ID)
	if err != nil {
		return user.User{}, err
	}
	if usr.PasswordHash == nil {
		usr.PasswordHash = orig.PasswordHash
	}
	usr.CreatedAt = orig.CreatedAt

	q := "UPDATE users SET name = :name, email = :email, school = :school, province = :province, " +
		"password_hash = :password_hash, updated_at = :updated_at, last_login = :last_login WHERE id = :id"
	if _, err = repo.db.NamedExecContext(ctx, q, boilUser(usr)); err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	return repo.GetUserByID(ctx, usr.ID)
}
