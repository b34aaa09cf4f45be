package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
)

type User struct {
	ID           uint64
	Username     string
	PasswordHash []byte
	Role         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

var ErrUserNotFound = errors.New("user not found")
var ErrUsernameTaken = errors.New("username already taken")

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, 3*time.Second)
}

func CreateUser(ctx context.Context, db *sql.DB, username string, passwordHash []byte) (uint64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	const stmt = `
	INSERT INTO users (username, password_hash, role) VALUES (?, ?, 'editor');
	`
	res, err := db.ExecContext(ctx, stmt, username, passwordHash)
	if err != nil {
		// 1062 = duplicate key
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return 0, ErrUsernameTaken
		}
		return 0, err
	}
	id, _ := res.LastInsertId()
	return uint64(id), nil
}

func GetUserByUsername(ctx context.Context, db *sql.DB, username string) (*User, error) {
	const query = `
	SELECT id, username, password_hash, role FROM users WHERE username = ?;
	`
	var u User
	err := db.QueryRowContext(ctx, query, username).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}
