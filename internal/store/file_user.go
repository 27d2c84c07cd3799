package store

import (
	"context"

	"github.com/orderdesk/apiserver/types"
)

// FileUserRepository persists users inside a FileStore.
type FileUserRepository struct {
	fs *FileStore
}

func NewFileUserRepository(fs *FileStore) *FileUserRepository {
	return &FileUserRepository{fs: fs}
}

func (r *FileUserRepository) GetByID(ctx context.Context, id int64) (types.User, error) {
	return r.find(ctx, func(u fileUser) bool { return u.ID == id })
}

func (r *FileUserRepository) GetByUsername(ctx context.Context, username string) (types.User, error) {
	return r.find(ctx, func(u fileUser) bool { return u.Username == username })
}

// Create inserts user with the next free id. The username check and the
// insert happen in the same read-modify-write cycle.
func (r *FileUserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	if err := ctx.Err(); err != nil {
		return types.User{}, err
	}
	err := r.fs.update(func(data *dataFile) error {
		for _, existing := range data.Users {
			if existing.Username == user.Username {
				return ErrConflict
			}
		}
		user.ID = data.nextUserID()
		data.Users = append(data.Users, fileUser{
			ID:       user.ID,
			Username: user.Username,
			Password: user.PasswordHash,
			Role:     user.Role,
		})
		return nil
	})
	if err != nil {
		return types.User{}, err
	}
	return user, nil
}

func (r *FileUserRepository) find(ctx context.Context, match func(fileUser) bool) (types.User, error) {
	if err := ctx.Err(); err != nil {
		return types.User{}, err
	}
	var user types.User
	err := r.fs.view(func(data dataFile) error {
		for _, u := range data.Users {
			if match(u) {
				user = types.User{
					ID:           u.ID,
					Username:     u.Username,
					Role:         u.Role,
					PasswordHash: u.Password,
				}
				return nil
			}
		}
		return ErrNotFound
	})
	if err != nil {
		return types.User{}, err
	}
	return user, nil
}
