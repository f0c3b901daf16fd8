package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sdomino/scribble"

	apperrors "ctrlauth/internal/errors"
	"ctrlauth/internal/model"
)

// JsonDB stores one JSON file per user under <dbPath>/<Namespace>/<username>.json.
type JsonDB struct {
	conn *scribble.Driver
	keys *keyedMutex
}

// NewJsonDB opens (and creates if needed) a scribble database rooted at dbPath.
func NewJsonDB(dbPath string) (*JsonDB, error) {
	conn, err := scribble.New(dbPath, nil)
	if err != nil {
		return nil, storeError("open jsondb", err)
	}
	if err := os.MkdirAll(filepath.Join(dbPath, Namespace), os.ModePerm); err != nil {
		return nil, storeError("create users collection", err)
	}
	return &JsonDB{
		conn: conn,
		keys: newKeyedMutex(),
	}, nil
}

// validResource rejects usernames that would escape the collection directory.
func validResource(username string) bool {
	return username != "" && username != "." && username != ".." &&
		!strings.ContainsAny(username, `/\`)
}

func (o *JsonDB) read(username string) (*model.User, error) {
	user := model.User{}
	if err := o.conn.Read(Namespace, username, &user); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, storeError("read user", err)
	}
	return &user, nil
}

func (o *JsonDB) Get(ctx context.Context, username string) (*model.User, error) {
	if !validResource(username) {
		return nil, apperrors.ErrUserNotFound
	}
	return o.read(username)
}

func (o *JsonDB) Insert(ctx context.Context, user *model.User) error {
	if !validResource(user.Username) {
		return fmt.Errorf("%w: username %q", apperrors.ErrInvalidPayload, user.Username)
	}
	unlock := o.keys.Lock(user.Username)
	defer unlock()

	if _, err := o.read(user.Username); err == nil {
		return apperrors.ErrUserAlreadyExists
	} else if !errors.Is(err, apperrors.ErrUserNotFound) {
		return err
	}

	user.EnsureID()
	now := time.Now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now
	if err := o.conn.Write(Namespace, user.Username, user); err != nil {
		return storeError("write user", err)
	}
	return nil
}

func (o *JsonDB) Update(ctx context.Context, user *model.User) error {
	if !validResource(user.Username) {
		return apperrors.ErrUserNotFound
	}
	unlock := o.keys.Lock(user.Username)
	defer unlock()

	existing, err := o.read(user.Username)
	if err != nil {
		return err
	}
	user.ID = existing.ID
	user.CreatedAt = existing.CreatedAt
	user.UpdatedAt = time.Now().UTC()
	if err := o.conn.Write(Namespace, user.Username, user); err != nil {
		return storeError("write user", err)
	}
	return nil
}

func (o *JsonDB) Delete(ctx context.Context, username string) error {
	if !validResource(username) {
		return apperrors.ErrUserNotFound
	}
	unlock := o.keys.Lock(username)
	defer unlock()

	if _, err := o.read(username); err != nil {
		return err
	}
	if err := o.conn.Delete(Namespace, username); err != nil {
		return storeError("delete user", err)
	}
	return nil
}

func (o *JsonDB) List(ctx context.Context) ([]model.User, error) {
	users := []model.User{}
	records, err := o.conn.ReadAll(Namespace)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return users, nil
		}
		return nil, storeError("list users", err)
	}
	for _, record := range records {
		user := model.User{}
		if err := json.Unmarshal([]byte(record), &user); err != nil {
			return nil, fmt.Errorf("cannot decode user json structure: %w", err)
		}
		users = append(users, user)
	}
	return users, nil
}

func (o *JsonDB) Close() error {
	return nil
}

var _ UserRepository = (*JsonDB)(nil)
