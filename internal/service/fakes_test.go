package service

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"blogsphere/internal/domain"
	"blogsphere/internal/repository"
)

// fakeUserRepo imita la tabla users, incluido el índice único de email.
type fakeUserRepo struct {
	mu       sync.Mutex
	nextID   int64
	byID     map[int64]domain.User
	byEmail  map[string]int64
	getErr   error
	creating chan struct{}
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		byID:    make(map[int64]domain.User),
		byEmail: make(map[string]int64),
	}
}

func (r *fakeUserRepo) Create(_ context.Context, user domain.User) (int64, error) {
	if r.creating != nil {
		<-r.creating
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if user.Email != "" {
		if _, ok := r.byEmail[user.Email]; ok {
			return 0, repository.ErrDuplicateEmail
		}
	}
	r.nextID++
	user.ID = r.nextID
	user.CreatedAt = time.Now().UTC()
	r.byID[user.ID] = user
	if user.Email != "" {
		r.byEmail[user.Email] = user.ID
	}
	return user.ID, nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id int64) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return domain.User{}, r.getErr
	}
	user, ok := r.byID[id]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return user, nil
}

func (r *fakeUserRepo) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	r.mu.Lock()
	if r.getErr != nil {
		r.mu.Unlock()
		return domain.User{}, r.getErr
	}
	id, ok := r.byEmail[email]
	r.mu.Unlock()
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return r.GetByID(ctx, id)
}

func (r *fakeUserRepo) EmailTakenByOther(_ context.Context, email string, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	owner, ok := r.byEmail[email]
	return ok && owner != id, nil
}

func (r *fakeUserRepo) UpdateProfile(ctx context.Context, id int64, username, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.byID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	delete(r.byEmail, user.Email)
	user.Username = username
	user.Email = email
	r.byID[id] = user
	r.byEmail[email] = id
	return nil
}

func (r *fakeUserRepo) UpdateProfileAndPassword(ctx context.Context, id int64, username, email, passwordHash string) error {
	if err := r.UpdateProfile(ctx, id, username, email); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	user := r.byID[id]
	user.PasswordHash = passwordHash
	r.byID[id] = user
	return nil
}

type stubLimiter struct {
	allow bool
	keys  []string
}

func (l *stubLimiter) Allow(key string) bool {
	l.keys = append(l.keys, key)
	return l.allow
}
