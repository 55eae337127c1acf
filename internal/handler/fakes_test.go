package handler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hitoshi/taskboard/internal/auth"
	"github.com/hitoshi/taskboard/internal/model"
	"github.com/hitoshi/taskboard/internal/repository"
)

// tokenVerifier はトークン文字列とClaimsの対応表によるTokenVerifierの実装。
type tokenVerifier struct {
	tokens map[string]*auth.Claims
	err    error
}

func (v *tokenVerifier) Verify(ctx context.Context, token string) (*auth.Claims, error) {
	if v.err != nil {
		return nil, v.err
	}
	if c, ok := v.tokens[token]; ok {
		return c, nil
	}
	return nil, auth.ErrInvalidToken
}

// memoryStore はusersとtasksを保持するインメモリのリポジトリ実装。
// PostgreSQL実装と同じくTaskScopeで所有者を絞り込む。
type memoryStore struct {
	mu    sync.Mutex
	users map[string]*model.User
	tasks map[string]*model.Task
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		users: make(map[string]*model.User),
		tasks: make(map[string]*model.Task),
	}
}

func (s *memoryStore) userRepo() *memoryUserRepo { return &memoryUserRepo{s} }
func (s *memoryStore) taskRepo() *memoryTaskRepo { return &memoryTaskRepo{s} }

func copyTask(t *model.Task) *model.Task {
	c := *t
	return &c
}

func copyUser(u *model.User) *model.User {
	c := *u
	return &c
}

type memoryTaskRepo struct{ s *memoryStore }

func inScope(scope repository.TaskScope, t *model.Task) (bool, error) {
	if scope.IsAdmin() {
		return true, nil
	}
	if scope.Owner() == "" {
		return false, repository.ErrUnscopedQuery
	}
	return t.CreatedBy == scope.Owner(), nil
}

func (r *memoryTaskRepo) Create(ctx context.Context, task *model.Task) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.tasks[task.ID] = copyTask(task)
	return nil
}

func (r *memoryTaskRepo) List(ctx context.Context, scope repository.TaskScope, filter model.TaskFilter) ([]*model.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := []*model.Task{}
	for _, t := range r.s.tasks {
		ok, err := inScope(scope, t)
		if err != nil {
			return nil, err
		}
		if !ok || (filter.Status != "" && t.Status != filter.Status) {
			continue
		}
		out = append(out, copyTask(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memoryTaskRepo) Find(ctx context.Context, scope repository.TaskScope, id string) (*model.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t, exists := r.s.tasks[id]
	if !exists {
		return nil, nil
	}
	ok, err := inScope(scope, t)
	if err != nil || !ok {
		return nil, err
	}
	return copyTask(t), nil
}

func (r *memoryTaskRepo) Update(ctx context.Context, scope repository.TaskScope, task *model.Task) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	current, exists := r.s.tasks[task.ID]
	if !exists {
		return false, nil
	}
	ok, err := inScope(scope, current)
	if err != nil || !ok {
		return false, err
	}
	updated := copyTask(task)
	updated.CreatedBy = current.CreatedBy
	updated.CreatedAt = current.CreatedAt
	r.s.tasks[task.ID] = updated
	return true, nil
}

func (r *memoryTaskRepo) Delete(ctx context.Context, scope repository.TaskScope, id string) (*model.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t, exists := r.s.tasks[id]
	if !exists {
		return nil, nil
	}
	ok, err := inScope(scope, t)
	if err != nil || !ok {
		return nil, err
	}
	delete(r.s.tasks, id)
	return t, nil
}

func (r *memoryTaskRepo) Count(ctx context.Context) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.s.tasks), nil
}

func (r *memoryTaskRepo) CountByStatus(ctx context.Context) ([]model.StatusCount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	counts := map[model.TaskStatus]int{}
	for _, t := range r.s.tasks {
		counts[t.Status]++
	}
	out := []model.StatusCount{}
	for status, n := range counts {
		out = append(out, model.StatusCount{Status: status, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Status < out[j].Status })
	return out, nil
}

type memoryUserRepo struct{ s *memoryStore }

func (r *memoryUserRepo) findLocked(keycloakID string) *model.User {
	for _, u := range r.s.users {
		if u.KeycloakID == keycloakID {
			return u
		}
	}
	return nil
}

func (r *memoryUserRepo) FindByKeycloakID(ctx context.Context, keycloakID string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if u := r.findLocked(keycloakID); u != nil {
		return copyUser(u), nil
	}
	return nil, nil
}

func (r *memoryUserRepo) RecordLogin(ctx context.Context, user *model.User) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if u := r.findLocked(user.KeycloakID); u != nil {
		u.LastLogin = user.LastLogin
		u.UpdatedAt = user.UpdatedAt
		return copyUser(u), nil
	}
	r.s.users[user.ID] = copyUser(user)
	return copyUser(user), nil
}

func (r *memoryUserRepo) CreateIfAbsent(ctx context.Context, user *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.findLocked(user.KeycloakID) == nil {
		r.s.users[user.ID] = copyUser(user)
	}
	return nil
}

func (r *memoryUserRepo) UpdateProfile(ctx context.Context, keycloakID string, update model.ProfileUpdate, at time.Time) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u := r.findLocked(keycloakID)
	if u == nil {
		return nil, nil
	}
	if update.FirstName != nil {
		u.FirstName = update.FirstName
	}
	if update.LastName != nil {
		u.LastName = update.LastName
	}
	if update.Preferences != nil {
		u.Preferences = update.Preferences
	}
	u.UpdatedAt = at
	return copyUser(u), nil
}

func (r *memoryUserRepo) List(ctx context.Context) ([]*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*model.User{}
	for _, u := range r.s.users {
		out = append(out, copyUser(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memoryUserRepo) Count(ctx context.Context) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.s.users), nil
}

func (r *memoryUserRepo) DeleteWithTasks(ctx context.Context, id string) (*model.User, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, exists := r.s.users[id]
	if !exists {
		return nil, 0, nil
	}
	delete(r.s.users, id)
	var n int64
	for tid, t := range r.s.tasks {
		if t.CreatedBy == u.KeycloakID {
			delete(r.s.tasks, tid)
			n++
		}
	}
	return u, n, nil
}

// countingInvalidator はKeyInvalidatorの呼び出し回数を数える。
// fetchedAtがゼロ値の場合は鍵未取得として振る舞う。
type countingInvalidator struct {
	calls     int
	fetchedAt time.Time
}

func (c *countingInvalidator) Invalidate() {
	c.calls++
	c.fetchedAt = time.Time{}
}

func (c *countingInvalidator) FetchedAt() (time.Time, bool) {
	return c.fetchedAt, !c.fetchedAt.IsZero()
}
