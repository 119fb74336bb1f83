package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"partychat-go/internal/model"
	"partychat-go/pkg/hash"
	"partychat-go/pkg/token"
)

type fakeUserRepo struct {
	nextID uint
	users  map[string]*model.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{nextID: 1, users: make(map[string]*model.User)}
}

func (f *fakeUserRepo) Create(user *model.User) error {
	user.ID = f.nextID
	f.nextID++
	f.users[user.Username] = user
	return nil
}

func (f *fakeUserRepo) FindByUsername(username string) (*model.User, error) {
	if u, ok := f.users[username]; ok {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func newTestUserService() (UserService, *fakeUserRepo) {
	repo := newFakeUserRepo()
	jwtManager := token.NewJWTManager("test-secret", 1, 7)
	return NewUserService(repo, jwtManager), repo
}

func TestRegisterAndLogin(t *testing.T) {
	svc, repo := newTestUserService()

	user, err := svc.Register("alice", "s3cretpw")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.NotEqual(t, "s3cretpw", user.PasswordHash)
	assert.True(t, hash.CheckPassword("s3cretpw", repo.users["alice"].PasswordHash))

	_, err = svc.Register("alice", "otherpw")
	assert.ErrorIs(t, err, ErrUsernameTaken)

	access, refresh, err := svc.Login("alice", "s3cretpw")
	require.NoError(t, err)
	assert.NotEmpty(t, access)
	assert.NotEmpty(t, refresh)

	_, _, err = svc.Login("alice", "wrongpw")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = svc.Login("nobody", "s3cretpw")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRefreshToken(t *testing.T) {
	svc, repo := newTestUserService()
	_, err := svc.Register("bob", "s3cretpw")
	require.NoError(t, err)

	_, refresh, err := svc.Login("bob", "s3cretpw")
	require.NoError(t, err)

	newAccess, newRefresh, err := svc.RefreshToken(refresh)
	require.NoError(t, err)
	assert.NotEmpty(t, newAccess)
	assert.NotEmpty(t, newRefresh)

	_, _, err = svc.RefreshToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// A deleted account cannot keep refreshing.
	delete(repo.users, "bob")
	_, _, err = svc.RefreshToken(refresh)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
