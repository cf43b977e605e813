package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/paperdesk/paperdesk/pkg/logger"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidRole        = errors.New("invalid role")
	ErrInvalidAccount     = errors.New("username and password are required")
)

// Service encapsulates user-related business logic
type Service struct {
	repo UserRepository
	cost int
}

func NewService(r UserRepository) *Service {
	return &Service{repo: r, cost: bcrypt.DefaultCost}
}

// NewAccount describes an account to create.
type NewAccount struct {
	Username        string `mapstructure:"username" json:"username"`
	Name            string `mapstructure:"name" json:"name"`
	Role            Role   `mapstructure:"role" json:"role"`
	Password        string `mapstructure:"password" json:"password"`
	AssignedPaperID int64  `mapstructure:"assigned_paper_id" json:"assignedPaperId"`
}

// Create hashes the password and stores the account.
func (s *Service) Create(ctx context.Context, a NewAccount) (*User, error) {
	a.Username = strings.TrimSpace(a.Username)
	if a.Username == "" || a.Password == "" {
		return nil, ErrInvalidAccount
	}
	if !a.Role.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, a.Role)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(a.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &User{
		Username:        a.Username,
		Name:            a.Name,
		Role:            a.Role,
		PasswordHash:    string(hash),
		AssignedPaperID: a.AssignedPaperID,
	}
	if u.Name == "" {
		u.Name = u.Username
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// AddReviewer creates a reviewer account assigned to one paper. The caller
// is responsible for checking the paper exists.
func (s *Service) AddReviewer(ctx context.Context, username, name, password string, paperID int64) (*User, error) {
	return s.Create(ctx, NewAccount{
		Username:        username,
		Name:            name,
		Role:            RoleReviewer,
		Password:        password,
		AssignedPaperID: paperID,
	})
}

// Authenticate checks a username/password pair.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*User, error) {
	u, err := s.repo.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

func (s *Service) GetByUsername(ctx context.Context, username string) (*User, error) {
	return s.repo.GetByUsername(ctx, username)
}

func (s *Service) List(ctx context.Context) ([]*User, error) {
	return s.repo.List(ctx)
}

// Seed creates the given accounts, skipping usernames that already exist.
func (s *Service) Seed(ctx context.Context, accounts []NewAccount) error {
	for _, a := range accounts {
		if _, err := s.Create(ctx, a); err != nil {
			if errors.Is(err, ErrDuplicateUsername) {
				continue
			}
			return fmt.Errorf("seed %s: %w", a.Username, err)
		}
		logger.Infof("seeded %s account %s", a.Role, a.Username)
	}
	return nil
}

// BootstrapAccounts returns the admin account configured through the
// environment, or nil when no admin password is set.
func BootstrapAccounts(username, password string) []NewAccount {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil
	}
	return []NewAccount{{Username: username, Name: "Administrator", Role: RoleAdmin, Password: password}}
}

// LoadSeedFile reads accounts from a YAML file of the form
//
//	users:
//	  - username: admin
//	    role: admin
//	    password: secret
func LoadSeedFile(path string) ([]NewAccount, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var seed struct {
		Users []NewAccount `mapstructure:"users"`
	}
	if err := v.Unmarshal(&seed); err != nil {
		return nil, fmt.Errorf("decode seed file: %w", err)
	}
	return seed.Users, nil
}
