package httpapi

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"billgen/backend/internal/domain"
)

type AuthManager struct {
	mu            sync.RWMutex
	secret        []byte
	tokenTTL      time.Duration
	employeeStore EmployeeStore
	employees     map[string]credential
}

type EmployeeStore interface {
	CreateEmployee(ctx context.Context, account domain.EmployeeAccount) error
	ListEmployees(ctx context.Context) ([]domain.EmployeeAccount, error)
	UpdateEmployeePassword(ctx context.Context, employeeID string, password string) error
}

type credential struct {
	name     string
	password string
	role     string
	active   bool
	created  time.Time
}

type billingClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, employeeStore EmployeeStore) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}

	manager := &AuthManager{
		secret:        []byte(secret),
		tokenTTL:      tokenTTL,
		employeeStore: employeeStore,
		employees:     make(map[string]credential),
	}
	// Startup load, before any request context exists.
	manager.bootstrapEmployees(context.Background())
	return manager
}

func (a *AuthManager) Login(req domain.LoginRequest) (domain.LoginResponse, error) {
	// Re-read the store on login to pick up accounts added outside this
	// process, e.g. seeded directly in the database.
	a.bootstrapEmployees(context.Background())
	employeeID := strings.ToUpper(strings.TrimSpace(req.EmployeeID))
	a.mu.RLock()
	cred, ok := a.employees[employeeID]
	a.mu.RUnlock()
	if !ok {
		return domain.LoginResponse{}, errors.New("invalid credentials")
	}

	if !verifyPassword(cred.password, req.Password) {
		return domain.LoginResponse{}, errors.New("invalid credentials")
	}
	if !cred.active {
		return domain.LoginResponse{}, errors.New("account is inactive")
	}

	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	token, err := a.sign(employeeID, cred.role, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	return domain.LoginResponse{
		AccessToken: token,
		Role:        cred.role,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &billingClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	return domain.Actor{EmployeeID: sub, Role: claims.Role}, nil
}

func (a *AuthManager) sign(employeeID, role string, expiresAt time.Time) (string, error) {
	claims := billingClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   employeeID,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "billgen",
		},
		Role: role,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *AuthManager) CreateEmployee(req domain.EmployeeCreateRequest) (domain.Employee, error) {
	a.bootstrapEmployees(context.Background())
	employeeID := strings.ToUpper(strings.TrimSpace(req.EmployeeID))
	if employeeID == "" || len(employeeID) < 4 {
		return domain.Employee{}, fmt.Errorf("employee id must be at least 4 characters")
	}
	if strings.ContainsAny(employeeID, " \t\r\n") {
		return domain.Employee{}, fmt.Errorf("employee id must not contain spaces")
	}
	if strings.TrimSpace(req.Password) == "" || len(req.Password) < 6 {
		return domain.Employee{}, fmt.Errorf("password must be at least 6 characters")
	}
	role := strings.ToLower(strings.TrimSpace(req.Role))
	if role == "" {
		role = domain.RoleEmployee
	}
	if role != domain.RoleAdmin && role != domain.RoleEmployee {
		return domain.Employee{}, fmt.Errorf("unknown role %q", role)
	}

	a.mu.RLock()
	_, exists := a.employees[employeeID]
	a.mu.RUnlock()
	if exists {
		return domain.Employee{}, fmt.Errorf("employee id already exists")
	}

	now := time.Now().UTC()
	passwordHash, err := hashPassword(req.Password)
	if err != nil {
		return domain.Employee{}, fmt.Errorf("failed to hash password")
	}

	if a.employeeStore != nil {
		err := a.employeeStore.CreateEmployee(context.Background(), domain.EmployeeAccount{
			EmployeeID: employeeID,
			Name:       strings.TrimSpace(req.Name),
			Password:   passwordHash,
			Role:       role,
			Active:     true,
			CreatedAt:  now,
		})
		if err != nil {
			return domain.Employee{}, err
		}
	}

	a.mu.Lock()
	a.employees[employeeID] = credential{
		name:     strings.TrimSpace(req.Name),
		password: passwordHash,
		role:     role,
		active:   true,
		created:  now,
	}
	a.mu.Unlock()

	return domain.Employee{
		EmployeeID: employeeID,
		Name:       strings.TrimSpace(req.Name),
		Role:       role,
		Active:     true,
		CreatedAt:  now,
	}, nil
}

func (a *AuthManager) ListEmployees() []domain.Employee {
	a.bootstrapEmployees(context.Background())
	a.mu.RLock()
	result := make([]domain.Employee, 0, len(a.employees))
	for employeeID, cred := range a.employees {
		result = append(result, domain.Employee{
			EmployeeID: employeeID,
			Name:       cred.name,
			Role:       cred.role,
			Active:     cred.active,
			CreatedAt:  cred.created,
		})
	}
	a.mu.RUnlock()
	sort.Slice(result, func(i, j int) bool {
		return result[i].EmployeeID < result[j].EmployeeID
	})
	return result
}

// bootstrapEmployees loads accounts from the store into the in-memory
// credential cache and upgrades any legacy plain-text passwords to bcrypt
// hashes in place.
func (a *AuthManager) bootstrapEmployees(ctx context.Context) {
	if a.employeeStore == nil {
		return
	}

	accounts, err := a.employeeStore.ListEmployees(ctx)
	if err != nil || len(accounts) == 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, account := range accounts {
		employeeID := strings.ToUpper(strings.TrimSpace(account.EmployeeID))
		if employeeID == "" {
			continue
		}
		password := account.Password
		if !isPasswordHash(password) {
			hashed, err := hashPassword(password)
			if err == nil {
				password = hashed
				_ = a.employeeStore.UpdateEmployeePassword(ctx, employeeID, hashed)
			}
		}
		a.employees[employeeID] = credential{
			name:     account.Name,
			password: password,
			role:     account.Role,
			active:   account.Active,
			created:  account.CreatedAt,
		}
	}
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
