// Package account имитирует вход и регистрацию. Учетные данные нигде не
// сохраняются: после проверки формы и задержки пользователь уходит на главную.
package account

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Типы пользователей формы регистрации
const (
	UserIndividual   = "individual"
	UserLawyer       = "lawyer"
	UserOrganization = "organization"
)

// Сообщения формы
const (
	MessagePasswordMismatch = "Passwords do not match"
	MessageTermsRequired    = "Please accept the Terms of Service and Privacy Policy"
	MessageInvalidForm      = "Please fill in all required fields"
)

var (
	ErrPasswordMismatch = errors.New(MessagePasswordMismatch)
	ErrTermsRequired    = errors.New(MessageTermsRequired)
)

// UserTypes варианты для выпадающего списка
var UserTypes = []UserType{
	{Value: UserIndividual, Label: "Individual"},
	{Value: UserLawyer, Label: "Lawyer"},
	{Value: UserOrganization, Label: "Organization"},
}

type UserType struct {
	Value string
	Label string
}

// LoginForm форма входа
type LoginForm struct {
	Email      string `form:"email" binding:"required,email"`
	Password   string `form:"password" binding:"required"`
	RememberMe bool   `form:"remember_me"`
}

// SignupForm форма регистрации
type SignupForm struct {
	UserType        string `form:"user_type" binding:"required,oneof=individual lawyer organization"`
	FirstName       string `form:"first_name" binding:"required"`
	LastName        string `form:"last_name" binding:"required"`
	Email           string `form:"email" binding:"required,email"`
	Phone           string `form:"phone" binding:"required"`
	City            string `form:"city" binding:"required"`
	Password        string `form:"password" binding:"required"`
	ConfirmPassword string `form:"confirm_password" binding:"required"`
	AgreeTerms      bool   `form:"agree_terms"`
}

// Validate проверки, которые не выражаются тегами binding
func (f SignupForm) Validate() error {
	if f.Password != f.ConfirmPassword {
		return ErrPasswordMismatch
	}
	if !f.AgreeTerms {
		return ErrTermsRequired
	}
	return nil
}

// Service имитация авторизации с задержкой
type Service struct {
	Delay  time.Duration
	logger log.Logger
}

func NewService(delay time.Duration, logger log.Logger) *Service {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Service{Delay: delay, logger: logger}
}

// Login ждет Delay и принимает любые корректно заполненные данные
func (s *Service) Login(ctx context.Context, form LoginForm) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	level.Info(s.logger).Log("method", "Login", "email", normalizeEmail(form.Email), "remember_me", form.RememberMe)
	return nil
}

// Signup проверяет форму, ждет Delay и ничего не сохраняет
func (s *Service) Signup(ctx context.Context, form SignupForm) error {
	if err := form.Validate(); err != nil {
		return err
	}
	if err := s.wait(ctx); err != nil {
		return err
	}
	level.Info(s.logger).Log("method", "Signup", "email", normalizeEmail(form.Email), "user_type", form.UserType)
	return nil
}

func (s *Service) wait(ctx context.Context) error {
	if s.Delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(s.Delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
