package handlers

import (
	"errors"
	"net/http"

	"saascore/ledger"
	"saascore/models"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type CreateUserRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

func (a *API) CreateUser(c *gin.Context) {
	ctx, span := a.startSpan(c, "CreateUser")
	defer span.End()

	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		badRequest(c, err.Error())
		return
	}
	span.SetAttributes(attribute.String("user.email", req.Email))

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		span.RecordError(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
		return
	}

	user := models.User{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: string(hashedPassword),
	}
	if err := a.store.Read(ctx).CreateUser(&user); err != nil {
		span.RecordError(err)
		if errors.Is(err, ledger.ErrDuplicate) {
			c.JSON(http.StatusConflict, gin.H{"error": "email address already in use", "kind": "conflict", "retryable": false})
			return
		}
		a.logger.Error("failed to create user", zap.Error(err))
		unavailable(c)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "User created successfully", "user_id": user.ID})
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (a *API) Login(c *gin.Context) {
	ctx, span := a.startSpan(c, "Login")
	defer span.End()

	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		badRequest(c, err.Error())
		return
	}

	user, err := a.store.Read(ctx).UserByEmail(req.Email)
	if err != nil && !errors.Is(err, ledger.ErrNotFound) {
		span.RecordError(err)
		a.logger.Error("failed to load user for login", zap.Error(err))
		unavailable(c)
		return
	}
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
		return
	}

	token, err := a.tokens.Issue(user.ID, user.Email)
	if err != nil {
		span.RecordError(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}

// Me returns the caller and whether they hold operator authority.
func (a *API) Me(c *gin.Context) {
	p := principal(c)
	user, err := a.store.Read(c.Request.Context()).UserByID(p.UserID)
	if err != nil {
		unavailable(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user, "elevated": p.Elevated})
}
