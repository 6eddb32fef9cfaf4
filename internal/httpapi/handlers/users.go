package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lifecoachhq/coachapi/internal/auth"
	"github.com/lifecoachhq/coachapi/internal/common"
	"github.com/lifecoachhq/coachapi/internal/models"
	"gorm.io/gorm"
)

type registerReq struct {
	Email    string `json:"email" binding:"required"`
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) Register(c *gin.Context) {
	var req registerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if len(req.Password) < 8 {
		common.Fail(c, http.StatusBadRequest, 10002, "password too short")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20002, "failed to hash password")
		return
	}

	u := models.User{
		Email:        req.Email,
		Username:     strings.TrimSpace(req.Username),
		PasswordHash: hash,
	}
	if err := h.DB.WithContext(c.Request.Context()).Create(&u).Error; err != nil {
		common.Fail(c, http.StatusConflict, 10003, "email or username already taken")
		return
	}
	common.Ok(c, gin.H{"id": u.ID, "email": u.Email, "username": u.Username})
}

type loginReq struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	var u models.User
	err := h.DB.WithContext(c.Request.Context()).
		Where("email = ?", strings.ToLower(strings.TrimSpace(req.Email))).
		First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusUnauthorized, 10010, "invalid credentials")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 20001, "internal error")
		return
	}
	if !auth.CheckPassword(u.PasswordHash, req.Password) {
		common.Fail(c, http.StatusUnauthorized, 10010, "invalid credentials")
		return
	}

	token, err := auth.GenerateToken(h.Cfg.JWTSecret, u.ID)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20003, "failed to issue token")
		return
	}
	common.Ok(c, gin.H{"token": token, "user_id": u.ID})
}

func (h *Handler) Me(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	var u models.User
	if err := h.DB.WithContext(c.Request.Context()).First(&u, uid).Error; err != nil {
		common.Fail(c, http.StatusNotFound, 40401, "user not found")
		return
	}
	common.Ok(c, gin.H{"id": u.ID, "email": u.Email, "username": u.Username})
}
