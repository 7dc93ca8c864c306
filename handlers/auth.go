// handlers/auth.go
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/checkauto/checkauto-api/config"
	"github.com/checkauto/checkauto-api/middleware"
	"github.com/checkauto/checkauto-api/models"
)

type registerReq struct {
	Name     string `json:"nome"`
	Email    string `json:"email"`
	Password string `json:"senha"`
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"senha"`
}

type userPayload struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"nome"`
	Email       string    `json:"email"`
	IsSuperuser bool      `json:"is_superuser"`
}

type loginResp struct {
	Token string      `json:"token"`
	User  userPayload `json:"user"`
}

func Register(w http.ResponseWriter, r *http.Request) {
	var req registerReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		writeDetail(w, http.StatusBadRequest, "Email e senha são obrigatórios.")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "error hashing password", http.StatusInternalServerError)
		return
	}
	u := models.User{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: string(hash),
		IsActive:     true,
	}
	if err := config.DB.Create(&u).Error; err != nil {
		if strings.Contains(err.Error(), "duplicate key") || strings.Contains(err.Error(), "UNIQUE constraint") {
			writeDetail(w, http.StatusConflict, "Email já cadastrado.")
		} else {
			http.Error(w, "db error: "+err.Error(), http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusCreated, userPayload{ID: u.ID, Name: u.Name, Email: u.Email})
}

func Login(w http.ResponseWriter, r *http.Request) {
	var req loginReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	var u models.User
	err := config.DB.Where("email = ?", strings.ToLower(strings.TrimSpace(req.Email))).First(&u).Error
	if err != nil || !u.IsActive {
		writeDetail(w, http.StatusUnauthorized, "Credenciais inválidas.")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
		writeDetail(w, http.StatusUnauthorized, "Credenciais inválidas.")
		return
	}

	token, err := middleware.GenerateToken(u.ID, u.Name, u.Email, u.IsSuperuser)
	if err != nil {
		http.Error(w, "error generating token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, loginResp{
		Token: token,
		User:  userPayload{ID: u.ID, Name: u.Name, Email: u.Email, IsSuperuser: u.IsSuperuser},
	})
}

// Me returns the authenticated user plus their home tenant and role, which
// the PWA uses to decide what to render after login.
func Me(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r)
	if claims == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var u models.User
	if err := config.DB.First(&u, "id = ?", claims.UserUUID()).Error; err != nil {
		http.Error(w, "user not found", http.StatusNotFound)
		return
	}

	resp := map[string]interface{}{
		"user": userPayload{ID: u.ID, Name: u.Name, Email: u.Email, IsSuperuser: u.IsSuperuser},
	}
	tenant, err := models.HomeTenant(config.DB, u.ID)
	if err == nil && tenant != nil {
		resp["oficina"] = tenant
		if m, err := models.ActiveMembership(config.DB, u.ID, tenant.ID); err == nil && m != nil {
			resp["papel"] = m.Role
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
