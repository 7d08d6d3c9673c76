package web

import (
	"encoding/json"
	"log"
	"net/http"

	"chatpot/database"

	"golang.org/x/crypto/bcrypt"
)

type AuthHandler struct {
	repo   *database.Repository
	authMW *AuthMiddleware
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func NewAuthHandler(repo *database.Repository, authMW *AuthMiddleware) *AuthHandler {
	return &AuthHandler{
		repo:   repo,
		authMW: authMW,
	}
}

// HandleRegister creates a new user with the default balance and returns a
// fresh bearer token.
func (ah *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if creds.Username == "" || creds.Password == "" {
		respondError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	if _, err := ah.repo.GetUserByUsername(creds.Username); err == nil {
		respondError(w, http.StatusBadRequest, "Username already exists")
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(creds.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("Failed to hash password: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to create user")
		return
	}

	user, err := ah.repo.CreateUser(creds.Username, string(hashed))
	if err != nil {
		log.Printf("Failed to create user %s: %v", creds.Username, err)
		respondError(w, http.StatusBadRequest, "Username already exists")
		return
	}

	token, err := ah.authMW.IssueToken(user.Username)
	if err != nil {
		log.Printf("Failed to issue token for %s: %v", user.Username, err)
		respondError(w, http.StatusInternalServerError, "Failed to issue token")
		return
	}

	log.Printf("Registered new user: %s (ID: %d)", user.Username, user.ID)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"access_token": token,
		"token_type":   "bearer",
	})
}

// HandleLogin verifies credentials and returns a fresh bearer token.
func (ah *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := ah.repo.GetUserByUsername(creds.Username)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(creds.Password)) != nil {
		respondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := ah.authMW.IssueToken(user.Username)
	if err != nil {
		log.Printf("Failed to issue token for %s: %v", user.Username, err)
		respondError(w, http.StatusInternalServerError, "Failed to issue token")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"access_token": token,
		"token_type":   "bearer",
	})
}
