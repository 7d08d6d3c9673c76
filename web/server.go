package web

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"chatpot/database"
	"chatpot/economy"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

type Server struct {
	router      *mux.Router
	repo        *database.Repository
	engine      *economy.Engine
	authMW      *AuthMiddleware
	authH       *AuthHandler
	broadcaster *PotBroadcaster
}

func NewServer(repo *database.Repository, engine *economy.Engine, jwtSecret string, tokenTTL time.Duration) *Server {
	authMW := NewAuthMiddleware(jwtSecret, tokenTTL)
	authH := NewAuthHandler(repo, authMW)

	s := &Server{
		router:      mux.NewRouter().StrictSlash(true),
		repo:        repo,
		engine:      engine,
		authMW:      authMW,
		authH:       authH,
		broadcaster: NewPotBroadcaster(repo),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// Static files (dashboard assets)
	s.router.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(http.Dir("./static/"))))

	// Public routes
	public := s.router.NewRoute().Subrouter()
	public.Use(s.authMW.LoadUser)

	public.HandleFunc("/", s.handleDashboard).Methods("GET")
	public.HandleFunc("/users/register", s.authH.HandleRegister).Methods("POST")
	public.HandleFunc("/users/login", s.authH.HandleLogin).Methods("POST")
	public.HandleFunc("/pot/", s.handleGetPot).Methods("GET")

	// WebSocket route (public, anyone can watch the pot)
	public.HandleFunc("/ws/pot", s.broadcaster.HandleWebSocket)

	// Protected routes (require a valid bearer token)
	protected := s.router.NewRoute().Subrouter()
	protected.Use(s.authMW.LoadUser)
	protected.Use(s.authMW.RequireAuth)

	protected.HandleFunc("/users/me", s.handleProfile).Methods("GET")
	protected.HandleFunc("/currency/balance", s.handleBalance).Methods("GET")
	protected.HandleFunc("/currency/deduct", s.handleDeduct).Methods("POST")
	protected.HandleFunc("/pot/contribute", s.handleContribute).Methods("POST")
	protected.HandleFunc("/pot/reset", s.handleResetPot).Methods("POST")
	protected.HandleFunc("/messages/send", s.handleSendMessage).Methods("POST")
}

// Handler returns the full middleware-wrapped handler; shared by Start and
// the tests.
func (s *Server) Handler() http.Handler {
	corsHandler := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"*"}),
	)
	return corsHandler(s.router)
}

func (s *Server) Start(port string) error {
	log.Printf("Starting web server on port %s", port)
	return http.ListenAndServe(":"+port, s.Handler())
}

// currentUser loads the authenticated user's row. The token can outlive
// the row, so callers still have to handle a missing user.
func (s *Server) currentUser(r *http.Request) (*database.User, error) {
	username := GetIdentityFromContext(r.Context())
	return s.repo.GetUserByUsername(username)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, "./static/index.html")
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		respondError(w, http.StatusNotFound, "User not found")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"id":            user.ID,
		"username":      user.Username,
		"balance":       user.Balance,
		"message_count": user.MessageCount,
	})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		respondError(w, http.StatusNotFound, "User not found")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"balance": user.Balance,
	})
}

func (s *Server) handleDeduct(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		respondError(w, http.StatusNotFound, "User not found")
		return
	}

	cost, err := strconv.Atoi(r.URL.Query().Get("cost"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid cost")
		return
	}

	newBalance, err := s.engine.DeductBalance(user.ID, cost)
	if errors.Is(err, economy.ErrUserNotFound) {
		respondError(w, http.StatusNotFound, "User not found")
		return
	}
	if errors.Is(err, economy.ErrInsufficientBalance) {
		respondError(w, http.StatusBadRequest, "Insufficient balance")
		return
	}
	if err != nil {
		log.Printf("Failed to deduct %d from user %d: %v", cost, user.ID, err)
		respondError(w, http.StatusInternalServerError, "Failed to deduct balance")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":     "Currency deducted",
		"new_balance": newBalance,
	})
}

func (s *Server) handleGetPot(w http.ResponseWriter, r *http.Request) {
	pot, err := s.repo.GetPot()
	if err != nil {
		log.Printf("Failed to load pot: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to load pot")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"pot_amount": pot.Amount,
	})
}

func (s *Server) handleContribute(w http.ResponseWriter, r *http.Request) {
	contribution, err := strconv.Atoi(r.URL.Query().Get("contribution"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Contribution must be greater than zero")
		return
	}

	newTotal, err := s.engine.ContributeToPot(contribution)
	if errors.Is(err, economy.ErrInvalidContribution) {
		respondError(w, http.StatusBadRequest, "Contribution must be greater than zero")
		return
	}
	if err != nil {
		log.Printf("Failed to add contribution of %d: %v", contribution, err)
		respondError(w, http.StatusInternalServerError, "Failed to update pot")
		return
	}

	s.broadcaster.BroadcastPot(newTotal)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":        "Contribution added",
		"new_pot_amount": newTotal,
	})
}

func (s *Server) handleResetPot(w http.ResponseWriter, r *http.Request) {
	newTotal, err := s.engine.ResetPot()
	if err != nil {
		log.Printf("Failed to reset pot: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to reset pot")
		return
	}

	s.broadcaster.BroadcastPot(newTotal)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":        "Pot reset",
		"new_pot_amount": newTotal,
	})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		respondError(w, http.StatusNotFound, "User not found")
		return
	}

	result, err := s.engine.SendMessage(user.ID)
	if errors.Is(err, economy.ErrUserNotFound) {
		respondError(w, http.StatusNotFound, "User not found")
		return
	}
	if errors.Is(err, economy.ErrInsufficientBalance) {
		respondError(w, http.StatusBadRequest, "Insufficient balance")
		return
	}
	if err != nil {
		log.Printf("Failed to process message send for user %d: %v", user.ID, err)
		respondError(w, http.StatusInternalServerError, "Failed to send message")
		return
	}

	if result.Won {
		log.Printf("User %s won the pot: %d", user.Username, result.PotAmount)
		s.broadcaster.BroadcastPot(0)
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"message":    "Congratulations! You won the pot!",
			"pot_amount": result.PotAmount,
		})
		return
	}

	s.broadcaster.BroadcastPot(result.PotAmount)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":    "Sorry, better luck next time!",
		"pot_amount": result.PotAmount,
	})
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, detail string) {
	respondJSON(w, status, map[string]interface{}{
		"detail": detail,
	})
}
