package web

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"chatpot/database"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now
	},
}

// PotBroadcaster pushes live pot updates to connected dashboard clients so
// they don't have to poll /pot/.
type PotBroadcaster struct {
	repo       *database.Repository
	clients    map[*websocket.Conn]bool
	clientsMux sync.RWMutex
}

func NewPotBroadcaster(repo *database.Repository) *PotBroadcaster {
	return &PotBroadcaster{
		repo:    repo,
		clients: make(map[*websocket.Conn]bool),
	}
}

// HandleWebSocket upgrades the connection, sends the current pot amount,
// and holds the connection open until the client goes away.
func (pb *PotBroadcaster) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket: Upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	pb.clientsMux.Lock()
	pb.clients[conn] = true
	viewerCount := len(pb.clients)
	pb.clientsMux.Unlock()

	log.Printf("WebSocket: New pot watcher connected (total: %d)", viewerCount)

	defer func() {
		pb.clientsMux.Lock()
		delete(pb.clients, conn)
		pb.clientsMux.Unlock()
		log.Printf("WebSocket: Pot watcher disconnected")
	}()

	// Send current pot state on connect
	pot, err := pb.repo.GetPot()
	if err != nil {
		log.Printf("WebSocket: Failed to load pot for initial state: %v", err)
		return
	}
	if err := pb.writePot(conn, pot.Amount); err != nil {
		return
	}

	// Drain client messages until the connection closes; the pot feed is
	// one-way.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket: Unexpected close error: %v", err)
			}
			break
		}
	}
}

// BroadcastPot sends the new pot amount to all connected watchers.
func (pb *PotBroadcaster) BroadcastPot(amount int) {
	pb.clientsMux.RLock()
	conns := make([]*websocket.Conn, 0, len(pb.clients))
	for conn := range pb.clients {
		conns = append(conns, conn)
	}
	pb.clientsMux.RUnlock()

	if len(conns) == 0 {
		return // No watchers
	}

	for _, conn := range conns {
		if err := pb.writePot(conn, amount); err != nil {
			log.Printf("WebSocket: Failed to send pot update: %v", err)
			pb.clientsMux.Lock()
			delete(pb.clients, conn)
			pb.clientsMux.Unlock()
			conn.Close()
		}
	}
}

func (pb *PotBroadcaster) writePot(conn *websocket.Conn, amount int) error {
	message, err := json.Marshal(map[string]interface{}{
		"type":       "pot",
		"pot_amount": amount,
	})
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, message)
}
