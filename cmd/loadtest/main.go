// Load driver: registers user pairs, opens a websocket per user, joins the
// pair's conversation and pushes messages through the full path.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"communitychat/internal/protocol"
)

var (
	baseURL  = flag.String("server", "http://localhost:8080", "server base URL")
	pairs    = flag.Int("pairs", 50, "number of user pairs")
	msgCount = flag.Int("messages", 20, "messages per sender")
)

type authResponse struct {
	Token    string `json:"access_token"`
	Username string `json:"username"`
}

func main() {
	flag.Parse()
	log.Printf("starting load test: %d users, %d messages each", *pairs*2, *msgCount)

	var wg sync.WaitGroup
	for i := 0; i < *pairs; i++ {
		wg.Add(1)
		go func(pairID int) {
			defer wg.Done()
			runPair(pairID)
		}(i)
	}
	wg.Wait()
	log.Println("load test complete")
}

func runPair(pairID int) {
	userA := fmt.Sprintf("u_%d_a", pairID)
	userB := fmt.Sprintf("u_%d_b", pairID)
	pass := "password123"

	tokenA := authenticate(userA, pass)
	tokenB := authenticate(userB, pass)
	if tokenA == "" || tokenB == "" {
		return
	}

	connA := dial(tokenA)
	connB := dial(tokenB)
	if connA == nil || connB == nil {
		return
	}
	defer connA.Close()
	defer connB.Close()

	join(connA, userA, userB)
	join(connB, userB, userA)

	done := make(chan struct{})
	go func() {
		defer close(done)
		received := 0
		connB.SetReadDeadline(time.Now().Add(30 * time.Second))
		for received < *msgCount {
			var env protocol.Envelope
			if err := connB.ReadJSON(&env); err != nil {
				log.Printf("pair %d: read: %v", pairID, err)
				return
			}
			if env.Event == protocol.EventMessage {
				received++
			}
		}
	}()

	for i := 0; i < *msgCount; i++ {
		frame, _ := protocol.Encode(protocol.EventMessage, &protocol.ChatMessage{
			From:      userA,
			To:        userB,
			Body:      fmt.Sprintf("stress message %d", i),
			Timestamp: time.Now().UTC(),
		})
		if err := connA.WriteMessage(websocket.TextMessage, frame); err != nil {
			log.Printf("pair %d: write: %v", pairID, err)
			return
		}
	}
	<-done
}

func authenticate(username, pass string) string {
	body, _ := json.Marshal(map[string]string{"username": username, "password": pass})

	// Registration may 500 on re-runs (duplicate user); login decides.
	resp, err := http.Post(*baseURL+"/register", "application/json", bytes.NewReader(body))
	if err == nil {
		resp.Body.Close()
	}

	resp, err = http.Post(*baseURL+"/login", "application/json", bytes.NewReader(body))
	if err != nil {
		log.Printf("login %s: %v", username, err)
		return ""
	}
	defer resp.Body.Close()
	var auth authResponse
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		log.Printf("login %s: %v", username, err)
		return ""
	}
	return auth.Token
}

func dial(token string) *websocket.Conn {
	wsURL := strings.Replace(*baseURL, "http", "ws", 1) + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		log.Printf("dial: %v", err)
		return nil
	}
	return conn
}

func join(conn *websocket.Conn, username, other string) {
	frame, _ := protocol.Encode(protocol.EventJoin, &protocol.Room{
		Username:  username,
		OtherUser: other,
	})
	conn.WriteMessage(websocket.TextMessage, frame)
}
