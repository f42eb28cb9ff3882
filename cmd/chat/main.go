package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"communitychat/internal/chatclient"
	"communitychat/internal/config"
	"communitychat/internal/logging"
	"communitychat/internal/ui"
)

type authResponse struct {
	Token    string `json:"access_token"`
	Username string `json:"username"`
}

func main() {
	configPath := flag.String("config", "", "path to config file")
	server := flag.String("server", "", "server base URL (overrides config)")
	username := flag.String("user", "", "username")
	password := flag.String("pass", "", "password")
	register := flag.Bool("register", false, "register the account before logging in")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	baseURL := cfg.Client.ServerURL
	if *server != "" {
		baseURL = *server
	}
	if *username == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "usage: chat -user <name> -pass <password> [-register]")
		os.Exit(1)
	}

	// The TUI owns the terminal, so logs go to a file.
	logFile, err := logging.FileWriter(cfg.Client.LogFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "log file:", err)
		os.Exit(1)
	}
	defer logFile.Close()
	log := logging.Setup(logFile, cfg.Log.Level, "json")

	if *register {
		if err := post(baseURL+"/register", *username, *password, nil); err != nil {
			fmt.Fprintln(os.Stderr, "register:", err)
			os.Exit(1)
		}
	}

	var auth authResponse
	if err := post(baseURL+"/login", *username, *password, &auth); err != nil {
		fmt.Fprintln(os.Stderr, "login:", err)
		os.Exit(1)
	}

	acct := chatclient.Account{Username: auth.Username, Token: auth.Token}
	conn, err := chatclient.NewConn(wsURL(baseURL), acct, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "server url:", err)
		os.Exit(1)
	}
	api := chatclient.NewAPI(baseURL, acct)
	session := chatclient.NewSession(acct, conn, api, log)

	app := ui.NewApp(acct, conn, session, api, log)
	if err := app.Run(); err != nil {
		log.Error().Err(err).Msg("ui stopped")
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func post(url, username, password string, out any) error {
	body, _ := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s: status %d", url, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// wsURL derives the websocket endpoint from the HTTP base URL.
func wsURL(baseURL string) string {
	u := strings.Replace(baseURL, "https://", "wss://", 1)
	u = strings.Replace(u, "http://", "ws://", 1)
	return strings.TrimSuffix(u, "/") + "/ws"
}
