// Smoke test against a running gatekey-api: logs in the seeded account,
// rotates the refresh pair, and verifies the consumed pair is rejected.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"
)

type tokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func main() {
	base := os.Getenv("GATEKEY_BASE_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	user := os.Getenv("GATEKEY_SMOKE_USER")
	if user == "" {
		user = "admin"
	}
	pass := os.Getenv("GATEKEY_SMOKE_PASSWORD")
	if pass == "" {
		log.Fatal("GATEKEY_SMOKE_PASSWORD is required")
	}

	client := &http.Client{Timeout: 5 * time.Second}

	pair := mustPost[tokenPair](client, base+"/v1/auth/login", map[string]any{
		"userNameOrEmail": user,
		"password":        pass,
	}, http.StatusOK)
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		log.Fatalf("incomplete token pair: %+v", pair)
	}

	next := mustPost[tokenPair](client, base+"/v1/auth/refresh", map[string]any{
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	}, http.StatusOK)
	if next.RefreshToken == pair.RefreshToken {
		log.Fatal("refresh token was not rotated")
	}

	// Replaying the consumed pair must fail.
	status := post(client, base+"/v1/auth/refresh", map[string]any{
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	})
	if status != http.StatusForbidden {
		log.Fatalf("replayed refresh returned %d, want 403", status)
	}

	fmt.Println("✅ gatekey-api smoke test passed")
}

func post(client *http.Client, url string, body any) int {
	payload, err := json.Marshal(body)
	if err != nil {
		log.Fatalf("marshal: %v", err)
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		log.Fatalf("post %s: %v", url, err)
	}
	defer resp.Body.Close()
	return resp.StatusCode
}

func mustPost[T any](client *http.Client, url string, body any, wantStatus int) T {
	payload, err := json.Marshal(body)
	if err != nil {
		log.Fatalf("marshal: %v", err)
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		log.Fatalf("post %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		log.Fatalf("post %s: status %d, want %d", url, resp.StatusCode, wantStatus)
	}
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		log.Fatalf("decode %s: %v", url, err)
	}
	return v
}
