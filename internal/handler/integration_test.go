//go:build integration

package handler_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiwari-pos/floor/internal/cache"
	"github.com/kiwari-pos/floor/internal/config"
	"github.com/kiwari-pos/floor/internal/database"
	"github.com/kiwari-pos/floor/internal/enum"
	"github.com/kiwari-pos/floor/internal/router"
	"github.com/kiwari-pos/floor/internal/service"
	"github.com/kiwari-pos/floor/internal/ws"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/crypto/bcrypt"
)

// TestIntegrationFlow runs a table from order to refund against PostgreSQL.
func TestIntegrationFlow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connStr, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	runMigrations(t, connStr)

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	defer pool.Close()

	cfg := &config.Config{
		Port:        "8081",
		DatabaseURL: connStr,
		JWTSecret:   "integration-test-secret",
		CacheTTL:    time.Minute,
	}
	queries := database.New(pool)
	hub := ws.NewHub()
	go hub.Run(ctx)

	r := router.New(cfg, queries, pool, hub, discardLogger,
		service.WithEvents(hub),
		service.WithCache(cache.New(time.Minute, time.Minute), cfg.CacheTTL),
	)
	server := httptest.NewServer(r)
	defer server.Close()

	createStaff(t, ctx, queries, "manager@test.com", enum.RoleManager)
	burger := createCatalogItem(t, ctx, queries, database.ItemKindFood, "Burger", "10.00")
	salad := createCatalogItem(t, ctx, queries, database.ItemKindFood, "Salad", "5.00")
	cola := createCatalogItem(t, ctx, queries, database.ItemKindDrink, "Cola", "3.00")

	token := login(t, server, "manager@test.com", "password123")
	floor := dialChannel(t, server, enum.ChannelFloor, token)
	defer floor.Close()
	for i := 0; hub.Clients(enum.ChannelFloor) == 0; i++ {
		if i == 100 {
			t.Fatal("websocket client never joined the floor channel")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// --- 1. Open the table ---
	order := httpJSON(t, server, "POST", "/orders", map[string]interface{}{
		"table_number": "T4",
		"guest_count":  2,
		"food_items": []map[string]interface{}{
			{"guest_number": 1, "items": []map[string]interface{}{{"catalog_item_id": burger}}},
			{"guest_number": 2, "items": []map[string]interface{}{{"catalog_item_id": salad}}},
		},
		"drink_items": []map[string]interface{}{
			{"guest_number": 1, "items": []map[string]interface{}{{"catalog_item_id": cola}}},
		},
	}, token, http.StatusCreated)
	orderID := order["id"].(string)
	if order["total_amount"] != "18.00" {
		t.Fatalf("total_amount: got %v, want 18.00", order["total_amount"])
	}
	expectFrame(t, floor, enum.EventOrderCreated)

	burgerItem := itemID(order, "food_items", 1)
	saladItem := itemID(order, "food_items", 2)
	colaItem := itemID(order, "drink_items", 1)

	// --- 2. Kitchen flow ---
	httpJSON(t, server, "POST", "/orders/items/fire", map[string]interface{}{"food_item_ids": []string{burgerItem}}, token, http.StatusConflict)
	httpJSON(t, server, "POST", "/orders/items/print", map[string]interface{}{"food_item_ids": []string{burgerItem, saladItem}}, token, http.StatusOK)
	httpJSON(t, server, "POST", "/orders/items/fire", map[string]interface{}{"food_item_ids": []string{burgerItem, saladItem}}, token, http.StatusOK)

	// --- 3. Guest 1 pays; order stays open ---
	p1 := httpJSON(t, server, "POST", "/orders/"+orderID+"/payments", map[string]interface{}{
		"food_item_ids":  []string{burgerItem},
		"drink_item_ids": []string{colaItem},
		"tip":            "2",
	}, token, http.StatusCreated)
	if p1["amount"] != "13.00" || p1["total_amount"] != "14.95" {
		t.Fatalf("payment 1 amounts: %v", p1)
	}
	httpJSON(t, server, "POST", "/orders/"+orderID+"/payments", map[string]interface{}{"food_item_ids": []string{burgerItem}}, token, http.StatusConflict)

	done := httpJSON(t, server, "POST", "/payments/"+p1["id"].(string)+"/complete", nil, token, http.StatusOK)
	if done["order_completed"] != false {
		t.Fatalf("order completed after partial payment: %v", done)
	}

	// --- 4. Guest 2 pays; order completes ---
	p2 := httpJSON(t, server, "POST", "/orders/"+orderID+"/payments", map[string]interface{}{"food_item_ids": []string{saladItem}}, token, http.StatusCreated)
	done = httpJSON(t, server, "POST", "/payments/"+p2["id"].(string)+"/complete", nil, token, http.StatusOK)
	if done["order_completed"] != true || done["order_status"] != "COMPLETED" {
		t.Fatalf("order not completed: %v", done)
	}
	if got := httpJSON(t, server, "GET", "/orders/"+orderID, nil, token, http.StatusOK); got["status"] != "COMPLETED" {
		t.Fatalf("order status: got %v, want COMPLETED", got["status"])
	}

	// --- 5. Refund reopens the order ---
	refund := httpJSON(t, server, "POST", "/payments/"+p2["id"].(string)+"/refund", map[string]string{"reason": "wrong dressing"}, token, http.StatusOK)
	if refund["order_status"] != "READY_TO_PAY" {
		t.Fatalf("order status after refund: %v", refund["order_status"])
	}
	if got := httpJSON(t, server, "GET", "/orders/"+orderID, nil, token, http.StatusOK); got["status"] != "READY_TO_PAY" {
		t.Fatalf("cached order not invalidated: %v", got["status"])
	}

	// --- 6. Delete guard ---
	httpJSON(t, server, "DELETE", "/orders/"+orderID, nil, token, http.StatusConflict)
}

func setupPostgresContainer(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("floor_test"),
		tcpostgres.WithUsername("floor"),
		tcpostgres.WithPassword("floor"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	cleanup := func() {
		if err := pgContainer.Terminate(context.Background()); err != nil {
			t.Logf("terminate container: %v", err)
		}
	}
	return connStr, cleanup
}

func runMigrations(t *testing.T, connStr string) {
	t.Helper()

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("open db for migrations: %v", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		t.Fatalf("create migrate driver: %v", err)
	}

	// go test runs in the package directory.
	m, err := migrate.NewWithDatabaseInstance("file://../../migrations", "postgres", driver)
	if err != nil {
		t.Fatalf("create migrate instance: %v", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		t.Fatalf("run migrations: %v", err)
	}
}

func createStaff(t *testing.T, ctx context.Context, q *database.Queries, email, role string) {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if _, err := q.CreateStaff(ctx, database.CreateStaffParams{
		Email:          email,
		HashedPassword: string(hashed),
		FullName:       "Test " + role,
		Role:           role,
	}); err != nil {
		t.Fatalf("create staff: %v", err)
	}
}

func createCatalogItem(t *testing.T, ctx context.Context, q *database.Queries, kind database.ItemKind, name, price string) string {
	t.Helper()
	var n pgtype.Numeric
	if err := n.Scan(price); err != nil {
		t.Fatalf("parse price: %v", err)
	}
	item, err := q.CreateCatalogItem(ctx, kind, database.CreateCatalogItemParams{Name: name, Price: n})
	if err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	return item.ID.String()
}

func login(t *testing.T, server *httptest.Server, email, password string) string {
	t.Helper()
	resp := httpJSON(t, server, "POST", "/auth/login", map[string]string{"email": email, "password": password}, "", http.StatusOK)
	token, ok := resp["access_token"].(string)
	if !ok || token == "" {
		t.Fatalf("login failed: no access_token in response: %+v", resp)
	}
	return token
}

func dialChannel(t *testing.T, server *httptest.Server, channel, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/" + channel + "?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", channel, err)
	}
	return conn
}

func expectFrame(t *testing.T, conn *websocket.Conn, eventType string) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck
	var msg ws.Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if msg.Type != eventType {
		t.Fatalf("frame type: got %s, want %s", msg.Type, eventType)
	}
}

func itemID(order map[string]interface{}, kind string, guest float64) string {
	for _, g := range order[kind].([]interface{}) {
		group := g.(map[string]interface{})
		if group["guest_number"] == guest {
			return group["items"].([]interface{})[0].(map[string]interface{})["id"].(string)
		}
	}
	return ""
}

// httpJSON performs a request and fails unless the response has wantStatus.
func httpJSON(t *testing.T, server *httptest.Server, method, path string, body interface{}, token string, wantStatus int) map[string]interface{} {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, server.URL+path, reader)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	var result map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&result) //nolint:errcheck
	if resp.StatusCode != wantStatus {
		t.Fatalf("%s %s: status %d, want %d, body: %v", method, path, resp.StatusCode, wantStatus, result)
	}
	return result
}
