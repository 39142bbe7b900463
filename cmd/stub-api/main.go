package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// stub-api fakes the Shopify Admin API and an Evolution API instance so the
// worker can run end to end locally. Set shopify.base_url to
// http://localhost:8090/admin/api/2023-01 and evolution.endpoint to
// http://localhost:8090.
func main() {
	addr := flag.String("addr", ":8090", "listen address")
	flag.Parse()

	log.Println("WARNING: stub API for local testing only, all responses are hardcoded")

	var nextID atomic.Int64
	nextID.Store(1000)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "rewards-stub-api"})
	})

	r.Route("/admin/api/{version}", func(r chi.Router) {
		r.Get("/shop.json", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"shop": map[string]interface{}{"id": 1, "name": "Stub Store", "domain": "stub.local"},
			})
		})

		r.Get("/orders.json", func(w http.ResponseWriter, r *http.Request) {
			if id := r.URL.Query().Get("customer_id"); id != "" {
				writeJSON(w, http.StatusOK, map[string]interface{}{"orders": customerHistory(id)})
				return
			}
			writeJSON(w, http.StatusOK, map[string]interface{}{"orders": dayOrders})
		})

		r.Get("/customers/search.json", func(w http.ResponseWriter, r *http.Request) {
			customers := []map[string]interface{}{}
			if r.URL.Query().Get("query") == "email:ana@stub.local" {
				customers = append(customers, map[string]interface{}{"id": 101, "email": "ana@stub.local"})
			}
			writeJSON(w, http.StatusOK, map[string]interface{}{"customers": customers})
		})

		r.Post("/price_rules.json", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusCreated, map[string]interface{}{
				"price_rule": map[string]interface{}{"id": nextID.Add(1)},
			})
		})

		r.Post("/price_rules/{id}/discount_codes.json", func(w http.ResponseWriter, r *http.Request) {
			var body map[string]interface{}
			json.NewDecoder(r.Body).Decode(&body)
			log.Printf("discount code created for price rule %s: %v", chi.URLParam(r, "id"), body)
			writeJSON(w, http.StatusCreated, body)
		})
	})

	r.Post("/message/sendText/{instance}", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Number      string `json:"number"`
			TextMessage struct {
				Text string `json:"text"`
			} `json:"textMessage"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		log.Printf("[%s] whatsapp to %s:\n%s", chi.URLParam(r, "instance"), body.Number, body.TextMessage.Text)
		writeJSON(w, http.StatusCreated, map[string]string{"status": "PENDING"})
	})

	server := &http.Server{Addr: *addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Stub API listening on %s", *addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	server.Shutdown(ctx)
	log.Println("Stub API stopped")
}

var dayOrders = []map[string]interface{}{
	stubOrder(1, 101, "Ana Souza", "(51) 99921-2222", "1500.00"),
	stubOrder(2, 102, "Bruno Lima", "(11) 98888-7777", "90.00"),
	stubOrder(3, 103, "Carla Dias", "(21) 97777-6666", "5200.00"),
}

func customerHistory(id string) []map[string]interface{} {
	for _, o := range dayOrders {
		if fmt.Sprint(o["customer"].(map[string]interface{})["id"]) == id {
			return []map[string]interface{}{o, stubOrder(0, 0, "", "", "600.00")}
		}
	}
	return nil
}

func stubOrder(id, customerID int64, name, phone, total string) map[string]interface{} {
	return map[string]interface{}{
		"id":               id,
		"total_price":      total,
		"customer":         map[string]interface{}{"id": customerID},
		"shipping_address": map[string]interface{}{"name": name, "phone": phone},
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
