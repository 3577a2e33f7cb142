package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/patyfb04/play-inventory/internal/adapter/handler/pb"
)

func main() {
	addr := flag.String("addr", "localhost:50051", "inventory gRPC address")
	itemID := flag.String("item", "", "catalog item id to grant (must exist in the catalog projection)")
	grants := flag.Int("grants", 50, "distinct grant messages")
	dupes := flag.Int("dupes", 3, "deliveries per grant message")
	quantity := flag.Int("quantity", 1, "quantity per grant")
	flag.Parse()

	if *itemID == "" {
		log.Fatal("-item is required")
	}

	conn, err := grpc.NewClient(*addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("failed to dial %s: %v", *addr, err)
	}
	defer conn.Close()
	client := pb.NewInventoryServiceClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	userID := "load-" + uuid.NewString()

	var applied, duplicate, failed atomic.Int32
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < *grants; i++ {
		requestID := uuid.NewString()
		for d := 0; d < *dupes; d++ {
			wg.Add(1)
			go func() {
				defer wg.Done()

				resp, err := client.GrantItems(ctx, &pb.GrantItemsRequest{
					RequestId:     requestID,
					UserId:        userID,
					CatalogItemId: *itemID,
					Quantity:      int64(*quantity),
				})
				switch {
				case err != nil:
					failed.Add(1)
					log.Printf("grant %s failed: %v", requestID, err)
				case resp.Result == "duplicate":
					duplicate.Add(1)
				default:
					applied.Add(1)
				}
			}()
		}
	}

	wg.Wait()
	elapsed := time.Since(start)

	list, err := client.ListItems(ctx, &pb.ListItemsRequest{UserId: userID})
	if err != nil {
		log.Fatalf("failed to list items: %v", err)
	}
	var final int64
	for _, item := range list.Items {
		if item.CatalogItemId == *itemID {
			final = item.Quantity
		}
	}

	fmt.Println("========== GRANT LOAD RESULTS ==========")
	fmt.Printf("User:             %s\n", userID)
	fmt.Printf("Distinct grants:  %d\n", *grants)
	fmt.Printf("Deliveries:       %d\n", *grants**dupes)
	fmt.Printf("Applied:          %d\n", applied.Load())
	fmt.Printf("Duplicates:       %d\n", duplicate.Load())
	fmt.Printf("Failed:           %d\n", failed.Load())
	fmt.Printf("Final quantity:   %d\n", final)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("=========================================")

	want := int64(*grants * *quantity)
	ok := true
	if failed.Load() == 0 && applied.Load() != int32(*grants) {
		fmt.Printf("FAIL: expected %d applied, got %d\n", *grants, applied.Load())
		ok = false
	}
	if failed.Load() == 0 && final != want {
		fmt.Printf("FAIL: expected quantity %d, got %d\n", want, final)
		ok = false
	}
	if failed.Load() > 0 {
		fmt.Println("FAIL: some deliveries failed; redeliver them to converge")
		ok = false
	}
	if !ok {
		os.Exit(1)
	}
	fmt.Println("PASS: every grant applied exactly once")
}
