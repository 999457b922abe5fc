// dbcheck connects to DATABASE_URL, applies the schema and prints a
// summary of the credential store. It never prints secret columns.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/web3guy0/asterbot/internal/database"
)

func main() {
	godotenv.Load()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		fmt.Println("❌ DATABASE_URL not set")
		os.Exit(1)
	}

	fmt.Println("🔌 Connecting to database...")
	db, err := database.New(dsn)
	if err != nil {
		fmt.Printf("❌ Connection error: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()
	fmt.Println("✅ Database connected, schema up to date")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	st, err := db.Stats(ctx)
	if err != nil {
		fmt.Printf("❌ Query error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\n📊 Store summary:")
	fmt.Printf("  - users:        %d (%d initialized)\n", st.Users, st.Initialized)
	fmt.Printf("  - trades:       %d\n", st.Trades)
	fmt.Printf("  - total volume: %s USDT\n", st.Volume.StringFixed(2))
}
