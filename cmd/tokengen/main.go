// Command tokengen mints an operator bearer token for the dispatcher API.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	config "github.com/maheshrc27/clipcast/configs"
	"github.com/maheshrc27/clipcast/pkg/utils"
)

func main() {
	operator := flag.String("operator", "", "operator name stored in the token")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.LoadConfig()

	if *operator == "" {
		log.Fatal("-operator is required")
	}
	if cfg.SecretKey == "" {
		log.Fatal("SECRET_KEY is not set")
	}

	token, err := utils.GenerateToken(cfg.SecretKey, *operator, *ttl)
	if err != nil {
		log.Fatalf("Failed to sign token: %v", err)
	}
	fmt.Println(token)
}
