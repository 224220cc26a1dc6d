package main

import (
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/tourdesk/ledger-backend/internal/utils"
	"github.com/tourdesk/ledger-backend/pkg/jwt"
)

func main() {
	email := flag.String("email", "", "mint an access token for this operator email instead of a secret")
	roles := flag.String("roles", "operator", "comma separated roles for the minted token")
	secret := flag.String("secret", "", "signing secret (defaults to JWT_SECRET from .env)")
	ttl := flag.Duration("ttl", 12*time.Hour, "lifetime of the minted token")
	flag.Parse()

	if *email == "" {
		jwtSecret, err := utils.GenerateSecret(32)
		if err != nil {
			log.Fatalf("Failed to generate secret: %v", err)
		}
		fmt.Println("Add this to your .env file:")
		fmt.Println()
		fmt.Printf("JWT_SECRET=%s\n", jwtSecret)
		return
	}

	signingSecret := *secret
	if signingSecret == "" {
		env, err := godotenv.Read()
		if err != nil {
			log.Fatalf("No -secret given and .env could not be read: %v", err)
		}
		signingSecret = env["JWT_SECRET"]
	}
	if signingSecret == "" {
		log.Fatal("JWT_SECRET is empty")
	}

	var roleList []string
	for _, r := range strings.Split(*roles, ",") {
		if r = strings.TrimSpace(r); r != "" {
			roleList = append(roleList, r)
		}
	}

	svc := jwt.NewService(signingSecret, *ttl)
	token, err := svc.GenerateAccessToken(uuid.New(), *email, roleList)
	if err != nil {
		log.Fatalf("Failed to mint token: %v", err)
	}

	claims, err := svc.ExtractClaims(token)
	if err != nil {
		log.Fatalf("Minted token does not parse: %v", err)
	}

	fmt.Printf("user_id: %s\n", claims.UserID)
	fmt.Printf("roles:   %s\n", strings.Join(claims.Roles, ","))
	fmt.Printf("expires: %s\n", claims.ExpiresAt.Time.Format(time.RFC3339))
	fmt.Println()
	fmt.Println(token)
}
