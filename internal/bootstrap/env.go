package bootstrap

import (
	"log"

	"github.com/joho/godotenv"
)

// Loadenv pulls a local .env into the process environment. Missing files are
// fine: deployments set their variables directly.
func Loadenv() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file, reading configuration from the process environment")
	}
}
